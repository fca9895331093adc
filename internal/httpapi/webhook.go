package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rallyd/internal/intent"
	"github.com/fyrsmithlabs/rallyd/internal/logging"
	"github.com/fyrsmithlabs/rallyd/internal/notify"
	"github.com/fyrsmithlabs/rallyd/internal/session"
)

// Canned webhook replies for conversational dead ends.
const (
	replyUnknownNumber = "Hi! I don't recognize this number yet. Ask your game organizer to add you as a player."
	replyNoSession     = "You don't have any upcoming games waiting on a reply right now."
	replyQuestion      = "Good question! I'll make sure the organizer sees it."
	replyTryAgain      = "Something went wrong on our end. Please try again in a minute."
)

// handleSMSWebhook processes an inbound Twilio SMS: authenticate the
// request, resolve the sender to a player, classify the reply, and apply
// it to the sender's most recent actionable session. Responses are TwiML.
func (s *Server) handleSMSWebhook(c echo.Context) error {
	r := c.Request()
	if err := r.ParseForm(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}

	if !s.config.DevMode {
		sig := r.Header.Get("X-Twilio-Signature")
		if !notify.ValidateSignature(s.config.TwilioAuthToken, requestURL(r), r.PostForm, sig) {
			s.logger.Warn("rejected webhook with bad signature",
				zap.String("remote", c.RealIP()))
			return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
		}
	}

	from := c.FormValue("From")
	body := c.FormValue("Body")
	if from == "" || body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "From and Body are required")
	}

	reply := s.replyFor(c, from, body)
	return c.Blob(http.StatusOK, "text/xml", []byte(renderTwiML(reply)))
}

// replyFor runs the conversational flow and always produces something to
// text back; infrastructure failures get a generic try-again.
func (s *Server) replyFor(c echo.Context, from, body string) string {
	ctx := c.Request().Context()

	prof, err := s.registry.Profiles().FindByPhone(ctx, from)
	if err != nil {
		s.logger.Info("inbound sms from unknown number",
			zap.String("from", logging.RedactPhone(from)))
		return replyUnknownNumber
	}

	cls := s.registry.Classifier().Classify(ctx, body)
	s.logger.Debug("classified inbound reply",
		zap.String("player_id", prof.ID),
		zap.String("intent", string(cls.Intent)),
		zap.String("confidence", string(cls.Confidence)),
	)

	switch cls.Intent {
	case intent.IntentAccept, intent.IntentDecline, intent.IntentCancel:
		return s.applyReply(c, prof.ID, cls.Intent)
	case intent.IntentQuestion:
		return replyQuestion
	default:
		if cls.FollowUp != "" {
			return cls.FollowUp
		}
		return replyTryAgain
	}
}

// applyReply maps a classified intent onto the sender's most recent
// actionable session.
func (s *Server) applyReply(c echo.Context, playerID string, in intent.Intent) string {
	ctx := c.Request().Context()
	sessions := s.registry.Sessions()

	sess, err := sessions.MostRecentActionable(ctx, playerID)
	if err != nil {
		if errors.Is(err, session.ErrNoActionableSession) {
			return replyNoSession
		}
		s.logger.Error("resolve actionable session failed", zap.Error(err))
		return replyTryAgain
	}

	var res session.TransitionResult
	switch in {
	case intent.IntentAccept:
		res, err = sessions.Accept(ctx, sess.ID, playerID)
	case intent.IntentDecline:
		res, err = sessions.Decline(ctx, sess.ID, playerID)
	case intent.IntentCancel:
		res, err = sessions.Cancel(ctx, sess.ID, playerID)
	}
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidTransition),
			errors.Is(err, session.ErrSessionClosed),
			errors.Is(err, session.ErrNotInvited):
			// Input errors become a clarification, never a failure.
			return transitionHint(in, err)
		default:
			s.logger.Error("sms transition failed", zap.Error(err))
			return replyTryAgain
		}
	}
	return res.Reply
}

// transitionHint explains why the reply didn't apply, in reply-sized text.
func transitionHint(in intent.Intent, err error) string {
	switch in {
	case intent.IntentAccept:
		if errors.Is(err, session.ErrInvalidTransition) {
			return "You already bowed out of this game, so YES can't re-add you. Ask the organizer to re-invite you."
		}
	case intent.IntentDecline:
		if errors.Is(err, session.ErrInvalidTransition) {
			return "You're already confirmed for this game. Reply CANCEL if you need to drop out."
		}
	case intent.IntentCancel:
		if errors.Is(err, session.ErrInvalidTransition) {
			return "You're not confirmed for this game, so there's nothing to cancel. Reply YES to join or NO to pass."
		}
	}
	return replyNoSession
}

// requestURL reconstructs the public URL Twilio signed, honoring the
// forwarding proxy's protocol header.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.RequestURI
}
