package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rallyd/internal/intent"
	"github.com/fyrsmithlabs/rallyd/internal/session"
)

// ChatRequest is one scheduling-conversation turn from the web client.
type ChatRequest struct {
	UserID       string `json:"userId"`
	Conversation string `json:"conversation"`
	Message      string `json:"message"`
	IsDoubles    bool   `json:"isDoubles"`
}

// ChatResponse carries the assistant reply and, once the intent is
// complete, the created session and its invite accounting.
type ChatResponse struct {
	Reply    string `json:"reply"`
	Complete bool   `json:"complete"`

	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Location string `json:"location,omitempty"`

	SessionID       string   `json:"sessionId,omitempty"`
	NotifiedCount   int      `json:"notifiedCount,omitempty"`
	NotifiedPlayers []string `json:"notifiedPlayers,omitempty"`
	SkippedPlayers  []string `json:"skippedPlayers,omitempty"`
}

// handleChat runs one extraction turn. Incomplete intents come back with
// a follow-up question; complete ones create the session and dispatch
// invites in the same call.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId and message are required")
	}

	ctx := c.Request().Context()
	players, err := s.registry.Profiles().Players(ctx)
	if err != nil {
		s.logger.Error("load players failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "try again")
	}
	courts, err := s.registry.Profiles().Courts(ctx)
	if err != nil {
		s.logger.Error("load courts failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "try again")
	}

	res, err := s.registry.Extraction().Extract(ctx, intent.Request{
		Conversation:  req.Conversation,
		Message:       req.Message,
		Players:       players,
		Courts:        courts,
		CurrentUserID: req.UserID,
	})
	if err != nil {
		s.logger.Error("extraction failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "try again")
	}

	resp := ChatResponse{
		Complete: res.Complete,
		Date:     res.Intent.Date,
		Time:     res.Intent.Time,
		Location: res.Intent.Location,
	}
	if !res.Complete {
		resp.Reply = res.FollowUp
		return c.JSON(http.StatusOK, resp)
	}

	start, err := parseStart(res.Intent.Date, res.Intent.Time)
	if err != nil {
		s.logger.Warn("extracted start time unparsable",
			zap.String("date", res.Intent.Date), zap.String("time", res.Intent.Time), zap.Error(err))
		resp.Complete = false
		resp.Reply = "What day and time should I schedule it for?"
		return c.JSON(http.StatusOK, resp)
	}

	attendees := make([]any, len(res.Invitees))
	for i, a := range res.Invitees {
		attendees[i] = a
	}
	sess, dispatch, err := s.registry.Sessions().Create(ctx, session.CreateParams{
		CourtID:      res.CourtID,
		OrganizerID:  req.UserID,
		StartTime:    start,
		IsDoubles:    req.IsDoubles,
		RawAttendees: attendees,
	})
	if err != nil {
		s.logger.Error("create session from chat failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "try again")
	}

	resp.SessionID = sess.ID
	resp.NotifiedPlayers = dispatch.SentIDs()
	resp.SkippedPlayers = dispatch.SkippedIDs()
	resp.NotifiedCount = len(resp.NotifiedPlayers)
	resp.Reply = fmt.Sprintf("You're all set: %s at %s on %s. I've texted %d player(s) to confirm.",
		res.Intent.Time, res.Intent.Location, res.Intent.Date, resp.NotifiedCount)
	if res.RateLimited {
		resp.Reply = res.FollowUp
	}
	return c.JSON(http.StatusOK, resp)
}

// parseStart combines the extracted date and clock strings into an
// absolute timestamp in server-local time.
func parseStart(date, clock string) (time.Time, error) {
	return time.ParseInLocation(intent.DateLayout+" 3:04 PM", date+" "+clock, time.Local)
}
