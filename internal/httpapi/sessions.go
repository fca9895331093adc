package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rallyd/internal/session"
	"github.com/fyrsmithlabs/rallyd/internal/store"
)

// CreateSessionRequest is the request body for POST /api/v1/sessions. The
// attendees field accepts the legacy wire shapes (bare ids, prefixed ids,
// objects) and is normalized server-side.
type CreateSessionRequest struct {
	CourtID         string            `json:"courtId"`
	OrganizerID     string            `json:"organizerId"`
	StartTime       string            `json:"startTime"`
	IsDoubles       bool              `json:"isDoubles"`
	DurationMinutes int               `json:"durationMinutes"`
	PlayerIDs       []string          `json:"playerIds"`
	Attendees       []any             `json:"attendees"`
	PlayerStatuses  map[string]string `json:"playerStatuses"`
	MinPlayers      int               `json:"minPlayers"`
	MaxPlayers      int               `json:"maxPlayers"`
	GroupIDs        []string          `json:"groupIds"`
}

// CreateSessionResponse reports the new session and the invite accounting.
type CreateSessionResponse struct {
	SessionID       string   `json:"sessionId"`
	NotifiedCount   int      `json:"notifiedCount"`
	NotifiedPlayers []string `json:"notifiedPlayers"`
	SkippedPlayers  []string `json:"skippedPlayers"`
}

// handleCreateSession creates a session and dispatches invites.
func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid create-session request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.StartTime == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "startTime is required")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "startTime must be ISO-8601")
	}

	sess, result, err := s.registry.Sessions().Create(c.Request().Context(), session.CreateParams{
		CourtID:         req.CourtID,
		OrganizerID:     req.OrganizerID,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
		IsDoubles:       req.IsDoubles,
		PlayerIDs:       req.PlayerIDs,
		RawAttendees:    req.Attendees,
		PlayerStatuses:  req.PlayerStatuses,
		MinPlayers:      req.MinPlayers,
		MaxPlayers:      req.MaxPlayers,
		GroupIDs:        req.GroupIDs,
	})
	if err != nil {
		s.logger.Warn("create session failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	notified := result.SentIDs()
	skipped := result.SkippedIDs()
	return c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID:       sess.ID,
		NotifiedCount:   len(notified),
		NotifiedPlayers: notified,
		SkippedPlayers:  skipped,
	})
}

// handleGetSession fetches one session.
func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.registry.Sessions().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		s.logger.Error("get session failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "try again")
	}
	return c.JSON(http.StatusOK, sess)
}

// RsvpRequest is the request body for POST /api/v1/sessions/:id/rsvp.
type RsvpRequest struct {
	PlayerID string `json:"playerId"`
	Action   string `json:"action"` // accept | decline | cancel
}

// RsvpResponse reports the applied transition.
type RsvpResponse struct {
	PlayerStatus  string `json:"playerStatus"`
	SessionStatus string `json:"sessionStatus"`
	Waitlisted    bool   `json:"waitlisted,omitempty"`
	Reply         string `json:"reply"`
}

// handleRsvp applies an RSVP transition through the same state machine the
// SMS path uses.
func (s *Server) handleRsvp(c echo.Context) error {
	var req RsvpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PlayerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "playerId is required")
	}

	ctx := c.Request().Context()
	sessions := s.registry.Sessions()
	sessionID := c.Param("id")

	var res session.TransitionResult
	var err error
	switch req.Action {
	case "accept":
		res, err = sessions.Accept(ctx, sessionID, req.PlayerID)
	case "decline":
		res, err = sessions.Decline(ctx, sessionID, req.PlayerID)
	case "cancel":
		res, err = sessions.Cancel(ctx, sessionID, req.PlayerID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "action must be accept, decline, or cancel")
	}
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		case errors.Is(err, session.ErrNotInvited):
			return echo.NewHTTPError(http.StatusNotFound, "player is not part of this session")
		case errors.Is(err, session.ErrInvalidTransition),
			errors.Is(err, session.ErrSessionClosed),
			errors.Is(err, session.ErrNotOrganizer):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			s.logger.Error("rsvp transition failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "try again")
		}
	}

	return c.JSON(http.StatusOK, RsvpResponse{
		PlayerStatus:  string(res.PlayerStatus),
		SessionStatus: string(res.Session.Status),
		Waitlisted:    res.Waitlisted,
		Reply:         res.Reply,
	})
}
