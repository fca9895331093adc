package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rallyd/internal/notify"
	"github.com/fyrsmithlabs/rallyd/internal/roster"
	"github.com/fyrsmithlabs/rallyd/internal/store"
)

// casRetries bounds the optimistic-concurrency retry loop for one RSVP
// transition. Conflicts are short-lived (two phones tapping at once), so a
// handful of immediate retries is enough.
const casRetries = 5

// Transition errors. These are input errors in the taxonomy: the caller
// turns them into a clarification reply, never a 5xx.
var (
	ErrNotInvited        = errors.New("player is not part of this session")
	ErrInvalidTransition = errors.New("transition not valid from current status")
	ErrSessionClosed     = errors.New("session is cancelled or completed")
	ErrNotOrganizer      = errors.New("only the organizer may do that")
)

// CreateParams carries everything the create-session operation accepts.
// RawAttendees takes the legacy wire shapes as-is; normalization happens
// here so every storage write sees the canonical form.
type CreateParams struct {
	CourtID         string
	OrganizerID     string
	StartTime       time.Time
	DurationMinutes int
	IsDoubles       bool
	PlayerIDs       []string
	RawAttendees    []any
	PlayerStatuses  map[string]string
	MinPlayers      int
	MaxPlayers      int
	GroupIDs        []string
}

// TransitionResult reports one applied RSVP transition along with the
// user-facing reply text and the notification accounting it produced.
type TransitionResult struct {
	Session       GameSession
	PlayerStatus  RsvpStatus
	Waitlisted    bool
	BecameFull    bool
	Reopened      bool
	Reply         string
	Notifications notify.Result
}

// Service applies session lifecycle operations. All mutations go through a
// compare-and-swap loop against the session document so concurrent accepts
// of the last spot cannot both land as CONFIRMED.
type Service struct {
	store    store.Store
	profiles *roster.Profiles
	sender   notify.Sender
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the session service.
func NewService(s store.Store, profiles *roster.Profiles, sender notify.Sender, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    s,
		profiles: profiles,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

// Get loads one session.
func (s *Service) Get(ctx context.Context, id string) (GameSession, error) {
	var sess GameSession
	if _, err := s.store.Get(ctx, store.CollectionSessions, id, &sess); err != nil {
		return GameSession{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// Create persists a new session and dispatches invites. Groups expand to
// their member snapshot at this moment; later membership edits do not
// touch the session. The organizer starts CONFIRMED, everyone else
// PENDING unless the caller supplied an explicit status.
func (s *Service) Create(ctx context.Context, p CreateParams) (GameSession, notify.Result, error) {
	if p.CourtID == "" {
		return GameSession{}, notify.Result{}, fmt.Errorf("courtId is required")
	}
	if p.OrganizerID == "" {
		return GameSession{}, notify.Result{}, fmt.Errorf("organizerId is required")
	}
	if p.StartTime.IsZero() {
		return GameSession{}, notify.Result{}, fmt.Errorf("startTime is required")
	}

	playerIDs := append([]string{}, p.PlayerIDs...)
	for _, gid := range p.GroupIDs {
		g, err := s.profiles.Group(ctx, gid)
		if err != nil {
			return GameSession{}, notify.Result{}, fmt.Errorf("expand group: %w", err)
		}
		playerIDs = append(playerIDs, g.Members...)
	}

	attendees := roster.NormalizeAttendees(p.RawAttendees, playerIDs)
	attendees = ensureAttendee(attendees, roster.Attendee{ID: p.OrganizerID, Source: roster.SourceUser})

	statuses := make(map[string]RsvpStatus, len(attendees))
	for _, a := range attendees {
		statuses[a.ID] = RsvpPending
		if declared, ok := p.PlayerStatuses[a.ID]; ok {
			if st, valid := parseRsvpStatus(declared); valid {
				statuses[a.ID] = st
			}
		}
	}
	statuses[p.OrganizerID] = RsvpConfirmed

	now := s.now().UTC()
	sess := GameSession{
		ID:              uuid.NewString(),
		CourtID:         p.CourtID,
		OrganizerID:     p.OrganizerID,
		StartTime:       p.StartTime,
		DurationMinutes: p.DurationMinutes,
		IsDoubles:       p.IsDoubles,
		Attendees:       attendees,
		PlayerStatuses:  statuses,
		MinPlayers:      p.MinPlayers,
		MaxPlayers:      p.MaxPlayers,
		Status:          StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if sess.MinPlayers <= 0 {
		sess.MinPlayers = sess.EffectiveMaxPlayers()
	}
	sess.recomputeFullness()

	if _, err := s.store.Put(ctx, store.CollectionSessions, sess.ID, sess); err != nil {
		return GameSession{}, notify.Result{}, fmt.Errorf("store session: %w", err)
	}

	invitees := make([]roster.Attendee, 0, len(attendees))
	for _, a := range attendees {
		if a.ID == p.OrganizerID {
			continue
		}
		invitees = append(invitees, a)
	}
	body := fmt.Sprintf("You're invited to pickleball at %s on %s. Reply YES to confirm or NO to decline.",
		s.courtName(ctx, sess.CourtID), formatWhen(sess.StartTime))
	result := s.dispatch(ctx, invitees, notify.Message{Kind: "invite", Body: body})

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("court_id", sess.CourtID),
		zap.Int("invitees", len(invitees)),
		zap.Int("notified", len(result.Sent)),
	)
	return sess, result, nil
}

// Accept confirms a player's spot, or waitlists them when the session is
// already full. Accepting twice is a no-op; players who declined,
// cancelled, or expired cannot come back in without a fresh invite.
func (s *Service) Accept(ctx context.Context, sessionID, playerID string) (TransitionResult, error) {
	var res TransitionResult
	var acceptedNow bool
	sess, err := s.apply(ctx, sessionID, func(sess *GameSession) error {
		res = TransitionResult{}
		acceptedNow = false
		current, ok := sess.PlayerStatuses[playerID]
		if !ok {
			return ErrNotInvited
		}
		if sess.Status == StatusCancelled || sess.Status == StatusCompleted {
			return ErrSessionClosed
		}
		if current == RsvpConfirmed {
			res.PlayerStatus = RsvpConfirmed
			res.Reply = fmt.Sprintf("You're already confirmed for %s.", formatWhen(sess.StartTime))
			return nil
		}
		switch current {
		case RsvpDeclined, RsvpCancelled, RsvpExpired:
			return fmt.Errorf("%w: cannot accept from %s", ErrInvalidTransition, current)
		}

		if sess.Status == StatusFull {
			sess.PlayerStatuses[playerID] = RsvpWaitlist
			if !sess.hasAlternate(playerID) {
				sess.Alternates = append(sess.Alternates, playerID)
			}
			acceptedNow = true
			res.PlayerStatus = RsvpWaitlist
			res.Waitlisted = true
			res.Reply = fmt.Sprintf("The game on %s is full. You're #%d on the waitlist and we'll text you if a spot opens.",
				formatWhen(sess.StartTime), len(sess.Alternates))
			return nil
		}

		sess.PlayerStatuses[playerID] = RsvpConfirmed
		sess.removeAlternate(playerID)
		wasOpen := sess.Status == StatusOpen
		sess.recomputeFullness()
		acceptedNow = true
		res.PlayerStatus = RsvpConfirmed
		res.BecameFull = wasOpen && sess.Status == StatusFull
		res.Reply = fmt.Sprintf("You're confirmed for %s. See you there!", formatWhen(sess.StartTime))
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	res.Session = sess

	if acceptedNow && playerID != sess.OrganizerID {
		name := s.playerName(ctx, sess, playerID)
		body := fmt.Sprintf("%s is in for the game on %s.", name, formatWhen(sess.StartTime))
		if res.Waitlisted {
			body = fmt.Sprintf("%s is on the waitlist for the game on %s.", name, formatWhen(sess.StartTime))
		}
		res.Notifications = s.dispatch(ctx, []roster.Attendee{sess.attendeeFor(sess.OrganizerID)},
			notify.Message{Kind: "rsvp_accepted", Body: body})
	}
	if res.BecameFull {
		res.Notifications = mergeResults(res.Notifications, s.broadcastFull(ctx, sess, playerID))
	}
	return res, nil
}

// Decline marks a player out. Valid from PENDING or WAITLIST; a confirmed
// player has to cancel instead so fullness is recomputed.
func (s *Service) Decline(ctx context.Context, sessionID, playerID string) (TransitionResult, error) {
	var res TransitionResult
	declinedNow := false
	sess, err := s.apply(ctx, sessionID, func(sess *GameSession) error {
		res = TransitionResult{}
		declinedNow = false
		current, ok := sess.PlayerStatuses[playerID]
		if !ok {
			return ErrNotInvited
		}
		if sess.Status == StatusCancelled || sess.Status == StatusCompleted {
			return ErrSessionClosed
		}
		switch current {
		case RsvpDeclined:
			res.PlayerStatus = RsvpDeclined
			res.Reply = "Got it, you're marked as out."
			return nil
		case RsvpConfirmed:
			return fmt.Errorf("%w: already confirmed, cancel instead", ErrInvalidTransition)
		case RsvpPending, RsvpWaitlist:
			sess.PlayerStatuses[playerID] = RsvpDeclined
			sess.removeAlternate(playerID)
			declinedNow = true
			res.PlayerStatus = RsvpDeclined
			res.Reply = fmt.Sprintf("Got it, you're out for %s. Maybe next time!", formatWhen(sess.StartTime))
			return nil
		default:
			return fmt.Errorf("%w: cannot decline from %s", ErrInvalidTransition, current)
		}
	})
	if err != nil {
		return TransitionResult{}, err
	}
	res.Session = sess

	if declinedNow {
		body := fmt.Sprintf("%s can't make the game on %s.", s.playerName(ctx, sess, playerID), formatWhen(sess.StartTime))
		res.Notifications = s.dispatch(ctx, []roster.Attendee{sess.attendeeFor(sess.OrganizerID)},
			notify.Message{Kind: "rsvp_declined", Body: body})
	}
	return res, nil
}

// Cancel withdraws a confirmed player. If that reopens a full session, the
// opening is offered to the waitlist in order, then to anyone still
// pending. The offer is first-come-first-served through the normal accept
// path, not an automatic promotion.
func (s *Service) Cancel(ctx context.Context, sessionID, playerID string) (TransitionResult, error) {
	var res TransitionResult
	sess, err := s.apply(ctx, sessionID, func(sess *GameSession) error {
		res = TransitionResult{}
		current, ok := sess.PlayerStatuses[playerID]
		if !ok {
			return ErrNotInvited
		}
		if sess.Status == StatusCancelled || sess.Status == StatusCompleted {
			return ErrSessionClosed
		}
		if playerID == sess.OrganizerID {
			return fmt.Errorf("%w: the organizer cancels the whole session", ErrInvalidTransition)
		}
		if current != RsvpConfirmed {
			return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, current)
		}

		wasFull := sess.Status == StatusFull
		sess.PlayerStatuses[playerID] = RsvpCancelled
		sess.recomputeFullness()
		res.PlayerStatus = RsvpCancelled
		res.Reopened = wasFull && sess.Status == StatusOpen
		res.Reply = fmt.Sprintf("You're out for %s. We'll let the group know.", formatWhen(sess.StartTime))
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	res.Session = sess
	res.Notifications = s.notifyCancellation(ctx, sess, playerID, res.Reopened)
	return res, nil
}

// CancelSession ends the whole session. Organizer only.
func (s *Service) CancelSession(ctx context.Context, sessionID, requesterID string) (TransitionResult, error) {
	var res TransitionResult
	cancelledNow := false
	sess, err := s.apply(ctx, sessionID, func(sess *GameSession) error {
		res = TransitionResult{}
		cancelledNow = false
		if requesterID != sess.OrganizerID {
			return ErrNotOrganizer
		}
		if sess.Status == StatusCancelled {
			res.Reply = "This game is already cancelled."
			return nil
		}
		sess.Status = StatusCancelled
		cancelledNow = true
		res.Reply = fmt.Sprintf("Cancelled the game on %s. Everyone will be notified.", formatWhen(sess.StartTime))
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	res.Session = sess

	if cancelledNow {
		var recipients []roster.Attendee
		for _, a := range sess.Attendees {
			if a.ID == sess.OrganizerID {
				continue
			}
			switch sess.PlayerStatuses[a.ID] {
			case RsvpDeclined, RsvpCancelled:
				continue
			}
			recipients = append(recipients, a)
		}
		body := fmt.Sprintf("The pickleball game on %s has been cancelled.", formatWhen(sess.StartTime))
		res.Notifications = s.dispatch(ctx, recipients, notify.Message{Kind: "session_cancelled", Body: body})
	}
	return res, nil
}

// ErrNoActionableSession means the player has no open or full session an
// SMS reply could apply to.
var ErrNoActionableSession = errors.New("no actionable session for player")

// MostRecentActionable finds the session an inbound reply from this player
// most plausibly refers to: still open or full, not yet started, player
// invited, newest first.
func (s *Service) MostRecentActionable(ctx context.Context, playerID string) (GameSession, error) {
	ids, err := s.store.List(ctx, store.CollectionSessions)
	if err != nil {
		return GameSession{}, fmt.Errorf("list sessions: %w", err)
	}

	now := s.now().UTC()
	var best GameSession
	found := false
	for _, id := range ids {
		var sess GameSession
		if _, err := s.store.Get(ctx, store.CollectionSessions, id, &sess); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return GameSession{}, fmt.Errorf("get session %s: %w", id, err)
		}
		if sess.Status != StatusOpen && sess.Status != StatusFull {
			continue
		}
		if _, invited := sess.PlayerStatuses[playerID]; !invited {
			continue
		}
		if !sess.StartTime.IsZero() && sess.StartTime.Before(now) {
			continue
		}
		if !found || sess.CreatedAt.After(best.CreatedAt) {
			best = sess
			found = true
		}
	}
	if !found {
		return GameSession{}, ErrNoActionableSession
	}
	return best, nil
}

// apply runs one transition under optimistic concurrency: read, mutate a
// copy, conditionally replace. A conflicting write restarts the loop with
// fresh state, so the losing side of a race re-evaluates against what
// actually happened.
func (s *Service) apply(ctx context.Context, sessionID string, mutate func(*GameSession) error) (GameSession, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		var sess GameSession
		rev, err := s.store.Get(ctx, store.CollectionSessions, sessionID, &sess)
		if err != nil {
			return GameSession{}, fmt.Errorf("get session %s: %w", sessionID, err)
		}
		if sess.PlayerStatuses == nil {
			sess.PlayerStatuses = make(map[string]RsvpStatus)
		}

		if err := mutate(&sess); err != nil {
			return GameSession{}, err
		}
		sess.UpdatedAt = s.now().UTC()

		if _, err := s.store.Replace(ctx, store.CollectionSessions, sessionID, rev, sess); err != nil {
			if errors.Is(err, store.ErrConflict) {
				lastErr = err
				s.logger.Debug("rsvp transition conflicted, retrying",
					zap.String("session_id", sessionID), zap.Int("attempt", attempt+1))
				continue
			}
			return GameSession{}, fmt.Errorf("update session %s: %w", sessionID, err)
		}
		return sess, nil
	}
	return GameSession{}, fmt.Errorf("update session %s: too many concurrent updates: %w", sessionID, lastErr)
}

// broadcastFull tells confirmed players the game is on and everyone still
// pending or declined that it filled without them.
func (s *Service) broadcastFull(ctx context.Context, sess GameSession, acceptedID string) notify.Result {
	when := formatWhen(sess.StartTime)

	var confirmed []roster.Attendee
	for _, id := range sess.playersWithStatus(RsvpConfirmed, acceptedID) {
		confirmed = append(confirmed, sess.attendeeFor(id))
	}
	result := s.dispatch(ctx, confirmed, notify.Message{
		Kind: "session_full",
		Body: fmt.Sprintf("The game on %s is full. See you there!", when),
	})

	var leftOut []roster.Attendee
	for _, id := range sess.playersWithStatus(RsvpPending) {
		leftOut = append(leftOut, sess.attendeeFor(id))
	}
	for _, id := range sess.playersWithStatus(RsvpDeclined) {
		leftOut = append(leftOut, sess.attendeeFor(id))
	}
	filled := s.dispatch(ctx, leftOut, notify.Message{
		Kind: "session_filled_without_you",
		Body: fmt.Sprintf("The game on %s filled up. We'll text you if a spot opens.", when),
	})
	return mergeResults(result, filled)
}

/// notifyCancellation fans out after a confirmed player withdraws: the
// organizer and remaining confirmed players hear a spot opened, then the
// waitlist (in order) and pending players get the offer.
func (s *Service) notifyCancellation(ctx context.Context, sess GameSession, cancelledID string, reopened bool) notify.Result {
	when := formatWhen(sess.StartTime)
	name := s.playerName(ctx, sess, cancelledID)

	recipients := []roster.Attendee{sess.attendeeFor(sess.OrganizerID)}
	for _, id := range sess.playersWithStatus(RsvpConfirmed, sess.OrganizerID, cancelledID) {
		recipients = append(recipients, sess.attendeeFor(id))
	}
	result := s.dispatch(ctx, recipients, notify.Message{
		Kind: "spot_opened",
		Body: fmt.Sprintf("%s dropped out of the game on %s. A spot is open.", name, when),
	})

	if !reopened {
		return result
	}

	// Offer order: waitlist arrival order first, then anyone still pending.
	// First to accept takes the spot.
	var offered []roster.Attendee
	seen := map[string]bool{cancelledID: true}
	for _, id := range sess.Alternates {
		if seen[id] || sess.PlayerStatuses[id] != RsvpWaitlist {
			continue
		}
		seen[id] = true
		offered = append(offered, sess.attendeeFor(id))
	}
	for _, id := range sess.playersWithStatus(RsvpPending) {
		if seen[id] {
			continue
		}
		seen[id] = true
		offered = append(offered, sess.attendeeFor(id))
	}
	offers := s.dispatch(ctx, offered, notify.Message{
		Kind: "waitlist_offer",
		Body: fmt.Sprintf("A spot opened for the game on %s. Reply YES to claim it — first come, first served.", when),
	})
	return mergeResults(result, offers)
}

// dispatch guards against a nil sender so tests and degraded deployments
// can run the state machine without a notification stack.
func (s *Service) dispatch(ctx context.Context, recipients []roster.Attendee, msg notify.Message) notify.Result {
	if s.sender == nil || len(recipients) == 0 {
		return notify.Result{}
	}
	return s.sender.Dispatch(ctx, recipients, msg)
}

// courtName resolves a court id to its display name, falling back to the
// id when the record is missing.
func (s *Service) courtName(ctx context.Context, courtID string) string {
	var c roster.Court
	if _, err := s.store.Get(ctx, store.CollectionCourts, courtID, &c); err != nil || c.Name == "" {
		return courtID
	}
	return c.Name
}

// playerName resolves a display name for notification bodies.
func (s *Service) playerName(ctx context.Context, sess GameSession, playerID string) string {
	if s.profiles == nil {
		return "A player"
	}
	prof, err := s.profiles.Resolve(ctx, sess.attendeeFor(playerID))
	if err != nil || prof.FullName() == "" {
		return "A player"
	}
	return prof.FullName()
}

// ensureAttendee appends ref unless an entry with the same id exists.
func ensureAttendee(attendees []roster.Attendee, ref roster.Attendee) []roster.Attendee {
	for _, a := range attendees {
		if a.ID == ref.ID {
			return attendees
		}
	}
	return append(attendees, ref)
}

// parseRsvpStatus validates a caller-supplied status string.
func parseRsvpStatus(raw string) (RsvpStatus, bool) {
	switch RsvpStatus(raw) {
	case RsvpPending, RsvpConfirmed, RsvpDeclined, RsvpCancelled, RsvpWaitlist, RsvpExpired:
		return RsvpStatus(raw), true
	}
	return "", false
}

// mergeResults concatenates per-batch accounting.
func mergeResults(a, b notify.Result) notify.Result {
	return notify.Result{
		Sent:    append(a.Sent, b.Sent...),
		Skipped: append(a.Skipped, b.Skipped...),
		InApp:   append(a.InApp, b.InApp...),
	}
}

// formatWhen renders a session start for message bodies.
func formatWhen(t time.Time) string {
	return t.Format("Monday, Jan 2 at 3:04 PM")
}
