package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/rallyd/internal/roster"
	"github.com/fyrsmithlabs/rallyd/internal/store"
)

// Channel names, also used as metric labels and preference keys.
const (
	ChannelSMS   = "sms"
	ChannelInApp = "inApp"
)

// Skip reasons reported back to callers. Transport errors use the error
// text itself.
const (
	ReasonProfileNotFound = "profile not found"
	ReasonInvalidPhone    = "missing or invalid phone"
	ReasonDuplicatePhone  = "duplicate phone number"
	ReasonNotConfigured   = "sms transport not configured"
	ReasonChannelDisabled = "sms disabled by preference"
)

// Message is one notification payload.
type Message struct {
	Kind string `json:"kind"`
	Body string `json:"body"`
}

// Record is the write-once accounting entry for one recipient attempt.
type Record struct {
	RecipientID string `json:"recipient_id"`
	Channel     string `json:"channel"`
	Outcome     string `json:"outcome"` // "sent" or "skipped"
	Reason      string `json:"reason,omitempty"`
	DeliveryID  string `json:"delivery_id,omitempty"`
}

// Result is the complete accounting for a batch: every input recipient
// appears exactly once in Sent or Skipped (the SMS channel), and in-app
// deliveries are tracked separately.
type Result struct {
	Sent    []Record `json:"sent"`
	Skipped []Record `json:"skipped"`
	InApp   []Record `json:"in_app,omitempty"`
}

// SentIDs returns the recipient ids that were delivered over SMS; used
// by the create-session response.
func (r Result) SentIDs() []string {
	ids := make([]string, 0, len(r.Sent))
	for _, rec := range r.Sent {
		ids = append(ids, rec.RecipientID)
	}
	return ids
}

// SkippedIDs returns the recipient ids that were skipped.
func (r Result) SkippedIDs() []string {
	ids := make([]string, 0, len(r.Skipped))
	for _, rec := range r.Skipped {
		ids = append(ids, rec.RecipientID)
	}
	return ids
}

// Sender is the dispatch capability consumed by the RSVP state machine.
type Sender interface {
	Dispatch(ctx context.Context, recipients []roster.Attendee, msg Message) Result
}

// ProfileSource resolves attendee references to profiles.
type ProfileSource interface {
	Resolve(ctx context.Context, ref roster.Attendee) (roster.Profile, error)
}

// inAppNotification is the stored record for the in-app channel.
type inAppNotification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Kind        string    `json:"kind"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	Read        bool      `json:"read"`
}

// Dispatcher fans a message out to recipients with per-recipient failure
// isolation. Phone resolution and de-duplication run sequentially in
// input order so the accounting is deterministic; the actual sends run
// concurrently under a bounded pool.
type Dispatcher struct {
	profiles      ProfileSource
	transport     Transport
	store         store.Store
	logger        *zap.Logger
	maxConcurrent int
	metrics       *Metrics
}

// NewDispatcher creates a dispatcher. maxConcurrent bounds the send pool;
// values below 1 fall back to 4.
func NewDispatcher(profiles ProfileSource, transport Transport, s store.Store, maxConcurrent int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &Dispatcher{
		profiles:      profiles,
		transport:     transport,
		store:         s,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		metrics:       NewMetrics(),
	}
}

// smsJob is one resolved recipient ready to send.
type smsJob struct {
	recipientID string
	phone       string
	index       int
}

// Dispatch sends msg to every recipient independently. It never fails the
// batch for a single recipient: the Result carries a record per recipient
// with the outcome and skip reason.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []roster.Attendee, msg Message) Result {
	var result Result
	d.metrics.BatchSize.Observe(float64(len(recipients)))

	var jobs []smsJob
	seenPhones := make(map[string]string) // normalized phone -> first recipient id

	skip := func(id, reason string) {
		result.Skipped = append(result.Skipped, Record{
			RecipientID: id, Channel: ChannelSMS, Outcome: "skipped", Reason: reason,
		})
		d.metrics.SkippedTotal.WithLabelValues(ChannelSMS, reason).Inc()
	}

	for _, ref := range recipients {
		prof, err := d.profiles.Resolve(ctx, ref)
		if err != nil {
			skip(ref.ID, ReasonProfileNotFound)
			continue
		}

		// The in-app channel is independent of SMS and checked first.
		if channelEnabled(prof.ChannelPrefs, ChannelInApp) {
			result.InApp = append(result.InApp, d.writeInApp(ctx, prof.ID, msg))
		}

		if !channelEnabled(prof.ChannelPrefs, ChannelSMS) {
			skip(ref.ID, ReasonChannelDisabled)
			continue
		}

		phone, err := NormalizePhone(prof.Phone)
		if err != nil {
			skip(ref.ID, ReasonInvalidPhone)
			continue
		}
		if first, dup := seenPhones[phone]; dup {
			d.logger.Debug("suppressing duplicate phone in batch",
				zap.String("recipient", ref.ID), zap.String("first_recipient", first))
			skip(ref.ID, ReasonDuplicatePhone)
			continue
		}
		seenPhones[phone] = ref.ID

		if d.transport == nil || !d.transport.Configured() {
			skip(ref.ID, ReasonNotConfigured)
			continue
		}

		jobs = append(jobs, smsJob{recipientID: ref.ID, phone: phone, index: len(jobs)})
	}

	// Concurrent send phase. Completion order does not affect accounting:
	// each job writes to its own slot, and the group never propagates a
	// send failure.
	records := make([]Record, len(jobs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrent)

	for _, job := range jobs {
		g.Go(func() error {
			sid, err := d.transport.Send(gctx, job.phone, msg.Body)
			rec := Record{RecipientID: job.recipientID, Channel: ChannelSMS}
			if err != nil {
				rec.Outcome = "skipped"
				rec.Reason = err.Error()
			} else {
				rec.Outcome = "sent"
				rec.DeliveryID = sid
			}
			mu.Lock()
			records[job.index] = rec
			mu.Unlock()
			return nil
		})
	}
	// The group's error is always nil; Wait only synchronizes.
	_ = g.Wait()

	for _, rec := range records {
		if rec.Outcome == "sent" {
			result.Sent = append(result.Sent, rec)
			d.metrics.SentTotal.WithLabelValues(ChannelSMS).Inc()
		} else {
			result.Skipped = append(result.Skipped, rec)
			d.metrics.SkippedTotal.WithLabelValues(ChannelSMS, "transport error").Inc()
		}
	}

	d.logger.Info("notification batch dispatched",
		zap.String("kind", msg.Kind),
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", len(result.Sent)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result
}

// writeInApp stores one in-app notification record.
func (d *Dispatcher) writeInApp(ctx context.Context, recipientID string, msg Message) Record {
	rec := Record{RecipientID: recipientID, Channel: ChannelInApp}
	if d.store == nil {
		rec.Outcome = "skipped"
		rec.Reason = "store not configured"
		return rec
	}

	n := inAppNotification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Kind:        msg.Kind,
		Body:        msg.Body,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := d.store.Put(ctx, store.CollectionNotifications, n.ID, n); err != nil {
		rec.Outcome = "skipped"
		rec.Reason = fmt.Sprintf("store write failed: %v", err)
		d.metrics.SkippedTotal.WithLabelValues(ChannelInApp, "store error").Inc()
		return rec
	}
	rec.Outcome = "sent"
	rec.DeliveryID = n.ID
	d.metrics.SentTotal.WithLabelValues(ChannelInApp).Inc()
	return rec
}

// channelEnabled consults the preference map; a missing map or key means
// the channel is allowed.
func channelEnabled(prefs map[string]bool, channel string) bool {
	if prefs == nil {
		return true
	}
	enabled, ok := prefs[channel]
	if !ok {
		return true
	}
	return enabled
}

// Ensure Dispatcher implements Sender.
var _ Sender = (*Dispatcher)(nil)
