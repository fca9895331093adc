package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/rallyd/internal/roster"
	"github.com/fyrsmithlabs/rallyd/internal/store"
)

// fakeProfiles resolves attendees from an in-memory map.
type fakeProfiles struct {
	profiles map[string]roster.Profile
}

func (f *fakeProfiles) Resolve(_ context.Context, ref roster.Attendee) (roster.Profile, error) {
	if p, ok := f.profiles[ref.ID]; ok {
		return p, nil
	}
	return roster.Profile{}, fmt.Errorf("resolve %s: %w", ref.ID, store.ErrNotFound)
}

// fakeTransport records sends and can fail specific destinations.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []string
	failNumber string
	configured bool
}

func (f *fakeTransport) Send(_ context.Context, to, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if to == f.failNumber {
		return "", fmt.Errorf("sms provider rejected message")
	}
	f.sent = append(f.sent, to)
	return fmt.Sprintf("SM%d", len(f.sent)), nil
}

func (f *fakeTransport) Configured() bool { return f.configured }

func player(id, phone string, prefs map[string]bool) roster.Profile {
	return roster.Profile{
		ID:           id,
		Source:       roster.SourcePlayer,
		FirstName:    "Test",
		LastName:     id,
		Phone:        phone,
		ChannelPrefs: prefs,
	}
}

func attendees(ids ...string) []roster.Attendee {
	out := make([]roster.Attendee, 0, len(ids))
	for _, id := range ids {
		out = append(out, roster.Attendee{ID: id, Source: roster.SourcePlayer})
	}
	return out
}

// outcomes maps recipient id to outcome for assertion convenience.
func outcomes(recs []Record) map[string]Record {
	out := make(map[string]Record, len(recs))
	for _, r := range recs {
		out[r.RecipientID] = r
	}
	return out
}

func newTestDispatcher(profiles map[string]roster.Profile, tr Transport) *Dispatcher {
	return NewDispatcher(&fakeProfiles{profiles: profiles}, tr, store.NewMemoryStore(), 4, zap.NewNop())
}

func TestDispatcher_AllSent(t *testing.T) {
	tr := &fakeTransport{configured: true}
	d := newTestDispatcher(map[string]roster.Profile{
		"p1": player("p1", "6505550001", nil),
		"p2": player("p2", "6505550002", nil),
		"p3": player("p3", "6505550003", nil),
	}, tr)

	res := d.Dispatch(context.Background(), attendees("p1", "p2", "p3"), Message{Kind: "invite", Body: "game on"})

	assert.Len(t, res.Sent, 3)
	assert.Empty(t, res.Skipped)
	for _, rec := range res.Sent {
		assert.Equal(t, "sent", rec.Outcome)
		assert.NotEmpty(t, rec.DeliveryID)
	}
	assert.Len(t, tr.sent, 3)
}

// Every input recipient must appear exactly once in Sent or Skipped, no
// matter which failure mode hits it.
func TestDispatcher_AccountsForEveryRecipient(t *testing.T) {
	tr := &fakeTransport{configured: true, failNumber: "+16505550004"}
	d := newTestDispatcher(map[string]roster.Profile{
		"ok":        player("ok", "6505550001", nil),
		"badPhone":  player("badPhone", "555", nil),
		"noPhone":   player("noPhone", "", nil),
		"dupPhone":  player("dupPhone", "(650) 555-0001", nil), // same digits as "ok"
		"optedOut":  player("optedOut", "6505550002", map[string]bool{ChannelSMS: false}),
		"sendFails": player("sendFails", "6505550004", nil),
	}, tr)

	input := attendees("ok", "badPhone", "noPhone", "dupPhone", "optedOut", "sendFails", "ghost")
	res := d.Dispatch(context.Background(), input, Message{Kind: "invite", Body: "game on"})

	assert.Len(t, res.Sent, 1)
	assert.Len(t, res.Skipped, 6)
	assert.Equal(t, len(input), len(res.Sent)+len(res.Skipped))

	got := outcomes(append(res.Sent, res.Skipped...))
	assert.Equal(t, "sent", got["ok"].Outcome)
	assert.Equal(t, ReasonInvalidPhone, got["badPhone"].Reason)
	assert.Equal(t, ReasonInvalidPhone, got["noPhone"].Reason)
	assert.Equal(t, ReasonDuplicatePhone, got["dupPhone"].Reason)
	assert.Equal(t, ReasonChannelDisabled, got["optedOut"].Reason)
	assert.Equal(t, ReasonProfileNotFound, got["ghost"].Reason)
	assert.Contains(t, got["sendFails"].Reason, "rejected")
}

func TestDispatcher_UnconfiguredTransport(t *testing.T) {
	tr := &fakeTransport{configured: false}
	d := newTestDispatcher(map[string]roster.Profile{
		"p1": player("p1", "6505550001", nil),
		"p2": player("p2", "6505550002", nil),
	}, tr)

	res := d.Dispatch(context.Background(), attendees("p1", "p2"), Message{Kind: "invite", Body: "hi"})

	assert.Empty(t, res.Sent)
	require.Len(t, res.Skipped, 2)
	for _, rec := range res.Skipped {
		assert.Equal(t, ReasonNotConfigured, rec.Reason)
	}
	assert.Empty(t, tr.sent)
}

func TestDispatcher_NilTransport(t *testing.T) {
	d := newTestDispatcher(map[string]roster.Profile{
		"p1": player("p1", "6505550001", nil),
	}, nil)

	res := d.Dispatch(context.Background(), attendees("p1"), Message{Kind: "invite", Body: "hi"})
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ReasonNotConfigured, res.Skipped[0].Reason)
}

func TestDispatcher_DuplicatePhoneKeepsFirst(t *testing.T) {
	tr := &fakeTransport{configured: true}
	d := newTestDispatcher(map[string]roster.Profile{
		"first":  player("first", "6505550001", nil),
		"second": player("second", "+1 650 555 0001", nil),
	}, tr)

	res := d.Dispatch(context.Background(), attendees("first", "second"), Message{Kind: "reminder", Body: "hi"})

	require.Len(t, res.Sent, 1)
	assert.Equal(t, "first", res.Sent[0].RecipientID)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "second", res.Skipped[0].RecipientID)
	assert.Equal(t, ReasonDuplicatePhone, res.Skipped[0].Reason)
}

func TestDispatcher_InAppChannel(t *testing.T) {
	tr := &fakeTransport{configured: true}
	mem := store.NewMemoryStore()
	d := NewDispatcher(&fakeProfiles{profiles: map[string]roster.Profile{
		"both":    player("both", "6505550001", nil),
		"smsOnly": player("smsOnly", "6505550002", map[string]bool{ChannelInApp: false}),
	}}, tr, mem, 4, zap.NewNop())

	res := d.Dispatch(context.Background(), attendees("both", "smsOnly"), Message{Kind: "invite", Body: "game on"})

	assert.Len(t, res.Sent, 2)
	require.Len(t, res.InApp, 1)
	assert.Equal(t, "both", res.InApp[0].RecipientID)
	assert.Equal(t, "sent", res.InApp[0].Outcome)

	ids, err := mem.List(context.Background(), store.CollectionNotifications)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestDispatcher_SMSOptOutStillGetsInApp(t *testing.T) {
	tr := &fakeTransport{configured: true}
	d := newTestDispatcher(map[string]roster.Profile{
		"p1": player("p1", "6505550001", map[string]bool{ChannelSMS: false}),
	}, tr)

	res := d.Dispatch(context.Background(), attendees("p1"), Message{Kind: "invite", Body: "hi"})

	assert.Empty(t, res.Sent)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ReasonChannelDisabled, res.Skipped[0].Reason)
	require.Len(t, res.InApp, 1)
	assert.Equal(t, "sent", res.InApp[0].Outcome)
}

func TestDispatcher_EmptyBatch(t *testing.T) {
	d := newTestDispatcher(nil, &fakeTransport{configured: true})
	res := d.Dispatch(context.Background(), nil, Message{Kind: "invite", Body: "hi"})
	assert.Empty(t, res.Sent)
	assert.Empty(t, res.Skipped)
}

func TestResult_IDHelpers(t *testing.T) {
	res := Result{
		Sent:    []Record{{RecipientID: "a"}, {RecipientID: "b"}},
		Skipped: []Record{{RecipientID: "c"}},
	}
	assert.Equal(t, []string{"a", "b"}, res.SentIDs())
	assert.Equal(t, []string{"c"}, res.SkippedIDs())
}
