package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/rallyd/internal/roster"
)

// fakeExtractor scripts the probabilistic collaborator.
type fakeExtractor struct {
	intent    PartialIntent
	err       error
	available bool
	calls     int
}

func (f *fakeExtractor) Extract(ctx context.Context, conversation, message string) (PartialIntent, error) {
	f.calls++
	return f.intent, f.err
}

func (f *fakeExtractor) Available() bool { return f.available }

func pipelineRequest() Request {
	return Request{
		Players: []roster.Player{
			{ID: "p1", FirstName: "Alex", LastName: "Johnson"},
			{ID: "p2", FirstName: "Dana", LastName: "Wu"},
		},
		Courts: []roster.Court{
			{ID: "c1", Name: "Sunnyvale Park"},
		},
		CurrentUserID: "u1",
	}
}

func newTestPipeline(prob Extractor) *Pipeline {
	return NewPipeline(NewDeterministicAt(fixedNow), prob, time.Second, nil)
}

func TestPipeline_CompleteIntent(t *testing.T) {
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow at 4pm with Alex at Sunnyvale Park"

	res, err := newTestPipeline(nil).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, "c1", res.CourtID)
	assert.Equal(t, "2026-03-05", res.Intent.Date)
	assert.Equal(t, "4:00 PM", res.Intent.Time)
	assert.Equal(t, []roster.Attendee{
		{ID: "u1", Source: roster.SourceUser},
		{ID: "p1", Source: roster.SourcePlayer},
	}, res.Invitees)
	assert.Empty(t, res.FollowUp)
}

func TestPipeline_ProbabilisticFillsGaps(t *testing.T) {
	prob := &fakeExtractor{
		available: true,
		intent:    PartialIntent{Time: "4:00 PM", Confirmation: "On it!"},
	}
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow with Alex at Sunnyvale Park"

	res, err := newTestPipeline(prob).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, prob.calls)
	assert.True(t, res.Complete)
	assert.Equal(t, "4:00 PM", res.Intent.Time)
	assert.Equal(t, "On it!", res.Intent.Confirmation)
}

func TestPipeline_DeterministicOverridesProbabilistic(t *testing.T) {
	prob := &fakeExtractor{
		available: true,
		intent:    PartialIntent{Time: "9:00 AM", Location: "somewhere else"},
	}
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow at 4pm with Alex at Sunnyvale Park"

	res, err := newTestPipeline(prob).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "4:00 PM", res.Intent.Time)
	assert.Equal(t, "Sunnyvale Park", res.Intent.Location)
}

func TestPipeline_ProbabilisticFailureFallsBack(t *testing.T) {
	prob := &fakeExtractor{available: true, err: errors.New("boom")}
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow at 4pm with Alex at Sunnyvale Park"

	res, err := newTestPipeline(prob).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.False(t, res.RateLimited)
}

func TestPipeline_RateLimitSurfacedDistinctly(t *testing.T) {
	prob := &fakeExtractor{available: true, err: ErrRateLimited}
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow with Alex at Sunnyvale Park"

	res, err := newTestPipeline(prob).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.RateLimited)
	assert.Contains(t, res.FollowUp, "language service")
}

func TestPipeline_FollowUpAsksOnlyForMissing(t *testing.T) {
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow with Alex"

	res, err := newTestPipeline(nil).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Complete)
	// Acknowledges the known fields.
	assert.Contains(t, res.FollowUp, "2026-03-05")
	// Asks only for what is missing.
	assert.Contains(t, res.FollowUp, "what time")
	assert.Contains(t, res.FollowUp, "which court")
	assert.NotContains(t, res.FollowUp, "what day")
	assert.NotContains(t, res.FollowUp, "who to invite")
}

func TestPipeline_ConversationFieldsNotReAsked(t *testing.T) {
	req := pipelineRequest()
	req.Conversation = "User: let's play tomorrow at Sunnyvale Park"
	req.Message = "make it 4pm with Alex"

	res, err := newTestPipeline(nil).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Complete)
	assert.Equal(t, "c1", res.CourtID)
	assert.Equal(t, "2026-03-05", res.Intent.Date)
}

func TestPipeline_UnknownCourtOffersToAdd(t *testing.T) {
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow at 4pm with Alex at Riverside Rec"

	res, err := newTestPipeline(nil).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Complete)
	assert.Equal(t, "Riverside Rec", res.UnknownLocation)
	assert.Contains(t, res.FollowUp, "Riverside Rec")
	assert.Contains(t, res.FollowUp, "add")
}

func TestPipeline_UnknownPlayerPromptsForPhone(t *testing.T) {
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow at 4pm with Morgan at Sunnyvale Park"

	res, err := newTestPipeline(nil).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Complete)
	assert.Contains(t, res.FollowUp, "Morgan")
	assert.Contains(t, res.FollowUp, "phone")
}

func TestPipeline_AmbiguousPlayerAsksWhich(t *testing.T) {
	req := pipelineRequest()
	req.Players = append(req.Players, roster.Player{ID: "p3", FirstName: "Alex", LastName: "Smith"})
	req.Message = "schedule a game tomorrow at 4pm with Alex at Sunnyvale Park"

	res, err := newTestPipeline(nil).Extract(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Complete)
	assert.Equal(t, "Alex", res.AmbiguousName)
	assert.Contains(t, res.FollowUp, "Alex Johnson")
	assert.Contains(t, res.FollowUp, "Alex Smith")
}

func TestPipeline_UnavailableProbabilisticNeverCalled(t *testing.T) {
	prob := &fakeExtractor{available: false}
	req := pipelineRequest()
	req.Message = "schedule a game tomorrow at 4pm with Alex at Sunnyvale Park"

	_, err := newTestPipeline(prob).Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, prob.calls)
}
