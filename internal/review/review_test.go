package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpipeline/leadpipe/internal/model"
)

type fakeStore struct {
	approveMatch  *model.Match
	approveErr    error
	rejectErr     error
	sweepCount    int64
	sweepErr      error
	approvedCalls []string
	rejectedCalls []string
}

func (f *fakeStore) ApproveCandidate(_ context.Context, candidateID, _ string) (*model.Match, error) {
	f.approvedCalls = append(f.approvedCalls, candidateID)
	return f.approveMatch, f.approveErr
}

func (f *fakeStore) RejectCandidate(_ context.Context, candidateID, _, _ string) error {
	f.rejectedCalls = append(f.rejectedCalls, candidateID)
	return f.rejectErr
}

func (f *fakeStore) SweepExpiredCandidates(context.Context) (int64, error) {
	return f.sweepCount, f.sweepErr
}

func TestApprove_ReturnsCommittedMatch(t *testing.T) {
	store := &fakeStore{approveMatch: &model.Match{ID: "match-1"}}
	r := New(store, nil)

	m, err := r.Approve(context.Background(), "candidate-1", "reviewer-1")

	require.NoError(t, err)
	assert.Equal(t, "match-1", m.ID)
	assert.Equal(t, []string{"candidate-1"}, store.approvedCalls)
}

func TestApprove_WrapsStoreError(t *testing.T) {
	store := &fakeStore{approveErr: assert.AnError}
	r := New(store, nil)

	_, err := r.Approve(context.Background(), "candidate-1", "reviewer-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "approve candidate")
}

func TestReject_DelegatesToStore(t *testing.T) {
	store := &fakeStore{}
	r := New(store, nil)

	err := r.Reject(context.Background(), "candidate-1", "reviewer-1", "not a match")

	require.NoError(t, err)
	assert.Equal(t, []string{"candidate-1"}, store.rejectedCalls)
}

func TestSweepExpired_ReturnsCount(t *testing.T) {
	store := &fakeStore{sweepCount: 3}
	r := New(store, nil)

	n, err := r.SweepExpired(context.Background())

	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestSweepExpired_WrapsStoreError(t *testing.T) {
	store := &fakeStore{sweepErr: assert.AnError}
	r := New(store, nil)

	_, err := r.SweepExpired(context.Background())

	require.Error(t, err)
}
