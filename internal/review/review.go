// Package review applies operator decisions to pending match candidates,
// producing the same terminal state as an auto-match (spec.md §4.9).
package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	ApproveCandidate(ctx context.Context, candidateID, reviewerID string) (*model.Match, error)
	RejectCandidate(ctx context.Context, candidateID, reviewerID, notes string) error
	SweepExpiredCandidates(ctx context.Context) (int64, error)
}

// Resolver applies approve/reject decisions and runs the TTL sweep.
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// New builds a Resolver.
func New(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger}
}

// Approve commits the reviewer's decision on a pending candidate,
// returning the new Match. It errors with store.ErrCandidateNotPending
// if the candidate has already been decided or expired.
func (r *Resolver) Approve(ctx context.Context, candidateID, reviewerID string) (*model.Match, error) {
	m, err := r.store.ApproveCandidate(ctx, candidateID, reviewerID)
	if err != nil {
		return nil, eris.Wrap(err, "review: approve candidate")
	}
	r.logger.Info("review: candidate approved", zap.String("candidate_id", candidateID), zap.String("match_id", m.ID))
	return m, nil
}

// Reject records a rejection. If it was the last pending candidate for
// its canonical lead, the canonical reverts to unmatched.
func (r *Resolver) Reject(ctx context.Context, candidateID, reviewerID, notes string) error {
	if err := r.store.RejectCandidate(ctx, candidateID, reviewerID, notes); err != nil {
		return eris.Wrap(err, "review: reject candidate")
	}
	r.logger.Info("review: candidate rejected", zap.String("candidate_id", candidateID))
	return nil
}

// SweepExpired moves every candidate past its TTL to expired and reverts
// any canonical lead left without candidates or an active match.
// Intended to run on a periodic interval.
func (r *Resolver) SweepExpired(ctx context.Context) (int64, error) {
	n, err := r.store.SweepExpiredCandidates(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "review: sweep expired candidates")
	}
	if n > 0 {
		r.logger.Info("review: expired stale candidates", zap.Int64("count", n))
	}
	return n, nil
}
