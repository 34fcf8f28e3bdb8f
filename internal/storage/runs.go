// Package storage composes the run record backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

// RunBackend both records and reads run metadata.
type RunBackend interface {
	profile.RunRecorder
	profile.RunReader
}

// Runs writes every record to a primary backend and any number of mirrors,
// and reads from the primary before falling back to the mirrors.
type Runs struct {
	primary RunBackend
	mirrors []RunBackend
	logger  *zap.Logger
}

// NewRuns composes run backends. Nil mirrors are skipped.
func NewRuns(primary RunBackend, logger *zap.Logger, mirrors ...RunBackend) (*Runs, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary run backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]RunBackend, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Runs{primary: primary, mirrors: kept, logger: logger}, nil
}

// RecordRun writes to the primary, then to each mirror. Every failure is
// returned joined; a failing mirror never skips the others.
func (r *Runs) RecordRun(ctx context.Context, record profile.RunRecord) error {
	var errs []error
	if err := r.primary.RecordRun(ctx, record); err != nil {
		errs = append(errs, fmt.Errorf("record run (primary): %w", err))
	}
	for i, m := range r.mirrors {
		if err := m.RecordRun(ctx, record); err != nil {
			r.logger.Warn("run mirror write failed", zap.String("run_id", record.ID), zap.Int("mirror", i), zap.Error(err))
			errs = append(errs, fmt.Errorf("record run (mirror %d): %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// GetRun reads from the primary, then from the mirrors in order.
func (r *Runs) GetRun(ctx context.Context, id string) (profile.RunRecord, error) {
	record, err := r.primary.GetRun(ctx, id)
	if err == nil || !errors.Is(err, profile.ErrRunNotFound) {
		return record, err
	}
	for _, m := range r.mirrors {
		record, mErr := m.GetRun(ctx, id)
		if mErr == nil {
			return record, nil
		}
		if !errors.Is(mErr, profile.ErrRunNotFound) {
			r.logger.Warn("run mirror read failed", zap.String("run_id", id), zap.Error(mErr))
		}
	}
	return profile.RunRecord{}, err
}
