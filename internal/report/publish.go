package report

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/andrej220/confaudit/internal/lg"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

// Sink receives the outcomes of a finished run, e.g. a message bus or a
// database.
type Sink interface {
	Name() string
	Publish(ctx context.Context, runID string, mode dm.Mode, outcomes []dm.Outcome) error
	Close() error
}

// PublishAll hands the sorted outcomes to every sink concurrently. A failing
// sink does not stop the others; all failures are joined into the result.
func PublishAll(ctx context.Context, sinks []Sink, runID string, rs *dm.ResultSet, logger lg.Logger) error {
	if len(sinks) == 0 {
		return nil
	}
	if !rs.Sealed() {
		return ErrNotSealed
	}
	outcomes := rs.Sorted()

	errs := make([]error, len(sinks))
	var g errgroup.Group
	for i, s := range sinks {
		i, s := i, s
		g.Go(func() error {
			if err := s.Publish(ctx, runID, rs.Mode(), outcomes); err != nil {
				logger.Warn("sink publish failed", lg.String("sink", s.Name()), lg.Err(err))
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return nil
			}
			logger.Info("outcomes published", lg.String("sink", s.Name()), lg.Int("count", len(outcomes)))
			return nil
		})
	}
	// failures are collected per sink so one outage never cancels the rest
	_ = g.Wait()
	return errors.Join(errs...)
}

// CloseAll closes every sink and joins the errors.
func CloseAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
