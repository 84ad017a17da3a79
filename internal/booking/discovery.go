package booking

import (
	"context"
	"errors"
	"iter"
	"slices"
	"time"

	"spotshare/internal/geo"
	"spotshare/internal/interval"
	"spotshare/internal/metrics"
	"spotshare/internal/model"
)

// FindAvailable returns the resources within radiusKm of center that would accept [start, end).
// The sequence reads the store each time it is ranged; results reflect committed
// writes at read time and may be stale by the time a reservation is requested.
// A store failure is yielded once as the error element and ends the sequence.
func (a *Arbiter) FindAvailable(ctx context.Context, center geo.Point, radiusKm float64, start, end time.Time) (iter.Seq2[model.Resource, error], error) {
	if !interval.Valid(start, end) {
		return nil, model.ErrInvalidInterval
	}

	return func(yield func(model.Resource, error) bool) {
		if radiusKm < 0 {
			return
		}
		began := time.Now()
		defer func() { metrics.ObserveFindAvailable(time.Since(began)) }()

		candidates, err := a.store.CandidateResources(ctx, geo.NewCap(center, radiusKm).Bound())
		if err != nil {
			yield(model.Resource{}, err)
			return
		}

		for res := range geo.WithinRadius(center, radiusKm, slices.Values(candidates)) {
			err := a.admissible(ctx, res, start, end)
			switch {
			case err == nil:
				if !yield(res, nil) {
					return
				}
			case isRejection(err):
				continue
			default:
				yield(model.Resource{}, err)
				return
			}
		}
	}, nil
}

// CollectAvailable drains FindAvailable and orders the result by distance from center.
func (a *Arbiter) CollectAvailable(ctx context.Context, center geo.Point, radiusKm float64, start, end time.Time) ([]model.Resource, error) {
	seq, err := a.FindAvailable(ctx, center, radiusKm, start, end)
	if err != nil {
		return nil, err
	}

	out := make([]model.Resource, 0)
	for res, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	geo.SortByDistance(center, out)
	return out, nil
}

func isRejection(err error) bool {
	return errors.Is(err, model.ErrNotApproved) ||
		errors.Is(err, model.ErrDisabled) ||
		errors.Is(err, model.ErrOutOfWindow) ||
		errors.Is(err, model.ErrScheduleMismatch) ||
		errors.Is(err, model.ErrSlotConflict)
}
