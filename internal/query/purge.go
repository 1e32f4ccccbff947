package query

import (
	"context"
	"fmt"

	"github.com/mediavault/mediavault/internal/metrics"
)

// PurgeProgressEvery is how many deletions pass between progress callbacks.
const PurgeProgressEvery = 20

// PurgeResult summarizes a Purge.
type PurgeResult struct {
	Matched int // Entries returned by the unbounded search
	Deleted int
	Missing int // Already gone when their turn came
}

// Purge deletes every entry SearchUnbounded returns for query and kind.
// progress, if non-nil, is called every PurgeProgressEvery deletions and
// once at the end with (done, matched). A cancelled ctx stops the purge
// between deletions.
func (s *Service) Purge(ctx context.Context, query, kind string, progress func(done, total int)) (PurgeResult, error) {
	entries, _, err := s.SearchUnbounded(ctx, query, kind)
	if err != nil {
		return PurgeResult{}, err
	}

	res := PurgeResult{Matched: len(entries)}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, err := s.store.DeleteMedia(ctx, e.ContentKey)
		if err != nil {
			return res, fmt.Errorf("delete %s: %w", e.ContentKey, err)
		}
		if ok {
			res.Deleted++
			metrics.MediaDeletedTotal.Inc()
			s.logger.Info("deleted media", "key", e.ContentKey, "name", e.DisplayName)
		} else {
			res.Missing++
		}
		if progress != nil && (i+1)%PurgeProgressEvery == 0 {
			progress(i+1, len(entries))
		}
	}
	if progress != nil {
		progress(len(entries), len(entries))
	}
	return res, nil
}
