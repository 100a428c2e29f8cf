// Package discovery finds the sibling executions of a disputed query and
// decides which of them can serve as evidence.
package discovery

import (
	"context"
	"fmt"
	"sort"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/storage"
	"github.com/colorfulnotion/fraudproof/types"
)

// Finder looks up siblings in the analytics store. Tolerance pins the
// original row; SearchRange is the wider window for siblings. Both are in
// seconds.
type Finder struct {
	store       storage.Store
	tolerance   uint64
	searchRange uint64
}

func NewFinder(store storage.Store, tolerance, searchRange uint64) *Finder {
	return &Finder{store: store, tolerance: tolerance, searchRange: searchRange}
}

// FindSiblings returns every successful execution of the same query content
// over the same block range, one row per query id, sorted by query id.
func (f *Finder) FindSiblings(ctx context.Context, queryID string, ts uint64) ([]types.QueryLogRow, error) {
	originals, err := f.store.OriginalQuery(ctx, queryID, common.SaturatingSub(ts, f.tolerance), ts+f.tolerance)
	if err != nil {
		return nil, err
	}
	if len(originals) != 1 {
		return nil, fmt.Errorf("%w: %s has %d rows", fperrors.ErrOriginalQueryNotFound, queryID, len(originals))
	}
	orig := originals[0]
	if orig.FromBlock == nil || orig.ToBlock == nil {
		return nil, fmt.Errorf("%w: %s has no block range", fperrors.ErrMissingField, queryID)
	}
	contentHash := common.UpperHex(orig.QueryHash)
	log.Info(log.DiscoveryMonitoring, "found original query", "query", queryID, "hash", contentHash,
		"from", *orig.FromBlock, "to", *orig.ToBlock)

	rows, err := f.store.Siblings(ctx, common.SaturatingSub(ts, f.searchRange), ts+f.searchRange,
		contentHash, *orig.FromBlock, *orig.ToBlock)
	if err != nil {
		return nil, err
	}
	found := len(rows)
	rows = dedupByQueryID(rows)
	log.Info(log.DiscoveryMonitoring, "siblings", "query", queryID, "found", found, "unique", len(rows))
	return rows, nil
}

func dedupByQueryID(rows []types.QueryLogRow) []types.QueryLogRow {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].QueryID < rows[j].QueryID })
	out := rows[:0]
	for _, r := range rows {
		if len(out) > 0 && r.QueryID == out[len(out)-1].QueryID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FilterEligible keeps rows with a resolved assignment id. The disputed
// query comes first; the rest follow by client timestamp, newest first.
func FilterEligible(siblings []types.QueryLogRow, assignmentIDs map[string]string, disputedQueryID string) []types.QueryLogRow {
	eligible := make([]types.QueryLogRow, 0, len(siblings))
	for _, r := range siblings {
		if _, ok := assignmentIDs[r.QueryID]; ok {
			eligible = append(eligible, r)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.QueryID == disputedQueryID || b.QueryID == disputedQueryID {
			return a.QueryID == disputedQueryID && b.QueryID != disputedQueryID
		}
		return a.ClientTimestamp > b.ClientTimestamp
	})
	log.Debug(log.DiscoveryMonitoring, "eligible queries", "n", len(eligible), "of", len(siblings))
	return eligible
}
