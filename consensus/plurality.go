// Package consensus picks the result hash most workers signed for a set of
// sibling queries.
package consensus

import (
	"bytes"
	"context"
	"fmt"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/storage"
	"github.com/colorfulnotion/fraudproof/types"
)

// Plurality returns the result hash with the highest count. Ties go to the
// lexicographically smallest hash so the outcome does not depend on input
// order.
func Plurality(records []types.SignatureRecord) ([]byte, int, error) {
	if len(records) == 0 {
		return nil, 0, fperrors.ErrNoQuorum
	}
	counts := make(map[string]int)
	for _, r := range records {
		counts[string(r.ResultHash)]++
	}
	var (
		best  []byte
		count int
	)
	for h, n := range counts {
		if n > count || (n == count && bytes.Compare([]byte(h), best) < 0) {
			best, count = []byte(h), n
		}
	}
	return best, count, nil
}

// Select keeps records matching the plurality hash plus the disputed
// query's own record whatever it signed.
func Select(records []types.SignatureRecord, disputedQueryID string) (map[string]types.SignedResult, error) {
	best, count, err := Plurality(records)
	if err != nil {
		return nil, err
	}
	log.Info(log.ConsensusMonitoring, "most frequent hash", "hash", common.UpperHex(best), "count", count, "total", len(records))

	out := make(map[string]types.SignedResult)
	for _, r := range records {
		if !bytes.Equal(r.ResultHash, best) && r.QueryID != disputedQueryID {
			continue
		}
		out[r.QueryID] = types.SignedResult{ResultHash: r.ResultHash, WorkerSignature: r.WorkerSignature}
	}
	return out, nil
}

// ComputePlurality fetches the signatures for eligible rows within the
// search window and selects the consensus set.
func ComputePlurality(ctx context.Context, store storage.Store, eligible []types.QueryLogRow, ts, searchRange uint64, disputedQueryID string) (map[string]types.SignedResult, error) {
	ids := make([]string, len(eligible))
	for i, r := range eligible {
		ids[i] = r.QueryID
	}
	records, err := store.Signatures(ctx, common.SaturatingSub(ts, searchRange), ts+searchRange, ids)
	if err != nil {
		return nil, err
	}
	out, err := Select(records, disputedQueryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %d eligible queries", err, len(eligible))
	}
	return out, nil
}
