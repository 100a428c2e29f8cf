// Package chain reads assignment ids from the commitment contract and posts
// fraud proofs to the proving manager.
package chain

import (
	"context"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/types"
)

// Gateway is the contract surface the pipeline uses.
type Gateway interface {
	// AssignmentIDByTimestamp returns the assignment in effect at tsSeconds,
	// or "" when there is none.
	AssignmentIDByTimestamp(ctx context.Context, tsSeconds uint64) (string, error)

	// SubmitProof sends verifyAndEmit and waits for confirmation.
	SubmitProof(ctx context.Context, configName string, publicValues, proof []byte) (common.Hash, error)
}

// ResolveAssignmentIDs maps each row's query id to the assignment in effect
// at its client timestamp. Rows without an assignment are left out. Any call
// failure aborts the whole resolution.
func ResolveAssignmentIDs(ctx context.Context, gw Gateway, rows []types.QueryLogRow) (map[string]string, error) {
	ids := make(map[string]string, len(rows))
	for _, r := range rows {
		id, err := gw.AssignmentIDByTimestamp(ctx, r.ClientTimestamp/1000)
		if err != nil {
			return nil, fperrors.Step("resolve assignment", r.QueryID, err)
		}
		if id == "" {
			log.Debug(log.ChainMonitoring, "no assignment", "query", r.QueryID, "ts", r.ClientTimestamp)
			continue
		}
		ids[r.QueryID] = id
	}
	log.Info(log.ChainMonitoring, "assignment ids", "resolved", len(ids), "rows", len(rows))
	return ids, nil
}
