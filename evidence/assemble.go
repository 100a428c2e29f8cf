// Package evidence turns corroborating query log rows into verified
// fraud-proof inputs.
package evidence

import (
	"fmt"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/types"
)

// Assemble rebuilds the client-signed query and the worker-signed result
// from row and checks both signatures. The bundle only exists if both hold.
func Assemble(row types.QueryLogRow, signed types.SignedResult, root common.Hash, proof types.MembershipProof) (types.EvidenceBundle, error) {
	switch {
	case row.FromBlock == nil:
		return types.EvidenceBundle{}, fmt.Errorf("%w: from_block of %s", fperrors.ErrMissingField, row.QueryID)
	case row.ToBlock == nil:
		return types.EvidenceBundle{}, fmt.Errorf("%w: to_block of %s", fperrors.ErrMissingField, row.QueryID)
	case row.LastBlock == nil:
		return types.EvidenceBundle{}, fmt.Errorf("%w: last_block of %s", fperrors.ErrMissingField, row.QueryID)
	}
	clientID, err := types.DecodePeerID(row.ClientID)
	if err != nil {
		return types.EvidenceBundle{}, err
	}
	workerID, err := types.DecodePeerID(row.WorkerID)
	if err != nil {
		return types.EvidenceBundle{}, err
	}

	query := types.Query{
		RequestID:   row.RequestID,
		QueryID:     row.QueryID,
		Dataset:     row.DatasetID,
		Query:       row.Query,
		BlockRange:  types.BlockRange{Begin: *row.FromBlock, End: *row.ToBlock},
		ChunkID:     row.ChunkID,
		TimestampMs: row.ClientTimestamp,
		Signature:   row.ClientSignature,
	}
	if err := query.Verify(clientID, workerID); err != nil {
		return types.EvidenceBundle{}, err
	}

	result := types.QueryResult{
		QueryID:         row.QueryID,
		WorkerID:        row.WorkerID,
		DataHash:        signed.ResultHash,
		LastBlock:       *row.LastBlock,
		WorkerSignature: signed.WorkerSignature,
	}
	if err := result.Verify(); err != nil {
		return types.EvidenceBundle{}, err
	}

	return types.EvidenceBundle{
		Query:       query,
		QueryResult: result,
		MPTProof:    proof,
		WorkerID:    row.WorkerID,
		ClientID:    row.ClientID,
		TreeRoot:    root,
	}, nil
}
