// Package storage is the read-only gateway to the network's analytics log:
// executed-query rows and portal-collected worker signatures.
package storage

import (
	"context"

	"github.com/colorfulnotion/fraudproof/types"
)

// Store answers the three lookups the evidence pipeline needs. Time bounds
// are exclusive and in seconds.
type Store interface {
	// OriginalQuery returns the rows logged for queryID by workers between
	// tsLow and tsHigh. Callers expect exactly one.
	OriginalQuery(ctx context.Context, queryID string, tsLow, tsHigh uint64) ([]types.QueryLogRow, error)

	// Siblings returns successful rows with the given upper-hex content hash
	// and block range.
	Siblings(ctx context.Context, tsLow, tsHigh uint64, contentHashHex string, fromBlock, toBlock uint64) ([]types.QueryLogRow, error)

	// Signatures returns the worker signatures collected for queryIDs.
	Signatures(ctx context.Context, tsLow, tsHigh uint64, queryIDs []string) ([]types.SignatureRecord, error)
}
