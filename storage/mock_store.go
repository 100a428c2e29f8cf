package storage

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/types"
)

// MockStore is an in-memory Store for tests. Rows carry the worker-side
// timestamp and signatures the collector-side timestamp, both in seconds.
type MockStore struct {
	mu   sync.Mutex
	rows []mockRow
	sigs []mockSignature
	Err  error // returned by every call when set
}

type mockRow struct {
	row types.QueryLogRow
	ts  uint64
}

type mockSignature struct {
	rec types.SignatureRecord
	ts  uint64
}

func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) AddRow(row types.QueryLogRow, workerTs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, mockRow{row: row, ts: workerTs})
}

func (m *MockStore) AddSignature(rec types.SignatureRecord, collectorTs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sigs = append(m.sigs, mockSignature{rec: rec, ts: collectorTs})
}

func (m *MockStore) OriginalQuery(_ context.Context, queryID string, tsLow, tsHigh uint64) ([]types.QueryLogRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []types.QueryLogRow
	for _, r := range m.rows {
		if r.ts > tsLow && r.ts < tsHigh && r.row.QueryID == queryID {
			out = append(out, r.row)
		}
	}
	return out, nil
}

func (m *MockStore) Siblings(_ context.Context, tsLow, tsHigh uint64, contentHashHex string, fromBlock, toBlock uint64) ([]types.QueryLogRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []types.QueryLogRow
	for _, r := range m.rows {
		if r.ts <= tsLow || r.ts >= tsHigh || r.row.Result != types.ResultOk {
			continue
		}
		if !strings.EqualFold(common.UpperHex(r.row.QueryHash), contentHashHex) {
			continue
		}
		if r.row.FromBlock == nil || r.row.ToBlock == nil || *r.row.FromBlock != fromBlock || *r.row.ToBlock != toBlock {
			continue
		}
		out = append(out, r.row)
	}
	return out, nil
}

func (m *MockStore) Signatures(_ context.Context, tsLow, tsHigh uint64, queryIDs []string) ([]types.SignatureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	want := make(map[string]bool, len(queryIDs))
	for _, id := range queryIDs {
		want[id] = true
	}
	var out []types.SignatureRecord
	for _, s := range m.sigs {
		if s.ts > tsLow && s.ts < tsHigh && want[s.rec.QueryID] {
			out = append(out, types.SignatureRecord{
				QueryID:         s.rec.QueryID,
				WorkerSignature: bytes.Clone(s.rec.WorkerSignature),
				ResultHash:      bytes.Clone(s.rec.ResultHash),
			})
		}
	}
	return out, nil
}
