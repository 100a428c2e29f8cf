// Package testutil holds fixtures shared by package tests: libp2p
// identities, assignment snapshots and signed log rows.
package testutil

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/colorfulnotion/fraudproof/assignment"
	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	Dataset = "s3://ethereum-mainnet"
	Chunk   = "0000000000/0017880001-0017890000"
)

type Identity struct {
	Key crypto.PrivKey
	ID  peer.ID
}

func NewIdentity(t testing.TB) Identity {
	t.Helper()
	key, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		t.Fatalf("IDFromPublicKey: %v", err)
	}
	return Identity{Key: key, ID: id}
}

func NewIdentities(t testing.TB, n int) []Identity {
	out := make([]Identity, n)
	for i := range out {
		out[i] = NewIdentity(t)
	}
	return out
}

// Snapshot assigns every worker to Chunk of Dataset, plus a second chunk
// held only by the first worker so the trie has a branch.
func Snapshot(workers []Identity) *assignment.Snapshot {
	ids := make([]peer.ID, len(workers))
	all := make([]uint16, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
		all[i] = uint16(len(workers) - 1 - i)
	}
	return &assignment.Snapshot{
		Workers: ids,
		Datasets: []assignment.Dataset{{
			ID: Dataset,
			Chunks: []assignment.Chunk{
				{ID: Chunk, WorkerIndexes: all},
				{ID: "0000000000/0017890001-0017900000", WorkerIndexes: []uint16{0}},
			},
		}},
	}
}

// RowSpec describes one sibling query log row.
type RowSpec struct {
	QueryID     string
	Client      Identity
	Worker      Identity
	ResultHash  []byte
	TimestampMs uint64
}

// SignedRow returns a log row whose client signature covers the canonical
// query addressed to the worker, and the worker-signed record for
// ResultHash.
func SignedRow(t testing.TB, spec RowSpec) (types.QueryLogRow, types.SignatureRecord) {
	t.Helper()
	from, to, last := uint64(17880001), uint64(17881000), uint64(17881000)
	q := types.Query{
		RequestID:   "req-" + spec.QueryID,
		QueryID:     spec.QueryID,
		Dataset:     Dataset,
		Query:       `{"type":"evm","fromBlock":17880001,"toBlock":17881000}`,
		BlockRange:  types.BlockRange{Begin: from, End: to},
		ChunkID:     Chunk,
		TimestampMs: spec.TimestampMs,
	}
	if err := q.Sign(spec.Client.Key, spec.Worker.ID); err != nil {
		t.Fatalf("sign query: %v", err)
	}
	res := types.QueryResult{
		QueryID:   spec.QueryID,
		WorkerID:  spec.Worker.ID.String(),
		DataHash:  spec.ResultHash,
		LastBlock: last,
	}
	if err := res.Sign(spec.Worker.Key); err != nil {
		t.Fatalf("sign result: %v", err)
	}
	row := types.QueryLogRow{
		QueryID:         spec.QueryID,
		ClientID:        spec.Client.ID.String(),
		WorkerID:        spec.Worker.ID.String(),
		DatasetID:       Dataset,
		FromBlock:       &from,
		ToBlock:         &to,
		ChunkID:         Chunk,
		Query:           q.Query,
		QueryHash:       common.Keccak256([]byte(q.Query)).Bytes(),
		Result:          types.ResultOk,
		OutputHash:      spec.ResultHash,
		LastBlock:       &last,
		ClientSignature: q.Signature,
		ClientTimestamp: spec.TimestampMs,
		RequestID:       q.RequestID,
	}
	sig := types.SignatureRecord{
		QueryID:         spec.QueryID,
		WorkerSignature: res.WorkerSignature,
		ResultHash:      spec.ResultHash,
	}
	return row, sig
}

// Scenario is n sibling rows answered by n distinct workers for one client.
// Row 0 is the disputed query and carries disputedHash; the rest carry
// hash. Timestamps increase with the row index.
type Scenario struct {
	Client     Identity
	Workers    []Identity
	Rows       []types.QueryLogRow
	Signatures []types.SignatureRecord
}

func NewScenario(t testing.TB, n int, hash, disputedHash []byte) *Scenario {
	s := &Scenario{Client: NewIdentity(t), Workers: NewIdentities(t, n)}
	for i := 0; i < n; i++ {
		h := hash
		if i == 0 {
			h = disputedHash
		}
		row, sig := SignedRow(t, RowSpec{
			QueryID:     fmt.Sprintf("q-%02d", i),
			Client:      s.Client,
			Worker:      s.Workers[i],
			ResultHash:  h,
			TimestampMs: 1_700_000_000_000 + uint64(i)*1000,
		})
		s.Rows = append(s.Rows, row)
		s.Signatures = append(s.Signatures, sig)
	}
	return s
}

func (s *Scenario) Disputed() types.QueryLogRow {
	return s.Rows[0]
}

func (s *Scenario) Snapshot() *assignment.Snapshot {
	return Snapshot(s.Workers)
}

// SnapshotSource serves snapshots from memory and counts loads.
type SnapshotSource struct {
	mu        sync.Mutex
	snapshots map[string]*assignment.Snapshot
	failures  map[string]error
	loads     map[string]int
}

func NewSnapshotSource() *SnapshotSource {
	return &SnapshotSource{
		snapshots: make(map[string]*assignment.Snapshot),
		failures:  make(map[string]error),
		loads:     make(map[string]int),
	}
}

func (s *SnapshotSource) Set(id string, snap *assignment.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = snap
}

// Fail makes every load of id return err.
func (s *SnapshotSource) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = err
}

func (s *SnapshotSource) Loads(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[id]
}

func (s *SnapshotSource) Load(_ context.Context, id string) (*assignment.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[id]++
	if err, ok := s.failures[id]; ok {
		return nil, err
	}
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: no snapshot %s", fperrors.ErrSnapshotFetch, id)
	}
	return snap, nil
}
