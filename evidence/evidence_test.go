package evidence

import (
	"context"
	"testing"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/testutil"
	"github.com/colorfulnotion/fraudproof/trie"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

var (
	h1 = []byte("H1-result-hash")
	h2 = []byte("H2-result-hash")
)

func signedFor(s *testutil.Scenario) map[string]types.SignedResult {
	out := make(map[string]types.SignedResult)
	for _, sig := range s.Signatures {
		out[sig.QueryID] = types.SignedResult{ResultHash: sig.ResultHash, WorkerSignature: sig.WorkerSignature}
	}
	return out
}

func TestAssemble(t *testing.T) {
	s := testutil.NewScenario(t, 2, h1, h2)
	tr, err := trie.Build(s.Snapshot())
	require.NoError(t, err)
	row := s.Rows[1]
	proof, err := tr.ProveMembership(row.DatasetID, row.ChunkID, row.WorkerID)
	require.NoError(t, err)

	b, err := Assemble(row, signedFor(s)[row.QueryID], tr.Root(), proof)
	require.NoError(t, err)
	require.Equal(t, row.WorkerID, b.WorkerID)
	require.Equal(t, row.ClientID, b.ClientID)
	require.Equal(t, tr.Root(), b.TreeRoot)
	require.Equal(t, h1, b.QueryResult.DataHash)
	require.Equal(t, *row.LastBlock, b.QueryResult.LastBlock)
	require.NoError(t, trie.VerifyMembership(b.TreeRoot, b.Query.Dataset, b.Query.ChunkID, b.WorkerID, b.MPTProof))
}

func TestAssembleRejectsBadSignatures(t *testing.T) {
	s := testutil.NewScenario(t, 3, h1, h2)
	signed := signedFor(s)
	row := s.Rows[1]

	// Worker signature over a different hash.
	forged := signed[row.QueryID]
	forged.ResultHash = h2
	_, err := Assemble(row, forged, common.Hash{}, nil)
	require.ErrorIs(t, err, fperrors.ErrSignatureInvalid)

	// Another worker's signature.
	_, err = Assemble(row, signed[s.Rows[2].QueryID], common.Hash{}, nil)
	require.ErrorIs(t, err, fperrors.ErrSignatureInvalid)

	// Query re-addressed to a different worker.
	moved := row
	moved.WorkerID = s.Rows[2].WorkerID
	_, err = Assemble(moved, signed[row.QueryID], common.Hash{}, nil)
	require.ErrorIs(t, err, fperrors.ErrSignatureInvalid)

	// Tampered query text.
	tampered := row
	tampered.Query = `{"type":"evm"}`
	_, err = Assemble(tampered, signed[row.QueryID], common.Hash{}, nil)
	require.ErrorIs(t, err, fperrors.ErrVerification)
}

func TestAssembleMissingFields(t *testing.T) {
	s := testutil.NewScenario(t, 1, h1, h1)
	row := s.Rows[0]
	row.LastBlock = nil
	_, err := Assemble(row, signedFor(s)[row.QueryID], common.Hash{}, nil)
	require.ErrorIs(t, err, fperrors.ErrMissingField)

	row = s.Rows[0]
	row.FromBlock = nil
	_, err = Assemble(row, signedFor(s)[row.QueryID], common.Hash{}, nil)
	require.ErrorIs(t, err, fperrors.ErrMissingField)

	row = s.Rows[0]
	row.ClientID = "not-a-peer"
	_, err = Assemble(row, signedFor(s)[row.QueryID], common.Hash{}, nil)
	require.ErrorIs(t, err, fperrors.ErrBadPeerID)
}

func newCollector(t *testing.T, src Source, quorum int) *Collector {
	cache, err := NewTrieCache(src, 16)
	require.NoError(t, err)
	return &Collector{Quorum: quorum, Cache: cache}
}

func inputs(s *testutil.Scenario, assignmentID string) Inputs {
	ids := make(map[string]string)
	for _, r := range s.Rows {
		ids[r.QueryID] = assignmentID
	}
	return Inputs{Rows: s.Rows, AssignmentIDs: ids, Signatures: signedFor(s)}
}

func TestCollectQuorumAndCache(t *testing.T) {
	s := testutil.NewScenario(t, 7, h1, h2)
	src := testutil.NewSnapshotSource()
	src.Set("asg", s.Snapshot())
	c := newCollector(t, src, 5)
	var progress []int
	c.OnProgress = func(done, quorum int) { progress = append(progress, done) }

	bundles, err := c.Collect(context.Background(), inputs(s, "asg"))
	require.NoError(t, err)
	require.Len(t, bundles, 5)
	require.Equal(t, []int{1, 2, 3, 4, 5}, progress)
	require.Equal(t, 1, src.Loads("asg"))
	require.Equal(t, s.Rows[0].WorkerID, bundles[0].WorkerID)
}

func TestCollectOneBundlePerWorker(t *testing.T) {
	s := testutil.NewScenario(t, 4, h1, h1)
	// A second query answered by the same worker as row 1.
	extra, sig := testutil.SignedRow(t, testutil.RowSpec{
		QueryID: "q-extra", Client: s.Client, Worker: s.Workers[1], ResultHash: h1, TimestampMs: 1,
	})
	s.Rows = append([]types.QueryLogRow{s.Rows[0], s.Rows[1], extra}, s.Rows[2:]...)
	s.Signatures = append(s.Signatures, sig)

	src := testutil.NewSnapshotSource()
	src.Set("asg", s.Snapshot())
	bundles, err := newCollector(t, src, 5).Collect(context.Background(), inputs(s, "asg"))
	require.NoError(t, err)
	require.Len(t, bundles, 4)
	seen := map[string]bool{}
	for _, b := range bundles {
		require.False(t, seen[b.WorkerID])
		seen[b.WorkerID] = true
		require.NotEqual(t, "q-extra", b.Query.QueryID)
	}
}

func TestCollectSkipsFailingRows(t *testing.T) {
	s := testutil.NewScenario(t, 7, h1, h2)
	in := inputs(s, "asg")
	// Row 2 points at a snapshot that cannot be fetched, row 3 has no
	// signature, row 4 has a forged signature.
	in.AssignmentIDs[s.Rows[2].QueryID] = "asg-down"
	delete(in.Signatures, s.Rows[3].QueryID)
	bad := in.Signatures[s.Rows[4].QueryID]
	bad.ResultHash = h2
	in.Signatures[s.Rows[4].QueryID] = bad

	src := testutil.NewSnapshotSource()
	src.Set("asg", s.Snapshot())
	src.Fail("asg-down", fperrors.ErrSnapshotFetch)
	c := newCollector(t, src, 5)
	var skippedRows []string
	c.OnSkip = func(row types.QueryLogRow, err error) { skippedRows = append(skippedRows, row.QueryID) }

	bundles, err := c.Collect(context.Background(), in)
	require.Len(t, bundles, 4)
	require.Equal(t, []string{s.Rows[2].QueryID, s.Rows[4].QueryID}, skippedRows)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	require.Len(t, merr.Errors, 2)
	require.ErrorIs(t, merr.Errors[0], fperrors.ErrTransport)
	require.ErrorIs(t, merr.Errors[1], fperrors.ErrSignatureInvalid)
}

func TestCollectNotAssigned(t *testing.T) {
	s := testutil.NewScenario(t, 3, h1, h1)
	snap := s.Snapshot()
	// Drop worker 2 from the chunk.
	snap.Datasets[0].Chunks[0].WorkerIndexes = []uint16{0, 1}
	src := testutil.NewSnapshotSource()
	src.Set("asg", snap)

	bundles, err := newCollector(t, src, 5).Collect(context.Background(), inputs(s, "asg"))
	require.Len(t, bundles, 2)
	require.ErrorIs(t, err, fperrors.ErrNotAssigned)
}
