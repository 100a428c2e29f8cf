package types

import (
	"crypto/rand"
	"errors"
	"testing"

	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func newIdentity(t *testing.T) (crypto.PrivKey, peer.ID) {
	t.Helper()
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return priv, id
}

func sampleQuery() Query {
	return Query{
		RequestID:   "req-1",
		QueryID:     "q-1",
		Dataset:     "s3://ethereum-mainnet",
		Query:       `{"fromBlock":100,"toBlock":200}`,
		BlockRange:  BlockRange{Begin: 100, End: 200},
		ChunkID:     "0000000000/0000000001-0000001000-abcd",
		TimestampMs: 1_700_000_000_000,
	}
}

func TestQuerySignatureRoundTrip(t *testing.T) {
	clientKey, clientID := newIdentity(t)
	_, workerID := newIdentity(t)

	q := sampleQuery()
	require.NoError(t, q.Sign(clientKey, workerID))
	require.NoError(t, q.Verify(clientID, workerID))
}

func TestQuerySignatureBoundToWorker(t *testing.T) {
	clientKey, clientID := newIdentity(t)
	_, workerID := newIdentity(t)
	_, otherWorker := newIdentity(t)

	q := sampleQuery()
	require.NoError(t, q.Sign(clientKey, workerID))

	err := q.Verify(clientID, otherWorker)
	require.Error(t, err)
	require.True(t, errors.Is(err, fperrors.ErrSignatureInvalid))
}

func TestQuerySignatureRejectsTamperedField(t *testing.T) {
	clientKey, clientID := newIdentity(t)
	_, workerID := newIdentity(t)

	q := sampleQuery()
	require.NoError(t, q.Sign(clientKey, workerID))
	q.BlockRange.End = 201
	require.True(t, errors.Is(q.Verify(clientID, workerID), fperrors.ErrVerification))
}

func TestResultSignature(t *testing.T) {
	workerKey, workerID := newIdentity(t)
	_, impostor := newIdentity(t)

	r := QueryResult{QueryID: "q-1", WorkerID: workerID.String(), DataHash: []byte{1, 2, 3}, LastBlock: 200}
	require.NoError(t, r.Sign(workerKey))
	require.NoError(t, r.Verify())

	r.WorkerID = impostor.String()
	require.True(t, errors.Is(r.Verify(), fperrors.ErrSignatureInvalid))

	r.WorkerID = "not-a-peer"
	require.True(t, errors.Is(r.Verify(), fperrors.ErrBadPeerID))
}
