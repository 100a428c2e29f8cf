package types

import (
	"fmt"

	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// BlockRange is inclusive on both ends.
type BlockRange struct {
	Begin uint64 `json:"begin"`
	End   uint64 `json:"end"`
}

// Query is the canonical client-signed query message.
type Query struct {
	RequestID   string     `json:"request_id"`
	QueryID     string     `json:"query_id"`
	Dataset     string     `json:"dataset"`
	Query       string     `json:"query"`
	BlockRange  BlockRange `json:"block_range"`
	ChunkID     string     `json:"chunk_id"`
	TimestampMs uint64     `json:"timestamp_ms"`
	Signature   []byte     `json:"signature"`
}

// QueryResult is the canonical worker-signed result message.
type QueryResult struct {
	QueryID         string `json:"query_id"`
	WorkerID        string `json:"worker_id"`
	DataHash        []byte `json:"data_hash"`
	LastBlock       uint64 `json:"last_block"`
	WorkerSignature []byte `json:"worker_signature"`
}

type querySigningPayload struct {
	QueryID     string
	RequestID   string
	Dataset     string
	Query       string
	FromBlock   uint64
	ToBlock     uint64
	ChunkID     string
	TimestampMs uint64
	WorkerID    []byte
}

type resultSigningPayload struct {
	QueryID   string
	DataHash  []byte
	LastBlock uint64
}

// UnsignedBytes is what the client signs: every query field except the
// signature, bound to the worker the query was addressed to.
func (q *Query) UnsignedBytes(workerID peer.ID) ([]byte, error) {
	return rlp.EncodeToBytes(&querySigningPayload{
		QueryID:     q.QueryID,
		RequestID:   q.RequestID,
		Dataset:     q.Dataset,
		Query:       q.Query,
		FromBlock:   q.BlockRange.Begin,
		ToBlock:     q.BlockRange.End,
		ChunkID:     q.ChunkID,
		TimestampMs: q.TimestampMs,
		WorkerID:    []byte(workerID),
	})
}

func (q *Query) Sign(key crypto.PrivKey, workerID peer.ID) error {
	msg, err := q.UnsignedBytes(workerID)
	if err != nil {
		return err
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return err
	}
	q.Signature = sig
	return nil
}

// Verify checks that clientID signed this query for workerID.
func (q *Query) Verify(clientID, workerID peer.ID) error {
	msg, err := q.UnsignedBytes(workerID)
	if err != nil {
		return fmt.Errorf("%w: query %s: %v", fperrors.ErrSignatureInvalid, q.QueryID, err)
	}
	if err := verifyWith(clientID, msg, q.Signature); err != nil {
		return fmt.Errorf("%w: query %s: %v", fperrors.ErrSignatureInvalid, q.QueryID, err)
	}
	return nil
}

func (r *QueryResult) UnsignedBytes() ([]byte, error) {
	return rlp.EncodeToBytes(&resultSigningPayload{
		QueryID:   r.QueryID,
		DataHash:  r.DataHash,
		LastBlock: r.LastBlock,
	})
}

func (r *QueryResult) Sign(key crypto.PrivKey) error {
	msg, err := r.UnsignedBytes()
	if err != nil {
		return err
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return err
	}
	r.WorkerSignature = sig
	return nil
}

// Verify checks that the declared worker signed the declared result.
func (r *QueryResult) Verify() error {
	workerID, err := DecodePeerID(r.WorkerID)
	if err != nil {
		return err
	}
	msg, err := r.UnsignedBytes()
	if err != nil {
		return fmt.Errorf("%w: result %s: %v", fperrors.ErrSignatureInvalid, r.QueryID, err)
	}
	if err := verifyWith(workerID, msg, r.WorkerSignature); err != nil {
		return fmt.Errorf("%w: result %s: %v", fperrors.ErrSignatureInvalid, r.QueryID, err)
	}
	return nil
}

// DecodePeerID parses a base58 peer id string.
func DecodePeerID(s string) (peer.ID, error) {
	id, err := peer.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", fperrors.ErrBadPeerID, s, err)
	}
	return id, nil
}

func verifyWith(signer peer.ID, msg, sig []byte) error {
	pub, err := signer.ExtractPublicKey()
	if err != nil {
		return fmt.Errorf("no public key in %s: %v", signer, err)
	}
	ok, err := pub.Verify(msg, sig)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("signature does not match %s", signer)
	}
	return nil
}
