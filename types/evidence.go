package types

import (
	"github.com/colorfulnotion/fraudproof/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// MembershipProof is the ordered list of RLP-encoded trie nodes from the
// root to the leaf holding a chunk's worker list.
type MembershipProof [][]byte

// EvidenceBundle is one verified fraud-proof input. Both signatures have been
// checked and the membership proof supports the worker before it exists.
type EvidenceBundle struct {
	Query       Query           `json:"query"`
	QueryResult QueryResult     `json:"query_result"`
	MPTProof    MembershipProof `json:"mpt_proof"`
	WorkerID    string          `json:"worker_id"`
	ClientID    string          `json:"client_id"`
	TreeRoot    common.Hash     `json:"tree_root"`
}

// EncodeEvidence serializes a bundle list for the prover.
func EncodeEvidence(bundles []EvidenceBundle) ([]byte, error) {
	return rlp.EncodeToBytes(bundles)
}

// DecodeEvidence is the inverse of EncodeEvidence.
func DecodeEvidence(data []byte) ([]EvidenceBundle, error) {
	var bundles []EvidenceBundle
	if err := rlp.DecodeBytes(data, &bundles); err != nil {
		return nil, err
	}
	return bundles, nil
}
