// Package trie builds the Merkle-Patricia trie over a worker assignment and
// produces membership proofs for (dataset, chunk, worker) triples.
package trie

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/colorfulnotion/fraudproof/assignment"
	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/rlp"
	ethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
)

// AssignmentTrie maps keccak(dataset|chunk) to the "|"-joined sorted worker
// ids assigned to that chunk.
type AssignmentTrie struct {
	tr      *ethtrie.Trie
	entries int
}

func newEmpty() *ethtrie.Trie {
	return ethtrie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

// Build inserts every (dataset, chunk) of the snapshot. Chunks without
// workers are left out: an empty value is a deletion in the trie.
func Build(snap *assignment.Snapshot) (*AssignmentTrie, error) {
	entries, err := snap.Entries()
	if err != nil {
		return nil, err
	}
	t := &AssignmentTrie{tr: newEmpty()}
	for _, e := range entries {
		if len(e.Workers) == 0 {
			continue
		}
		key := common.CompositeKey(e.DatasetID, e.ChunkID)
		if err := t.tr.Update(key[:], []byte(e.Value())); err != nil {
			return nil, fmt.Errorf("%w: %s|%s: %v", fperrors.ErrTrieInsert, e.DatasetID, e.ChunkID, err)
		}
		t.entries++
	}
	return t, nil
}

func (t *AssignmentTrie) Root() common.Hash {
	return t.tr.Hash()
}

func (t *AssignmentTrie) Len() int {
	return t.entries
}

// ProveMembership returns the proof for the chunk's leaf after verifying it
// against the root and checking that the leaf lists workerID. The lookup
// uses the 8-byte truncated key; the full 32-byte hash is only the insertion
// key.
func (t *AssignmentTrie) ProveMembership(datasetID, chunkID, workerID string) (types.MembershipProof, error) {
	key := common.TrieLookupKey(datasetID, chunkID)
	var proof proofList
	if err := t.tr.Prove(key, &proof); err != nil {
		return nil, fmt.Errorf("%w: %v", fperrors.ErrProofMalformed, err)
	}
	mp := types.MembershipProof(proof)
	if err := VerifyMembership(t.Root(), datasetID, chunkID, workerID, mp); err != nil {
		return nil, err
	}
	return mp, nil
}

// proofList collects proof nodes in root-to-leaf order.
type proofList [][]byte

func (p *proofList) Put(_ []byte, value []byte) error {
	*p = append(*p, append([]byte(nil), value...))
	return nil
}

func (p *proofList) Delete([]byte) error {
	return fmt.Errorf("proof list is append-only")
}

// LeafWorkers decodes the terminal node of a proof and splits its value
// into worker ids.
func LeafWorkers(proof types.MembershipProof) ([]string, error) {
	if len(proof) == 0 {
		return nil, fmt.Errorf("%w: empty proof", fperrors.ErrProofMalformed)
	}
	_, isLeaf, val, err := decodeShort(proof[len(proof)-1])
	if err != nil {
		return nil, err
	}
	if !isLeaf {
		return nil, fmt.Errorf("%w: terminal node is an extension", fperrors.ErrProofMalformed)
	}
	var payload []byte
	if err := rlp.DecodeBytes(val, &payload); err != nil {
		return nil, fmt.Errorf("%w: leaf value: %v", fperrors.ErrProofMalformed, err)
	}
	return strings.Split(string(payload), "|"), nil
}

// VerifyMembership walks the proof from root along the truncated lookup
// key, checking every hash link, and then checks the leaf for workerID.
func VerifyMembership(root common.Hash, datasetID, chunkID, workerID string, proof types.MembershipProof) error {
	if len(proof) == 0 {
		return fmt.Errorf("%w: empty proof", fperrors.ErrProofMalformed)
	}
	if common.Keccak256(proof[0]) != root {
		return fperrors.ErrProofRoot
	}
	path := keybytesToHex(common.TrieLookupKey(datasetID, chunkID))
	for i, enc := range proof {
		last := i == len(proof)-1
		var elems []rlp.RawValue
		if err := rlp.DecodeBytes(enc, &elems); err != nil {
			return fmt.Errorf("%w: node %d: %v", fperrors.ErrProofMalformed, i, err)
		}
		var next rlp.RawValue
		switch len(elems) {
		case 17:
			if len(path) == 0 || last {
				return fmt.Errorf("%w: proof ends at a branch", fperrors.ErrProofMalformed)
			}
			next, path = elems[path[0]], path[1:]
		case 2:
			nibbles, isLeaf, val, err := decodeShort(enc)
			if err != nil {
				return err
			}
			if isLeaf {
				if !last || !bytes.HasPrefix(nibbles, path) {
					return fmt.Errorf("%w: leaf off the lookup path", fperrors.ErrProofMalformed)
				}
				var payload []byte
				if err := rlp.DecodeBytes(val, &payload); err != nil {
					return fmt.Errorf("%w: leaf value: %v", fperrors.ErrProofMalformed, err)
				}
				if !contains(strings.Split(string(payload), "|"), workerID) {
					return fmt.Errorf("%w: %s not in %s|%s", fperrors.ErrNotAssigned, workerID, datasetID, chunkID)
				}
				return nil
			}
			if !bytes.HasPrefix(path, nibbles) || last {
				return fmt.Errorf("%w: extension off the lookup path", fperrors.ErrProofMalformed)
			}
			next, path = val, path[len(nibbles):]
		default:
			return fmt.Errorf("%w: node %d has %d items", fperrors.ErrProofMalformed, i, len(elems))
		}
		var ref []byte
		if err := rlp.DecodeBytes(next, &ref); err != nil || len(ref) != 32 {
			return fmt.Errorf("%w: node %d child is not a hash reference", fperrors.ErrProofMalformed, i)
		}
		if !bytes.Equal(common.Keccak256(proof[i+1]).Bytes(), ref) {
			return fmt.Errorf("%w: node %d does not link to node %d", fperrors.ErrProofMalformed, i, i+1)
		}
	}
	return fmt.Errorf("%w: no leaf", fperrors.ErrProofMalformed)
}

// decodeShort decodes a two-item node into its key nibbles, leaf flag and
// raw second item.
func decodeShort(enc []byte) ([]byte, bool, rlp.RawValue, error) {
	var elems []rlp.RawValue
	if err := rlp.DecodeBytes(enc, &elems); err != nil {
		return nil, false, nil, fmt.Errorf("%w: %v", fperrors.ErrProofMalformed, err)
	}
	if len(elems) != 2 {
		return nil, false, nil, fmt.Errorf("%w: node has %d items", fperrors.ErrProofMalformed, len(elems))
	}
	var compact []byte
	if err := rlp.DecodeBytes(elems[0], &compact); err != nil || len(compact) == 0 {
		return nil, false, nil, fmt.Errorf("%w: bad node key", fperrors.ErrProofMalformed)
	}
	flag := compact[0] >> 4
	if flag > 3 {
		return nil, false, nil, fmt.Errorf("%w: bad hex-prefix flag %d", fperrors.ErrProofMalformed, flag)
	}
	var nibbles []byte
	if flag&1 == 1 {
		nibbles = append(nibbles, compact[0]&0x0f)
	}
	for _, b := range compact[1:] {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles, flag >= 2, elems[1], nil
}

func keybytesToHex(key []byte) []byte {
	out := make([]byte, 0, len(key)*2)
	for _, b := range key {
		out = append(out, b>>4, b&0x0f)
	}
	return out
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
