// Package assignment loads worker-to-chunk assignment snapshots published by
// the network: gzip-compressed flatbuffers holding a flat worker table and a
// dataset -> chunk -> worker-index tree.
package assignment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/colorfulnotion/fraudproof/fperrors"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Snapshot is a decoded assignment.
type Snapshot struct {
	Workers  []peer.ID
	Datasets []Dataset
}

type Dataset struct {
	ID     string
	Chunks []Chunk
}

type Chunk struct {
	ID            string
	WorkerIndexes []uint16
}

// Entry is one (dataset, chunk) pair with its resolved worker list.
type Entry struct {
	DatasetID string
	ChunkID   string
	Workers   []string // base58 peer ids, sorted
}

// Value is the trie payload: the sorted worker ids joined with "|".
func (e Entry) Value() string {
	return strings.Join(e.Workers, "|")
}

// Entries resolves worker indexes against the worker table. The output
// order follows the snapshot; each worker list is sorted.
func (s *Snapshot) Entries() ([]Entry, error) {
	names := make([]string, len(s.Workers))
	for i, w := range s.Workers {
		names[i] = w.String()
	}
	var out []Entry
	for _, ds := range s.Datasets {
		for _, ch := range ds.Chunks {
			workers := make([]string, 0, len(ch.WorkerIndexes))
			for _, idx := range ch.WorkerIndexes {
				if int(idx) >= len(names) {
					return nil, fmt.Errorf("%w: chunk %s|%s references worker %d of %d",
						fperrors.ErrSnapshotBad, ds.ID, ch.ID, idx, len(names))
				}
				workers = append(workers, names[idx])
			}
			sort.Strings(workers)
			out = append(out, Entry{DatasetID: ds.ID, ChunkID: ch.ID, Workers: workers})
		}
	}
	return out, nil
}

// Decode parses an uncompressed snapshot. The flatbuffer is read without a
// verifier, so out-of-range offsets surface as a recovered panic.
func Decode(buf []byte) (snap *Snapshot, err error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", fperrors.ErrSnapshotBad, len(buf))
	}
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = fmt.Errorf("%w: %v", fperrors.ErrSnapshotBad, r)
		}
	}()

	root := getRootAsAssignment(buf, 0)
	snap = &Snapshot{
		Workers:  make([]peer.ID, root.WorkersLength()),
		Datasets: make([]Dataset, root.DatasetsLength()),
	}

	var w fbWorkerAssignment
	for i := range snap.Workers {
		root.Workers(&w, i)
		id, err := peer.IDFromBytes(w.WorkerIdBytes())
		if err != nil {
			return nil, fmt.Errorf("%w: worker %d: %v", fperrors.ErrSnapshotBad, i, err)
		}
		snap.Workers[i] = id
	}

	var (
		ds fbDataset
		ch fbChunk
	)
	for i := range snap.Datasets {
		root.Datasets(&ds, i)
		dataset := Dataset{ID: string(ds.Id()), Chunks: make([]Chunk, ds.ChunksLength())}
		for j := range dataset.Chunks {
			ds.Chunks(&ch, j)
			chunk := Chunk{ID: string(ch.Id()), WorkerIndexes: make([]uint16, ch.WorkerIndexesLength())}
			for k := range chunk.WorkerIndexes {
				chunk.WorkerIndexes[k] = ch.WorkerIndexes(k)
			}
			dataset.Chunks[j] = chunk
		}
		snap.Datasets[i] = dataset
	}
	return snap, nil
}

// Encode serializes a snapshot in the published layout.
func Encode(s *Snapshot) []byte {
	b := flatbuffers.NewBuilder(1024)

	workerOffsets := make([]flatbuffers.UOffsetT, len(s.Workers))
	for i, w := range s.Workers {
		idBytes := b.CreateByteVector([]byte(w))
		workerAssignmentStart(b)
		workerAssignmentAddWorkerId(b, idBytes)
		workerOffsets[i] = workerAssignmentEnd(b)
	}

	datasetOffsets := make([]flatbuffers.UOffsetT, len(s.Datasets))
	for i, ds := range s.Datasets {
		chunkOffsets := make([]flatbuffers.UOffsetT, len(ds.Chunks))
		for j, ch := range ds.Chunks {
			chunkID := b.CreateString(ch.ID)
			chunkStartWorkerIndexesVector(b, len(ch.WorkerIndexes))
			for k := len(ch.WorkerIndexes) - 1; k >= 0; k-- {
				b.PrependUint16(ch.WorkerIndexes[k])
			}
			indexes := b.EndVector(len(ch.WorkerIndexes))
			chunkStart(b)
			chunkAddId(b, chunkID)
			chunkAddWorkerIndexes(b, indexes)
			chunkOffsets[j] = chunkEnd(b)
		}
		datasetID := b.CreateString(ds.ID)
		datasetStartChunksVector(b, len(chunkOffsets))
		for j := len(chunkOffsets) - 1; j >= 0; j-- {
			b.PrependUOffsetT(chunkOffsets[j])
		}
		chunks := b.EndVector(len(chunkOffsets))
		datasetStart(b)
		datasetAddId(b, datasetID)
		datasetAddChunks(b, chunks)
		datasetOffsets[i] = datasetEnd(b)
	}

	assignmentStartWorkersVector(b, len(workerOffsets))
	for i := len(workerOffsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(workerOffsets[i])
	}
	workers := b.EndVector(len(workerOffsets))

	assignmentStartDatasetsVector(b, len(datasetOffsets))
	for i := len(datasetOffsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(datasetOffsets[i])
	}
	datasets := b.EndVector(len(datasetOffsets))

	assignmentStart(b)
	assignmentAddWorkers(b, workers)
	assignmentAddDatasets(b, datasets)
	b.Finish(assignmentEnd(b))
	return b.FinishedBytes()
}
