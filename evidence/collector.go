package evidence

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/hashicorp/go-multierror"
)

// Inputs are the per-task results of discovery, resolution and consensus.
type Inputs struct {
	Rows          []types.QueryLogRow // eligible, in consumption order
	AssignmentIDs map[string]string
	Signatures    map[string]types.SignedResult
}

// Collector walks eligible rows in order and assembles one bundle per
// worker until the quorum is reached. A failing row is skipped.
type Collector struct {
	Quorum     int
	Cache      *TrieCache
	OnProgress func(done, quorum int)
	OnSkip     func(row types.QueryLogRow, err error)
}

// Collect returns the bundles it managed to build and the reasons rows were
// dropped. Missing signatures, assignment ids and repeated workers are
// skipped without being reported.
func (c *Collector) Collect(ctx context.Context, in Inputs) ([]types.EvidenceBundle, error) {
	var (
		bundles []types.EvidenceBundle
		skipped *multierror.Error
		used    = make(map[string]bool)
	)
	for _, row := range in.Rows {
		if len(bundles) >= c.Quorum {
			break
		}
		if err := ctx.Err(); err != nil {
			skipped = multierror.Append(skipped, err)
			break
		}
		if used[row.WorkerID] {
			continue
		}
		signed, ok := in.Signatures[row.QueryID]
		if !ok {
			continue
		}
		assignmentID, ok := in.AssignmentIDs[row.QueryID]
		if !ok {
			continue
		}

		bundle, err := c.build(ctx, row, assignmentID, signed)
		if err != nil {
			log.Warn(log.EvidenceMonitoring, "skipping row", "query", row.QueryID, "worker", row.WorkerID,
				"assignment", assignmentID, "kind", fperrors.Kind(err), "code", fperrors.GetErrorCode(err), "err", err)
			skipped = multierror.Append(skipped, fperrors.Step("assemble", row.QueryID, err))
			if c.OnSkip != nil {
				c.OnSkip(row, err)
			}
			continue
		}
		used[row.WorkerID] = true
		bundles = append(bundles, bundle)
		log.Info(log.EvidenceMonitoring, "evidence assembled", "query", row.QueryID, "worker", row.WorkerID,
			"n", len(bundles), "quorum", c.Quorum)
		if c.OnProgress != nil {
			c.OnProgress(len(bundles), c.Quorum)
		}
	}
	return bundles, skipped.ErrorOrNil()
}

func (c *Collector) build(ctx context.Context, row types.QueryLogRow, assignmentID string, signed types.SignedResult) (types.EvidenceBundle, error) {
	t, err := c.Cache.Get(ctx, assignmentID)
	if err != nil {
		return types.EvidenceBundle{}, err
	}
	proof, err := t.ProveMembership(row.DatasetID, row.ChunkID, row.WorkerID)
	if err != nil {
		return types.EvidenceBundle{}, fmt.Errorf("assignment %s: %w", assignmentID, err)
	}
	return Assemble(row, signed, t.Root(), proof)
}
