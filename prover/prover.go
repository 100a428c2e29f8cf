// Package prover hands evidence bundles to the external zero-knowledge
// prover and returns the proof to post on chain.
package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const ContentTypeEvidence = "application/x-rlp"

// Proof is what the prover returns.
type Proof struct {
	ProofBytes      hexutil.Bytes `json:"proof"`
	PublicValues    hexutil.Bytes `json:"publicValues"`
	VerificationKey string        `json:"vkey,omitempty"`
}

type Prover interface {
	Prove(ctx context.Context, bundles []types.EvidenceBundle) (*Proof, error)
}

// HTTPProver posts the RLP-encoded bundle list to {url}/prove.
type HTTPProver struct {
	url    string
	client *http.Client
}

func NewHTTPProver(url string, timeout time.Duration) *HTTPProver {
	return &HTTPProver{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProver) Prove(ctx context.Context, bundles []types.EvidenceBundle) (*Proof, error) {
	body, err := types.EncodeEvidence(bundles)
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/prove", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fperrors.ErrProver, err)
	}
	req.Header.Set("Content-Type", ContentTypeEvidence)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fperrors.ErrProver, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", fperrors.ErrProver, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", fperrors.ErrProver, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var proof Proof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, fmt.Errorf("%w: %v", fperrors.ErrProverResponse, err)
	}
	if len(proof.ProofBytes) == 0 {
		return nil, fmt.Errorf("%w: empty proof", fperrors.ErrProverResponse)
	}
	log.Info(log.ProverMonitoring, "zk proof received", "bundles", len(bundles), "elapsed", time.Since(start),
		"publicValues", common.Bytes2Hex(proof.PublicValues), "proof", common.Bytes2Hex(proof.ProofBytes),
		"vkey", proof.VerificationKey)
	return &proof, nil
}
