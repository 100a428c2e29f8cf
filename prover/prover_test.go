package prover

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/stretchr/testify/require"
)

func TestHTTPProver(t *testing.T) {
	bundles := []types.EvidenceBundle{
		{WorkerID: "w1", ClientID: "c", MPTProof: types.MembershipProof{{1, 2}, {3}}},
		{WorkerID: "w2", ClientID: "c"},
	}
	var got []types.EvidenceBundle
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/prove", r.URL.Path)
		require.Equal(t, ContentTypeEvidence, r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got, err = types.DecodeEvidence(body)
		require.NoError(t, err)
		_, _ = io.WriteString(w, `{"proof":"0xdeadbeef","publicValues":"0x0102","vkey":"0xabc"}`)
	}))
	defer srv.Close()

	proof, err := NewHTTPProver(srv.URL+"/", time.Second).Prove(context.Background(), bundles)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, []byte(proof.ProofBytes))
	require.Equal(t, []byte{1, 2}, []byte(proof.PublicValues))
	require.Len(t, got, 2)
	require.Equal(t, "w1", got[0].WorkerID)
	require.Equal(t, bundles[0].MPTProof, got[0].MPTProof)
}

func TestHTTPProverFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, "boom", fperrors.ErrProver},
		{"garbage", http.StatusOK, "not json", fperrors.ErrProverResponse},
		{"empty proof", http.StatusOK, `{"proof":"0x","publicValues":"0x01"}`, fperrors.ErrProverResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			_, err := NewHTTPProver(srv.URL, time.Second).Prove(context.Background(), nil)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := NewHTTPProver("http://127.0.0.1:1", 100*time.Millisecond).Prove(context.Background(), nil)
	require.ErrorIs(t, err, fperrors.ErrTransport)
}
