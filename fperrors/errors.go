// Package fperrors is the error taxonomy of the evidence pipeline. Every
// error carries a "CODE|Name: description" message; specific errors unwrap to
// one of the five kinds so callers can branch with errors.Is.
package fperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds
var (
	ErrTransport            = errors.New("K1|Transport: network or file I/O failed")
	ErrDecode               = errors.New("K2|Decode: malformed snapshot or payload")
	ErrDataNotFound         = errors.New("K3|DataNotFound: required data is missing")
	ErrVerification         = errors.New("K4|Verification: signature or membership check failed")
	ErrInsufficientEvidence = errors.New("K5|InsufficientEvidence: quorum not reached")
)

var kinds = []error{ErrTransport, ErrDecode, ErrDataNotFound, ErrVerification, ErrInsufficientEvidence}

// Tagged is a specific error belonging to one kind.
type Tagged struct {
	Code string
	Name string
	Desc string
	Kind error
}

func (e *Tagged) Error() string {
	return e.Code + "|" + e.Name + ": " + e.Desc
}

func (e *Tagged) Unwrap() error { return e.Kind }

func tagged(kind error, code, name, desc string) *Tagged {
	return &Tagged{Code: code, Name: name, Desc: desc, Kind: kind}
}

// Snapshot & trie (A)
var (
	ErrSnapshotFetch  = tagged(ErrTransport, "A1", "SnapshotFetch", "assignment snapshot could not be fetched")
	ErrSnapshotBad    = tagged(ErrDecode, "A2", "SnapshotMalformed", "assignment snapshot could not be decoded")
	ErrTrieInsert     = tagged(ErrDecode, "A3", "TrieInsert", "assignment trie rejected an entry")
	ErrProofMalformed = tagged(ErrDecode, "A4", "ProofMalformed", "membership proof does not end in a leaf")
	ErrNotAssigned    = tagged(ErrVerification, "A5", "NotAssigned", "worker is not assigned to the chunk")
	ErrProofRoot      = tagged(ErrVerification, "A6", "ProofRootMismatch", "membership proof does not hash to the trie root")
)

// Discovery & consensus (Q)
var (
	ErrOriginalQueryNotFound = tagged(ErrDataNotFound, "Q1", "OriginalQueryNotFound", "exactly one log row is required for the disputed query")
	ErrNoQuorum              = tagged(ErrDataNotFound, "Q2", "NoQuorum", "no worker signatures found")
	ErrNoAssignment          = tagged(ErrDataNotFound, "Q3", "NoAssignment", "no assignment in effect at the query time")
	ErrStoreQuery            = tagged(ErrTransport, "Q4", "StoreQuery", "analytics store query failed")
	ErrChainCall             = tagged(ErrTransport, "Q5", "ChainCall", "contract call failed")
)

// Evidence (E)
var (
	ErrSignatureInvalid  = tagged(ErrVerification, "E1", "SignatureInvalid", "signature verification failed")
	ErrMissingField      = tagged(ErrDataNotFound, "E2", "MissingField", "log row lacks a field required by the signed message")
	ErrBadPeerID         = tagged(ErrDecode, "E3", "BadPeerID", "identity is not a valid peer id")
	ErrNotEnoughEvidence = tagged(ErrInsufficientEvidence, "E4", "NotEnoughEvidence", "not enough evidence to create fraud proof")
)

// Proof submission (P)
var (
	ErrProver         = tagged(ErrTransport, "P1", "Prover", "prover service failed")
	ErrProverResponse = tagged(ErrDecode, "P2", "ProverResponse", "prover returned a malformed response")
	ErrTxReverted     = tagged(ErrVerification, "P3", "TxReverted", "proof transaction reverted")
	ErrTxTimeout      = tagged(ErrTransport, "P4", "TxTimeout", "proof transaction not confirmed in time")
)

// StepError attaches the pipeline step and the query being worked on.
type StepError struct {
	Step    string
	QueryID string
	Err     error
}

func (e *StepError) Error() string {
	if e.QueryID == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s (query %s): %v", e.Step, e.QueryID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Step wraps err with its step context. A nil err stays nil.
func Step(step, queryID string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, QueryID: queryID, Err: err}
}

// Kind returns the taxonomy name of err, or "Unknown".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return GetErrorName(k)
		}
	}
	return "Unknown"
}

// GetErrorName extracts the error name from a "CODE|Name: desc" message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode returns the code of the tagged error inside err, falling back
// to parsing a "CODE|Name: desc" message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var tagged *Tagged
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(errStr, "|", 2)[0])
}
