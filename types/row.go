package types

import "fmt"

// ResultCode is the outcome a worker recorded for a query.
type ResultCode uint8

const (
	ResultOk ResultCode = iota + 1
	ResultBadRequest
	ResultServerError
	ResultNotFound
	ResultServerOverloaded
	ResultTooManyRequests
)

func (r ResultCode) String() string {
	switch r {
	case ResultOk:
		return "ok"
	case ResultBadRequest:
		return "bad_request"
	case ResultServerError:
		return "server_error"
	case ResultNotFound:
		return "not_found"
	case ResultServerOverloaded:
		return "server_overloaded"
	case ResultTooManyRequests:
		return "too_many_requests"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// ParseResultCode maps the analytics store's enum label back to a ResultCode.
func ParseResultCode(s string) (ResultCode, error) {
	for r := ResultOk; r <= ResultTooManyRequests; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown result code %q", s)
}

// QueryLogRow is one executed query as recorded by the analytics log.
type QueryLogRow struct {
	QueryID         string     `json:"query_id"`
	ClientID        string     `json:"client_id"`
	WorkerID        string     `json:"worker_id"`
	DatasetID       string     `json:"dataset_id"`
	FromBlock       *uint64    `json:"from_block,omitempty"`
	ToBlock         *uint64    `json:"to_block,omitempty"`
	ChunkID         string     `json:"chunk_id"`
	Query           string     `json:"query"`
	QueryHash       []byte     `json:"query_hash"`
	Result          ResultCode `json:"result"`
	OutputHash      []byte     `json:"output_hash"`
	LastBlock       *uint64    `json:"last_block,omitempty"`
	ErrorMsg        string     `json:"error_msg,omitempty"`
	ClientSignature []byte     `json:"client_signature"`
	ClientTimestamp uint64     `json:"client_timestamp"` // milliseconds
	RequestID       string     `json:"request_id"`
}

// SignatureRecord is a worker-signed attestation of a query result.
type SignatureRecord struct {
	QueryID         string `json:"query_id"`
	WorkerSignature []byte `json:"worker_signature"`
	ResultHash      []byte `json:"result_hash"`
}

// SignedResult is the consensus output for one query id.
type SignedResult struct {
	ResultHash      []byte
	WorkerSignature []byte
}
