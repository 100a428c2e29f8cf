package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/types"
)

const queryLogColumns = "query_id, client_id, worker_id, dataset_id, from_block, to_block, chunk_id, query, query_hash, " +
	"result, output_hash, last_block, error_msg, client_signature, client_timestamp, request_id"

const (
	originalQuerySQL = "SELECT " + queryLogColumns + " FROM worker_query_logs " +
		"WHERE worker_timestamp > ? AND worker_timestamp < ? AND query_id = ? LIMIT 2"
	siblingsSQL = "SELECT " + queryLogColumns + " FROM worker_query_logs " +
		"WHERE worker_timestamp > ? AND worker_timestamp < ? AND hex(query_hash) = ? " +
		"AND from_block = ? AND to_block = ? AND result = 'ok'"
	signaturesSQL = "SELECT query_id, worker_signature, result_hash FROM portal_logs " +
		"WHERE collector_timestamp > ? AND collector_timestamp < ? AND has(?, query_id)"
)

type ClickHouseConfig struct {
	URL         string // http(s)://host:port for the HTTP interface, host:port for native
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// ClickHouseStore implements Store over the analytics ClickHouse cluster.
type ClickHouseStore struct {
	conn driver.Conn
}

func NewClickHouseStore(cfg ClickHouseConfig) (*ClickHouseStore, error) {
	opts, err := clickhouseOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", fperrors.ErrStoreQuery, err)
	}
	return &ClickHouseStore{conn: conn}, nil
}

func clickhouseOptions(cfg ClickHouseConfig) (*clickhouse.Options, error) {
	opts := &clickhouse.Options{
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Protocol:    clickhouse.Native,
	}
	if !strings.Contains(cfg.URL, "://") {
		opts.Addr = []string{cfg.URL}
		return opts, nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bad clickhouse url %q: %w", cfg.URL, err)
	}
	opts.Addr = []string{u.Host}
	switch u.Scheme {
	case "http":
		opts.Protocol = clickhouse.HTTP
	case "https":
		opts.Protocol = clickhouse.HTTP
		opts.TLS = &tls.Config{ServerName: u.Hostname()}
	case "clickhouse", "tcp":
	default:
		return nil, fmt.Errorf("bad clickhouse url scheme %q", u.Scheme)
	}
	return opts, nil
}

func (s *ClickHouseStore) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", fperrors.ErrStoreQuery, err)
	}
	return nil
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// queryLogRecord mirrors worker_query_logs. Binary columns are String typed.
type queryLogRecord struct {
	QueryID         string  `ch:"query_id"`
	ClientID        string  `ch:"client_id"`
	WorkerID        string  `ch:"worker_id"`
	DatasetID       string  `ch:"dataset_id"`
	FromBlock       *uint64 `ch:"from_block"`
	ToBlock         *uint64 `ch:"to_block"`
	ChunkID         string  `ch:"chunk_id"`
	Query           string  `ch:"query"`
	QueryHash       string  `ch:"query_hash"`
	Result          string  `ch:"result"`
	OutputHash      string  `ch:"output_hash"`
	LastBlock       *uint64 `ch:"last_block"`
	ErrorMsg        string  `ch:"error_msg"`
	ClientSignature string  `ch:"client_signature"`
	ClientTimestamp uint64  `ch:"client_timestamp"`
	RequestID       string  `ch:"request_id"`
}

func (r *queryLogRecord) toRow() (types.QueryLogRow, error) {
	result, err := types.ParseResultCode(r.Result)
	if err != nil {
		return types.QueryLogRow{}, fmt.Errorf("%w: query %s: %v", fperrors.ErrDecode, r.QueryID, err)
	}
	return types.QueryLogRow{
		QueryID:         r.QueryID,
		ClientID:        r.ClientID,
		WorkerID:        r.WorkerID,
		DatasetID:       r.DatasetID,
		FromBlock:       r.FromBlock,
		ToBlock:         r.ToBlock,
		ChunkID:         r.ChunkID,
		Query:           r.Query,
		QueryHash:       []byte(r.QueryHash),
		Result:          result,
		OutputHash:      []byte(r.OutputHash),
		LastBlock:       r.LastBlock,
		ErrorMsg:        r.ErrorMsg,
		ClientSignature: []byte(r.ClientSignature),
		ClientTimestamp: r.ClientTimestamp,
		RequestID:       r.RequestID,
	}, nil
}

type signatureRecord struct {
	QueryID         string `ch:"query_id"`
	WorkerSignature string `ch:"worker_signature"`
	ResultHash      string `ch:"result_hash"`
}

func (s *ClickHouseStore) OriginalQuery(ctx context.Context, queryID string, tsLow, tsHigh uint64) ([]types.QueryLogRow, error) {
	return s.selectRows(ctx, originalQuerySQL, tsLow, tsHigh, queryID)
}

func (s *ClickHouseStore) Siblings(ctx context.Context, tsLow, tsHigh uint64, contentHashHex string, fromBlock, toBlock uint64) ([]types.QueryLogRow, error) {
	return s.selectRows(ctx, siblingsSQL, tsLow, tsHigh, contentHashHex, fromBlock, toBlock)
}

func (s *ClickHouseStore) Signatures(ctx context.Context, tsLow, tsHigh uint64, queryIDs []string) ([]types.SignatureRecord, error) {
	if len(queryIDs) == 0 {
		return nil, nil
	}
	var recs []signatureRecord
	if err := s.conn.Select(ctx, &recs, signaturesSQL, tsLow, tsHigh, queryIDs); err != nil {
		return nil, fmt.Errorf("%w: signatures: %v", fperrors.ErrStoreQuery, err)
	}
	out := make([]types.SignatureRecord, len(recs))
	for i, r := range recs {
		out[i] = types.SignatureRecord{
			QueryID:         r.QueryID,
			WorkerSignature: []byte(r.WorkerSignature),
			ResultHash:      []byte(r.ResultHash),
		}
	}
	log.Trace(log.DiscoveryMonitoring, "signature rows", "n", len(out))
	return out, nil
}

func (s *ClickHouseStore) selectRows(ctx context.Context, query string, args ...any) ([]types.QueryLogRow, error) {
	var recs []queryLogRecord
	if err := s.conn.Select(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", fperrors.ErrStoreQuery, err)
	}
	rows := make([]types.QueryLogRow, 0, len(recs))
	for i := range recs {
		row, err := recs[i].toRow()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
