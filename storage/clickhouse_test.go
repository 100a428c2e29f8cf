package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/stretchr/testify/require"
)

func TestClickHouseOptions(t *testing.T) {
	opts, err := clickhouseOptions(ClickHouseConfig{URL: "https://ch.example.org:8443", Database: "logs", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.Equal(t, []string{"ch.example.org:8443"}, opts.Addr)
	require.Equal(t, clickhouse.HTTP, opts.Protocol)
	require.NotNil(t, opts.TLS)
	require.Equal(t, "logs", opts.Auth.Database)

	opts, err = clickhouseOptions(ClickHouseConfig{URL: "localhost:9000"})
	require.NoError(t, err)
	require.Equal(t, clickhouse.Native, opts.Protocol)
	require.Nil(t, opts.TLS)

	_, err = clickhouseOptions(ClickHouseConfig{URL: "ftp://x"})
	require.Error(t, err)
}

func TestRecordToRow(t *testing.T) {
	from, to := uint64(10), uint64(20)
	rec := queryLogRecord{
		QueryID:         "q1",
		FromBlock:       &from,
		ToBlock:         &to,
		QueryHash:       "\x01\x02",
		Result:          "ok",
		ClientSignature: "sig",
		ClientTimestamp: 1_700_000_000_123,
	}
	row, err := rec.toRow()
	require.NoError(t, err)
	require.Equal(t, types.ResultOk, row.Result)
	require.Equal(t, []byte{1, 2}, row.QueryHash)
	require.Equal(t, []byte("sig"), row.ClientSignature)
	require.Equal(t, uint64(10), *row.FromBlock)

	rec.Result = "exploded"
	_, err = rec.toRow()
	require.ErrorIs(t, err, fperrors.ErrDecode)
}

func TestQueriesFilterSuccessfulSiblings(t *testing.T) {
	require.True(t, strings.Contains(siblingsSQL, "result = 'ok'"))
	require.True(t, strings.Contains(siblingsSQL, "hex(query_hash) = ?"))
	require.True(t, strings.Contains(signaturesSQL, "portal_logs"))
	require.Equal(t, 5, strings.Count(siblingsSQL, "?"))
}

func TestMockStoreWindows(t *testing.T) {
	m := NewMockStore()
	from, to := uint64(1), uint64(2)
	row := types.QueryLogRow{QueryID: "q", QueryHash: []byte{0xab}, FromBlock: &from, ToBlock: &to, Result: types.ResultOk}
	m.AddRow(row, 100)
	bad := row
	bad.QueryID = "q-err"
	bad.Result = types.ResultServerError
	m.AddRow(bad, 100)

	ctx := context.Background()
	got, err := m.OriginalQuery(ctx, "q", 99, 101)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = m.OriginalQuery(ctx, "q", 100, 101)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = m.Siblings(ctx, 0, 200, "AB", 1, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)

	m.AddSignature(types.SignatureRecord{QueryID: "q", ResultHash: []byte{1}}, 150)
	sigs, err := m.Signatures(ctx, 0, 200, []string{"q", "other"})
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	m.Err = fperrors.ErrStoreQuery
	_, err = m.Signatures(ctx, 0, 200, []string{"q"})
	require.ErrorIs(t, err, fperrors.ErrTransport)
}
