package discovery

import (
	"context"
	"testing"

	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/storage"
	"github.com/colorfulnotion/fraudproof/testutil"
	"github.com/colorfulnotion/fraudproof/types"
	"github.com/stretchr/testify/require"
)

const ts = 1_700_000_000

var (
	h1 = []byte{0x11, 0x11}
	h2 = []byte{0x22, 0x22}
)

func loadScenario(t *testing.T, n int) (*testutil.Scenario, *storage.MockStore) {
	s := testutil.NewScenario(t, n, h1, h2)
	m := storage.NewMockStore()
	for i, r := range s.Rows {
		m.AddRow(r, ts+uint64(i))
	}
	return s, m
}

func TestFindSiblingsDedup(t *testing.T) {
	s, m := loadScenario(t, 6)
	// Duplicates of the same execution logged twice, and an unrelated query.
	m.AddRow(s.Rows[3], ts+100)
	m.AddRow(s.Rows[5], ts+200)
	other := s.Rows[1]
	other.QueryID = "zz-other"
	other.QueryHash = []byte{0xde, 0xad}
	m.AddRow(other, ts)

	rows, err := NewFinder(m, 300, 3600).FindSiblings(context.Background(), s.Disputed().QueryID, ts)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	seen := map[string]bool{}
	for i, r := range rows {
		require.False(t, seen[r.QueryID], "duplicate %s", r.QueryID)
		seen[r.QueryID] = true
		if i > 0 {
			require.Less(t, rows[i-1].QueryID, r.QueryID)
		}
	}
}

func TestFindSiblingsOutsideWindow(t *testing.T) {
	s, m := loadScenario(t, 3)
	late := s.Rows[2]
	late.QueryID = "q-late"
	m.AddRow(late, ts+3600)

	rows, err := NewFinder(m, 300, 3600).FindSiblings(context.Background(), s.Disputed().QueryID, ts)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestFindSiblingsOriginalMissing(t *testing.T) {
	s, m := loadScenario(t, 3)
	f := NewFinder(m, 300, 3600)

	_, err := f.FindSiblings(context.Background(), "unknown", ts)
	require.ErrorIs(t, err, fperrors.ErrOriginalQueryNotFound)
	require.ErrorIs(t, err, fperrors.ErrDataNotFound)

	// Too far from the original's timestamp.
	_, err = f.FindSiblings(context.Background(), s.Disputed().QueryID, ts+1000)
	require.ErrorIs(t, err, fperrors.ErrOriginalQueryNotFound)

	// Ambiguous.
	m.AddRow(s.Disputed(), ts+5)
	_, err = f.FindSiblings(context.Background(), s.Disputed().QueryID, ts)
	require.ErrorIs(t, err, fperrors.ErrOriginalQueryNotFound)
}

func TestFindSiblingsStoreError(t *testing.T) {
	s, m := loadScenario(t, 2)
	m.Err = fperrors.ErrStoreQuery
	_, err := NewFinder(m, 300, 3600).FindSiblings(context.Background(), s.Disputed().QueryID, ts)
	require.ErrorIs(t, err, fperrors.ErrTransport)
}

func TestFilterEligibleOrdering(t *testing.T) {
	rows := []types.QueryLogRow{
		{QueryID: "a", ClientTimestamp: 10},
		{QueryID: "b", ClientTimestamp: 50},
		{QueryID: "c", ClientTimestamp: 5},
		{QueryID: "d", ClientTimestamp: 40},
		{QueryID: "e", ClientTimestamp: 99},
	}
	ids := map[string]string{"a": "1", "b": "1", "c": "2", "d": "2"}

	out := FilterEligible(rows, ids, "c")
	require.Len(t, out, 4)
	require.Equal(t, "c", out[0].QueryID)
	for i := 2; i < len(out); i++ {
		require.GreaterOrEqual(t, out[i-1].ClientTimestamp, out[i].ClientTimestamp)
	}
	require.Equal(t, []string{"c", "b", "d", "a"}, queryIDs(out))

	// Disputed row without an assignment is simply absent.
	out = FilterEligible(rows, ids, "e")
	require.Equal(t, []string{"b", "d", "a", "c"}, queryIDs(out))
}

func queryIDs(rows []types.QueryLogRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.QueryID
	}
	return out
}
