package task

import (
	"strings"
	"testing"
	"time"

	"github.com/colorfulnotion/fraudproof/types"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStoreCollector(t *testing.T) {
	s := NewStore()
	a, b, c := pending("a"), pending("b"), pending("c")
	for _, task := range []types.Task{a, b, c} {
		require.NoError(t, s.Insert(task))
	}
	require.NoError(t, s.Transition(a.ID, types.TaskPending, types.TaskRunning, "Started"))
	require.NoError(t, s.Transition(b.ID, types.TaskPending, types.TaskRunning, "Started"))
	require.NoError(t, s.Transition(b.ID, types.TaskRunning, types.TaskFailed, "boom"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewStoreCollector(s))

	expected := `
# HELP fraudproof_tasks tasks held by the service, by status
# TYPE fraudproof_tasks gauge
fraudproof_tasks{status="Completed"} 0
fraudproof_tasks{status="Failed"} 1
fraudproof_tasks{status="Pending"} 1
fraudproof_tasks{status="Running"} 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "fraudproof_tasks"))
}

func TestMetricsCollectorLabels(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())
	m.TaskSubmitted()
	m.TaskFinished(types.TaskFailed, time.Second, 3)
	m.RowSkipped("Verification", "A5")
	m.RowSkipped("Verification", "A5")

	require.Equal(t, 1.0, promtest.ToFloat64(m.submitted))
	require.Equal(t, 1.0, promtest.ToFloat64(m.finished.WithLabelValues("Failed")))
	require.Equal(t, 2.0, promtest.ToFloat64(m.rowsSkipped.WithLabelValues("Verification", "A5")))
}
