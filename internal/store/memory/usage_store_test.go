package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/governor/internal/models"
)

func TestUsageStore_Increment(t *testing.T) {
	st := NewUsageStore()
	ctx := context.Background()

	daily, err := st.GetDaily(ctx, "org-1", "2026-01-01")
	require.NoError(t, err)
	require.Zero(t, daily.AICallsCount)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, st.Increment(ctx, "org-1", "2026-01-01", models.CounterAICalls, 1))
		}()
	}
	wg.Wait()

	daily, err = st.GetDaily(ctx, "org-1", "2026-01-01")
	require.NoError(t, err)
	require.Equal(t, int64(100), daily.AICallsCount)

	require.Error(t, st.Increment(ctx, "org-1", "2026-01-01", models.CounterType("bogus"), 1))
}

func TestUsageStore_GetTotals(t *testing.T) {
	st := NewUsageStore()
	ctx := context.Background()

	require.NoError(t, st.Increment(ctx, "org-1", "2026-01-01", models.CounterProjects, 1))
	require.NoError(t, st.Increment(ctx, "org-1", "2026-01-02", models.CounterProjects, 2))
	require.NoError(t, st.Increment(ctx, "org-1", "2026-01-02", models.CounterStorageMB, 7))
	require.NoError(t, st.Increment(ctx, "org-2", "2026-01-02", models.CounterProjects, 5))

	totals, err := st.GetTotals(ctx, "org-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), totals.ProjectsCount)
	require.Equal(t, int64(7), totals.StorageUsedMB)
	require.Zero(t, totals.UsersCount)
}
