package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"payment-relay/pkg/store"
	"payment-relay/pkg/store/mocks"
	"payment-relay/pkg/types"
)

func statuses(t *testing.T, s store.Store) map[string]types.Status {
	t.Helper()
	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	out := map[string]types.Status{}
	for _, tx := range all {
		out[tx.ID] = tx.Status
	}
	return out
}

func TestSweep(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	s := store.NewMemory(store.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	require.NoError(t, s.InsertPending(ctx, "stuck-low", 20, "dev"))
	require.NoError(t, s.InsertPending(ctx, "stuck-high", 200, "dev"))
	require.NoError(t, s.InsertPending(ctx, "done", 20, "dev"))
	require.NoError(t, s.UpdateStatus(ctx, "done", types.StatusRejected))

	clock = base.Add(2 * time.Minute)
	require.NoError(t, s.InsertPending(ctx, "fresh", 20, "dev"))

	r := New(s, time.Minute, WithClock(func() time.Time { return base.Add(2*time.Minute + time.Second) }))
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, map[string]types.Status{
		"stuck-low":  types.StatusApproved,
		"stuck-high": types.StatusRejected,
		"done":       types.StatusRejected,
		"fresh":      types.StatusPending,
	}, statuses(t, s))
}

func TestSweep_ListFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	s.EXPECT().ListPending(gomock.Any(), gomock.Any()).
		Return(nil, &store.StoreError{Op: "list pending", Err: errors.New("down")})

	n, err := New(s, time.Minute).Sweep(context.Background())
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, store.ErrStore))
}

func TestRun(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, s.InsertPending(ctx, "stuck", 5, "dev"))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- New(s, 0).Run(runCtx, "@every 1s") }()

	assert.Eventually(t, func() bool {
		return statuses(t, s)["stuck"] == types.StatusApproved
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestRun_InvalidSchedule(t *testing.T) {
	err := New(store.NewMemory(), time.Minute).Run(context.Background(), "every now and then")
	assert.Error(t, err)
}
