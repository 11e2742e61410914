package direct

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"payment-relay/pkg/decision"
	"payment-relay/pkg/processor"
	"payment-relay/pkg/simulate"
	"payment-relay/pkg/store"
	"payment-relay/pkg/store/mocks"
)

func TestProcessDirect(t *testing.T) {
	s := store.NewMemory()
	d := New(processor.New(s, processor.WithDelay(0)), simulate.NewSeededGenerator(3, 11, 12), nil)

	results, err := d.ProcessDirect(context.Background(), 8)
	require.NoError(t, err)
	require.Len(t, results, 8)

	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 8)

	// Results come back in request order, the listing newest first.
	for i, r := range results {
		assert.Equal(t, decision.Decide(r.Amount), r.Status)
		stored := all[len(all)-1-i]
		assert.Equal(t, r.ID, stored.ID)
		assert.Equal(t, r.Status, stored.Status)
		assert.Equal(t, r.DeviceID, stored.DeviceID)
	}
}

func TestProcessDirect_Zero(t *testing.T) {
	d := New(processor.New(store.NewMemory(), processor.WithDelay(0)), simulate.NewGenerator(1), nil)
	results, err := d.ProcessDirect(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessDirect_SurfacesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	mem := store.NewMemory()

	gomock.InOrder(
		s.EXPECT().InsertPending(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(mem.InsertPending),
		s.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(mem.UpdateStatus),
		s.EXPECT().InsertPending(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&store.StoreError{Op: "insert", Err: errors.New("connection refused")}),
	)

	d := New(processor.New(s, processor.WithDelay(0)), simulate.NewSeededGenerator(2, 1, 1), nil)
	results, err := d.ProcessDirect(context.Background(), 5)

	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStore))
	require.Len(t, results, 1)
	assert.True(t, results[0].Status.Terminal())
}

func TestProcessDirect_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(processor.New(store.NewMemory(), processor.WithDelay(0)), simulate.NewGenerator(1), nil)
	results, err := d.ProcessDirect(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
