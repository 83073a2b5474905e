package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

func testLoadout(qty types.Quantity) *LoadoutSnapshot {
	return NewLoadoutSnapshot([]LoadLine{{ProductID: id.New(), Qty: qty}})
}

func TestDeliveryRun_Lifecycle(t *testing.T) {
	now := time.Now().UTC()
	r := NewDeliveryRun(id.New(), "Ramon")
	require.Equal(t, StatusPlanned, r.Status)

	require.NoError(t, r.Dispatch(testLoadout(10), now))
	assert.Equal(t, StatusDispatched, r.Status)
	require.NotNil(t, r.DispatchedAt)

	require.NoError(t, r.RecordCheckin(NewCheckinSnapshot()))
	require.NoError(t, r.MarkCheckedIn(now))
	assert.Equal(t, StatusCheckedIn, r.Status)

	require.NoError(t, r.MarkClosed(now))
	assert.Equal(t, StatusClosed, r.Status)
}

func TestDeliveryRun_NoBackwardTransitions(t *testing.T) {
	now := time.Now().UTC()
	r := NewDeliveryRun(id.New(), "Ramon")
	require.NoError(t, r.Dispatch(testLoadout(5), now))

	err := r.Dispatch(testLoadout(5), now)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeRunState))

	err = r.MarkClosed(now)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeRunState))
}

func TestDeliveryRun_CheckinRequiresSnapshot(t *testing.T) {
	now := time.Now().UTC()
	r := NewDeliveryRun(id.New(), "Ramon")
	require.NoError(t, r.Dispatch(testLoadout(5), now))

	err := r.MarkCheckedIn(now)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestDeliveryRun_CheckinDataOnlyWhileDispatched(t *testing.T) {
	r := NewDeliveryRun(id.New(), "Ramon")

	err := r.RecordCheckin(NewCheckinSnapshot())
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeRunState))
}

func TestDeliveryRun_Cancel(t *testing.T) {
	now := time.Now().UTC()

	planned := NewDeliveryRun(id.New(), "Ramon")
	require.NoError(t, planned.Cancel())

	dispatched := NewDeliveryRun(id.New(), "Ramon")
	require.NoError(t, dispatched.Dispatch(testLoadout(3), now))
	require.NoError(t, dispatched.Cancel())

	checkedIn := NewDeliveryRun(id.New(), "Ramon")
	require.NoError(t, checkedIn.Dispatch(testLoadout(3), now))
	require.NoError(t, checkedIn.RecordCheckin(NewCheckinSnapshot()))
	require.NoError(t, checkedIn.MarkCheckedIn(now))
	err := checkedIn.Cancel()
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeRunState))
}

func TestDeliveryRun_DispatchRejectsBadManifest(t *testing.T) {
	now := time.Now().UTC()

	r := NewDeliveryRun(id.New(), "Ramon")
	require.Error(t, r.Dispatch(nil, now))
	require.Error(t, r.Dispatch(NewLoadoutSnapshot(nil), now))
	require.Error(t, r.Dispatch(testLoadout(0), now))
	assert.Equal(t, StatusPlanned, r.Status)
}

func TestDeliveryRun_CanTransition(t *testing.T) {
	r := NewDeliveryRun(id.New(), "Ramon")
	assert.True(t, r.CanTransition(StatusDispatched))
	assert.True(t, r.CanTransition(StatusCancelled))
	assert.False(t, r.CanTransition(StatusCheckedIn))
	assert.False(t, r.CanTransition(StatusClosed))

	r.Status = StatusClosed
	assert.False(t, r.CanTransition(StatusCancelled))
	assert.False(t, r.CanTransition(StatusPlanned))
}
