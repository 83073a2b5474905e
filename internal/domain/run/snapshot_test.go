package run

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

func TestDecodeLoadoutSnapshot_RoundTrip(t *testing.T) {
	src := NewLoadoutSnapshot([]LoadLine{
		{ProductID: id.New(), Qty: 12},
		{ProductID: id.New(), Qty: 3},
	})
	data, err := json.Marshal(src)
	require.NoError(t, err)

	got, err := DecodeLoadoutSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestDecodeLoadoutSnapshot_Empty(t *testing.T) {
	got, err := DecodeLoadoutSnapshot(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeLoadoutSnapshot_RejectsUnknownFields(t *testing.T) {
	_, err := DecodeLoadoutSnapshot([]byte(`{"version":1,"lines":[],"surprise":true}`))
	require.Error(t, err)
}

func TestDecodeLoadoutSnapshot_RejectsUnknownVersion(t *testing.T) {
	_, err := DecodeLoadoutSnapshot([]byte(`{"version":9,"lines":[]}`))
	require.Error(t, err)
}

func TestDecodeCheckinSnapshot_RoundTrip(t *testing.T) {
	customerID := id.New()
	src := &CheckinSnapshot{
		Version: SnapshotVersion,
		QuickSales: []QuickSale{
			{ProductID: id.New(), Qty: 2, UnitKind: "PACK", UnitPrice: types.MustMoney("250.00"), CustomerID: &customerID},
		},
		Returns:      []ReturnLine{{ProductID: id.New(), Qty: 5}},
		CashDeclared: types.MustMoney("500.00"),
		Note:         "short on route 3",
	}
	data, err := json.Marshal(src)
	require.NoError(t, err)

	got, err := DecodeCheckinSnapshot(data)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, src.Returns, got.Returns)
	assert.True(t, got.CashDeclared.Equal(src.CashDeclared))
	assert.Len(t, got.QuickSales, 1)
}

func TestDecodeCheckinSnapshot_RejectsUnknownShape(t *testing.T) {
	_, err := DecodeCheckinSnapshot([]byte(`{"version":1,"sold":{"x":1}}`))
	require.Error(t, err)
}

func TestCheckinSnapshot_ReturnQty(t *testing.T) {
	productID := id.New()
	s := &CheckinSnapshot{
		Version: SnapshotVersion,
		Returns: []ReturnLine{
			{ProductID: productID, Qty: 3},
			{ProductID: id.New(), Qty: 7},
			{ProductID: productID, Qty: 2},
		},
	}
	assert.Equal(t, types.Quantity(5), s.ReturnQty(productID))
	assert.Equal(t, types.Quantity(0), (*CheckinSnapshot)(nil).ReturnQty(productID))
}
