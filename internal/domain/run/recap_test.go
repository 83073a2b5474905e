package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/order"
	"tindahan/internal/domain/stock"
)

func rowFor(t *testing.T, rows []RecapRow, productID id.ID) RecapRow {
	t.Helper()
	for _, r := range rows {
		if r.ProductID == productID {
			return r
		}
	}
	t.Fatalf("no row for product %s", productID)
	return RecapRow{}
}

func TestBuildRecap_LoadedSoldDiff(t *testing.T) {
	runID := id.New()
	soda := id.New()
	chips := id.New()

	rows := BuildRecap(RecapInput{
		Loadout: NewLoadoutSnapshot([]LoadLine{
			{ProductID: soda, Qty: 50},
			{ProductID: chips, Qty: 20},
		}),
		RoadReceipts: []*RunReceipt{{
			RunID: runID,
			Kind:  ReceiptRoad,
			Lines: []ReceiptLine{
				{ProductID: soda, Qty: 47},
				{ProductID: chips, Qty: 20},
			},
		}},
		ProductNames: map[id.ID]string{soda: "Soda", chips: "Chips"},
	})

	require.Len(t, rows, 2)
	sodaRow := rowFor(t, rows, soda)
	assert.Equal(t, types.Quantity(50), sodaRow.Loaded)
	assert.Equal(t, types.Quantity(47), sodaRow.Sold)
	assert.Equal(t, types.Quantity(3), sodaRow.Diff)

	chipsRow := rowFor(t, rows, chips)
	assert.Equal(t, types.Quantity(0), chipsRow.Diff)
}

func TestBuildRecap_ReceiptsTakePrecedenceOverSnapshot(t *testing.T) {
	soda := id.New()
	in := RecapInput{
		Loadout: NewLoadoutSnapshot([]LoadLine{{ProductID: soda, Qty: 10}}),
		Checkin: &CheckinSnapshot{
			Version:    SnapshotVersion,
			QuickSales: []QuickSale{{ProductID: soda, Qty: 9}},
		},
	}

	// Before posting, the rider preview counts.
	rows := BuildRecap(in)
	assert.Equal(t, types.Quantity(9), rowFor(t, rows, soda).Sold)

	// Once ROAD receipts exist they are authoritative.
	in.RoadReceipts = []*RunReceipt{{
		Kind:  ReceiptRoad,
		Lines: []ReceiptLine{{ProductID: soda, Qty: 7}},
	}}
	rows = BuildRecap(in)
	assert.Equal(t, types.Quantity(7), rowFor(t, rows, soda).Sold)
}

func TestBuildRecap_ParentReceiptsDoNotSuppressPreview(t *testing.T) {
	soda := id.New()
	parentOrderID := id.New()
	rows := BuildRecap(RecapInput{
		Loadout: NewLoadoutSnapshot([]LoadLine{{ProductID: soda, Qty: 10}}),
		Checkin: &CheckinSnapshot{
			Version:    SnapshotVersion,
			QuickSales: []QuickSale{{ProductID: soda, Qty: 4}},
		},
		RoadReceipts: []*RunReceipt{{
			Kind:          ReceiptParent,
			ParentOrderID: &parentOrderID,
		}},
	})
	assert.Equal(t, types.Quantity(4), rowFor(t, rows, soda).Sold)
}

func TestBuildRecap_MovementsTakePrecedenceOverPreview(t *testing.T) {
	runID := id.New()
	soda := id.New()
	in := RecapInput{
		Loadout:        NewLoadoutSnapshot([]LoadLine{{ProductID: soda, Qty: 10}}),
		PreviewReturns: map[id.ID]types.Quantity{soda: 8},
	}

	rows := BuildRecap(in)
	assert.Equal(t, types.Quantity(8), rowFor(t, rows, soda).Returned)

	in.ReturnMovements = []stock.Movement{
		stock.NewMovement(runID, soda, stock.MovementReturnIn, 6),
	}
	rows = BuildRecap(in)
	assert.Equal(t, types.Quantity(6), rowFor(t, rows, soda).Returned)
}

func TestBuildRecap_SkipsRoadsideDerivedOrders(t *testing.T) {
	runID := id.New()
	receiptID := id.New()
	soda := id.New()

	posOrder := &order.Order{Code: "ORD-2026-00042"}
	posOrder.Items = []order.Item{{ProductID: soda, Qty: 5}}

	roadside := &order.Order{Code: order.RoadsideCode(runID, receiptID)}
	roadside.Items = []order.Item{{ProductID: soda, Qty: 3}}

	rows := BuildRecap(RecapInput{
		Loadout:      NewLoadoutSnapshot([]LoadLine{{ProductID: soda, Qty: 10}}),
		ParentOrders: []*order.Order{posOrder, roadside},
	})

	// The roadside order's quantities arrive through its receipt, not
	// through the order list.
	assert.Equal(t, types.Quantity(5), rowFor(t, rows, soda).Sold)
}

func TestBuildRecap_DiffNeverNegative(t *testing.T) {
	soda := id.New()
	rows := BuildRecap(RecapInput{
		Loadout: NewLoadoutSnapshot([]LoadLine{{ProductID: soda, Qty: 5}}),
		RoadReceipts: []*RunReceipt{{
			Kind:  ReceiptRoad,
			Lines: []ReceiptLine{{ProductID: soda, Qty: 7}},
		}},
	})
	assert.Equal(t, types.Quantity(0), rowFor(t, rows, soda).Diff)
	assert.Equal(t, []id.ID{soda}, OversoldProducts(rows))
}

func TestBuildRecap_SortedByName(t *testing.T) {
	a, b := id.New(), id.New()
	rows := BuildRecap(RecapInput{
		Loadout: NewLoadoutSnapshot([]LoadLine{
			{ProductID: a, Qty: 1},
			{ProductID: b, Qty: 1},
		}),
		ProductNames: map[id.ID]string{a: "Zesto", b: "Biscuit"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "Biscuit", rows[0].Name)
	assert.Equal(t, "Zesto", rows[1].Name)
}
