package run

import (
	"bytes"
	"encoding/json"
	"fmt"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// SnapshotVersion is the current wire version of run snapshots. Stored
// snapshots carry their version; decoding rejects versions we do not
// know instead of guessing at field meanings.
const SnapshotVersion = 1

// LoadoutSnapshot is the manifest frozen at dispatch.
type LoadoutSnapshot struct {
	Version int        `json:"version"`
	Lines   []LoadLine `json:"lines"`
}

// LoadLine is one product quantity on the manifest.
type LoadLine struct {
	ProductID id.ID          `json:"productId"`
	Qty       types.Quantity `json:"qty"`
}

// NewLoadoutSnapshot builds a current-version manifest.
func NewLoadoutSnapshot(lines []LoadLine) *LoadoutSnapshot {
	return &LoadoutSnapshot{Version: SnapshotVersion, Lines: lines}
}

// CheckinSnapshot is the rider's self-reported tally at arrival. It is a
// preview only: posted receipts and verified RETURN_IN movements are
// authoritative over everything in here.
type CheckinSnapshot struct {
	Version int `json:"version"`

	// QuickSales are roadside sales the rider reported on the spot.
	QuickSales []QuickSale `json:"quickSales"`

	// Returns are the rider's claim of what is coming back. The manager
	// verifies these physically before anything is credited to stock.
	Returns []ReturnLine `json:"returns"`

	// CashDeclared is the total cash the rider says they hold.
	CashDeclared types.Money `json:"cashDeclared"`

	Note string `json:"note,omitempty"`
}

// QuickSale is one rider-reported roadside sale line.
type QuickSale struct {
	ProductID  id.ID          `json:"productId"`
	Qty        types.Quantity `json:"qty"`
	UnitKind   string         `json:"unitKind,omitempty"`
	UnitPrice  types.Money    `json:"unitPrice"`
	CustomerID *id.ID         `json:"customerId,omitempty"`
}

// ReturnLine is one rider-claimed return quantity.
type ReturnLine struct {
	ProductID id.ID          `json:"productId"`
	Qty       types.Quantity `json:"qty"`
}

// NewCheckinSnapshot builds a current-version check-in snapshot.
func NewCheckinSnapshot() *CheckinSnapshot {
	return &CheckinSnapshot{Version: SnapshotVersion}
}

// ReturnQty returns the claimed return quantity for a product.
func (s *CheckinSnapshot) ReturnQty(productID id.ID) types.Quantity {
	if s == nil {
		return 0
	}
	var total types.Quantity
	for _, r := range s.Returns {
		if r.ProductID == productID {
			total += r.Qty
		}
	}
	return total
}

func decodeStrict(data []byte, version *int, dst any, what string) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.NewValidation(fmt.Sprintf("malformed %s snapshot", what)).WithCause(err)
	}
	if *version != SnapshotVersion {
		return apperror.NewValidation(fmt.Sprintf("unsupported %s snapshot version", what)).
			WithDetail("version", *version)
	}
	return nil
}

// DecodeLoadoutSnapshot parses a stored manifest, rejecting unknown
// fields and unsupported versions.
func DecodeLoadoutSnapshot(data []byte) (*LoadoutSnapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s LoadoutSnapshot
	if err := decodeStrict(data, &s.Version, &s, "loadout"); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeCheckinSnapshot parses a stored check-in snapshot.
func DecodeCheckinSnapshot(data []byte) (*CheckinSnapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s CheckinSnapshot
	if err := decodeStrict(data, &s.Version, &s, "check-in"); err != nil {
		return nil, err
	}
	return &s, nil
}
