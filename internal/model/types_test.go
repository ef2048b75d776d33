package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestOrderStatus_IsActive(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderPending, true},
		{OrderConfirmed, true},
		{OrderPreparing, true},
		{OrderReady, true},
		{OrderServed, false},
		{OrderPaid, false},
		{OrderCancelled, false},
		{OrderStatus("archived"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrder_ItemCount(t *testing.T) {
	o := Order{Items: []OrderItem{
		{Name: "Margherita", Quantity: 2},
		{Name: "Tiramisu", Quantity: 1},
	}}

	if got := o.ItemCount(); got != 3 {
		t.Errorf("ItemCount() = %d, want 3", got)
	}
	if got := (Order{}).ItemCount(); got != 0 {
		t.Errorf("empty ItemCount() = %d, want 0", got)
	}
}

func TestCountTables(t *testing.T) {
	tables := []Table{
		{ID: "t1", Status: TableOccupied},
		{ID: "t2", Status: TableAvailable},
		{ID: "t3", Status: TableOccupied},
	}

	got := CountTables(tables)
	if got[TableOccupied] != 2 || got[TableAvailable] != 1 || got[TableReserved] != 0 {
		t.Errorf("CountTables() = %v", got)
	}
}

func TestOrder_DecodeWire(t *testing.T) {
	data := `{
		"id": "o-17",
		"venue_id": "v1",
		"table_id": "t4",
		"status": "preparing",
		"items": [{"menu_item_id": "m1", "name": "Ramen", "quantity": 2, "unit_price": 12.5}],
		"total": 25,
		"created_at": "2024-03-01T18:30:00Z",
		"updated_at": "2024-03-01T18:35:00Z"
	}`

	var o Order
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if o.ID != "o-17" || o.TableID != "t4" {
		t.Errorf("ids = %q/%q", o.ID, o.TableID)
	}
	if o.Status != OrderPreparing {
		t.Errorf("Status = %q, want preparing", o.Status)
	}
	if len(o.Items) != 1 || o.Items[0].UnitPrice != 12.5 {
		t.Errorf("Items = %+v", o.Items)
	}
	want := time.Date(2024, 3, 1, 18, 35, 0, 0, time.UTC)
	if !o.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", o.UpdatedAt, want)
	}
}
