package model

import "time"

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// IsActive reports whether the order still needs attention from staff.
func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPreparing, OrderReady:
		return true
	default:
		return false
	}
}

// OrderItem is one line of an order.
type OrderItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Notes      string  `json:"notes,omitempty"`
}

// Order is a customer order at a venue.
type Order struct {
	ID        string      `json:"id"`
	VenueID   string      `json:"venue_id"`
	TableID   string      `json:"table_id,omitempty"`
	Status    OrderStatus `json:"status"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ItemCount returns the number of units across all lines.
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// -----------------------------------------------------------------------------
// Tables
// -----------------------------------------------------------------------------

// TableStatus is the occupancy status of a table.
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
	TableCleaning  TableStatus = "cleaning"
)

// Table is a physical table at a venue.
type Table struct {
	ID             string      `json:"id"`
	VenueID        string      `json:"venue_id"`
	Number         string      `json:"number"`
	Seats          int         `json:"seats"`
	Status         TableStatus `json:"status"`
	CurrentOrderID string      `json:"current_order_id,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CountTables groups tables by status.
func CountTables(tables []Table) map[TableStatus]int {
	out := make(map[TableStatus]int)
	for _, t := range tables {
		out[t.Status]++
	}
	return out
}

// -----------------------------------------------------------------------------
// Venue, notifications, users
// -----------------------------------------------------------------------------

// VenueStatus is the operational state of a venue.
type VenueStatus struct {
	VenueID         string    `json:"venue_id"`
	Name            string    `json:"name"`
	IsOpen          bool      `json:"is_open"`
	AcceptingOrders bool      `json:"accepting_orders"`
	ActiveOrders    int       `json:"active_orders"`
	OccupiedTables  int       `json:"occupied_tables"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Notification is a message addressed to staff.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// UserUpdate announces a change to a staff member's account.
type UserUpdate struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role,omitempty"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}
