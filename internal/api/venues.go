package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mohsale1/dino-sync/internal/model"
)

// OrdersResponse is the response from GET /api/v1/venues/{venue}/orders.
type OrdersResponse struct {
	Orders []model.Order `json:"orders"`
}

// TablesResponse is the response from GET /api/v1/venues/{venue}/tables.
type TablesResponse struct {
	Tables []model.Table `json:"tables"`
}

func venuePath(venueID, resource string) (string, error) {
	if venueID == "" {
		return "", ErrNoVenue
	}
	return "/api/v1/venues/" + url.PathEscape(venueID) + resource, nil
}

// GetActiveOrders returns the venue's orders that still need attention.
func (c *Client) GetActiveOrders(ctx context.Context, venueID string) ([]model.Order, error) {
	path, err := venuePath(venueID, "/orders")
	if err != nil {
		return nil, err
	}

	var resp OrdersResponse
	query := url.Values{"status": []string{"active"}}
	if err := c.getJSON(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get active orders: %w", err)
	}
	return resp.Orders, nil
}

// GetTables returns every table of the venue.
func (c *Client) GetTables(ctx context.Context, venueID string) ([]model.Table, error) {
	path, err := venuePath(venueID, "/tables")
	if err != nil {
		return nil, err
	}

	var resp TablesResponse
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get tables: %w", err)
	}
	return resp.Tables, nil
}

// GetVenueStatus returns the venue's operational status.
func (c *Client) GetVenueStatus(ctx context.Context, venueID string) (model.VenueStatus, error) {
	path, err := venuePath(venueID, "/status")
	if err != nil {
		return model.VenueStatus{}, err
	}

	var resp model.VenueStatus
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return model.VenueStatus{}, fmt.Errorf("get venue status: %w", err)
	}
	return resp, nil
}

// Health checks API reachability. It does not retry on failure status.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}
