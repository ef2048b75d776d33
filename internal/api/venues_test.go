package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohsale1/dino-sync/internal/model"
)

func TestGetActiveOrders(t *testing.T) {
	t.Run("successful response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/venues/v1/orders" {
				t.Errorf("path = %q, want /api/v1/venues/v1/orders", r.URL.Path)
			}
			if r.URL.Query().Get("status") != "active" {
				t.Errorf("status = %q, want active", r.URL.Query().Get("status"))
			}
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
			}
			json.NewEncoder(w).Encode(OrdersResponse{Orders: []model.Order{
				{ID: "o1", Status: model.OrderPending},
				{ID: "o2", Status: model.OrderReady},
			}})
		}))
		defer server.Close()

		c := NewClient(server.URL, staticToken("tok"))
		orders, err := c.GetActiveOrders(context.Background(), "v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(orders) != 2 || orders[1].Status != model.OrderReady {
			t.Errorf("orders = %+v", orders)
		}
	})

	t.Run("venue id is escaped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.EscapedPath() != "/api/v1/venues/a%2Fb/orders" {
				t.Errorf("escaped path = %q", r.URL.EscapedPath())
			}
			w.Write([]byte(`{"orders":[]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		if _, err := c.GetActiveOrders(context.Background(), "a/b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing venue", func(t *testing.T) {
		c := NewClient("http://unused", nil)
		if _, err := c.GetActiveOrders(context.Background(), ""); !errors.Is(err, ErrNoVenue) {
			t.Errorf("err = %v, want ErrNoVenue", err)
		}
	})
}

func TestGetTables(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Path != "/api/v1/venues/v1/tables" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"tables":[{"id":"t1","number":"4","seats":2,"status":"occupied"}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryPolicy(RetryPolicy{MaxRetries: 2, Backoff: 5 * time.Millisecond}))
	tables, err := c.GetTables(context.Background(), "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tables) != 1 || tables[0].Status != model.TableOccupied {
		t.Errorf("tables = %+v", tables)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestGetVenueStatus(t *testing.T) {
	t.Run("successful response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"venue_id":"v1","name":"Dino Diner","is_open":true,"accepting_orders":false,"active_orders":3}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		status, err := c.GetVenueStatus(context.Background(), "v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !status.IsOpen || status.AcceptingOrders || status.ActiveOrders != 3 {
			t.Errorf("status = %+v", status)
		}
	})

	t.Run("not found is not retried", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, WithRetryPolicy(RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}))
		_, err := c.GetVenueStatus(context.Background(), "v1")

		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
			t.Fatalf("err = %v, want 404 StatusError", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})
}

func TestHealth(t *testing.T) {
	var attempts int32
	healthy := atomic.Bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryPolicy(RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}))
	if err := c.Health(context.Background()); err == nil {
		t.Error("expected error while unhealthy")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (health does not retry)", attempts)
	}

	healthy.Store(true)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
