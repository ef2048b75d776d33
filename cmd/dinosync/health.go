package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mohsale1/dino-sync/internal/api"
	"github.com/mohsale1/dino-sync/internal/connection"
	"github.com/mohsale1/dino-sync/internal/journal"
	"github.com/mohsale1/dino-sync/internal/model"
	"github.com/mohsale1/dino-sync/internal/realtime"
)

// statusSource is the part of connection.Manager the health handler reads.
type statusSource interface {
	Status() connection.Status
	Stats() connection.Stats
}

type viewHealth struct {
	Status      string `json:"status"`
	LastUpdated string `json:"last_updated"`
	Error       string `json:"error,omitempty"`
}

func describeView[T any](st realtime.State[T]) viewHealth {
	h := viewHealth{Status: "ok", LastUpdated: lastUpdated(st.LastUpdated)}
	switch {
	case api.IsAuth(st.Err):
		h.Status = "unauthorized"
		h.Error = st.Err.Error()
	case st.Err != nil:
		h.Status = "error"
		h.Error = st.Err.Error()
	case st.Loading && !st.HasData:
		h.Status = "loading"
	case !st.HasData:
		h.Status = "empty"
	}
	return h
}

// createHealthHandler creates the HTTP handler for health checks. POST
// /reconnect forces a fresh connection for the running session.
func createHealthHandler(conn statusSource, v views, journalWriter func() *journal.Writer, reconnect func()) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		st := conn.Status()
		stats := conn.Stats()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		health.Components["connection"] = map[string]interface{}{
			"status":   st.Label(),
			"state":    st.State.String(),
			"online":   st.Online,
			"attempts": st.Attempts,
			"pending":  st.Pending,
			"received": humanize.Comma(stats.Received),
			"sent":     humanize.Comma(stats.Sent),
		}
		switch {
		case st.RetriesExhausted:
			health.Status = "unhealthy"
		case !st.FullyConnected():
			health.Status = "degraded"
		}

		orders := describeView(v.orders.State())
		tables := v.tables.State()
		health.Components["orders"] = orders
		health.Components["tables"] = map[string]interface{}{
			"sync":   describeView(tables),
			"counts": model.CountTables(tables.Data),
		}
		health.Components["venue"] = describeView(v.venue.State())
		if (orders.Status == "error" || orders.Status == "unauthorized") && health.Status == "healthy" {
			health.Status = "degraded"
		}

		if jw := journalWriter(); jw != nil {
			js := jw.Stats()
			health.Components["journal"] = map[string]interface{}{
				"inserts": humanize.Comma(js.Inserts),
				"errors":  js.Errors,
				"dropped": js.Dropped,
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/orders", func(w http.ResponseWriter, r *http.Request) {
		st := v.orders.State()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":        len(st.Data),
			"last_updated": st.LastUpdated.Format(time.RFC3339),
			"orders":       st.Data,
		})
	})

	mux.HandleFunc("/reconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		reconnect()
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}
