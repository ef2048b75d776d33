package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohsale1/dino-sync/internal/credentials"
	"github.com/mohsale1/dino-sync/internal/events"
	"github.com/mohsale1/dino-sync/internal/model"
	"github.com/mohsale1/dino-sync/internal/protocol"
	"github.com/mohsale1/dino-sync/internal/realtime"
	"github.com/mohsale1/dino-sync/internal/report"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type tokenFunc func(context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// rotatingToken hands out tokens in order and repeats the last one.
type rotatingToken struct {
	mu     sync.Mutex
	tokens []string
	calls  int
}

func (r *rotatingToken) Token(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	if i >= len(r.tokens) {
		i = len(r.tokens) - 1
	}
	r.calls++
	return r.tokens[i], nil
}

// bearerServer serves one table to requests bearing want and 401 to
// everything else.
func bearerServer(t *testing.T, want string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"tables":[{"id":"t1","status":"available"}]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func fastRetries() ClientOption {
	return WithRetryPolicy(RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("https://venue.example/", nil)
	if c.baseURL != "https://venue.example" {
		t.Errorf("baseURL = %q, trailing slash should be trimmed", c.baseURL)
	}
	if c.retry != DefaultRetryPolicy {
		t.Errorf("retry = %+v, want %+v", c.retry, DefaultRetryPolicy)
	}
	if c.http.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", c.http.Timeout)
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	tests := []struct {
		name     string
		tokens   TokenSource
		wantAuth string
	}{
		{name: "with session", tokens: staticToken("tok"), wantAuth: "Bearer tok"},
		{name: "anonymous", tokens: nil, wantAuth: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != tt.wantAuth {
					t.Errorf("Authorization = %q, want %q", got, tt.wantAuth)
				}
				if got := r.Header.Get("Accept"); got != "application/json" {
					t.Errorf("Accept = %q", got)
				}
				if got := r.Header.Get("User-Agent"); got != "dinosync/test" {
					t.Errorf("User-Agent = %q", got)
				}
				w.Write([]byte(`{"venue_id":"v1","is_open":true}`))
			}))
			defer server.Close()

			c := NewClient(server.URL, tt.tokens, WithUserAgent("dinosync/test"))
			if _, err := c.GetVenueStatus(context.Background(), "v1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClient_UnauthorizedRefreshesToken(t *testing.T) {
	var hits atomic.Int32
	server := bearerServer(t, "fresh", &hits)
	tokens := &rotatingToken{tokens: []string{"stale", "fresh"}}

	c := NewClient(server.URL, tokens, fastRetries())
	tables, err := c.GetTables(context.Background(), "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tables) != 1 || tables[0].Status != model.TableAvailable {
		t.Errorf("tables = %+v", tables)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2 (one 401, one retry)", hits.Load())
	}
}

func TestClient_UnauthorizedSameTokenIsNotRepeated(t *testing.T) {
	var hits atomic.Int32
	server := bearerServer(t, "other", &hits)

	c := NewClient(server.URL, staticToken("tok"), fastRetries())
	_, err := c.GetTables(context.Background(), "v1")

	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("401 must not match ErrForbidden")
	}
	if !IsAuth(err) || report.KindOf(err) != "auth" {
		t.Errorf("IsAuth = %v, kind = %q", IsAuth(err), report.KindOf(err))
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestClient_RefreshStillUnauthorized(t *testing.T) {
	var hits atomic.Int32
	server := bearerServer(t, "never", &hits)
	tokens := &rotatingToken{tokens: []string{"a", "b", "c"}}

	c := NewClient(server.URL, tokens, fastRetries())
	_, err := c.GetTables(context.Background(), "v1")

	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2 (a single refresh)", hits.Load())
	}
}

func TestClient_ExpiredTokenOnRefresh(t *testing.T) {
	var hits atomic.Int32
	server := bearerServer(t, "fresh", &hits)

	var calls atomic.Int32
	tokens := tokenFunc(func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "stale", nil
		}
		return "", credentials.ErrTokenExpired
	})

	c := NewClient(server.URL, tokens, fastRetries())
	_, err := c.GetTables(context.Background(), "v1")

	if !errors.Is(err, credentials.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestClient_TokenError(t *testing.T) {
	var hits atomic.Int32
	server := bearerServer(t, "tok", &hits)
	noSession := errors.New("no session")

	c := NewClient(server.URL, tokenFunc(func(context.Context) (string, error) { return "", noSession }))
	_, err := c.GetActiveOrders(context.Background(), "v1")

	if !errors.Is(err, noSession) {
		t.Fatalf("err = %v, want wrapped token error", err)
	}
	if hits.Load() != 0 {
		t.Errorf("hits = %d, no request should be sent without a token", hits.Load())
	}
}

func TestClient_StatusRetries(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantHits int32
		wantErr  bool
		wantAuth bool
	}{
		{name: "bad gateway recovers", status: http.StatusBadGateway, wantHits: 2},
		{name: "unavailable recovers", status: http.StatusServiceUnavailable, wantHits: 2},
		{name: "rate limited recovers", status: http.StatusTooManyRequests, wantHits: 2},
		{name: "not found fails fast", status: http.StatusNotFound, wantHits: 1, wantErr: true},
		{name: "forbidden fails fast", status: http.StatusForbidden, wantHits: 1, wantErr: true, wantAuth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) == 1 {
					w.WriteHeader(tt.status)
					return
				}
				w.Write([]byte(`{"orders":[{"id":"o1","status":"pending"}]}`))
			}))
			defer server.Close()

			c := NewClient(server.URL, staticToken("tok"), fastRetries())
			orders, err := c.GetActiveOrders(context.Background(), "v1")

			if hits.Load() != tt.wantHits {
				t.Errorf("hits = %d, want %d", hits.Load(), tt.wantHits)
			}
			if !tt.wantErr {
				if err != nil || len(orders) != 1 {
					t.Fatalf("orders = %+v, err = %v", orders, err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantAuth != errors.Is(err, ErrForbidden) {
				t.Errorf("errors.Is(err, ErrForbidden) = %v, want %v", !tt.wantAuth, tt.wantAuth)
			}
		})
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryPolicy(RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}))
	_, err := c.GetTables(context.Background(), "v1")

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable || !se.Temporary() {
		t.Fatalf("err = %v, want temporary 503 StatusError", err)
	}
	if !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Errorf("err = %q", err.Error())
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestClient_NoRetriesConfigured(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, WithRetryPolicy(RetryPolicy{}))
	_, err := c.GetTables(context.Background(), "v1")

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v, want 502 StatusError", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestClient_CanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(server.URL, nil, WithRetryPolicy(RetryPolicy{MaxRetries: 5, Backoff: time.Second}))
	start := time.Now()
	_, err := c.GetTables(ctx, "v1")

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("took %v, backoff should stop on cancel", elapsed)
	}
}

func TestClient_AuthErrorSurfacesThroughSynchronizer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(server.URL, staticToken("tok"), fastRetries())
	rec := &report.Recorder{}
	orders := realtime.New[[]model.Order](events.NewBus[protocol.Envelope](),
		realtime.WithName("orders"),
		realtime.WithReporter(rec),
	)
	err := orders.Configure(context.Background(), realtime.Params[[]model.Order]{
		Fetch: func(ctx context.Context) ([]model.Order, error) {
			return c.GetActiveOrders(ctx, "v1")
		},
	})
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer func() {
		orders.Teardown()
		orders.Wait()
	}()

	deadline := time.Now().Add(time.Second)
	for orders.State().Err == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	st := orders.State()
	var fe *realtime.FetchError
	if !errors.As(st.Err, &fe) || fe.Name != "orders" {
		t.Fatalf("state err = %v, want FetchError", st.Err)
	}
	var ae *AuthError
	if !errors.As(st.Err, &ae) || ae.StatusCode != http.StatusForbidden {
		t.Fatalf("state err = %v, want 403 AuthError", st.Err)
	}
	if !errors.Is(st.Err, ErrForbidden) {
		t.Error("state err should match ErrForbidden")
	}
}
