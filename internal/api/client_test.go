package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingSink captures health signals for assertions.
type recordingSink struct {
	mu        sync.Mutex
	failures  []FailureKind
	retries   []time.Duration
	successes []bool // probe flags
}

func (s *recordingSink) ReportFailure(kind FailureKind, retryAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, kind)
	s.retries = append(s.retries, retryAfter)
}

func (s *recordingSink) ReportSuccess(probe bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = append(s.successes, probe)
}

// newTestGateway creates a Gateway pointed at the given test server.
func newTestGateway(t *testing.T, serverURL string, tokens TokenSource) *Gateway {
	t.Helper()
	cfg := Config{
		BaseURL: serverURL,
	}
	g, err := NewGateway(cfg, "1.2.3", tokens, slog.Default())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return g
}

func TestGateway_AuthHeaderInjected(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, StaticTokenSource("tok123"))

	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok123")
	}
}

func TestGateway_NoTokenNoHeader(t *testing.T) {
	var gotAuth string
	var hadHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, hadHeader = r.Header["Authorization"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)

	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if hadHeader {
		t.Errorf("Authorization header present (%q), want absent", gotAuth)
	}
}

func TestGateway_UserAgentSet(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)

	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if gotUA != "tfconsole/1.2.3" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "tfconsole/1.2.3")
	}
}

func TestGateway_ProbeSuccessSignalsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)
	sink := &recordingSink{}
	g.SetHealthSink(sink)

	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if len(sink.successes) != 1 || !sink.successes[0] {
		t.Errorf("successes = %v, want exactly one probe success", sink.successes)
	}
}

func TestGateway_OrdinarySuccessIsNotProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"topics":[]}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)
	sink := &recordingSink{}
	g.SetHealthSink(sink)

	if _, err := g.ListTopics(context.Background()); err != nil {
		t.Fatalf("ListTopics: %v", err)
	}

	if len(sink.successes) != 1 || sink.successes[0] {
		t.Errorf("successes = %v, want exactly one non-probe success", sink.successes)
	}
}

func TestGateway_RateLimitSignalledBeforeReturn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "00:00:05")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)
	sink := &recordingSink{}
	g.SetHealthSink(sink)

	err := g.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrRateLimit) {
		t.Errorf("errors.Is(err, ErrRateLimit) = false; err = %v", err)
	}

	if len(sink.failures) != 1 || sink.failures[0] != FailureRateLimited {
		t.Fatalf("failures = %v, want one rate_limited signal", sink.failures)
	}
	if sink.retries[0] != 5*time.Second {
		t.Errorf("retryAfter = %v, want 5s", sink.retries[0])
	}
}

func TestGateway_RateLimitDefaultHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)
	sink := &recordingSink{}
	g.SetHealthSink(sink)

	if err := g.Ping(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if sink.retries[0] != DefaultRetryAfter {
		t.Errorf("retryAfter = %v, want default %v", sink.retries[0], DefaultRetryAfter)
	}
}

func TestGateway_RateLimitBodyHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"throttled","retry_after":"00:01:00"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)
	sink := &recordingSink{}
	g.SetHealthSink(sink)

	if err := g.Ping(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if sink.retries[0] != time.Minute {
		t.Errorf("retryAfter = %v, want 1m", sink.retries[0])
	}
}

func TestGateway_ConnectionErrorSignalled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	g := newTestGateway(t, srv.URL, nil)
	sink := &recordingSink{}
	g.SetHealthSink(sink)

	err := g.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectionError, got %T: %v", err, err)
	}

	if len(sink.failures) != 1 || sink.failures[0] != FailureConnection {
		t.Errorf("failures = %v, want one connection_error signal", sink.failures)
	}
}

func TestGateway_OtherErrorsStayLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)
	sink := &recordingSink{}
	g.SetHealthSink(sink)

	err := g.GetJSON(context.Background(), "/v1/pipeline/topics", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = false; err = %v", err)
	}

	if len(sink.failures) != 0 {
		t.Errorf("failures = %v, want none for a 404", sink.failures)
	}
}

func TestGateway_NilSinkStillReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL, nil)

	if err := g.Ping(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestGateway_ValidatesConfig(t *testing.T) {
	cfg := Config{
		BaseURL: "", // missing required field
	}
	_, err := NewGateway(cfg, "1.0.0", nil, slog.Default())
	if err == nil {
		t.Fatal("expected error for empty BaseURL, got nil")
	}
	if !strings.Contains(err.Error(), "BaseURL") {
		t.Errorf("error = %q, want mention of BaseURL", err.Error())
	}
}

func TestGateway_StreamURL(t *testing.T) {
	cfg := Config{BaseURL: "https://admin.example.com"}
	g, err := NewGateway(cfg, "1.0.0", nil, slog.Default())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	u, err := g.StreamURL()
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if u != "wss://admin.example.com/v1/pipeline/stream" {
		t.Errorf("StreamURL = %q", u)
	}
}

func TestGateway_StreamHeaderCarriesToken(t *testing.T) {
	cfg := Config{BaseURL: "http://admin.example.com"}
	g, err := NewGateway(cfg, "1.0.0", StaticTokenSource("tok"), slog.Default())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	h := g.StreamHeader()
	if got := h.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}

	u, err := g.StreamURL()
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	if !strings.HasPrefix(u, "ws://") {
		t.Errorf("StreamURL = %q, want ws:// scheme for http base", u)
	}
}
