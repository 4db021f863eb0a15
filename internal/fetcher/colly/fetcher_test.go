package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

func TestFetchStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "ok", status: http.StatusOK, body: "<title>ok</title>"},
		{name: "ok empty body", status: http.StatusOK},
		{name: "not found", status: http.StatusNotFound, body: "<h1>missing</h1>"},
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "forbidden", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			f := New(Config{Timeout: 2 * time.Second})
			got := f.Fetch(context.Background(), srv.URL)
			require.True(t, got.Connected)
			require.NoError(t, got.Err)
			require.Equal(t, tt.status, got.StatusCode)
			require.Equal(t, tt.body, string(got.Body))
		})
	}
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "hi")
	}))
	defer srv.Close()

	f := New(Config{})
	for i := 0; i < 2; i++ {
		got := f.Fetch(context.Background(), srv.URL)
		require.True(t, got.Connected)
		require.Equal(t, http.StatusOK, got.StatusCode)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "page-analyzer-test"})
	got := f.Fetch(context.Background(), srv.URL)
	require.True(t, got.Connected)
	require.Equal(t, "page-analyzer-test", <-agents)
}

func TestFetchConnectFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{ConnectTimeout: time.Second, Timeout: 2 * time.Second})
	got := f.Fetch(context.Background(), addr)
	require.False(t, got.Connected)
	require.Equal(t, analyzer.StatusConnectFailure, got.StatusCode)
	require.Error(t, got.Err)
	require.Empty(t, got.Body)
}

func TestFetchTimeoutIsConnectFailure(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	f := New(Config{Timeout: 200 * time.Millisecond})
	got := f.Fetch(context.Background(), srv.URL)
	require.False(t, got.Connected)
	require.Equal(t, analyzer.StatusConnectFailure, got.StatusCode)
}

func TestFetchContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 5 * time.Second})
	got := f.Fetch(ctx, srv.URL)
	require.False(t, got.Connected)
	require.ErrorIs(t, got.Err, context.DeadlineExceeded)
}

func TestFinishKeepsResponseReceivedBeforeCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := &fetchState{}
	state.received(http.StatusOK, []byte("<title>late</title>"))
	got := finish(ctx, state, fmt.Errorf("colly fetch canceled: %w", ctx.Err()))
	require.True(t, got.Connected)
	require.Equal(t, http.StatusOK, got.StatusCode)
	require.Equal(t, "<title>late</title>", string(got.Body))
	require.NoError(t, got.Err)

	got = finish(ctx, &fetchState{}, nil)
	require.False(t, got.Connected)
	require.Equal(t, analyzer.StatusConnectFailure, got.StatusCode)
	require.ErrorIs(t, got.Err, context.Canceled)
}

func TestFetchRedirectLoopStops(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	f := New(Config{MaxRedirects: 3, Timeout: 2 * time.Second})
	got := f.Fetch(context.Background(), srv.URL+"/loop")
	require.True(t, got.Connected)
	require.Equal(t, http.StatusFound, got.StatusCode)
	require.Equal(t, int32(3), hits.Load())
}

func TestFetchFollowsRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "<h1>final</h1>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got := New(Config{}).Fetch(context.Background(), srv.URL)
	require.True(t, got.Connected)
	require.Equal(t, http.StatusOK, got.StatusCode)
	require.Equal(t, "<h1>final</h1>", string(got.Body))
}

func TestFetchTLSVerification(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "secure")
	}))
	defer srv.Close()

	strict := New(Config{Timeout: 2 * time.Second}).Fetch(context.Background(), srv.URL)
	require.False(t, strict.Connected)

	relaxed := New(Config{Timeout: 2 * time.Second, InsecureSkipVerify: true}).Fetch(context.Background(), srv.URL)
	require.True(t, relaxed.Connected)
	require.Equal(t, http.StatusOK, relaxed.StatusCode)
	require.Equal(t, "secure", string(relaxed.Body))
}

func TestConfigureCollectorHooksRecoversErrorStatus(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	state := &fetchState{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, state)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onError(&colly.Response{StatusCode: http.StatusServiceUnavailable, Body: []byte("down")}, errors.New("Service Unavailable"))

	got := state.outcome(errors.New("Service Unavailable"))
	require.True(t, got.Connected)
	require.Equal(t, http.StatusServiceUnavailable, got.StatusCode)
	require.Equal(t, "down", string(got.Body))
}

func TestConfigureCollectorHooksNetworkError(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	state := &fetchState{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, state)

	hooks.onError(&colly.Response{}, errors.New("dial tcp: no such host"))

	got := state.outcome(nil)
	require.False(t, got.Connected)
	require.EqualError(t, got.Err, "dial tcp: no such host")
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, defaultConnectTimeout, f.cfg.ConnectTimeout)
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
	require.Equal(t, defaultMaxRedirects, f.cfg.MaxRedirects)
	require.True(t, f.baseCollector.AllowURLRevisit)
	require.True(t, f.baseCollector.ParseHTTPErrorResponse)
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
