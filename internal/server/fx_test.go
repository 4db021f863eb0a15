package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-analyzer/internal/config"
	memorypublisher "github.com/JakeFAU/page-analyzer/internal/publisher/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeoutSeconds: 5, ReadHeaderTimeoutSeconds: 1},
		Fetch: config.FetchConfig{
			ConnectTimeoutSeconds: 1,
			TimeoutSeconds:        2,
			MaxRedirects:          3,
			UserAgent:             "page-analyzer-test",
		},
		DB:        config.DBConfig{Driver: config.DriverMemory, MigrateOnStart: true},
		PubSub:    config.PubSubConfig{TopicName: "url-checks"},
		Logging:   config.LoggingConfig{Level: "error"},
		Telemetry: config.TelemetryConfig{ServiceName: "page-analyzer-test", Version: "test"},
	}
}

func TestBuildServesPages(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Target</title></head><body><h1>Hello</h1></body></html>`))
	}))
	defer target.Close()

	ctx := context.Background()
	app, err := Build(ctx, testConfig())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(ctx)) }()

	_, ok := app.publisher.(*memorypublisher.Publisher)
	require.True(t, ok, "in-memory publisher expected without a Pub/Sub project")

	h := app.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	form := url.Values{"url[name]": {"https://Example.com/some/path"}}
	req := httptest.NewRequest(http.MethodPost, "/urls", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/urls/1", rec.Header().Get("Location"))

	created, err := app.store.FindURLByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "https://example.com", created.Name)

	// Loopback hosts never pass normalization, so the target is stored directly.
	local, err := app.store.CreateURL(ctx, target.URL)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/urls/2/checks", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	latest, err := app.store.FindLatestCheckByURLID(ctx, local.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, http.StatusOK, latest.StatusCode)
	require.NotNil(t, latest.Title)
	require.Equal(t, "Target", *latest.Title)

	msgs := app.publisher.(*memorypublisher.Publisher).Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "url-checks", msgs[0].Topic)
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.DB.Driver = "oracle"

	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, `unsupported db driver "oracle"`)
}

func TestRunStopsOnCancel(t *testing.T) {
	app, err := Build(context.Background(), testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRedirects(t *testing.T) {
	t.Parallel()

	require.Equal(t, -1, redirects(0))
	require.Equal(t, 5, redirects(5))
}

func TestAPIKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth.APIKey = "secret"
	require.Empty(t, apiKey(cfg))

	cfg.Auth.Enabled = true
	require.Equal(t, "secret", apiKey(cfg))
}
