// Package collyfetcher implements analyzer.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultTimeout        = 10 * time.Second
	defaultMaxRedirects   = 10
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	ConnectTimeout time.Duration
	Timeout        time.Duration
	// MaxRedirects caps redirect hops; the last redirect response is
	// recorded once the cap is reached. Negative disables following.
	MaxRedirects int
	// InsecureSkipVerify disables TLS certificate validation so sites with
	// self-signed or expired certificates can still be checked.
	InsecureSkipVerify bool
	// MaxBodyBytes truncates response bodies; 0 keeps colly's default.
	MaxBodyBytes int
}

// Fetcher implements analyzer.Fetcher using the Colly collector. A single
// base collector holds the shared HTTP backend; each fetch runs on a clone
// with its own callbacks.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(newHTTPTransport(cfg))
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(redirectPolicy(cfg.MaxRedirects))

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. Any received response is Connected,
// whatever its status; only a missing response is a connect failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) analyzer.FetchOutcome {
	start := time.Now()
	state := &fetchState{}

	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, state)

	err := f.runCollector(ctx, collector, url)
	outcome := finish(ctx, state, err)
	outcome.Duration = time.Since(start)
	return outcome
}

// finish prefers a received response over a cancellation that raced it.
func finish(ctx context.Context, state *fetchState, visitErr error) analyzer.FetchOutcome {
	outcome := state.outcome(visitErr)
	if outcome.Connected {
		return outcome
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome.Err = fmt.Errorf("colly fetch canceled: %w", ctxErr)
	}
	return outcome
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		state.received(r.StatusCode, r.Body)
	})

	// colly reports non-2xx statuses through OnError when error responses
	// are not parsed; keep the status whenever a response was received.
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			state.received(r.StatusCode, r.Body)
			return
		}
		state.failed(err)
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

type fetchState struct {
	mu       sync.Mutex
	done     bool
	status   int
	body     []byte
	fetchErr error
}

func (s *fetchState) received(status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.status = status
	s.body = append([]byte(nil), body...)
}

func (s *fetchState) failed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr == nil {
		s.fetchErr = err
	}
}

func (s *fetchState) outcome(visitErr error) analyzer.FetchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return analyzer.FetchOutcome{Connected: true, StatusCode: s.status, Body: s.body}
	}
	err := visitErr
	if err == nil {
		err = s.fetchErr
	}
	if err == nil {
		err = errors.New("no response received")
	}
	return analyzer.FetchOutcome{StatusCode: analyzer.StatusConnectFailure, Err: err}
}

func redirectPolicy(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if maxRedirects < 0 || len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
}

func newHTTPTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in via fetch.insecure_skip_verify
		},
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
