// Package callback posts load outcomes to the URL a customer registered
// when opening the load. Delivery guarantees live in the job layer; this
// client only knows how to make one POST stick through transient noise.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carelattice/taxonomy-backend/internal/pkg/httpx"
	"github.com/carelattice/taxonomy-backend/internal/platform/envutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type Sender interface {
	Send(ctx context.Context, target string, payload any) error
}

type Config struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
}

func ConfigFromEnv() Config {
	return Config{
		Timeout:    envutil.Seconds("CALLBACK_TIMEOUT_SECONDS", 15*time.Second),
		MaxRetries: envutil.Int("CALLBACK_MAX_RETRIES", 2),
		UserAgent:  "taxonomy-backend/callback",
	}
}

func NewFromEnv(log *logger.Logger) (Sender, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Sender, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &sender{
		log:        log.With("client", "CallbackSender"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    httpx.Backoff{Base: time.Second, Max: 10 * time.Second},
	}, nil
}

type sender struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	backoff    httpx.Backoff
}

type callbackHTTPError struct {
	StatusCode int
	Body       string
}

func (e *callbackHTTPError) Error() string {
	return fmt.Sprintf("callback http %d: %s", e.StatusCode, truncate(e.Body, 512))
}

func (e *callbackHTTPError) HTTPStatusCode() int { return e.StatusCode }

// Send posts payload as JSON and treats any 2xx as delivered. Transient
// failures are retried in a short in-process burst; anything that survives
// the burst goes back to the caller, which owns the longer retry horizon.
func (s *sender) Send(ctx context.Context, target string, payload any) error {
	if s == nil || s.httpClient == nil {
		return fmt.Errorf("callback sender unavailable")
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("callback: target URL required")
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("callback: invalid target URL %q", target)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("callback: marshal payload: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, err := s.post(ctx, target, body)
		if err == nil {
			return nil
		}
		if !httpx.IsRetryable(err) || attempt >= s.cfg.MaxRetries {
			return err
		}
		sleepFor := s.backoff.Next(attempt, resp)
		s.log.Warn("callback delivery retrying",
			"target", u.Host,
			"attempt", attempt+1,
			"max_retries", s.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *sender) post(ctx context.Context, target string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &callbackHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
