package tracegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/okian/humancheck/pkg/logger"
)

var errNotReady = errors.New("verdict not ready")

// HTTPClient wraps http.Client with JSON helpers.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(cfg *Config) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: cfg.Timeout}, baseURL: cfg.BaseURL}
}

func (c *HTTPClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON decodes a 200 response into out.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return errNotReady
	default:
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type submitResult int

const (
	submitAccepted submitResult = iota
	submitDuplicate
	submitFailed
)

// submitTraces posts traces concurrently using a worker pool.
func submitTraces(ctx context.Context, cfg *Config, traces []Trace, stats *Stats) {
	log := logger.Get().Named("trace_gen")
	client := newHTTPClient(cfg)

	var accepted, duplicate, failed int64
	ch := make(chan Trace, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range ch {
				switch submitSingle(ctx, client, t) {
				case submitAccepted:
					atomic.AddInt64(&accepted, 1)
				case submitDuplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						log.Warn(ctx, "submission failed", logger.String("session_id", t.SessionID))
					}
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, t := range traces {
			select {
			case <-ctx.Done():
				return
			case ch <- t:
			}
		}
	}()
	wg.Wait()

	stats.Accepted = int(accepted)
	stats.Duplicate = int(duplicate)
	stats.Failed = int(failed)
	stats.Submitted = stats.Accepted + stats.Duplicate + stats.Failed
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed))
}

func submitSingle(ctx context.Context, client *HTTPClient, t Trace) submitResult {
	resp, err := client.post(ctx, "/sessions", SessionRequest{SessionID: t.SessionID, Source: t.Source, Samples: t.Samples})
	if err != nil {
		return submitFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return submitFailed
	}
	var ack AckResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return submitFailed
	}
	if ack.Duplicate {
		return submitDuplicate
	}
	return submitAccepted
}

func verdictPath(id string) string {
	return "/verdicts/" + url.PathEscape(id)
}
