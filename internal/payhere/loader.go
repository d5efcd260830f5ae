package payhere

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/edimy/tutoring-backend/internal/metrics"
)

// ErrGatewayUnavailable means neither checkout script URL could be loaded
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ScriptSource reports whether the PayHere checkout script is available
type ScriptSource interface {
	EnsureLoaded(ctx context.Context) (string, error)
	Ready() bool
}

// ScriptLoader probes the primary checkout script URL and falls back to the secondary.
// A successful load is remembered for the life of the loader; concurrent callers share
// one in-flight probe. Failures are not cached here, callers decide how long they stick.
type ScriptLoader struct {
	urls    []string
	client  *http.Client
	timeout time.Duration
	logger  *logrus.Logger

	group singleflight.Group

	mu         sync.RWMutex
	loadedFrom string
}

// NewScriptLoader creates a loader for the primary and fallback script URLs
func NewScriptLoader(primaryURL, fallbackURL string, timeout time.Duration, logger *logrus.Logger) *ScriptLoader {
	urls := make([]string, 0, 2)
	for _, u := range []string{primaryURL, fallbackURL} {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ScriptLoader{
		urls:    urls,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Ready reports whether the script has been loaded
func (l *ScriptLoader) Ready() bool {
	return l.LoadedFrom() != ""
}

// LoadedFrom returns the URL the script was loaded from, or "" when not loaded
func (l *ScriptLoader) LoadedFrom() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadedFrom
}

// EnsureLoaded loads the script once and returns the URL it came from.
// Returns an error wrapping ErrGatewayUnavailable when every URL fails.
func (l *ScriptLoader) EnsureLoaded(ctx context.Context) (string, error) {
	if src := l.LoadedFrom(); src != "" {
		return src, nil
	}

	ch := l.group.DoChan("payhere-script", func() (interface{}, error) {
		return l.load()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *ScriptLoader) load() (string, error) {
	var lastErr error
	for i, u := range l.urls {
		source := "primary"
		if i > 0 {
			source = "fallback"
		}

		// Probes run detached from the caller so one abandoned request
		// does not fail everyone sharing this load
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		err := l.probe(ctx, u)
		cancel()

		if err == nil {
			metrics.IncScriptLoad(source, "success")
			l.mu.Lock()
			l.loadedFrom = u
			l.mu.Unlock()

			l.logger.WithFields(logrus.Fields{
				"url":    u,
				"source": source,
			}).Info("PayHere checkout script loaded")
			return u, nil
		}

		metrics.IncScriptLoad(source, "failure")
		l.logger.WithFields(logrus.Fields{
			"url":    u,
			"source": source,
			"error":  err.Error(),
		}).Warn("PayHere checkout script failed to load")
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no script URL configured")
	}
	return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

func (l *ScriptLoader) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// An empty body is as useless as a 404
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	if n == 0 {
		return errors.New("empty script body")
	}

	return nil
}
