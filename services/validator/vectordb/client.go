// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectordb manages the shared Weaviate connection for the
// documentation index and the decision memory. It layers retry with
// jittered backoff and a background health loop over the raw client,
// so a Weaviate outage degrades those two layers instead of failing
// requests outright.
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnavailable is returned when Weaviate is not reachable.
	ErrUnavailable = errors.New("vector database is not available")

	// ErrClientClosed is returned for operations on a closed client.
	ErrClientClosed = errors.New("vector database client is closed")
)

// -----------------------------------------------------------------------------
// Connection State
// -----------------------------------------------------------------------------

// State is the health of the Weaviate connection.
type State int32

const (
	// StateConnected indicates normal operation.
	StateConnected State = iota
	// StateDegraded indicates Weaviate is unreachable; dependent
	// layers abstain until the health loop reconnects.
	StateDegraded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures the client.
type Config struct {
	// URL is the Weaviate server URL (e.g. "http://localhost:8080").
	URL string

	// RetryAttempts is the number of retries per operation. Default 3.
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries. Default 100ms.
	RetryBackoff time.Duration

	// HealthCheckInterval is how often the background loop probes
	// Weaviate. Default 10s.
	HealthCheckInterval time.Duration

	// HealthCheckTimeout bounds each probe. Default 5s.
	HealthCheckTimeout time.Duration

	// AllowStartDegraded lets the client start even when Weaviate is
	// down; the health loop will pick it up later. Default false.
	AllowStartDegraded bool

	// Logger for client events. Default slog.Default().
	Logger *slog.Logger

	// healthCheck overrides the liveness probe. Tests only.
	healthCheck func(ctx context.Context) error
}

func (c *Config) applyDefaults() {
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 10 * time.Second
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client wraps the Weaviate client with retry and health tracking.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	client *weaviate.Client
	config Config
	logger *slog.Logger

	state  atomic.Int32
	closed atomic.Bool

	healthCheck func(ctx context.Context) error

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// New connects to Weaviate and starts the health loop.
func New(config Config) (*Client, error) {
	config.applyDefaults()
	if config.URL == "" {
		return nil, errors.New("url must not be empty")
	}

	scheme, host := splitURL(config.URL)
	client, err := weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: host})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())
	c := &Client{
		client:       client,
		config:       config,
		logger:       config.Logger.With(slog.String("component", "vectordb")),
		healthCtx:    healthCtx,
		healthCancel: healthCancel,
	}
	c.healthCheck = config.healthCheck
	if c.healthCheck == nil {
		c.healthCheck = c.probeWeaviate
	}
	c.state.Store(int32(StateDegraded))

	if err := c.runHealthCheck(context.Background()); err != nil {
		if !config.AllowStartDegraded {
			healthCancel()
			return nil, fmt.Errorf("weaviate not available: %w", err)
		}
		c.logger.Warn("weaviate unavailable at startup, starting degraded",
			slog.String("url", config.URL),
			slog.String("error", err.Error()))
	}

	c.healthWg.Add(1)
	go c.healthLoop()

	c.logger.Info("vector database client initialized",
		slog.String("url", config.URL),
		slog.String("state", c.GetState().String()))
	return c, nil
}

// Weaviate returns the underlying client for direct operations.
func (c *Client) Weaviate() *weaviate.Client {
	return c.client
}

// IsAvailable reports whether Weaviate is currently reachable.
func (c *Client) IsAvailable() bool {
	return State(c.state.Load()) == StateConnected
}

// GetState returns the current connection state.
func (c *Client) GetState() State {
	return State(c.state.Load())
}

// Execute runs fn with retry and jittered backoff. It returns
// ErrUnavailable without calling fn when the connection is known to
// be down, so callers fail fast into their degraded paths.
func (c *Client) Execute(ctx context.Context, fn func() error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.IsAvailable() {
		return ErrUnavailable
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(backoff)/4 + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	// Repeated failure usually means the server went away; flip to
	// degraded and let the health loop decide when to come back.
	c.transition(StateDegraded)
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Close stops the health loop. The underlying HTTP client needs no
// explicit teardown.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.healthCancel()
	c.healthWg.Wait()
	return nil
}

// -----------------------------------------------------------------------------
// Health Loop
// -----------------------------------------------------------------------------

func (c *Client) healthLoop() {
	defer c.healthWg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.healthCtx.Done():
			return
		case <-ticker.C:
			_ = c.runHealthCheck(c.healthCtx)
		}
	}
}

func (c *Client) runHealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthCheckTimeout)
	defer cancel()

	if err := c.healthCheck(ctx); err != nil {
		c.transition(StateDegraded)
		return err
	}
	c.transition(StateConnected)
	return nil
}

func (c *Client) probeWeaviate(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !live {
		return errors.New("weaviate reports not live")
	}
	return nil
}

func (c *Client) transition(next State) {
	prev := State(c.state.Swap(int32(next)))
	if prev == next {
		return
	}
	if next == StateDegraded {
		c.logger.Warn("vector database degraded",
			slog.String("from", prev.String()))
	} else {
		c.logger.Info("vector database connected",
			slog.String("from", prev.String()))
	}
}

func splitURL(url string) (scheme, host string) {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "https", strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "http", strings.TrimPrefix(url, "http://")
	default:
		return "http", url
	}
}
