package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/nerrad567/dealer-core/internal/infrastructure/config"
)

const (
	healthTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client writes storage telemetry points to one InfluxDB bucket.
//
// Writes are non-blocking and batched by the underlying write API. Batch
// failures go to the callback given to Connect. Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	// mu is held for reading around every use of writeAPI so Close cannot
	// stop it mid-write.
	mu     sync.RWMutex
	closed bool
}

// Connect creates a client for cfg and checks the server is ready before
// returning it. onWriteError, if not nil, receives every failed batch; it
// runs on the write API's goroutine and must not block.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, onWriteError func(error)) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrConnectionFailed)
	}

	batchSize := defaultBatchSize
	if cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	flushInterval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}

	// #nosec G115 -- both values are positive
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flushInterval.Milliseconds()))

	c := &Client{client: influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)}
	if _, err := c.HealthCheck(ctx); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c.writeAPI = c.client.WriteAPI(cfg.Org, cfg.Bucket)
	if onWriteError != nil {
		errs := c.writeAPI.Errors()
		go func() {
			for err := range errs {
				onWriteError(err)
			}
		}()
	}
	return c, nil
}

// HealthCheck asks the server's health endpoint whether it is ready and
// returns the version it reports.
func (c *Client) HealthCheck(ctx context.Context) (version string, err error) {
	if !c.usable() {
		return "", ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	health, err := c.client.Health(ctx)
	if err != nil {
		return "", fmt.Errorf("influxdb health check: %w", err)
	}
	if health.Version != nil {
		version = *health.Version
	}
	if health.Status != domain.HealthCheckStatusPass {
		msg := string(health.Status)
		if health.Message != nil {
			msg += ": " + *health.Message
		}
		return version, fmt.Errorf("%w: %s", ErrUnhealthy, msg)
	}
	return version, nil
}

// Flush sends buffered points now. A no-op once closed.
func (c *Client) Flush() {
	c.withWriter(func(w api.WriteAPI) { w.Flush() })
}

// Close flushes pending points and releases the client. Later writes are
// dropped. Calling Close again, or on nil, does nothing.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	// Closing the client flushes and stops its write APIs.
	c.client.Close()
	return nil
}

func (c *Client) usable() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// withWriter runs fn against the write API unless the client is closed or
// was never connected.
func (c *Client) withWriter(fn func(api.WriteAPI)) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.writeAPI == nil {
		return
	}
	fn(c.writeAPI)
}
