package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"warden/internal/metrics"
	"warden/internal/platform"
	"warden/internal/registry"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Config holds configuration for the gateway consumer.
type Config struct {
	// Endpoints is a list of gateway WebSocket URLs to connect to (with fallback rotation)
	Endpoints []string

	// Token authenticates the connection.
	Token string

	// Compress enables zstd decompression of stream payloads.
	Compress bool

	// MaxInflight bounds concurrently running event handlers. Handlers
	// await storage and platform calls; a hung call must not let the
	// handler pile grow without limit.
	MaxInflight int64
}

// Consumer consumes events from the gateway and dispatches them to a Handler.
type Consumer struct {
	config  *Config
	handler Handler

	// Connection state
	conn               *websocket.Conn
	connMu             sync.Mutex
	currentEndpointIdx int

	// Zstd decoder for compressed messages
	zstdDecoder *zstd.Decoder

	// Bounded dispatch of async handlers
	sem *semaphore.Weighted

	// Stats
	eventsReceived atomic.Int64
	bytesReceived  atomic.Int64

	// Control
	connected atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewConsumer creates a gateway consumer.
func NewConsumer(config *Config, handler Handler) *Consumer {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		log.Fatal().Err(err).Msg("gateway: failed to create zstd decoder")
	}

	maxInflight := config.MaxInflight
	if maxInflight <= 0 {
		maxInflight = 256
	}

	return &Consumer{
		config:      config,
		handler:     handler,
		stopCh:      make(chan struct{}),
		zstdDecoder: decoder,
		sem:         semaphore.NewWeighted(maxInflight),
	}
}

// Start begins consuming events in a background goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() {
	close(c.stopCh)
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
	c.wg.Wait()

	if c.zstdDecoder != nil {
		c.zstdDecoder.Close()
	}
}

// IsConnected returns true if currently connected to the gateway.
func (c *Consumer) IsConnected() bool {
	return c.connected.Load()
}

// Stats returns consumer statistics.
func (c *Consumer) Stats() (eventsReceived, bytesReceived int64) {
	return c.eventsReceived.Load(), c.bytesReceived.Load()
}

func (c *Consumer) run(ctx context.Context) {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway: context cancelled, stopping consumer")
			return
		case <-c.stopCh:
			log.Info().Msg("gateway: stop requested, stopping consumer")
			return
		default:
		}

		endpoint := c.config.Endpoints[c.currentEndpointIdx]
		err := c.connectAndConsume(ctx, endpoint)

		if err != nil {
			c.connected.Store(false)
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("gateway: connection error")

			// Rotate to next endpoint
			c.currentEndpointIdx = (c.currentEndpointIdx + 1) % len(c.config.Endpoints)

			// Backoff before retry
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			backoff = time.Second
		}
	}
}

func (c *Consumer) connectAndConsume(ctx context.Context, endpoint string) error {
	log.Info().Str("url", endpoint).Msg("gateway: connecting")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	header.Set("Authorization", "Bot "+c.config.Token)

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.connected.Store(true)
	metrics.GatewayConnectionState.Set(1)
	log.Info().Str("endpoint", endpoint).Msg("gateway: connected")

	defer func() {
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
		c.connected.Store(false)
		metrics.GatewayConnectionState.Set(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		c.bytesReceived.Add(int64(len(message)))

		if err := c.processMessage(ctx, message); err != nil {
			metrics.GatewayErrorsTotal.Inc()
			log.Warn().Err(err).Msg("gateway: failed to process message")
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, data []byte) error {
	// Zstd compressed data starts with magic number 0x28 0xB5 0x2F 0xFD
	if c.config.Compress && len(data) >= 4 && data[0] == 0x28 && data[1] == 0xB5 && data[2] == 0x2F && data[3] == 0xFD {
		decompressed, err := c.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("failed to decompress message: %w", err)
		}
		data = decompressed
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		preview := data
		if len(preview) > 50 {
			preview = preview[:50]
		}
		return fmt.Errorf("failed to unmarshal event (first bytes: %q): %w", preview, err)
	}

	c.eventsReceived.Add(1)
	metrics.GatewayEventsTotal.WithLabelValues(event.Type).Inc()

	return c.dispatch(ctx, &event)
}

// dispatch routes one event. Registry-shaped events run inline so the cache
// is mutated in stream order; member joins and messages run enforcement,
// which awaits storage and platform calls, so they run in bounded goroutines.
func (c *Consumer) dispatch(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventServerCreate, EventServerUpdate:
		var snap ServerSnapshot
		if err := json.Unmarshal(event.Data, &snap); err != nil {
			return fmt.Errorf("bad server snapshot: %w", err)
		}
		c.handler.HandleServerUpsert(ctx, snap.Snapshot())

	case EventServerDelete:
		var del ServerDelete
		if err := json.Unmarshal(event.Data, &del); err != nil {
			return fmt.Errorf("bad server delete: %w", err)
		}
		c.handler.HandleServerDelete(ctx, del.ID)

	case EventRoleCreate, EventRoleUpdate, EventRoleDelete:
		var re RoleEvent
		if err := json.Unmarshal(event.Data, &re); err != nil {
			return fmt.Errorf("bad role event: %w", err)
		}
		c.handler.HandleRoleDelta(ctx, re.ServerID, re.Role, roleOp(event.Type))

	case EventMemberAdd:
		var add MemberAdd
		if err := json.Unmarshal(event.Data, &add); err != nil {
			return fmt.Errorf("bad member add: %w", err)
		}
		c.async(ctx, func(ctx context.Context) {
			c.handler.HandleMemberAdd(ctx, add.Member())
		})

	case EventMemberRemove:
		var rem MemberRemove
		if err := json.Unmarshal(event.Data, &rem); err != nil {
			return fmt.Errorf("bad member remove: %w", err)
		}
		c.handler.HandleMemberRemove(ctx, rem.ServerID, rem.User.ID)

	case EventMessage:
		var msg platform.Message
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			return fmt.Errorf("bad message event: %w", err)
		}
		msg.Author.ServerID = msg.ServerID
		c.async(ctx, func(ctx context.Context) {
			c.handler.HandleMessage(ctx, msg)
		})
	}

	return nil
}

// async runs fn in a goroutine, bounded by the in-flight semaphore. When the
// bound is reached the read loop blocks, applying backpressure to the stream
// instead of accumulating stalled handlers.
func (c *Consumer) async(ctx context.Context, fn func(context.Context)) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return
	}
	metrics.GatewayHandlersInflight.Inc()
	c.wg.Add(1)
	go func() {
		defer func() {
			c.sem.Release(1)
			metrics.GatewayHandlersInflight.Dec()
			c.wg.Done()
		}()
		fn(ctx)
	}()
}

func roleOp(eventType string) registry.RoleOp {
	switch eventType {
	case EventRoleCreate:
		return registry.RoleAdd
	case EventRoleUpdate:
		return registry.RoleUpdate
	default:
		return registry.RoleRemove
	}
}
