package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openarb/venuewatch/internal/domain"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// wsCommand is the subscribe message sent after connecting.
type wsCommand struct {
	Type        string   `json:"type"`
	Instruments []string `json:"instruments"`
}

// WSFeed connects to the normalized observation/oracle WebSocket feed,
// subscribes to the configured instruments, and pushes each record into the
// sink. It reconnects with exponential backoff on disconnect.
type WSFeed struct {
	wsURL       string
	instruments []string
	sink        Sink
	logger      *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewWSFeed creates a WSFeed delivering into sink.
func NewWSFeed(wsURL string, instruments []string, sink Sink, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		wsURL:       wsURL,
		instruments: instruments,
		sink:        sink,
		logger:      logger.With(slog.String("component", "ws_feed")),
		done:        make(chan struct{}),
	}
}

// Run connects and consumes the feed until ctx is cancelled or Close is
// called. Disconnects are retried with backoff; the delay resets after a
// healthy session.
func (f *WSFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(start) > time.Minute {
			delay = reconnectDelay
		}
		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sub := wsCommand{Type: "subscribe", Instruments: f.instruments}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("feed subscribed", slog.Int("instruments", len(f.instruments)))

	// Ping loop keeps the connection alive; read errors end the session.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go f.pingLoop(pingCtx, conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return domain.ErrFeedDisconnect
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("feed: malformed message",
				slog.Int("payload_len", len(data)),
				slog.String("error", err.Error()),
			)
			continue
		}
		dispatch(ctx, f.sink, msg, time.Now())
	}
}

func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close stops the feed permanently; Run returns after the current session
// ends.
func (f *WSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
