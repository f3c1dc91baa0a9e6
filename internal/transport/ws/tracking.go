// Package ws serves the order tracking WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/service/tracking"
)

const maxMessageSize = 4096

// Snapshotter describes the current state of an order.
type Snapshotter interface {
	Snapshot(ctx context.Context, orderID string) (tracking.Message, error)
}

// Registry is the subscription side of tracking.Registry.
type Registry interface {
	Attach(c tracking.Conn)
	Detach(connID string)
	Subscribe(connID, orderID string) error
	Unsubscribe(connID string)
}

// Config tunes connection handling.
type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

type clientMessage struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
}

// TrackingHandler upgrades requests and serves subscribe/unsubscribe frames.
type TrackingHandler struct {
	registry Registry
	tracker  Snapshotter
	cfg      Config
	logger   logx.Logger
	upgrader websocket.Upgrader
}

// NewTrackingHandler creates a TrackingHandler.
func NewTrackingHandler(registry Registry, tracker Snapshotter, cfg Config, logger logx.Logger) *TrackingHandler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &TrackingHandler{
		registry: registry,
		tracker:  tracker,
		cfg:      cfg,
		logger:   logx.Component(logger, "ws_tracking"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *TrackingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logx.Err(err))
		return
	}

	client := tracking.NewClient(h.cfg.SendBuffer)
	h.registry.Attach(client)
	log := h.logger.With(logx.String("conn_id", client.ID()))
	log.Debug("tracking connection opened")

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writeLoop(conn, client, log)
	}()

	h.readLoop(r.Context(), conn, client, log)

	h.registry.Detach(client.ID())
	client.Close()
	<-written
	_ = conn.Close()
	log.Debug("tracking connection closed")
}

func (h *TrackingHandler) pongWait() time.Duration {
	return h.cfg.PingInterval * 2
}

func (h *TrackingHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *tracking.Client, log logx.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait()))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("tracking connection read failed", logx.Err(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(client, errorMessage("", "malformed message"))
			continue
		}
		h.dispatch(ctx, client, msg, log)
	}
}

func (h *TrackingHandler) dispatch(ctx context.Context, client *tracking.Client, msg clientMessage, log logx.Logger) {
	switch msg.Type {
	case tracking.TypeSubscribe:
		orderID := strings.TrimSpace(msg.OrderID)
		if orderID == "" {
			h.reply(client, errorMessage("", "order_id is required"))
			return
		}
		// Join the group before taking the snapshot so no event falls in between.
		if err := h.registry.Subscribe(client.ID(), orderID); err != nil {
			log.Error("subscribe failed", logx.String("order_id", orderID), logx.Err(err))
			h.reply(client, errorMessage(orderID, "subscribe failed"))
			return
		}
		snap, err := h.tracker.Snapshot(ctx, orderID)
		if err != nil {
			h.registry.Unsubscribe(client.ID())
			if errors.Is(err, apperr.ErrNotFound) {
				h.reply(client, errorMessage(orderID, "order not found"))
				return
			}
			log.Error("snapshot failed", logx.String("order_id", orderID), logx.Err(err))
			h.reply(client, errorMessage(orderID, "internal error"))
			return
		}
		h.reply(client, snap)

	case tracking.TypeUnsubscribe:
		h.registry.Unsubscribe(client.ID())
		h.reply(client, tracking.Message{Type: tracking.TypeUnsubscribed, Timestamp: time.Now().UTC()})

	default:
		h.reply(client, errorMessage(msg.OrderID, "unknown message type"))
	}
}

func (h *TrackingHandler) reply(client *tracking.Client, msg tracking.Message) {
	if !client.Send(msg) {
		h.logger.Warn("reply dropped", logx.String("conn_id", client.ID()), logx.String("type", msg.Type))
	}
}

func (h *TrackingHandler) writeLoop(conn *websocket.Conn, client *tracking.Client, log logx.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("tracking write failed", logx.Err(err))
				// Unblocks the reader so the connection is torn down.
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func errorMessage(orderID, text string) tracking.Message {
	return tracking.Message{
		Type:      tracking.TypeError,
		OrderID:   orderID,
		Error:     text,
		Timestamp: time.Now().UTC(),
	}
}
