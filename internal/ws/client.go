package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lyink/relay-service/internal/events"
)

var errSendBufferFull = errors.New("send buffer full")

// Config holds the connection keepalive tuning.
type Config struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
	}
}

// client is one live websocket connection. It satisfies presence.Conn: the
// registry hands events to Send, the write pump drains them to the wire.
type client struct {
	id     string
	conn   *websocket.Conn
	cfg    Config
	logger *logrus.Logger

	sendCh chan events.Envelope
	doneCh chan struct{}

	mu     sync.RWMutex
	userID string
}

func newClient(conn *websocket.Conn, cfg Config, logger *logrus.Logger) *client {
	return &client{
		id:     uuid.New().String(),
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		sendCh: make(chan events.Envelope, 256),
		doneCh: make(chan struct{}),
	}
}

func (c *client) ID() string {
	return c.id
}

func (c *client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *client) bindUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Send queues an event for the write pump. A full buffer drops the event
// rather than blocking the caller: a stalled connection must not stall the
// delivery pipeline.
func (c *client) Send(env events.Envelope) error {
	select {
	case c.sendCh <- env:
		return nil
	case <-c.doneCh:
		return errSendBufferFull
	default:
		c.logger.WithFields(logrus.Fields{
			"conn_id": c.id,
			"event":   env.Event,
		}).Warn("Dropping event, send buffer full")
		return errSendBufferFull
	}
}

// writePump is the only goroutine writing to the connection. It drains the
// send channel and keeps the connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.WithError(err).WithField("conn_id", c.id).Debug("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneCh:
			return
		}
	}
}
