package ws

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MessageProcessor handles one raw OCPP frame and returns the reply frame, if any.
type MessageProcessor interface {
	Process(ctx context.Context, chargePointID string, raw []byte) ([]byte, error)
}

// Connection represents one active charge point WebSocket connection.
type Connection struct {
	chargePointID string
	ws            *Conn
	send          chan []byte
	logger        *zap.Logger
	processor     MessageProcessor
	writeTimeout  time.Duration
	readTimeout   time.Duration
	onClose       func(c *Connection)
}

// NewConnection builds the connection wrapper around an upgraded socket.
func NewConnection(chargePointID string, ws *Conn, processor MessageProcessor, writeTimeout, readTimeout time.Duration, logger *zap.Logger, onClose func(*Connection)) *Connection {
	return &Connection{
		chargePointID: chargePointID,
		ws:            ws,
		send:          make(chan []byte, 16),
		logger:        logger,
		processor:     processor,
		writeTimeout:  writeTimeout,
		readTimeout:   readTimeout,
		onClose:       onClose,
	}
}

// ChargePointID returns the identifier derived from the connection path.
func (c *Connection) ChargePointID() string {
	return c.chargePointID
}

// Start launches the read/write pumps. It returns when the connection dies.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed", zap.String("charge_point_id", c.chargePointID), zap.Error(err))
			return
		}

		response, err := c.processor.Process(ctx, c.chargePointID, message)
		if err != nil {
			// Recoverable protocol error: drop the message, keep the socket.
			c.logger.Warn("failed to process message", zap.String("charge_point_id", c.chargePointID), zap.Error(err))
			continue
		}
		if response != nil {
			c.Send(response)
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteMessage(CloseMessage, FormatCloseMessage(1000, ""))
				return
			}
			if err := c.write(TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Send enqueues a message for writing. Writes are fire-and-forget: a full
// buffer drops the message rather than blocking the protocol loop.
func (c *Connection) Send(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("attempted to send on closed connection", zap.String("charge_point_id", c.chargePointID))
		}
	}()
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping outgoing message, buffer full", zap.String("charge_point_id", c.chargePointID))
	}
}

// Close tears down the underlying socket. The read pump observes the closed
// socket and runs the usual cleanup path.
func (c *Connection) Close() error {
	return c.ws.Close()
}

func (c *Connection) write(messageType int, data []byte) error {
	return c.ws.WriteControl(messageType, data, time.Now().Add(c.writeTimeout))
}

func (c *Connection) cleanup() {
	close(c.send)
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}
