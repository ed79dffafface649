package ws

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Message opcodes per RFC 6455.
const (
	TextMessage   = 1
	BinaryMessage = 2
	CloseMessage  = 8
	PingMessage   = 9
	PongMessage   = 10
)

// maxPayloadSize bounds a single inbound frame. Charge points send small JSON
// arrays; anything larger is a broken or hostile peer.
const maxPayloadSize = 1 << 20

var errFragmented = errors.New("ws: fragmented frames not supported")

// Conn is a server-side WebSocket connection over a hijacked TCP stream.
// Server-to-client frames are written unmasked; client frames must be masked.
type Conn struct {
	conn        net.Conn
	rw          *bufio.ReadWriter
	subprotocol string
	mu          sync.Mutex
}

func newConn(conn net.Conn, rw *bufio.ReadWriter, subprotocol string) *Conn {
	return &Conn{conn: conn, rw: rw, subprotocol: subprotocol}
}

// Close closes the underlying network connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Subprotocol returns the negotiated subprotocol.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetReadDeadline sets the read deadline on the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// ReadMessage reads the next data frame, unmasks it, and returns its payload.
// Control frames are handled transparently: pings are answered with a pong
// carrying the same payload, pongs are skipped, a close frame yields io.EOF.
// A zero-length payload is valid and returned as an empty slice.
func (c *Conn) ReadMessage() (int, []byte, error) {
	for {
		first, err := c.rw.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		fin := first&0x80 != 0
		opcode := first & 0x0F

		second, err := c.rw.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		masked := second&0x80 != 0
		if !masked {
			return 0, nil, errors.New("ws: received unmasked frame from client")
		}

		payloadLen := int(second & 0x7F)
		switch payloadLen {
		case 126:
			buf := make([]byte, 2)
			if _, err := io.ReadFull(c.rw, buf); err != nil {
				return 0, nil, err
			}
			payloadLen = int(binary.BigEndian.Uint16(buf))
		case 127:
			buf := make([]byte, 8)
			if _, err := io.ReadFull(c.rw, buf); err != nil {
				return 0, nil, err
			}
			l := binary.BigEndian.Uint64(buf)
			if l > maxPayloadSize {
				return 0, nil, errors.New("ws: payload too large")
			}
			payloadLen = int(l)
		}
		if payloadLen > maxPayloadSize {
			return 0, nil, errors.New("ws: payload too large")
		}

		mask := make([]byte, 4)
		if _, err := io.ReadFull(c.rw, mask); err != nil {
			return 0, nil, err
		}

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(c.rw, payload); err != nil {
			return 0, nil, err
		}
		for i := 0; i < payloadLen; i++ {
			payload[i] ^= mask[i%4]
		}

		if !fin {
			return 0, nil, errFragmented
		}

		switch opcode {
		case TextMessage, BinaryMessage:
			return int(opcode), payload, nil
		case CloseMessage:
			return int(opcode), payload, io.EOF
		case PingMessage:
			if err := c.WriteControl(PongMessage, payload, time.Now().Add(time.Second)); err != nil {
				return 0, nil, err
			}
			continue
		case PongMessage:
			continue
		default:
			return 0, nil, fmt.Errorf("ws: unsupported opcode %d", opcode)
		}
	}
}

// WriteMessage writes a single unmasked frame with the three-tier length
// encoding (7-bit, 16-bit extended, 64-bit extended).
func (c *Conn) WriteMessage(messageType int, data []byte) error {
	var opcode byte
	switch messageType {
	case TextMessage:
		opcode = TextMessage
	case BinaryMessage:
		opcode = BinaryMessage
	case CloseMessage:
		opcode = CloseMessage
	case PingMessage:
		opcode = PingMessage
	case PongMessage:
		opcode = PongMessage
	default:
		return fmt.Errorf("ws: unsupported message type %d", messageType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	header := []byte{0x80 | opcode}
	payloadLen := len(data)
	switch {
	case payloadLen < 126:
		header = append(header, byte(payloadLen))
	case payloadLen < 65536:
		header = append(header, 126)
		extended := make([]byte, 2)
		binary.BigEndian.PutUint16(extended, uint16(payloadLen))
		header = append(header, extended...)
	default:
		header = append(header, 127)
		extended := make([]byte, 8)
		binary.BigEndian.PutUint64(extended, uint64(payloadLen))
		header = append(header, extended...)
	}

	if _, err := c.rw.Write(header); err != nil {
		return err
	}
	if _, err := c.rw.Write(data); err != nil {
		return err
	}
	return c.rw.Flush()
}

// WriteControl writes a control frame honoring the given deadline.
func (c *Conn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	err := c.WriteMessage(messageType, data)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Time{})
	return err
}

// FormatCloseMessage builds a close frame payload with a status code and text.
func FormatCloseMessage(code int, text string) []byte {
	payload := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], text)
	return payload
}
