package ws

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Upgrader performs the WebSocket opening handshake on a plain HTTP request.
// A missing or empty Sec-WebSocket-Key is fatal for the connection attempt.
type Upgrader struct {
	Subprotocols []string
	CheckOrigin  func(*http.Request) bool
}

// Upgrade validates the handshake headers, hijacks the connection, and writes
// the 101 Switching Protocols response including the negotiated subprotocol.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, responseHeader http.Header) (*Conn, error) {
	if u.CheckOrigin != nil && !u.CheckOrigin(r) {
		return nil, errors.New("ws: origin not allowed")
	}

	if !headerContainsToken(r.Header, "Connection", "Upgrade") || !headerContainsToken(r.Header, "Upgrade", "websocket") {
		return nil, errors.New("ws: not a websocket handshake")
	}

	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return nil, errors.New("ws: missing Sec-WebSocket-Key")
	}

	var chosenSubprotocol string
	if len(u.Subprotocols) > 0 {
		offered := parseSubprotocols(r.Header.Get("Sec-WebSocket-Protocol"))
		for _, sp := range u.Subprotocols {
			for _, offer := range offered {
				if offer == sp {
					chosenSubprotocol = sp
					break
				}
			}
			if chosenSubprotocol != "" {
				break
			}
		}
		// Some charge point firmwares omit the subprotocol header entirely.
		// Advertise ours anyway rather than refusing the connection.
		if chosenSubprotocol == "" && len(offered) == 0 {
			chosenSubprotocol = u.Subprotocols[0]
		}
		if chosenSubprotocol == "" {
			return nil, errors.New("ws: required subprotocol not offered")
		}
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, errors.New("ws: response writer does not support hijacking")
	}

	netConn, buf, err := hj.Hijack()
	if err != nil {
		return nil, fmt.Errorf("ws: hijack failed: %w", err)
	}

	accept := computeAcceptKey(key)

	if responseHeader == nil {
		responseHeader = http.Header{}
	}
	responseHeader.Set("Upgrade", "websocket")
	responseHeader.Set("Connection", "Upgrade")
	responseHeader.Set("Sec-WebSocket-Accept", accept)
	if chosenSubprotocol != "" {
		responseHeader.Set("Sec-WebSocket-Protocol", chosenSubprotocol)
	}

	if err := writeHandshake(buf.Writer, responseHeader); err != nil {
		netConn.Close()
		return nil, err
	}

	return newConn(netConn, bufio.NewReadWriter(buf.Reader, buf.Writer), chosenSubprotocol), nil
}

func headerContainsToken(h http.Header, key, token string) bool {
	values := h[http.CanonicalHeaderKey(key)]
	if len(values) == 0 {
		values = []string{h.Get(key)}
	}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func parseSubprotocols(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}

func computeAcceptKey(key string) string {
	const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	h := sha1.Sum([]byte(key + magicGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

func writeHandshake(w *bufio.Writer, headers http.Header) error {
	if _, err := w.WriteString("HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	for k, vals := range headers {
		for _, v := range vals {
			if _, err := w.WriteString(k + ": " + v + "\r\n"); err != nil {
				return err
			}
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}
