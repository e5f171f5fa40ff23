package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/replication/queue"
	"voxelrelay.ai/internal/sim/encoding"
)

const writeTimeout = 5 * time.Second

// conn is the session's Transport over one websocket. Send only queues; a
// single writer goroutine owns the socket's write side.
type conn struct {
	ws   *websocket.Conn
	zstd bool
	// maxBacklog caps queued frames; zero means unbounded.
	maxBacklog int

	out  queue.Queue[[]byte]
	wake chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, zstd bool, maxBacklog int) *conn {
	return &conn{
		ws:         ws,
		zstd:       zstd,
		maxBacklog: maxBacklog,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (c *conn) Send(b []byte) error {
	select {
	case <-c.done:
		return replication.ErrClosed
	default:
	}
	if c.maxBacklog > 0 && c.out.Len() >= c.maxBacklog {
		return fmt.Errorf("egress backlog over %d frames", c.maxBacklog)
	}
	if c.zstd {
		b = encoding.CompressFrame(b)
	}
	c.out.Push(b)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close is idempotent. The writer flushes nothing further and shuts the
// socket, which unblocks the reader.
func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *conn) messageType() int {
	if c.zstd {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (c *conn) writeLoop() {
	defer func() {
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for _, b := range c.out.Drain() {
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(c.messageType(), b); err != nil {
				c.Close()
				return
			}
		}
	}
}

// decode turns one inbound frame into JSON bytes.
func (c *conn) decode(kind int, b []byte) ([]byte, error) {
	if kind == websocket.BinaryMessage {
		if !c.zstd {
			return nil, fmt.Errorf("binary frame without zstd")
		}
		return encoding.DecompressFrame(b)
	}
	return b, nil
}

var _ replication.Transport = (*conn)(nil)
