package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voxelrelay.ai/internal/netsys"
	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/sim/encoding"
	"voxelrelay.ai/internal/sim/tuning"
	"voxelrelay.ai/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	// maxInboundFrame caps one client frame as read off the socket.
	maxInboundFrame = 1 << 20
)

// Sessions is what the transport needs from the session manager.
type Sessions interface {
	Join(ctx context.Context, req netsys.JoinRequest) (*replication.Session, error)
	Leave(id string)
	Tuning() tuning.Tuning
}

type Server struct {
	sessions Sessions
	log      *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(m Sessions, logger *log.Logger) *Server {
	return &Server{
		sessions: m,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.SetReadLimit(maxInboundFrame)

		c, sess := s.handshake(r.Context(), ws)
		if sess == nil {
			return
		}

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			c.writeLoop()
		}()

		// Reader loop.
		for {
			_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
			kind, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			raw, err := c.decode(kind, msg)
			if errors.Is(err, encoding.ErrFrameTooLarge) {
				s.log.Printf("WARN session %s: dropping client: %v", sess.ID(), err)
				break
			}
			if err != nil {
				s.log.Printf("WARN session %s: bad frame: %v", sess.ID(), err)
				continue
			}
			base, err := protocol.DecodeBase(raw)
			if err != nil || base.Type != protocol.TypeNet {
				continue
			}
			sess.MessageReceived(raw)
		}

		// Cleanup.
		_ = sess.Close()
		s.sessions.Leave(sess.ID())
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handshake(ctx context.Context, ws *websocket.Conn) (*conn, *replication.Session) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject(ws, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(ws, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		reject(ws, protocol.ErrProtoVersion, "bad protocol_version")
		return nil, nil
	}
	vd, err := replication.ParseViewDistance(hello.ViewDistance)
	if err != nil {
		reject(ws, protocol.ErrBadRequest, err.Error())
		return nil, nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ < 0 {
		maxQ = 0
	}
	c := newConn(ws, hello.Capabilities.Zstd, maxQ)

	jctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	sess, err := s.sessions.Join(jctx, netsys.JoinRequest{
		Name:         hello.Name,
		Color:        hello.Color,
		ViewDistance: vd,
		Transport:    c,
	})
	if err != nil {
		code := protocol.ErrServerBusy
		if errors.Is(err, replication.ErrClosed) {
			code = protocol.ErrServerClosing
		}
		s.log.Printf("WARN join %q: %v", hello.Name, err)
		reject(ws, code, "join failed")
		return nil, nil
	}

	t := s.sessions.Tuning()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.ID(),
		CharacterNetID:  uint32(sess.Character().NetID()),
		Color:           sess.Color(),
		WorldParams: protocol.WorldParams{
			TickRateHz:    t.TickRateHz,
			NetTickRateHz: t.TickRateHz / t.NetTickEvery,
			RegionSize:    world.RegionSize.Array(),
			Seed:          t.Seed,
		},
		Zstd: c.zstd,
	}
	// WELCOME is always plain JSON so the client can learn the framing.
	if err := writeJSON(ws, welcome); err != nil {
		_ = sess.Close()
		s.sessions.Leave(sess.ID())
		return nil, nil
	}
	s.log.Printf("session %s connected (zstd=%v view=%s)", sess.ID(), c.zstd, vd)
	return c, sess
}

func reject(ws *websocket.Conn, code, message string) {
	_ = writeJSON(ws, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(time.Second))
}

func writeJSON(ws *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, b)
}
