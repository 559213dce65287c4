package meshstream

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelforge.ai/internal/protocol"
	"voxelforge.ai/internal/sim/world/logic/mathx"
	"voxelforge.ai/internal/sim/world/terrain/store"
)

const MaxRadius = 16

type Info struct {
	Params   protocol.WorldParams
	Catalogs protocol.CatalogDigests
}

type Server struct {
	hub  *Hub
	info func() Info
	log  *log.Logger

	// Each re-SUBSCRIBE diffs the session region against every known mesh,
	// so sessions get a token bucket for them.
	ResubscribeRate  rate.Limit
	ResubscribeBurst int

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, info func() Info, logger *log.Logger) *Server {
	return &Server{
		hub:  hub,
		info: info,
		log:  logger,

		ResubscribeRate:  4,
		ResubscribeBurst: 8,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 256 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

type bootstrapResponse struct {
	ProtocolVersion string                  `json:"protocol_version"`
	WorldParams     protocol.WorldParams    `json:"world_params"`
	Catalogs        protocol.CatalogDigests `json:"catalogs"`
	Stream          HubStats                `json:"stream"`
}

// BootstrapHandler serves world parameters and stream stats to local tools.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		info := s.info()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(bootstrapResponse{
			ProtocolVersion: protocol.Version,
			WorldParams:     info.Params,
			Catalogs:        info.Catalogs,
			Stream:          s.hub.Stats(),
		})
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, code, reason := parseSubscribe(msg)
		if code != "" {
			s.reject(conn, code, reason)
			return
		}

		sid := uuid.NewString()
		info := s.info()
		welcome, _ := json.Marshal(protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       sid,
			WorldParams:     info.Params,
			Catalogs:        info.Catalogs,
		})
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		sess := s.hub.Subscribe(sid, centerOf(sub), sub.Radius, sub.MaxQueue)
		defer s.hub.Unsubscribe(sid)
		s.logf("[meshstream] session %s subscribed center=%v radius=%d", sid, sub.Center, sub.Radius)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.Out():
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		lim := rate.NewLimiter(s.ResubscribeRate, s.ResubscribeBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, code, _ := parseSubscribe(msg)
			if code != "" {
				continue
			}
			if !lim.Allow() {
				b, _ := json.Marshal(protocol.NewError(protocol.ErrRateLimit, "too many SUBSCRIBE messages"))
				sess.send(b)
				continue
			}
			s.hub.Resubscribe(sid, centerOf(sub), sub.Radius)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.logf("[meshstream] session %s closed", sid)
	}
}

func (s *Server) reject(conn *websocket.Conn, code, reason string) {
	b, _ := json.Marshal(protocol.NewError(code, reason))
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, b)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

// parseSubscribe decodes and normalizes a SUBSCRIBE; code is non-empty when
// the message must be rejected.
func parseSubscribe(msg []byte) (sub protocol.SubscribeMsg, code, reason string) {
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, protocol.ErrProtoBadRequest, "bad subscribe"
	}
	if sub.Type != protocol.TypeSubscribe {
		return sub, protocol.ErrProtoBadRequest, "expected SUBSCRIBE"
	}
	if sub.ProtocolVersion != protocol.Version {
		return sub, protocol.ErrProtoVersion, "unsupported protocol version"
	}
	sub.Radius = mathx.ClampInt(sub.Radius, 0, MaxRadius)
	return sub, "", ""
}

func centerOf(sub protocol.SubscribeMsg) store.ChunkPos {
	return store.ChunkPos{X: sub.Center[0], Y: sub.Center[1], Z: sub.Center[2]}
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
