package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lifesupport.ai/internal/protocol"
)

type Config struct {
	MaxClients   int
	SendBuffer   int
	WriteTimeout time.Duration
	// AllowRemote accepts observers from non-loopback addresses.
	AllowRemote bool
}

type client struct {
	id     string
	name   string
	worlds map[string]bool
	out    chan []byte
	cancel context.CancelFunc
}

func (c *client) wants(world string) bool {
	if len(c.worlds) == 0 || world == "" {
		return true
	}
	return c.worlds[world]
}

// Hub streams zone events to websocket observers. It implements lifesupport.Sink.
// A client whose buffer is full is disconnected; publishers never block on it.
type Hub struct {
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	dropped atomic.Uint64
}

func NewHub(cfg Config, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 64
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]*client{},
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts observers disconnected for falling behind.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) WriteZoneEvent(ev protocol.ZoneEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.wants(ev.World) {
			continue
		}
		select {
		case c.out <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.dropped.Add(1)
		h.log.Printf("observer %s (%s) fell behind; disconnecting", c.id, c.name)
		h.leave(c.id)
	}
	return nil
}

func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.cfg.MaxClients {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		c.cancel()
	}
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = map[string]*client{}
	h.mu.Unlock()
	for _, c := range all {
		c.cancel()
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !h.cfg.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if h.Clients() >= h.cfg.MaxClients {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(protocol.ErrorResp{Code: protocol.ErrBusy, Message: "too many observers"})
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := h.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		c := &client{
			id:     uuid.NewString(),
			name:   hello.ObserverName,
			worlds: map[string]bool{},
			out:    make(chan []byte, h.cfg.SendBuffer),
			cancel: cancel,
		}
		for _, w := range hello.Worlds {
			if w = strings.TrimSpace(w); w != "" {
				c.worlds[w] = true
			}
		}
		if !h.join(c) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many observers"), time.Now().Add(time.Second))
			return
		}
		defer h.leave(c.id)

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       c.id,
			Worlds:          hello.Worlds,
		}
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := conn.WriteJSON(welcome); err != nil {
			return
		}
		h.log.Printf("observer %s (%s) connected from %s", c.id, c.name, r.RemoteAddr)

		// Reader: observers only send control frames; any read error ends the session.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
				h.log.Printf("observer %s disconnected", c.id)
				return
			case b := <-c.out:
				_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}

func (h *Hub) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, false
	}
	_ = conn.SetReadDeadline(time.Time{})
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello || base.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad hello"), time.Now().Add(time.Second))
		return hello, false
	}
	return hello, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
