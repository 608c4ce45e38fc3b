package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const simWriteTimeout = 200 * time.Millisecond

// Simulator serves packets to browser visualisers over websocket.
//
//	GET /ws      stream of {"t": unix nanos, "frame_id": n, "data": base64 packet}
//	GET /health  counters as JSON
type Simulator struct {
	name  string
	addr  string
	hello any
	link  *link

	mu       sync.RWMutex
	srv      *http.Server
	ln       net.Listener
	clients  map[uuid.UUID]*simClient
	frameID  uint64
	started  time.Time
	upgrader websocket.Upgrader
}

type simClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *simClient) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(simWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

type SimulatorConfig struct {
	// Addr is the listen address, e.g. ":8080". ":0" picks a free port.
	Addr string
	// Hello is marshalled and sent to every client when it joins.
	Hello any
}

type simFrame struct {
	T       int64  `json:"t"`
	FrameID uint64 `json:"frame_id"`
	Data    []byte `json:"data"`
}

func NewSimulator(name string, cfg SimulatorConfig, opts ...Option) *Simulator {
	if name == "" {
		name = "simulator"
	}
	return &Simulator{
		name:     name,
		addr:     cfg.Addr,
		hello:    cfg.Hello,
		link:     newLink(name, newSettings(opts)),
		clients:  map[uuid.UUID]*simClient{},
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *Simulator) Name() string { return s.name }

// Addr is the bound listen address once connected.
func (s *Simulator) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleFramesWS)
	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

func (s *Simulator) Connect(ctx context.Context) error {
	if !s.link.begin() {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		s.link.fail()
		return &ConnectionError{Sink: s.name, Err: err}
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.ln, s.srv, s.started = ln, srv, time.Now()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.link.log.Error().Err(err).Msg("simulator server stopped")
		}
	}()

	if !s.link.up(s.broadcast) {
		s.shutdown()
		return &ConnectionError{Sink: s.name, Err: ErrAborted}
	}
	s.link.log.Info().Str("addr", ln.Addr().String()).Msg("simulator listening")
	return nil
}

func (s *Simulator) Send(packet []byte) { s.link.send(packet) }

func (s *Simulator) Disconnect() {
	s.link.down(s.shutdown)
}

func (s *Simulator) IsHealthy(maxAge time.Duration) bool { return s.link.healthy(maxAge) }

func (s *Simulator) State() State { return s.link.current() }

func (s *Simulator) Stats() Stats { return s.link.stats() }

// Clients is the number of attached websocket clients.
func (s *Simulator) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Simulator) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &simClient{id: uuid.New(), conn: conn}
	if s.hello != nil {
		if b, err := json.Marshal(s.hello); err == nil {
			_ = c.write(b)
		}
	}
	s.mu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.mu.Unlock()
	s.link.log.Info().Str("client", c.id.String()).Int("clients", n).Msg("client attached")

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, c.id)
			s.mu.Unlock()
			conn.Close()
			s.link.log.Info().Str("client", c.id.String()).Msg("client detached")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Simulator) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.link.stats()
	s.mu.RLock()
	resp := map[string]any{
		"frame_id": s.frameID,
		"uptime_s": time.Since(s.started).Seconds(),
		"clients":  len(s.clients),
		"sent":     st.Sent,
		"dropped":  st.Dropped,
		"failed":   st.Failed,
		"state":    s.link.current().String(),
	}
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// broadcast never fails: a frame with no listeners still counts as written.
func (s *Simulator) broadcast(packet []byte) error {
	s.mu.Lock()
	s.frameID++
	id := s.frameID
	clients := make([]*simClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	b, err := json.Marshal(simFrame{T: time.Now().UnixNano(), FrameID: id, Data: packet})
	if err != nil {
		return err
	}
	for _, c := range clients {
		if err := c.write(b); err != nil {
			s.link.log.Debug().Err(err).Str("client", c.id.String()).Msg("write frame")
		}
	}
	return nil
}

func (s *Simulator) shutdown() {
	s.mu.Lock()
	srv := s.srv
	clients := s.clients
	s.srv, s.ln = nil, nil
	s.clients = map[uuid.UUID]*simClient{}
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
}
