package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/itohio/opmlog/pkg/acquire"
	"github.com/itohio/opmlog/pkg/config"
	"github.com/itohio/opmlog/pkg/display"
)

var _ display.Sink = (*Server)(nil)

const (
	broadcastBuffer = 256
	shutdownTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server publishes acquisition runs to websocket clients and exposes the
// latest batch over HTTP.
type Server struct {
	cfg     config.StreamConfig
	engine  *gin.Engine
	httpSrv *http.Server
	addr    string

	clients    map[*client]struct{} // Owned by the hub goroutine
	broadcast  chan *Message
	register   chan *client
	unregister chan *client
	quit       chan struct{}
	hubDone    chan struct{}
	closeOnce  sync.Once

	connections atomic.Int32

	stateMu sync.RWMutex
	run     *Message
	latest  *Message
}

// New creates the server and starts its hub. Call Start to listen.
func New(cfg config.StreamConfig) *Server {
	var engine *gin.Engine
	if cfg.Debug {
		engine = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		engine = gin.New()
		engine.Use(gin.Recovery())
	}

	s := &Server{
		cfg:        cfg,
		engine:     engine,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan *Message, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		quit:       make(chan struct{}),
		hubDone:    make(chan struct{}),
	}
	s.setupRoutes()

	go s.hub()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/latest", s.getLatest)
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.addr = ln.Addr().String()
	s.httpSrv = &http.Server{Handler: s.engine}

	log.Printf("streaming on http://%s", s.addr)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("stream server stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	return s.addr
}

// Close stops the HTTP server and disconnects all clients.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = s.httpSrv.Shutdown(ctx)
		}
		close(s.quit)
		<-s.hubDone
	})
	return err
}

// Connections returns the number of connected websocket clients.
func (s *Server) Connections() int {
	return int(s.connections.Load())
}

// BeginRun announces a new run.
func (s *Server) BeginRun(cfg acquire.Config, simulate bool) error {
	return s.publish(runMessage(cfg, simulate))
}

// Record pushes a batch to the clients.
func (s *Server) Record(b acquire.Batch) error {
	return s.publish(batchMessage(b))
}

// EndRun announces the end of the run.
func (s *Server) EndRun() error {
	return s.publish(&Message{Type: TypeEnd})
}

// publish queues msg for the hub without blocking the acquisition.
func (s *Server) publish(msg *Message) error {
	select {
	case <-s.quit:
		return errors.New("stream server closed")
	default:
	}

	select {
	case s.broadcast <- msg:
		return nil
	default:
		return fmt.Errorf("stream queue full, dropped %s message", msg.Type)
	}
}

// hub owns the client set and fans messages out.
func (s *Server) hub() {
	defer close(s.hubDone)

	for {
		select {
		case <-s.quit:
			for c := range s.clients {
				s.drop(c)
			}
			return

		case c := <-s.register:
			s.clients[c] = struct{}{}
			s.connections.Store(int32(len(s.clients)))

			s.stateMu.RLock()
			for _, m := range []*Message{s.run, s.latest} {
				if m != nil {
					c.send <- m
				}
			}
			s.stateMu.RUnlock()

		case c := <-s.unregister:
			if _, ok := s.clients[c]; ok {
				s.drop(c)
			}

		case msg := <-s.broadcast:
			s.remember(msg)
			for c := range s.clients {
				select {
				case c.send <- msg:
				default:
					log.Printf("websocket client too slow, disconnecting")
					s.drop(c)
				}
			}
		}
	}
}

func (s *Server) drop(c *client) {
	delete(s.clients, c)
	close(c.send)
	s.connections.Store(int32(len(s.clients)))
}

func (s *Server) remember(msg *Message) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch msg.Type {
	case TypeRun:
		s.run, s.latest = msg, nil
	case TypeBatch:
		s.latest = msg
	case TypeEnd:
		s.run = nil
	}
}

func (s *Server) unregisterClient(c *client) {
	select {
	case s.unregister <- c:
	case <-s.quit:
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("failed to upgrade websocket: %v", err)
		return
	}

	cl := &client{srv: s, conn: conn, send: make(chan *Message, sendBuffer)}
	select {
	case s.register <- cl:
	case <-s.quit:
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

func (s *Server) getHealth(c *gin.Context) {
	s.stateMu.RLock()
	running := s.run != nil
	var seq uint64
	if s.latest != nil {
		seq = s.latest.Seq
	}
	s.stateMu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.Connections(),
		"running":     running,
		"latest_seq":  seq,
	})
}

func (s *Server) getLatest(c *gin.Context) {
	s.stateMu.RLock()
	latest := s.latest
	s.stateMu.RUnlock()

	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no batch yet"})
		return
	}
	c.JSON(http.StatusOK, latest)
}
