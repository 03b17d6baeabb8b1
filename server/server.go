// Package server exposes wiki generation over HTTP and WebSocket: a JSON API
// for submitting and reading wikis, and a hub that pushes generation progress
// to connected clients.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/forgedocs/wikiforge/ai"
	"github.com/forgedocs/wikiforge/ai/tracker"
	"github.com/forgedocs/wikiforge/config"
	"github.com/forgedocs/wikiforge/generator"
	"github.com/forgedocs/wikiforge/logger"
)

// maxClients caps concurrent WebSocket connections
const maxClients = 256

// Server hosts the HTTP API and the WebSocket progress hub
type Server struct {
	cfg       *config.Config
	registry  *ai.Registry
	generator *generator.Generator
	store     generator.ResultStore
	tracker   *tracker.Tracker

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan any

	mux        *http.ServeMux
	httpServer *http.Server

	mu             sync.RWMutex
	broadcastDrops atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *zap.SugaredLogger
}

// New assembles a server. tr may be nil when usage tracking is disabled.
func New(cfg *config.Config, registry *ai.Registry, gen *generator.Generator, store generator.ResultStore, tr *tracker.Tracker) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		registry:   registry,
		generator:  gen,
		store:      store,
		tracker:    tr,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan any, 256),
		mux:        http.NewServeMux(),
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.ComponentLogger("server"),
	}
	s.setupRoutes()
	return s
}

// Start runs the hub, the progress monitor and the HTTP listener. It blocks
// until the listener exits.
func (s *Server) Start() error {
	port := config.DefaultServerPort
	if s.cfg.Server.Port != nil {
		port = *s.cfg.Server.Port
	}

	s.wg.Add(2)
	go s.runHub()
	go s.monitorProgress()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infow("server listening", "port", port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener and tears down the hub and all clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	for client := range s.clients {
		client.close()
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// runHub owns the client set. All registration and broadcast fan-out goes
// through this loop so client channels are only written from one goroutine.
func (s *Server) runHub() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.handleRegister(client)
		case client := <-s.unregister:
			s.handleUnregister(client)
		case msg := <-s.broadcast:
			s.handleBroadcast(msg)
		}
	}
}

func (s *Server) handleRegister(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= maxClients {
		s.log.Warnw("client limit reached, rejecting connection", "client_id", client.id)
		client.close()
		return
	}
	s.clients[client] = true
	s.log.Debugw("client registered", "client_id", client.id, "clients", len(s.clients))
}

func (s *Server) handleUnregister(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.close()
		s.log.Debugw("client unregistered", "client_id", client.id, "clients", len(s.clients))
	}
}

// handleBroadcast fans a message out to every client. A client whose send
// buffer is full misses the message rather than stalling the hub.
func (s *Server) handleBroadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		select {
		case client.send <- msg:
		default:
			s.broadcastDrops.Add(1)
			s.log.Debugw("client send buffer full, dropping message", "client_id", client.id)
		}
	}
}

// progressEvent is the WebSocket envelope for generation progress
type progressEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// monitorProgress pipes generator progress into the wiki store and out to
// WebSocket clients.
func (s *Server) monitorProgress() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt := <-s.generator.Progress():
			select {
			case s.broadcast <- progressEvent{Type: "progress", Payload: evt}:
			default:
				s.broadcastDrops.Add(1)
			}
		}
	}
}
