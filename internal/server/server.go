// Package server exposes the board over HTTP: a small REST surface for
// durable objects, a diagram generation endpoint and a websocket relay for
// the realtime channels.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"openboard/internal/board"
	"openboard/internal/bus"
	"openboard/internal/layout"
	"openboard/internal/store"
)

// Server wraps HTTP handlers and configuration.
type Server struct {
	cfg    Config
	logger *slog.Logger
	store  store.Store
	bus    bus.Bus
	engine *layout.Engine

	router          *mux.Router
	upgrader        websocket.Upgrader
	allowedOrigins  []string
	allowAllOrigins bool

	mu    sync.Mutex
	conns map[*wsClient]struct{}
}

// New constructs a Server with routes and middleware configured.
func New(cfg Config, st store.Store, b bus.Bus, logger *slog.Logger) *Server {
	srv := &Server{
		cfg:            cfg,
		logger:         logger,
		store:          st,
		bus:            b,
		engine:         layout.NewEngine(logger),
		router:         mux.NewRouter(),
		allowedOrigins: cfg.AllowedOrigins,
		conns:          make(map[*wsClient]struct{}),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			srv.allowAllOrigins = true
		}
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return srv.matchOrigin(r.Header.Get("Origin")) != ""
		},
	}

	srv.routes()
	return srv
}

// Handler returns the configured HTTP handler, wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.loggingMiddleware(s.router))
}

// Run serves until the context is canceled, then shuts down gracefully and
// closes any remaining websocket connections.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/boards/{boardID}/objects", s.handleListObjects).Methods(http.MethodGet)
	s.router.HandleFunc("/boards/{boardID}/objects", s.handleCreateObject).Methods(http.MethodPost)
	s.router.HandleFunc("/boards/{boardID}/objects/{objectID}", s.handleUpdateObject).Methods(http.MethodPut)
	s.router.HandleFunc("/boards/{boardID}/objects/{objectID}", s.handleDeleteObject).Methods(http.MethodDelete)
	s.router.HandleFunc("/boards/{boardID}/diagram", s.handleDiagram).Methods(http.MethodPost)

	s.router.HandleFunc("/ws/boards/{boardID}", s.handleWebsocket)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Hijack forwards to the underlying ResponseWriter so websocket upgrades
// still work behind the logging wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	objects, err := s.store.ListObjects(r.Context(), boardID)
	if err != nil {
		s.logger.Error("list objects", slog.String("board", boardID), slog.String("error", err.Error()))
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	if objects == nil {
		objects = []board.Object{}
	}
	writeJSON(w, http.StatusOK, objects)
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]

	var obj board.Object
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if obj.Type == "" {
		http.Error(w, "missing object type", http.StatusBadRequest)
		return
	}
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}

	if err := s.store.UpsertObject(r.Context(), boardID, obj); err != nil {
		s.logger.Error("create object", slog.String("board", boardID), slog.String("error", err.Error()))
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

func (s *Server) handleUpdateObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	boardID, objectID := vars["boardID"], vars["objectID"]

	var obj board.Object
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if obj.ID != "" && obj.ID != objectID {
		http.Error(w, "object id mismatch", http.StatusBadRequest)
		return
	}
	obj.ID = objectID

	if err := s.store.UpsertObject(r.Context(), boardID, obj); err != nil {
		s.logger.Error("update object", slog.String("object", objectID), slog.String("error", err.Error()))
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	objectID := mux.Vars(r)["objectID"]
	if err := s.store.DeleteObject(r.Context(), objectID); err != nil {
		s.logger.Error("delete object", slog.String("object", objectID), slog.String("error", err.Error()))
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type diagramRequest struct {
	Prompt string `json:"prompt"`
	Nodes  []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	} `json:"nodes"`
	Edges []struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"edges"`
	Center board.Point `json:"center"`
}

// handleDiagram lays out the submitted nodes and writes them to the board as
// rectangles plus connectors. Template archetypes (swot, kanban) are refused
// so the client expands its fixed template instead.
func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]

	var req diagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Nodes) == 0 {
		http.Error(w, "no nodes", http.StatusBadRequest)
		return
	}

	nodes := make([]layout.Node, len(req.Nodes))
	labels := make(map[string]string, len(req.Nodes))
	for i, n := range req.Nodes {
		nodes[i] = layout.Node{ID: n.ID, Label: n.Label}
		labels[n.ID] = n.Label
	}
	edges := make([]layout.Edge, len(req.Edges))
	for i, e := range req.Edges {
		edges[i] = layout.Edge{From: e.From, To: e.To}
	}

	result, err := s.engine.Layout(r.Context(), layout.Request{
		Nodes:     nodes,
		Edges:     edges,
		Archetype: layout.Detect(req.Prompt),
		Center:    req.Center,
	})
	if errors.Is(err, layout.ErrTemplateArchetype) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		s.logger.Error("diagram layout", slog.String("board", boardID), slog.String("error", err.Error()))
		http.Error(w, "layout failed", http.StatusInternalServerError)
		return
	}

	created := make([]board.Object, 0, len(result.Nodes)+len(result.Anchors))
	objectIDs := make(map[string]string, len(result.Nodes))
	for _, p := range result.Nodes {
		obj := board.Object{
			ID:     uuid.NewString(),
			Type:   board.TypeRectangle,
			X:      p.X,
			Y:      p.Y,
			Width:  p.Width,
			Height: p.Height,
			Text:   labels[p.ID],
		}
		if err := s.store.UpsertObject(r.Context(), boardID, obj); err != nil {
			s.logger.Error("diagram write", slog.String("board", boardID), slog.String("error", err.Error()))
			http.Error(w, "write failed", http.StatusInternalServerError)
			return
		}
		objectIDs[p.ID] = obj.ID
		created = append(created, obj)
	}
	for _, a := range result.Anchors {
		obj := board.Object{
			ID:            uuid.NewString(),
			Type:          board.TypeConnector,
			StartObjectID: objectIDs[a.From],
			EndObjectID:   objectIDs[a.To],
			Style:         board.StyleCurved,
			ArrowEnd:      true,
		}
		if err := s.store.UpsertObject(r.Context(), boardID, obj); err != nil {
			s.logger.Error("diagram write", slog.String("board", boardID), slog.String("error", err.Error()))
			http.Error(w, "write failed", http.StatusInternalServerError)
			return
		}
		created = append(created, obj)
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) matchOrigin(origin string) string {
	if origin == "" {
		if s.allowAllOrigins {
			return "*"
		}
		return ""
	}
	for _, allowed := range s.allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return allowed
		}
	}
	if s.allowAllOrigins {
		return "*"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
