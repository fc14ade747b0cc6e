// Package admin serves the recorder's status, latest frame and metrics over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tuw-telemetry/internal/metrics"
	"tuw-telemetry/internal/session"
	"tuw-telemetry/internal/telemetry"
	"tuw-telemetry/internal/wire"
)

// DefaultPushInterval is how often /live checks for a new frame.
const DefaultPushInterval = 50 * time.Millisecond

// Source is the part of the session controller the server reads.
type Source interface {
	Status() session.Status
	LiveFrame() []byte
	RequestFlush()
}

// Options configure a Server.
type Options struct {
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	PushInterval time.Duration
	// AllowedOrigins for CORS and websocket upgrades. Empty allows localhost.
	AllowedOrigins []string
}

type Server struct {
	src      Source
	opts     Options
	log      *slog.Logger
	router   *chi.Mux
	upgrader websocket.Upgrader
}

func NewServer(src Source, opts Options) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{src: src, opts: opts, log: log}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 8192,
		// Non-browser clients send no Origin; browsers are held to the CORS list.
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(origin, opts.AllowedOrigins)
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Get("/status", s.handleStatus)
	r.Get("/frame", s.handleFrame)
	r.Get("/live", s.handleLive)
	r.Post("/flush", s.handleFlush)
	if reg := s.opts.Metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	s.router = r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("admin server listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.src.Status())
}

// handleFrame returns the latest live frame decoded into a row, or the raw
// bytes with ?raw=1.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := s.src.LiveFrame()
	if len(frame) < wire.PrefixSize {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.URL.Query().Get("raw") == "1" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(frame)
		return
	}
	f, err := wire.DecodeFrame(frame[wire.PrefixSize:])
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	st := s.src.Status()
	writeJSON(w, http.StatusOK, telemetry.FromFrame(f, st.Session.ID, st.Session.Metadata.AreaID))
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	s.src.RequestFlush()
	writeJSON(w, http.StatusAccepted, map[string]bool{"requested": true})
}

// handleLive mirrors the live channel: each new frame is pushed as one
// binary message, prefix included.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()
	var last []byte
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame := s.src.LiveFrame()
			if len(frame) == 0 || sameFrame(frame, last) {
				continue
			}
			last = frame
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.log.Debug("live client dropped", "err", err)
				return
			}
		}
	}
}

// originAllowed matches origin against patterns holding at most one '*'.
func originAllowed(origin string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" || p == origin {
			return true
		}
		if pre, suf, ok := strings.Cut(p, "*"); ok &&
			len(origin) >= len(pre)+len(suf) && strings.HasPrefix(origin, pre) && strings.HasSuffix(origin, suf) {
			return true
		}
	}
	return false
}

// sameFrame compares by identity; the controller publishes a new slice per
// frame and never mutates an old one.
func sameFrame(a, b []byte) bool {
	return len(a) == len(b) && len(a) > 0 && &a[0] == &b[0]
}
