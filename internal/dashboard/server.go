// Package dashboard serves a read-only web view of the pipeline progress.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/TioPig/Proyecto-Traduccion-Tiempo-Real/internal/checkpoint"
)

//go:embed static/index.html
var static embed.FS

const (
	writeWait       = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Reader reads the current checkpoint.
type Reader interface {
	Read() (checkpoint.Checkpoint, error)
}

// Server serves the progress view over HTTP and pushes changes to websocket
// clients.
type Server struct {
	reader   Reader
	logger   *slog.Logger
	poll     time.Duration
	hub      *hub
	upgrader websocket.Upgrader
	handler  http.Handler
}

// New creates a server that re-reads the checkpoint every poll interval.
func New(reader Reader, logger *slog.Logger, poll time.Duration) *Server {
	if poll <= 0 {
		poll = time.Second
	}
	s := &Server{
		reader: reader,
		logger: logger,
		poll:   poll,
		hub:    newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /update_progress", s.handleProgress)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	s.handler = RecoverMiddleware(logger)(LoggingMiddleware(logger)(mux))
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// View reads the checkpoint and projects it. A missing or unreadable file
// yields the not-started view.
func (s *Server) View() checkpoint.View {
	cp, err := s.reader.Read()
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			s.logger.Warn("cannot read progress", "error", err)
		}
		return checkpoint.NotStartedView()
	}
	return checkpoint.NewView(cp)
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("dashboard available", "url", "http://"+ln.Addr().String()+"/")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.watch(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("dashboard stopped")
		return nil
	})
	return g.Wait()
}

// watch publishes the view whenever it changes.
func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	msg, err := json.Marshal(s.View())
	if err != nil {
		s.logger.Error("encode view", "error", err)
		return
	}
	if s.hub.publish(msg) {
		s.logger.Debug("progress changed", "clients", s.hub.count())
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.View()); err != nil {
		s.logger.Warn("write progress response", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := s.hub.add()
	defer s.hub.remove(c)

	// The first message is the current view even before the poller runs.
	if msg, err := json.Marshal(s.View()); err == nil {
		if err := s.write(conn, msg); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		case msg := <-c.send:
			if err := s.write(conn, msg); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, msg []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}
