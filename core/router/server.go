package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"botfleet/core/bots"
	"botfleet/core/config"
	"botfleet/core/logger"
)

const maxUpdateBody = 1 << 20

// Server terminates the platform's webhook calls for every hosted bot and
// hands decoded updates to the Router. Whatever happens inside dispatch, a
// resolvable webhook call is acknowledged with 200 so the platform does not
// retry updates we have already seen.
type Server struct {
	cfg    config.ServerConfig
	bots   *bots.Registry
	router *Router
	srv    *http.Server
}

// NewServer builds the HTTP front for the given router.
func NewServer(cfg config.ServerConfig, registry *bots.Registry, router *Router) *Server {
	s := &Server{cfg: cfg, bots: registry, router: router}

	m := mux.NewRouter()
	m.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	m.HandleFunc("/webhook/{bot_username}", s.handleWebhook).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Listen, cfg.Port),
		Handler:           m,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Handler exposes the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// background broadcast runs.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "http", "listen", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.srv.Shutdown(shutdownCtx)
		s.router.Drain()
		return err
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWebhook(w http.ResponseWriter, req *http.Request) {
	username := mux.Vars(req)["bot_username"]
	ctx := req.Context()

	var upd tele.Update
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxUpdateBody))
	if err := dec.Decode(&upd); err != nil {
		logger.Warn(ctx, "http", "webhook.malformed",
			slog.String("bot_username", username),
			slog.String("error", err.Error()),
		)
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}

	bot, client, err := s.bots.Resolve(ctx, username)
	if errors.Is(err, bots.ErrBotNotFound) {
		logger.Warn(ctx, "http", "webhook.unknown_bot",
			slog.String("bot_username", username),
		)
		http.Error(w, "unknown bot", http.StatusNotFound)
		return
	}
	if err != nil {
		// Registry trouble is ours, not the platform's; acknowledge so the
		// update is not redelivered in a tight loop.
		logger.Error(ctx, "http", "webhook.resolve.fail",
			slog.String("bot_username", username),
			slog.String("error", err.Error()),
		)
		s.ack(w)
		return
	}

	// Dispatch errors are logged inside the chain; the platform only needs
	// the acknowledgement.
	_ = s.router.HandleUpdate(ctx, bot, client, upd)
	s.ack(w)
}

func (s *Server) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}
