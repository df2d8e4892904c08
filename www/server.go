package www

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/janneh/batteryctl-go/config"
	"github.com/janneh/batteryctl-go/database"
	"github.com/janneh/batteryctl-go/types"
)

type Server struct {
	logger *slog.Logger
	config config.AppConfigApi
	db     *database.Database
	hub    *Hub
	tm     *TemplateManager
}

func StartServer(db *database.Database, cnfg config.AppConfigApi) *Server {
	logger := slog.Default().With("module", "www")
	tm, err := NewTemplateManager(logger, cnfg.WwwDir)
	if err != nil {
		// A broken www_dir would otherwise surface as a nil deref on the
		// first page request; fail at startup like the other config errors.
		panic(fmt.Sprintf("template manager initialization error: %v", err))
	}

	s := &Server{
		logger: logger,
		config: cnfg,
		db:     db,
		hub:    NewHub(logger),
		tm:     tm,
	}

	go s.hub.Run()

	logReqMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.String("remoteAddr", r.RemoteAddr))
			next.ServeHTTP(w, r)
		})
	}

	http.Handle("/", logReqMW(http.HandlerFunc(s.handleStatusPage)))
	http.Handle("/api/snapshot", logReqMW(http.HandlerFunc(s.handleSnapshot)))
	http.Handle("/api/history", logReqMW(http.HandlerFunc(s.handleHistory)))
	http.Handle("/api/backtest", logReqMW(http.HandlerFunc(s.handleBacktest)))
	http.Handle("/api/log", logReqMW(http.HandlerFunc(s.handleLog)))

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		name := r.Header.Get("User-Agent")
		client, err := NewClient(s.hub, w, r, name)
		if err != nil {
			s.logger.Error("new websocket client failed", slog.Any("error", err))
			return
		}
		s.hub.Register <- client
		go client.WritePump()
	})

	return s
}

// PushSnapshot broadcasts a freshly persisted snapshot to all connected
// websocket clients.
func (s *Server) PushSnapshot(snapshot *types.SnapshotPayload) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Error("can't marshal snapshot for broadcast", slog.Any("error", err))
		return
	}
	s.hub.Broadcast <- payload
}

func (s *Server) Run(ctx context.Context) {
	s.logger.Info("starting server...", "port", s.config.Port)
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
	}

	srvErrors := make(chan error, 1)

	go func() {
		srvErrors <- srv.ListenAndServe()
	}()

	for {
		select {
		case err := <-srvErrors:
			if err != nil {
				s.logger.Error("server error", slog.Any("error", err))
			}

		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			if err != nil {
				s.logger.Error("server shutdown failed", slog.Any("error", err))
			}
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("writing json response failed", slog.Any("error", err))
	}
}
