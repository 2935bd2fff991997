package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/game"
)

// HeartbeatFrame is one client liveness report.
type HeartbeatFrame struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
}

// heartbeatAck is the per-frame reply.
type heartbeatAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// HeartbeatServer accepts websocket connections from match clients and
// feeds their heartbeat frames to the engine. This keeps the side's
// last-heartbeat fresh and clears any disconnect timer aimed at it.
type HeartbeatServer struct {
	engine   *game.Engine
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewHeartbeatServer creates the heartbeat endpoint.
func NewHeartbeatServer(engine *game.Engine, logger *zap.Logger) *HeartbeatServer {
	return &HeartbeatServer{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Auth and origin policy live in the platform gateway.
				return true
			},
		},
	}
}

// Handler returns the HTTP mux for the heartbeat endpoint.
func (s *HeartbeatServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/heartbeat", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves until the context is cancelled, then shuts down
// gracefully within the given timeout.
func (s *HeartbeatServer) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("heartbeat server listening", zap.String("address", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *HeartbeatServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("heartbeat client connected", zap.String("remote", remote))

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("heartbeat client dropped", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		var frame HeartbeatFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.writeAck(conn, heartbeatAck{Error: "malformed heartbeat frame"})
			continue
		}
		if frame.MatchID == "" || frame.PlayerID == "" {
			s.writeAck(conn, heartbeatAck{Error: "matchId and playerId are required"})
			continue
		}

		if err := s.engine.Heartbeat(r.Context(), frame.MatchID, frame.PlayerID); err != nil {
			switch {
			case errors.Is(err, game.ErrMatchNotFound):
				s.writeAck(conn, heartbeatAck{Error: "match not found"})
			case errors.Is(err, game.ErrMatchFinished):
				s.writeAck(conn, heartbeatAck{Error: "match finished"})
			default:
				s.logger.Error("heartbeat failed",
					zap.String("match_id", frame.MatchID),
					zap.String("player_id", frame.PlayerID),
					zap.Error(err),
				)
				s.writeAck(conn, heartbeatAck{Error: "internal error"})
			}
			continue
		}
		s.writeAck(conn, heartbeatAck{OK: true})
	}
}

func (s *HeartbeatServer) writeAck(conn *websocket.Conn, ack heartbeatAck) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ack); err != nil {
		s.logger.Debug("failed to write heartbeat ack", zap.Error(err))
	}
}
