// Package server implements the ingest side of the streaming
// protocol: it accepts one websocket per client, assigns a session,
// spools each inbound binary frame as a standalone WAV file, and
// answers with control envelopes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/quillaudio/quill/audio"
	"github.com/quillaudio/quill/scribe"
	"github.com/quillaudio/quill/transport"
)

const (
	writeWait = 10 * time.Second

	// Frames larger than this are not plausible chunk containers.
	maxFrameBytes = 32 << 20
)

// Config for the ingest server.
type Config struct {
	Addr     string
	Token    string
	SpoolDir string
}

// Server owns the HTTP router, the websocket ingest endpoint, and the
// session registry.
type Server struct {
	cfg      Config
	registry *Registry
	history  *scribe.Scribe // nil means ingest-only, no transcription
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func New(cfg Config, registry *Registry, sc *scribe.Scribe) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		history:  sc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // TODO: restrict to the meeting app origin
			},
		},
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.SpoolDir, 0755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleStream)
	router.HandleFunc("/api/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/sessions", s.handleListSessions).Methods("GET")
	router.HandleFunc("/api/sessions/{sessionID}/transcripts", s.handleTranscripts).Methods("GET")

	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: router}

	go func() {
		slog.Info("Ingest server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Debug("Ingest server shutting down")
	return s.httpSrv.Shutdown(context.Background())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
		slog.Warn("Rejected stream with bad token", "remoteAddr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	sess := &Session{
		ID:         uuid.New(),
		RemoteAddr: r.RemoteAddr,
		StartedAt:  time.Now(),
		conn:       conn,
	}

	spoolDir, err := s.sessionSpoolDir(sess.ID)
	if err != nil {
		slog.Error("Failed to create session spool", "error", err, "sessionID", sess.ID)
		conn.Close()
		return
	}
	sess.SpoolDir = spoolDir

	s.registry.Add(sess)
	slog.Info("Session connected", "sessionID", sess.ID, "remoteAddr", sess.RemoteAddr)

	if err := sess.send(transport.Connected{
		Type:      transport.TypeConnected,
		SessionID: sess.ID.String(),
	}); err != nil {
		slog.Error("Failed to send connected envelope", "error", err, "sessionID", sess.ID)
		s.dropSession(sess)
		return
	}

	s.readLoop(sess)
}

func (s *Server) readLoop(sess *Session) {
	defer s.dropSession(sess)

	sess.conn.SetReadLimit(maxFrameBytes)

	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Session closed", "sessionID", sess.ID)
			} else {
				slog.Error("Session read error", "error", err, "sessionID", sess.ID)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleSegment(sess, data)
		case websocket.TextMessage:
			slog.Debug("Ignoring inbound text frame",
				"sessionID", sess.ID,
				"bytes", len(data))
		}
	}
}

// handleSegment validates and spools one binary frame. Each frame must
// be a standalone decodable container; anything else is reported back
// as a server error without closing the connection.
func (s *Server) handleSegment(sess *Session, data []byte) {
	info, err := audio.Inspect(data)
	if err != nil {
		slog.Warn("Rejecting undecodable frame",
			"error", err,
			"sessionID", sess.ID,
			"bytes", len(data))
		sess.send(transport.ServerError{
			Type:    transport.TypeError,
			Message: fmt.Sprintf("undecodable segment: %v", err),
		})
		return
	}

	chunk := sess.nextChunk()
	name := fmt.Sprintf("seg_%06d.wav", chunk)
	path := filepath.Join(sess.SpoolDir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Error("Failed to spool segment",
			"error", err,
			"sessionID", sess.ID,
			"file", name)
		sess.send(transport.ServerError{
			Type:    transport.TypeError,
			Message: "failed to persist segment",
		})
		return
	}

	slog.Debug("Segment spooled",
		"sessionID", sess.ID,
		"chunk", chunk,
		"bytes", len(data),
		"duration", info.Duration)

	if err := sess.send(transport.Ack{
		Type:        transport.TypeAck,
		ChunkNumber: chunk,
		Size:        len(data),
	}); err != nil {
		slog.Error("Failed to ack chunk", "error", err, "sessionID", sess.ID)
	}
}

func (s *Server) dropSession(sess *Session) {
	sess.conn.Close()
	s.registry.Remove(sess.ID)
	slog.Info("Session disconnected", "sessionID", sess.ID, "remoteAddr", sess.RemoteAddr)
}

// sessionSpoolDir builds spool/<YYYYMMDD>/<sessionID>/ the way the
// scribe watcher expects to find it.
func (s *Server) sessionSpoolDir(id uuid.UUID) (string, error) {
	day := time.Now().Format("20060102")
	dir := filepath.Join(s.cfg.SpoolDir, day, id.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type sessionSummary struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionSummary{
			ID:         sess.ID.String(),
			RemoteAddr: sess.RemoteAddr,
			StartedAt:  sess.StartedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "Transcription not enabled", http.StatusNotFound)
		return
	}

	vars := mux.Vars(r)
	sessionID := vars["sessionID"]
	if _, err := uuid.Parse(sessionID); err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	entries, ok := s.history.History(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
