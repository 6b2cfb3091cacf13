// Package status serves a read-only view of a running storage peer over
// HTTP: a JSON snapshot and a websocket stream of newly tracked ids.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/roach88/storagepeer/internal/link"
)

const writeTimeout = 5 * time.Second

// Peer is the peer state shown by /status.
type Peer interface {
	RegistryURL() link.Link
	ShareLink() string
	Workspaces() []link.Link
}

// Tracker reports what the crawler is tracking.
type Tracker interface {
	Documents() []link.Link
	Files() []link.Link
}

// Snapshot is the /status response body.
type Snapshot struct {
	RegistryURL string   `json:"registry_url"`
	ShareLink   string   `json:"share_link"`
	Workspaces  []string `json:"workspaces"`
	Documents   int      `json:"documents"`
	Files       int      `json:"files"`
	Clients     int      `json:"clients"`
}

// Server handles /health, /status and /events.
type Server struct {
	peer    Peer
	tracker Tracker
	events  *Broadcaster
	logger  *slog.Logger
}

// NewServer returns a status server. A nil logger uses slog.Default().
func NewServer(peer Peer, tracker Tracker, events *Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{peer: peer, tracker: tracker, events: events, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	switch r.URL.Path {
	case "/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case "/status":
		writeJSON(w, http.StatusOK, s.Snapshot())
	case "/events":
		s.handleEvents(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// Snapshot returns the current peer state.
func (s *Server) Snapshot() Snapshot {
	workspaces := s.peer.Workspaces()
	snap := Snapshot{
		RegistryURL: s.peer.RegistryURL().String(),
		ShareLink:   s.peer.ShareLink(),
		Workspaces:  make([]string, 0, len(workspaces)),
		Documents:   len(s.tracker.Documents()),
		Files:       len(s.tracker.Files()),
		Clients:     s.events.Subscribers(),
	}
	for _, ws := range workspaces {
		snap.Workspaces = append(snap.Workspaces, ws.String())
	}
	return snap
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	sub := s.events.subscribe()
	defer s.events.unsubscribe(sub)

	// Clients only listen; CloseRead handles their control frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.ch:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
