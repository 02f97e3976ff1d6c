package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/synqx/core/internal/apperrors"
	"github.com/synqx/core/internal/pubsub"
)

// upgrader accepts any origin; corsMiddleware already gates browser
// callers and the streaming endpoints sit behind requireAPIToken.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamEvents upgrades the connection and forwards every Event on sub
// until the client disconnects or the request context is cancelled.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sub *pubsub.Subscription) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	defer sub.Close()

	ctx := r.Context()
	events := sub.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// handleJobProgressWS streams a single job's step-progress events (§6 "WS
// /stream/jobs/{id}") for a live run-detail view.
func (s *Server) handleJobProgressWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Publisher == nil {
		writeError(w, r, apperrors.Configuration("publisher", "progress streaming is not configured"))
		return
	}
	id := muxVar(r, "id")
	sub := s.deps.Publisher.Subscribe(r.Context(), pubsub.JobTopic(id))
	s.streamEvents(w, r, sub)
}

// handleWorkspaceLogsWS streams a workspace's aggregate log tail (§6 "WS
// /stream/workspaces/{workspace_id}/logs") across every job currently
// running in it.
func (s *Server) handleWorkspaceLogsWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Publisher == nil {
		writeError(w, r, apperrors.Configuration("publisher", "progress streaming is not configured"))
		return
	}
	workspaceID := muxVar(r, "workspace_id")
	sub := s.deps.Publisher.Subscribe(r.Context(), pubsub.WorkspaceLogTopic(workspaceID))
	s.streamEvents(w, r, sub)
}
