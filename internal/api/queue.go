package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// commandView is the JSON form of a queued command.
type commandView struct {
	LightID uint32               `json:"light_id"`
	GroupID uint32               `json:"group_id,omitempty"`
	Opcode  string               `json:"opcode"`
	State   *protocol.LightState `json:"state,omitempty"`
}

// sessionView is the JSON form of the advertisement on air.
type sessionView struct {
	commandView
	Sequence  uint8  `json:"sequence"`
	StartedAt string `json:"started_at"`
}

func newCommandView(cmd protocol.Command) commandView {
	v := commandView{LightID: cmd.Target, Opcode: cmd.Op.String()}
	switch cmd.Op {
	case protocol.OpPair:
		v.GroupID = cmd.Group
	case protocol.OpSetState:
		state := cmd.State
		v.State = &state
	}
	return v
}

// handleGetQueue returns the pending commands, the session on air and the
// scheduler counters.
func (s *Server) handleGetQueue(w http.ResponseWriter, _ *http.Request) {
	pending := s.mesh.Pending()
	views := make([]commandView, 0, len(pending))
	for _, cmd := range pending {
		views = append(views, newCommandView(cmd))
	}

	resp := map[string]any{
		"pending": views,
		"stats":   s.mesh.GetMetrics().Stats,
	}
	if session, ok := s.mesh.Current(); ok {
		resp["current"] = newSessionView(session)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClearQueue discards every pending command. The session on air is
// left to finish.
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	n := s.mesh.ClearQueue(r.Context())
	s.logger.Info("command queue cleared", "cleared", n, "client_id", clientFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func newSessionView(session mesh.Session) sessionView {
	return sessionView{
		commandView: newCommandView(session.Command),
		Sequence:    session.Sequence,
		StartedAt:   session.StartedAt.UTC().Format(time.RFC3339Nano),
	}
}
