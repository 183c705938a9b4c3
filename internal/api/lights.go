package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-fastcon/internal/bridges/fastcon"
	"github.com/nerrad567/gray-logic-fastcon/internal/lights"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// sourceAPI tags journal rows for commands submitted over HTTP.
const sourceAPI = "api"

// maxLightNameLength bounds display names.
const maxLightNameLength = 100

// renameRequest is the body for PATCH /lights/{id}.
type renameRequest struct {
	Name string `json:"name"`
}

// pairRequest is the optional body for POST /lights/{id}/pair.
type pairRequest struct {
	GroupID uint32 `json:"group_id"`
}

// actionResponse is returned when a command is accepted into the queue.
type actionResponse struct {
	Status     string `json:"status"`
	LightID    uint32 `json:"light_id"`
	Opcode     string `json:"opcode"`
	JournalID  string `json:"journal_id"`
	QueueDepth int    `json:"queue_depth"`
}

// handleListLights returns every light in the registry.
func (s *Server) handleListLights(w http.ResponseWriter, r *http.Request) {
	list, err := s.lights.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list lights", "error", err)
		writeInternalError(w, "failed to list lights")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lights": list,
		"count":  len(list),
	})
}

// handleGetLight returns one light.
func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	id, ok := lightIDParam(w, r)
	if !ok {
		return
	}

	light, err := s.lights.Get(r.Context(), id)
	if err != nil {
		s.writeLightError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, light)
}

// handleRenameLight sets a light's display name.
func (s *Server) handleRenameLight(w http.ResponseWriter, r *http.Request) {
	id, ok := lightIDParam(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxLightNameLength {
		writeValidationError(w, "name must be 1-100 characters")
		return
	}

	if err := s.lights.Rename(r.Context(), id, req.Name); err != nil {
		s.writeLightError(w, id, err)
		return
	}

	light, err := s.lights.Get(r.Context(), id)
	if err != nil {
		s.writeLightError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, light)
}

// handleDeleteLight removes a light from the registry. Nothing is sent to
// the mesh; use factory-reset to unpair the bulb itself.
func (s *Server) handleDeleteLight(w http.ResponseWriter, r *http.Request) {
	id, ok := lightIDParam(w, r)
	if !ok {
		return
	}
	if err := s.lights.Delete(r.Context(), id); err != nil {
		s.writeLightError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePairLight queues a pair command. The body is optional; group_id
// defaults to the mesh default group.
func (s *Server) handlePairLight(w http.ResponseWriter, r *http.Request) {
	id, ok := lightIDParam(w, r)
	if !ok {
		return
	}

	var req pairRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	receipt, err := s.mesh.PairDevice(r.Context(), id, req.GroupID, sourceAPI)
	s.writeReceipt(w, receipt, err)
}

// handleFactoryReset queues a factory reset command.
func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	id, ok := lightIDParam(w, r)
	if !ok {
		return
	}
	receipt, err := s.mesh.FactoryReset(r.Context(), id, sourceAPI)
	s.writeReceipt(w, receipt, err)
}

// handleSetState queues a state change. The body is a light state.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	id, ok := lightIDParam(w, r)
	if !ok {
		return
	}

	var state protocol.LightState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeBadRequest(w, "invalid light state: "+err.Error())
		return
	}

	receipt, err := s.mesh.SetState(r.Context(), id, state, sourceAPI)
	s.writeReceipt(w, receipt, err)
}

// writeReceipt maps an action result to a response. Accepted commands get
// 202 because the light only sees them once the scheduler reaches them.
func (s *Server) writeReceipt(w http.ResponseWriter, receipt fastcon.Receipt, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, actionResponse{
			Status:     string(fastcon.AckQueued),
			LightID:    receipt.Command.Target,
			Opcode:     receipt.Command.Op.String(),
			JournalID:  receipt.JournalID,
			QueueDepth: receipt.QueueDepth,
		})
	case errors.Is(err, mesh.ErrQueueFull):
		writeQueueFull(w, "command queue is full")
	case errors.Is(err, mesh.ErrInvalidCommand):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("failed to submit command", "error", err)
		writeInternalError(w, "failed to submit command")
	}
}

// writeLightError maps registry errors to responses.
func (s *Server) writeLightError(w http.ResponseWriter, id uint32, err error) {
	switch {
	case errors.Is(err, lights.ErrLightNotFound):
		writeNotFound(w, "light not found")
	case errors.Is(err, lights.ErrInvalidLight):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("light registry error", "light_id", id, "error", err)
		writeInternalError(w, "light registry error")
	}
}

// lightIDParam parses the {id} path parameter. It writes a 400 and returns
// false when the id is not a light address.
func lightIDParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id > uint64(protocol.MaxLightID) {
		writeBadRequest(w, "light id must be an integer between 0 and 4095")
		return 0, false
	}
	return uint32(id), true
}
