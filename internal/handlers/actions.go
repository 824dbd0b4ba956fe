package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/repositories"
	"github.com/resaleops/autopilot/internal/services"
)

type ActionHandler struct {
	actions   repositories.ActionRepository
	autopilot services.AutopilotService
}

func NewActionHandler(actions repositories.ActionRepository, autopilot services.AutopilotService) *ActionHandler {
	return &ActionHandler{actions: actions, autopilot: autopilot}
}

// HandleActions handles GET /api/actions
func (h *ActionHandler) HandleActions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := repositories.ActionFilter{
		UserID: q.Get("user_id"),
		Status: q.Get("status"),
	}
	if t := q.Get("action_type"); t != "" {
		at, ok := models.ParseActionType(t)
		if !ok {
			http.Error(w, "unknown action_type", http.StatusBadRequest)
			return
		}
		filter.ActionType = at
	}
	if v := q.Get("requires_approval"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "requires_approval must be a boolean", http.StatusBadRequest)
			return
		}
		filter.RequiresApproval = &b
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	actions, err := h.actions.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(actions)
}

// HandleAction handles GET /api/actions/{id}
func (h *ActionHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	action, err := h.actions.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if action == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(action)
}

// HandleApprove handles POST /api/actions/{id}/approve
func (h *ActionHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	action, err := h.autopilot.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	json.NewEncoder(w).Encode(action)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// HandleReject handles POST /api/actions/{id}/reject
func (h *ActionHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.autopilot.Reject(r.Context(), mux.Vars(r)["id"], req.Reason); err != nil {
		writeTriggerError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "rejected"})
}
