package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/repositories"
)

// LedgerService is the ledger surface the HTTP layer needs.
type LedgerService interface {
	Get(ctx context.Context, id string) (*models.AuditLog, error)
	List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error)
	Undo(ctx context.Context, auditID, source string) (*models.AuditLog, error)
}

type AuditHandler struct {
	ledger LedgerService
}

func NewAuditHandler(ledger LedgerService) *AuditHandler {
	return &AuditHandler{ledger: ledger}
}

// HandleAuditLogs handles GET /api/audit
func (h *AuditHandler) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := repositories.AuditFilter{
		UserID: q.Get("user_id"),
		ItemID: q.Get("item_id"),
		Source: q.Get("source"),
	}
	if t := q.Get("action_type"); t != "" {
		at, ok := models.ParseActionType(t)
		if !ok {
			http.Error(w, "unknown action_type", http.StatusBadRequest)
			return
		}
		filter.ActionType = at
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

	entries, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(entries)
}

// HandleAuditLog handles GET /api/audit/{id}
func (h *AuditHandler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entry, err := h.ledger.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(entry)
}

// HandleUndo handles POST /api/audit/{id}/undo
func (h *AuditHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	undoEntry, err := h.ledger.Undo(r.Context(), mux.Vars(r)["id"], models.SourceUser)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "not found"):
			http.Error(w, msg, http.StatusNotFound)
		case strings.Contains(msg, "not reversible"),
			strings.Contains(msg, "already undone"),
			strings.Contains(msg, "window expired"),
			strings.Contains(msg, "no before state"):
			http.Error(w, msg, http.StatusConflict)
		default:
			http.Error(w, msg, http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(undoEntry)
}
