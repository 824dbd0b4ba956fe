package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/resaleops/autopilot/internal/errors"
	"github.com/resaleops/autopilot/internal/services"
)

// TriggerHandler receives the four automation triggers as webhook-style POSTs.
type TriggerHandler struct {
	autopilot services.AutopilotService
}

func NewTriggerHandler(autopilot services.AutopilotService) *TriggerHandler {
	return &TriggerHandler{autopilot: autopilot}
}

// HandleOfferReceived handles POST /api/triggers/offer-received
func (h *TriggerHandler) HandleOfferReceived(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev services.OfferEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ev.UserID == "" || ev.ItemID == "" || ev.ListingID == "" {
		http.Error(w, "user_id, item_id and listing_id are required", http.StatusBadRequest)
		return
	}

	action, err := h.autopilot.HandleOfferReceived(r.Context(), ev)
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	if action == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(action)
}

// HandleRepriceCheck handles POST /api/triggers/reprice-check
func (h *TriggerHandler) HandleRepriceCheck(w http.ResponseWriter, r *http.Request) {
	h.handleSweep(w, r, h.autopilot.HandleRepriceCheck)
}

// HandleStaleCheck handles POST /api/triggers/stale-check
func (h *TriggerHandler) HandleStaleCheck(w http.ResponseWriter, r *http.Request) {
	h.handleSweep(w, r, h.autopilot.HandleStaleCheck)
}

// HandleOrderConfirmed handles POST /api/triggers/order-confirmed
func (h *TriggerHandler) HandleOrderConfirmed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev services.OrderEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ev.UserID == "" || ev.ItemID == "" || ev.SoldChannel == "" {
		http.Error(w, "user_id, item_id and sold_channel are required", http.StatusBadRequest)
		return
	}

	if err := h.autopilot.HandleOrderConfirmed(r.Context(), ev); err != nil {
		writeTriggerError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type sweepRequest struct {
	UserID string `json:"user_id"`
}

func (h *TriggerHandler) handleSweep(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, userID string) (*services.RunReport, error)) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	report, err := run(r.Context(), req.UserID)
	if err != nil {
		writeTriggerError(w, err)
		return
	}
	json.NewEncoder(w).Encode(report)
}

func writeTriggerError(w http.ResponseWriter, err error) {
	var ve *apperrors.ErrValidation
	switch {
	case errors.As(err, &ve):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case strings.Contains(err.Error(), "already in flight"),
		strings.Contains(err.Error(), "already undone"),
		strings.Contains(err.Error(), "cannot approve"),
		strings.Contains(err.Error(), "cannot reject"):
		http.Error(w, err.Error(), http.StatusConflict)
	case strings.Contains(err.Error(), "not found"):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
