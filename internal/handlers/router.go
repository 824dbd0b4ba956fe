package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resaleops/autopilot/internal/repositories"
	"github.com/resaleops/autopilot/internal/services"
)

// NewRouter wires every endpoint of the engine.
func NewRouter(
	autopilot services.AutopilotService,
	rules services.RuleService,
	notifications services.NotificationService,
	actions repositories.ActionRepository,
	ledger LedgerService,
) *mux.Router {
	triggerHandler := NewTriggerHandler(autopilot)
	ruleHandler := NewRuleHandler(rules)
	actionHandler := NewActionHandler(actions, autopilot)
	auditHandler := NewAuditHandler(ledger)
	notificationHandler := NewNotificationHandler(notifications)

	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/triggers/offer-received", triggerHandler.HandleOfferReceived).Methods(http.MethodPost)
	r.HandleFunc("/api/triggers/reprice-check", triggerHandler.HandleRepriceCheck).Methods(http.MethodPost)
	r.HandleFunc("/api/triggers/stale-check", triggerHandler.HandleStaleCheck).Methods(http.MethodPost)
	r.HandleFunc("/api/triggers/order-confirmed", triggerHandler.HandleOrderConfirmed).Methods(http.MethodPost)

	r.HandleFunc("/api/rules", ruleHandler.HandleRules).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/rules/{id}", ruleHandler.HandleRule).Methods(http.MethodGet, http.MethodPut)

	r.HandleFunc("/api/actions", actionHandler.HandleActions).Methods(http.MethodGet)
	r.HandleFunc("/api/actions/{id}", actionHandler.HandleAction).Methods(http.MethodGet)
	r.HandleFunc("/api/actions/{id}/approve", actionHandler.HandleApprove).Methods(http.MethodPost)
	r.HandleFunc("/api/actions/{id}/reject", actionHandler.HandleReject).Methods(http.MethodPost)

	r.HandleFunc("/api/audit", auditHandler.HandleAuditLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/{id}", auditHandler.HandleAuditLog).Methods(http.MethodGet)
	r.HandleFunc("/api/audit/{id}/undo", auditHandler.HandleUndo).Methods(http.MethodPost)

	r.HandleFunc("/api/notifications", notificationHandler.HandleNotifications).Methods(http.MethodGet)

	return r
}
