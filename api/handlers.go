package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"hostsentry/core"
	"hostsentry/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		a.logger.Errorw(message, "error", err, "status_code", status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// querySince interprets an optional ?hours=N parameter as a time window.
func querySince(r *http.Request) time.Time {
	hours := queryInt(r, "hours", 0)
	if hours <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-time.Duration(hours) * time.Hour)
}

func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	severity := r.URL.Query().Get("severity")
	if severity != "" {
		parsed, err := core.ParseSeverity(severity)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "unknown severity", nil)
			return
		}
		// Stored severities are uppercase; query with the normalized form.
		severity = string(parsed)
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	alerts, err := a.alertStorage.GetAlerts(r.Context(), severity, limit, offset)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to fetch alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (a *API) getAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alert, err := a.alertStorage.GetAlert(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "alert not found", nil)
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to fetch alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *API) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := a.acknowledger.Acknowledge(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "alert not found", nil)
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to acknowledge alert", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "id": id})
}

func (a *API) getEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	events, err := a.eventStorage.GetRecentEvents(r.Context(), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to fetch events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (a *API) getRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score":         a.scorer.Current(),
		"contributions": a.scorer.ContributionCount(),
		"timestamp":     time.Now().UTC(),
	})
}

func (a *API) getRiskHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 360)
	history, err := a.metricsStorage.GetRiskHistory(r.Context(), querySince(r), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to fetch risk history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

func (a *API) getMetricsHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 360)
	history, err := a.metricsStorage.GetMetricsHistory(r.Context(), querySince(r), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to fetch metrics history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

func (a *API) getRules(w http.ResponseWriter, r *http.Request) {
	rules := a.engine.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

func (a *API) getStatus(w http.ResponseWriter, r *http.Request) {
	alertCount, err := a.alertStorage.CountAlerts(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to count alerts", err)
		return
	}
	bus := a.bus.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":    int(time.Since(a.started).Seconds()),
		"risk_score":        a.scorer.Current(),
		"alert_count":       alertCount,
		"rule_count":        len(a.engine.Rules()),
		"websocket_clients": a.hub.ClientCount(),
		"bus":               bus,
	})
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
