package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/vaultwatch/vaultwatch/internal/alert"
	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/syncer"
)

type syncRequest struct {
	SubscriptionIDs []string `json:"subscription_ids,omitempty"`
}

type alertRequest struct {
	ObjectNames []string `json:"object_names,omitempty"`
	ForceSend   bool     `json:"force_send"`
}

// handleSync triggers one inventory sync run.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	stats, err := s.syncer.Run(r.Context(), req.SubscriptionIDs)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("sync failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Sync failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleQueryObjects answers filtered, paginated inventory queries.
func (s *Server) handleQueryObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter inventory.Filter

	switch window := q.Get("expiration_window"); window {
	case "":
	case "30", "60", "90":
		days, _ := strconv.Atoi(window)
		filter.ExpiresWithinDays = &days
	default:
		writeError(w, http.StatusBadRequest, "expiration_window must be one of 30, 60, 90")
		return
	}

	switch typ := q.Get("object_type"); typ {
	case "":
	case string(inventory.ObjectTypeSecret), string(inventory.ObjectTypeCertificate):
		filter.ObjectType = inventory.ObjectType(typ)
	default:
		writeError(w, http.StatusBadRequest, "object_type must be Secret or Certificate")
		return
	}

	filter.Owner = q.Get("owner")
	filter.VaultName = q.Get("vault_name")
	filter.NameContains = q.Get("search_text")

	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	pageSize, err := intParam(q.Get("page_size"), 50)
	if err != nil || pageSize < 1 || pageSize > 200 {
		writeError(w, http.StatusBadRequest, "page_size must be between 1 and 200")
		return
	}

	result, err := s.store.Query(r.Context(), filter, page, pageSize)
	if err != nil {
		s.logger.Error("query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Query failed: "+err.Error())
		return
	}
	if result.Items == nil {
		result.Items = []inventory.KeyVaultObject{}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleKPISummary answers the aggregate health overview.
func (s *Server) handleKPISummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.KPISummary(r.Context())
	if err != nil {
		s.logger.Error("kpi summary failed: %v", err)
		writeError(w, http.StatusInternalServerError, "KPI summary failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleListSubscriptions lists subscriptions visible to the credential.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.vaults.ListSubscriptions(r.Context())
	if err != nil {
		s.logger.Error("list subscriptions failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list subscriptions: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// handleSendAlerts triggers one alert evaluation run.
func (s *Server) handleSendAlerts(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	stats, err := s.evaluator.Run(r.Context(), alert.Options{
		ObjectNames: req.ObjectNames,
		ForceSend:   req.ForceSend,
	})
	if err != nil {
		if errors.Is(err, alert.ErrAlertRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("alert run failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Alert processing failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAlertHistory lists past alerts within a lookback window, optionally
// for one recipient.
func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days, err := intParam(q.Get("days"), 7)
	if err != nil || days < 1 || days > 90 {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 90")
		return
	}

	history, err := s.store.AlertHistory(r.Context(), days, q.Get("recipient"))
	if err != nil {
		s.logger.Error("alert history failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to get alert history: "+err.Error())
		return
	}
	if history == nil {
		history = []inventory.AlertHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history":     history,
		"total_count": len(history),
	})
}

// decodeBody parses an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
