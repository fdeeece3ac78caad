// internal/handler/admin_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/autoposter/internal/breaker"
	"github.com/unclebandit/autoposter/internal/config"
	"github.com/unclebandit/autoposter/internal/logging"
)

// AdminHandler serves health, live configuration and breaker state.
type AdminHandler struct {
	Config     *config.Config
	Breaker    *breaker.CircuitBreaker
	KillSwitch breaker.SettableKillSwitch
	Logger     logging.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *AdminHandler) logger() logging.Logger {
	if h.Logger == nil {
		return logging.Discard()
	}
	return h.Logger.WithField("component", "http")
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"postWindows":          strings.Join(h.Config.Windows, ","),
		"timezone":             h.Config.Timezone,
		"globalKillSwitch":     strconv.FormatBool(h.KillSwitch.Enabled(r.Context())),
		"dryRun":               h.Config.DryRun,
		"selectionConcurrency": h.Config.SelectionConcurrency,
		"trackingCampaign":     h.Config.TrackingCampaign,
	})
}

// PutConfig flips the kill switch. Other settings need a restart.
func (h *AdminHandler) PutConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GlobalKillSwitch *flexBool `json:"globalKillSwitch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	if body.GlobalKillSwitch != nil {
		enabled := bool(*body.GlobalKillSwitch)
		if err := h.KillSwitch.Set(r.Context(), enabled); err != nil {
			h.logger().WithError(err).Error("Failed to update kill switch")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update kill switch"})
			return
		}
		h.logger().WithField("enabled", enabled).Warn("Kill switch updated")
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "updated",
		"globalKillSwitch": strconv.FormatBool(h.KillSwitch.Enabled(r.Context())),
	})
}

func (h *AdminHandler) Circuit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Breaker.Snapshot(r.Context()))
}

// flexBool accepts true, "true" and the other strconv.ParseBool spellings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}
