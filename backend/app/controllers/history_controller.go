package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/GluM1262/remoteshell-manager/backend/app/dto"
	"github.com/GluM1262/remoteshell-manager/backend/app/services"
)

type HistoryController struct {
	History *services.HistoryService
}

func NewHistoryController(h *services.HistoryService) *HistoryController {
	return &HistoryController{History: h}
}

// Export streams command history as json (default) or csv.
func (c *HistoryController) Export(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	if f.Limit == 0 {
		f.Limit = 1000
	}
	switch r.URL.Query().Get("format") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="history.json"`)
		if err := c.History.ExportJSON(w, f); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
		if err := c.History.ExportCSV(w, f); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		}
	default:
		writeError(w, http.StatusBadRequest, "unsupported export format", "")
	}
}

// Cleanup purges terminal commands older than the requested age.
func (c *HistoryController) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req dto.CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OlderThanDays <= 0 {
		writeError(w, http.StatusBadRequest, "older_than_days must be a positive integer", "")
		return
	}
	deleted, err := c.History.Cleanup(req.OlderThanDays)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, dto.CleanupResponse{Deleted: deleted})
}

func (c *HistoryController) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := c.History.Statistics(filterFromQuery(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
