package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rvhout/shrync/internal/jobs"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/store"
)

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Settings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSetSettings writes the posted keys. A max_workers change restarts
// the worker pool at the new size; the value is clamped to [1,3] before it
// is stored.
func (h *Handler) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	workersChanged := false
	for key, value := range req {
		if key == "max_workers" {
			n, err := strconv.Atoi(value)
			if err != nil {
				writeError(w, http.StatusBadRequest, "max_workers moet een getal zijn")
				return
			}
			value = strconv.Itoa(jobs.ClampWorkers(n))
			workersChanged = value != h.store.Setting("max_workers", "1")
		}
		if err := h.store.SetSetting(key, value); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		logger.Info("instelling gewijzigd", "key", key, "value", value)
	}

	if workersChanged {
		h.control.RestartWorkers()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePauseWorkers(w http.ResponseWriter, r *http.Request) {
	h.flags.Pause()
	logger.Info("workers gepauzeerd")
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handler) handleResumeWorkers(w http.ResponseWriter, r *http.Request) {
	h.flags.Resume()
	logger.Info("workers hervat")
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// handleWorkerStatus reports pause state, busy slot count and whether a pool
// is live at all.
func (h *Handler) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":  h.flags.Paused(),
		"active":  h.active.Count(),
		"running": h.flags.Running(),
	})
}

// handleHistory serves one page of history, newest first.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	total, rows, err := h.store.History(page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []store.HistoryRow{}
	}
	for i := range rows {
		rows[i].LibraryName = displayLibrary(rows[i].LibraryName)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"page":     page,
		"per_page": perPage,
		"items":    rows,
	})
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearHistory(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
