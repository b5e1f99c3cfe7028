package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rvhout/shrync/internal/scan"
	"github.com/rvhout/shrync/internal/store"
)

type libraryRequest struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	ScanInterval int    `json:"scan_interval"`
	Enabled      *bool  `json:"enabled"`
}

func (h *Handler) handleListLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.store.Libraries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if libs == nil {
		libs = []store.Library{}
	}
	writeJSON(w, http.StatusOK, libs)
}

// handleCreateLibrary adds a library, kicks off its first scan in the
// background and refreshes watchers and schedules.
func (h *Handler) handleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var req libraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "name en path zijn verplicht")
		return
	}
	if req.ScanInterval < 0 {
		req.ScanInterval = 0
	}

	id, err := h.store.CreateLibrary(req.Name, req.Path, req.ScanInterval)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lib, err := h.store.Library(id)
	if err == nil {
		go h.scanner.ScanLibrary(context.Background(), lib)
	}
	h.control.RestartWatchers()
	h.control.ReloadSchedules()

	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lib, err := h.store.Library(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bibliotheek niet gevonden")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req libraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		req.Name = lib.Name
	}
	if req.Path == "" {
		req.Path = lib.Path
	}
	if req.ScanInterval == 0 {
		req.ScanInterval = lib.ScanInterval
	}
	enabled := lib.Enabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	if err := h.store.UpdateLibrary(id, req.Name, req.Path, req.ScanInterval, enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.control.RestartWatchers()
	h.control.ReloadSchedules()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteLibrary(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.control.RestartWatchers()
	h.control.ReloadSchedules()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScanLibrary starts a background scan for one library.
func (h *Handler) handleScanLibrary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lib, err := h.store.Library(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "bibliotheek niet gevonden")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	go h.scanner.ScanLibrary(context.Background(), lib)
	writeJSON(w, http.StatusOK, map[string]string{"status": "scanning"})
}

// handleScanStatus serves the live status of the latest scan of a library.
func (h *Handler) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := h.scanner.Board().Get(id)
	if !ok {
		writeJSON(w, http.StatusOK, scan.Status{Status: "idle"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleAllScanStatus serves every library's latest scan status at once.
func (h *Handler) handleAllScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.Board().All())
}
