package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/store"
)

// handleQueue lists queue rows. Without a status filter it serves the
// default view: processing first, then pending in insertion order. Finished
// and failed jobs live in history, not here.
func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	var (
		rows []store.QueueRow
		err  error
	)
	if status == "" {
		rows, err = h.store.QueueDefault()
	} else {
		rows, err = h.store.QueueByStatus(status)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []store.QueueRow{}
	}
	for i := range rows {
		rows[i].LibraryName = displayLibrary(rows[i].LibraryName)
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleDeleteQueueJob removes a job from the queue, killing its transcode
// when one is running.
func (h *Handler) handleDeleteQueueJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.store.QueueJobByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job niet gevonden")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Row first, then the kill signal: the runner reads the row's absence
	// as "cancelled, leave no history".
	if err := h.store.DeleteQueueJob(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job.Status == store.StatusProcessing {
		h.active.Kill(id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAddToQueue enqueues one file by path, outside any scan.
func (h *Handler) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePath string `json:"file_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := os.Stat(req.FilePath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "Bestand niet gevonden")
		return
	}
	if !ffmpeg.IsVideoFile(req.FilePath) {
		writeError(w, http.StatusBadRequest, "Geen videobestand")
		return
	}

	queued, err := h.store.HasQueued(req.FilePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if queued {
		writeError(w, http.StatusBadRequest, "Al in wachtrij")
		return
	}

	id, err := h.store.Enqueue(h.matchLibrary(req.FilePath), req.FilePath, info.Size())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// matchLibrary finds the library whose path contains the file, or "" when
// the file lives outside every library.
func (h *Handler) matchLibrary(filePath string) string {
	libs, err := h.store.Libraries()
	if err != nil {
		return ""
	}
	for _, lib := range libs {
		root := strings.TrimRight(lib.Path, "/")
		if strings.HasPrefix(filePath, root+"/") {
			return lib.ID
		}
	}
	return ""
}
