package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/jobs"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/scan"
	"github.com/rvhout/shrync/internal/store"
)

// Control is what the handler needs from the supervisor: restart hooks
// invoked after settings and library mutations.
type Control interface {
	RestartWorkers()
	RestartWatchers()
	ReloadSchedules()
}

// Handler serves the JSON API.
type Handler struct {
	store   *store.Store
	cfg     *config.Config
	scanner *scan.Scanner
	active  *jobs.ActiveJobs
	flags   *jobs.Flags
	control Control
}

func NewHandler(st *store.Store, cfg *config.Config, scanner *scan.Scanner, active *jobs.ActiveJobs, flags *jobs.Flags, control Control) *Handler {
	return &Handler{
		store:   st,
		cfg:     cfg,
		scanner: scanner,
		active:  active,
		flags:   flags,
		control: control,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("json schrijven mislukt", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// handleStats serves the dashboard counters.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.StatsCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":           stats.Pending,
		"processing":        stats.Processing,
		"done_today":        stats.DoneToday,
		"errors":            stats.Errors,
		"saved_bytes":       stats.SavedBytes,
		"saved_human":       humanize.Bytes(uint64(maxInt64(stats.SavedBytes, 0))),
		"active_libraries":  stats.ActiveLibraries,
	})
}

// handleRecent serves the five latest successful conversions.
func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.Recent(5)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, map[string]any{
			"file_path":     row.FilePath,
			"library_name":  displayLibrary(row.LibraryName),
			"original_size": row.OriginalSize,
			"new_size":      row.NewSize,
			"saved":         row.OriginalSize - row.NewSize,
			"saved_human":   humanize.Bytes(uint64(maxInt64(row.OriginalSize-row.NewSize, 0))),
			"finished_at":   row.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// handleSavings aggregates all successful conversions into totals, a
// per-library breakdown (largest saver first) and a per-day series.
func (h *Handler) handleSavings(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.SuccessRows()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type libAgg struct {
		Library string `json:"library"`
		Saved   int64  `json:"saved"`
		Count   int    `json:"count"`
	}
	type dayAgg struct {
		Date  string `json:"date"`
		Saved int64  `json:"saved"`
	}

	var total int64
	perLib := make(map[string]*libAgg)
	perDay := make(map[string]int64)
	for _, row := range rows {
		saved := row.OriginalSize - row.NewSize
		total += saved

		name := displayLibrary(row.LibraryName)
		agg, ok := perLib[name]
		if !ok {
			agg = &libAgg{Library: name}
			perLib[name] = agg
		}
		agg.Saved += saved
		agg.Count++

		if len(row.FinishedAt) >= 10 {
			perDay[row.FinishedAt[:10]] += saved
		}
	}

	libs := make([]libAgg, 0, len(perLib))
	for _, agg := range perLib {
		libs = append(libs, *agg)
	}
	sort.Slice(libs, func(i, j int) bool { return libs[i].Saved > libs[j].Saved })

	days := make([]dayAgg, 0, len(perDay))
	for date, saved := range perDay {
		days = append(days, dayAgg{Date: date, Saved: saved})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	writeJSON(w, http.StatusOK, map[string]any{
		"total_saved":       total,
		"total_saved_human": humanize.Bytes(uint64(maxInt64(total, 0))),
		"total_count":       len(rows),
		"per_library":       libs,
		"daily":             days,
	})
}

// handleProfiles lists the conversion profiles in display order.
func (h *Handler) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ffmpeg.ListProfiles())
}

// handleConfig exposes the effective runtime configuration.
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	cacheDir := h.cfg.CacheDir
	if cacheDir == "" {
		cacheDir = "(naast bronbestand)"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gpu_available": h.cfg.GPUAvailable(),
		"gpu_mode":      h.cfg.GPUMode,
		"cache_dir":     cacheDir,
		"version":       h.cfg.Version,
	})
}

// handleDiagnostics checks every library path from inside the container,
// with a sample listing per reachable path and a check of the /media root.
func (h *Handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	libs, err := h.store.Libraries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	checks := make([]map[string]any, 0, len(libs))
	for _, lib := range libs {
		check := map[string]any{
			"library": lib.Name,
			"path":    lib.Path,
			"ok":      false,
		}
		info, err := os.Stat(lib.Path)
		switch {
		case err != nil:
			check["error"] = fmt.Sprintf("Pad bestaat NIET in container: %s", lib.Path)
		case !info.IsDir():
			check["error"] = fmt.Sprintf("Pad is geen map: %s", lib.Path)
		default:
			check["ok"] = true
			check["entries"] = sampleEntries(lib.Path, 5)
		}
		checks = append(checks, check)
	}

	mediaRoot := map[string]any{"path": "/media", "ok": false}
	if info, err := os.Stat("/media"); err == nil && info.IsDir() {
		mediaRoot["ok"] = true
		mediaRoot["entries"] = sampleEntries("/media", 5)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"libraries":  checks,
		"media_root": mediaRoot,
	})
}

// sampleEntries returns the first n directory entry names, as proof the path
// is actually readable and not an empty mount.
func sampleEntries(dir string, n int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	names := make([]string, 0, n)
	for _, e := range entries {
		if len(names) == n {
			break
		}
		names = append(names, e.Name())
	}
	return names
}

func displayLibrary(name string) string {
	if name == "" {
		return "Onbekend"
	}
	return name
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
