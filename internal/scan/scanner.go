package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/store"
)

// Prober is the codec lookup the scanner needs. *ffmpeg.Prober satisfies it.
type Prober interface {
	CodecOf(ctx context.Context, path string) string
}

// Scanner walks library directories and enqueues files that need conversion.
type Scanner struct {
	store  *store.Store
	cfg    *config.Config
	prober Prober
	board  *StatusBoard
}

func NewScanner(st *store.Store, cfg *config.Config, prober Prober, board *StatusBoard) *Scanner {
	return &Scanner{store: st, cfg: cfg, prober: prober, board: board}
}

// Board exposes the status board for the API layer.
func (s *Scanner) Board() *StatusBoard {
	return s.board
}

// ScanLibrary walks one library and enqueues every eligible video file. The
// live status is published on the board throughout; the final state is
// "done" or "error". Scanning the same unchanged tree twice adds nothing.
func (s *Scanner) ScanLibrary(ctx context.Context, lib *store.Library) {
	st := Status{Status: "scanning", Path: lib.Path}
	s.board.Set(lib.ID, st)
	logger.Info("scan gestart", "library", lib.Name, "path", lib.Path)

	info, err := os.Stat(lib.Path)
	if err != nil || !info.IsDir() {
		st.Status = "error"
		st.Error = fmt.Sprintf("Map niet gevonden: %s", lib.Path)
		s.board.Set(lib.ID, st)
		logger.Warn("scan mislukt", "library", lib.Name, "error", st.Error)
		return
	}

	profile := ffmpeg.GetProfile(s.store.Setting("conversion_profile", ffmpeg.DefaultProfileID))

	var files []string
	walkErr := filepath.WalkDir(lib.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Only an unreadable library root aborts the scan; a bad
			// subtree is logged and the walk moves on.
			if path == lib.Path {
				return err
			}
			logger.Warn("pad overslaan tijdens scan", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != lib.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if ffmpeg.IsVideoFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		st.Status = "error"
		st.Error = fmt.Sprintf("Kan map niet lezen: %v", walkErr)
		s.board.Set(lib.ID, st)
		logger.Warn("scan mislukt", "library", lib.Name, "error", st.Error)
		return
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		// Temp artifacts and cache-dir files are invisible to the scan:
		// they never reach the counters.
		if strings.Contains(filepath.Base(path), ffmpeg.TempMarker) {
			continue
		}
		if s.cfg.CacheDir != "" && strings.Contains(path, s.cfg.CacheDir) {
			continue
		}
		st.Scanned++
		st.CurrentFile = filepath.Base(path)
		s.board.Set(lib.ID, st)

		eligible, outcome := s.check(ctx, path, profile)
		switch outcome {
		case outcomeSkipped:
			st.Skipped++
		case outcomeConverted:
			st.AlreadyConverted++
		}
		if !eligible {
			continue
		}

		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if _, err := s.store.Enqueue(lib.ID, path, fi.Size()); err != nil {
			logger.Error("toevoegen aan wachtrij mislukt", "path", path, "error", err)
			continue
		}
		st.Added++
		logger.Info("toegevoegd aan wachtrij", "library", lib.Name, "path", path)
	}

	if err := s.store.TouchLastScan(lib.ID); err != nil {
		logger.Error("last_scan bijwerken mislukt", "library", lib.ID, "error", err)
	}

	st.Status = "done"
	st.CurrentFile = ""
	s.board.Set(lib.ID, st)
	logger.Info("scan klaar", "library", lib.Name,
		"scanned", st.Scanned, "added", st.Added,
		"skipped", st.Skipped, "already_converted", st.AlreadyConverted)
}

type checkOutcome int

const (
	outcomeEligible checkOutcome = iota
	outcomeSkipped
	outcomeConverted
	outcomeFiltered
)

// check applies the eligibility chain to one counted candidate: queued or
// previously converted files count as skipped, files already in the target
// codec family count as already converted, the rest is eligible.
func (s *Scanner) check(ctx context.Context, path string, profile ffmpeg.Profile) (bool, checkOutcome) {
	queued, err := s.store.HasQueued(path)
	if err != nil {
		logger.Error("wachtrij controleren mislukt", "path", path, "error", err)
		return false, outcomeFiltered
	}
	if queued {
		return false, outcomeSkipped
	}

	done, err := s.store.HasSuccess(path)
	if err != nil {
		logger.Error("historie controleren mislukt", "path", path, "error", err)
		return false, outcomeFiltered
	}
	if done {
		return false, outcomeSkipped
	}

	codec := s.prober.CodecOf(ctx, path)
	if !ffmpeg.NeedsConversion(codec, profile.VideoCodec) {
		return false, outcomeConverted
	}
	return true, outcomeEligible
}

// ScanAll scans every enabled library sequentially.
func (s *Scanner) ScanAll(ctx context.Context) {
	libs, err := s.store.EnabledLibraries()
	if err != nil {
		logger.Error("bibliotheken ophalen mislukt", "error", err)
		return
	}
	for i := range libs {
		s.ScanLibrary(ctx, &libs[i])
	}
}
