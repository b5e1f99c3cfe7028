package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/store"
)

// fakeProber returns a fixed codec per path, defaulting to h264.
type fakeProber struct {
	codecs map[string]string
}

func (f *fakeProber) CodecOf(ctx context.Context, path string) string {
	if c, ok := f.codecs[path]; ok {
		return c
	}
	return "h264"
}

func newTestScanner(t *testing.T, prober *fakeProber) (*Scanner, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cfg := config.DefaultConfig()
	return NewScanner(st, cfg, prober, NewStatusBoard()), st
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("niet echt video"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanAddsEligibleFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "film1.mkv"))
	writeFile(t, filepath.Join(root, "sub", "film2.mp4"))
	writeFile(t, filepath.Join(root, "notities.txt"))

	scanner, st := newTestScanner(t, &fakeProber{})
	libID, _ := st.CreateLibrary("Films", root, 0)
	lib, _ := st.Library(libID)

	scanner.ScanLibrary(context.Background(), lib)

	st1, ok := scanner.Board().Get(libID)
	if !ok {
		t.Fatal("no scan status published")
	}
	if st1.Status != "done" {
		t.Errorf("status = %q, want done", st1.Status)
	}
	if st1.Scanned != 2 || st1.Added != 2 {
		t.Errorf("scanned/added = %d/%d, want 2/2", st1.Scanned, st1.Added)
	}

	lib2, _ := st.Library(libID)
	if lib2.LastScan == "" {
		t.Error("last_scan should be set after a scan")
	}
}

func TestScanTwiceAddsNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "film.mkv"))

	scanner, st := newTestScanner(t, &fakeProber{})
	libID, _ := st.CreateLibrary("Films", root, 0)
	lib, _ := st.Library(libID)

	scanner.ScanLibrary(context.Background(), lib)
	scanner.ScanLibrary(context.Background(), lib)

	st1, _ := scanner.Board().Get(libID)
	if st1.Added != 0 {
		t.Errorf("second scan added %d, want 0", st1.Added)
	}
	if st1.Skipped != 1 {
		t.Errorf("second scan skipped %d, want 1", st1.Skipped)
	}
}

func TestScanSkipsConvertedAndTargetCodec(t *testing.T) {
	root := t.TempDir()
	done := filepath.Join(root, "klaar.mkv")
	hevc := filepath.Join(root, "al_hevc.mkv")
	fresh := filepath.Join(root, "nieuw.mkv")
	writeFile(t, done)
	writeFile(t, hevc)
	writeFile(t, fresh)

	scanner, st := newTestScanner(t, &fakeProber{codecs: map[string]string{hevc: "hevc"}})
	libID, _ := st.CreateLibrary("Films", root, 0)
	lib, _ := st.Library(libID)
	st.AppendHistory(store.HistoryEntry{FilePath: done, Status: store.StatusSuccess})

	scanner.ScanLibrary(context.Background(), lib)

	st1, _ := scanner.Board().Get(libID)
	if st1.Added != 1 {
		t.Errorf("added = %d, want 1", st1.Added)
	}
	// Converted before (history hit) counts as skipped; already in the
	// target codec counts as already_converted.
	if st1.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", st1.Skipped)
	}
	if st1.AlreadyConverted != 1 {
		t.Errorf("already_converted = %d, want 1", st1.AlreadyConverted)
	}

	queued, _ := st.HasQueued(fresh)
	if !queued {
		t.Error("fresh file should be queued")
	}
	queued, _ = st.HasQueued(hevc)
	if queued {
		t.Error("hevc file should not be queued")
	}
}

func TestScanIgnoresHiddenDirsAndTempFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".verborgen", "film.mkv"))
	writeFile(t, filepath.Join(root, "film_shrync_abcd1234.mkv"))
	writeFile(t, filepath.Join(root, "echt.mkv"))

	scanner, st := newTestScanner(t, &fakeProber{})
	libID, _ := st.CreateLibrary("Films", root, 0)
	lib, _ := st.Library(libID)

	scanner.ScanLibrary(context.Background(), lib)

	st1, _ := scanner.Board().Get(libID)
	if st1.Added != 1 {
		t.Errorf("added = %d, want 1", st1.Added)
	}
	// The temp artifact is invisible: it must not show up in any counter.
	if st1.Scanned != 1 {
		t.Errorf("scanned = %d, want 1", st1.Scanned)
	}
	if st1.Skipped != 0 || st1.AlreadyConverted != 0 {
		t.Errorf("skipped/already_converted = %d/%d, want 0/0", st1.Skipped, st1.AlreadyConverted)
	}
	queued, _ := st.HasQueued(filepath.Join(root, ".verborgen", "film.mkv"))
	if queued {
		t.Error("hidden dir content should not be queued")
	}
}

func TestScanContinuesPastUnreadableSubdir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not restrict root")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "goed.mkv"))
	locked := filepath.Join(root, "dicht")
	writeFile(t, filepath.Join(locked, "binnen.mkv"))
	if err := os.Chmod(locked, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	scanner, st := newTestScanner(t, &fakeProber{})
	libID, _ := st.CreateLibrary("Films", root, 0)
	lib, _ := st.Library(libID)

	scanner.ScanLibrary(context.Background(), lib)

	st1, _ := scanner.Board().Get(libID)
	if st1.Status != "done" {
		t.Fatalf("status = %q (error %q), want done", st1.Status, st1.Error)
	}
	if st1.Added != 1 {
		t.Errorf("added = %d, want 1", st1.Added)
	}
	queued, _ := st.HasQueued(filepath.Join(root, "goed.mkv"))
	if !queued {
		t.Error("readable file should be queued despite the unreadable sibling dir")
	}
}

func TestScanMissingDirectory(t *testing.T) {
	scanner, st := newTestScanner(t, &fakeProber{})
	libID, _ := st.CreateLibrary("Films", "/bestaat/echt/niet", 0)
	lib, _ := st.Library(libID)

	scanner.ScanLibrary(context.Background(), lib)

	st1, _ := scanner.Board().Get(libID)
	if st1.Status != "error" {
		t.Errorf("status = %q, want error", st1.Status)
	}
	if st1.Error != "Map niet gevonden: /bestaat/echt/niet" {
		t.Errorf("unexpected error message: %q", st1.Error)
	}
}
