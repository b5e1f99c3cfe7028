package ffmpeg

import (
	"strings"
	"testing"
)

func TestTempPath(t *testing.T) {
	got := TempPath("/media/films/Movie (2021).mp4", "/cache", "abcdef12-3456-7890-abcd-ef1234567890")
	want := "/cache/Movie (2021)_shrync_abcdef12.mkv"
	if got != want {
		t.Errorf("TempPath = %q, want %q", got, want)
	}
}

func TestTempPathBesideSource(t *testing.T) {
	got := TempPath("/media/films/Movie.avi", "/media/films", "abcdef123456")
	want := "/media/films/Movie_shrync_abcdef12.mkv"
	if got != want {
		t.Errorf("TempPath = %q, want %q", got, want)
	}
}

func TestBuildArgsNVENC(t *testing.T) {
	args := buildArgs(TranscodeSpec{
		Input:      "/in.mp4",
		Output:     "/out.mkv",
		VideoCodec: "hevc_nvenc",
		Preset:     "p7",
		Quality:    "19",
		AudioCodec: "copy",
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-rc constqp", "-qp 19", "-b:v 0", "-c:s copy", "-progress pipe:1", "-nostats"} {
		if !strings.Contains(joined, want) {
			t.Errorf("NVENC args missing %q: %s", want, joined)
		}
	}
	if strings.Contains(joined, "-crf") {
		t.Errorf("NVENC args should not use crf: %s", joined)
	}
}

func TestBuildArgsCPU(t *testing.T) {
	args := buildArgs(TranscodeSpec{
		Input:      "/in.mp4",
		Output:     "/out.mkv",
		VideoCodec: "libx265",
		Preset:     "slow",
		Quality:    "22",
		AudioCodec: "aac",
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-crf 22", "-c:a aac", "-c:s copy"} {
		if !strings.Contains(joined, want) {
			t.Errorf("CPU args missing %q: %s", want, joined)
		}
	}
	if strings.Contains(joined, "constqp") {
		t.Errorf("CPU args should not use constqp: %s", joined)
	}
}

func TestProgressAt(t *testing.T) {
	// Halfway through a 1000s file.
	progress, eta := progressAt(500_000_000, 50, 1000)
	if progress != 50 {
		t.Errorf("progress = %d, want 50", progress)
	}
	// remaining = 500/50*25 = 250s = 4m10s
	if eta != "4m10s" {
		t.Errorf("eta = %q, want 4m10s", eta)
	}
}

func TestProgressAtCap(t *testing.T) {
	progress, _ := progressAt(2_000_000_000, 50, 1000)
	if progress != 99 {
		t.Errorf("progress should cap at 99, got %d", progress)
	}
}

func TestProgressAtUnknownDuration(t *testing.T) {
	progress, eta := progressAt(500_000_000, 50, 0)
	if progress != 0 || eta != "" {
		t.Errorf("unknown duration should give (0, \"\"), got (%d, %q)", progress, eta)
	}
}

func TestProgressAtZeroFPS(t *testing.T) {
	progress, eta := progressAt(500_000_000, 0, 1000)
	if progress != 50 {
		t.Errorf("progress = %d, want 50", progress)
	}
	if eta != "" {
		t.Errorf("eta should be empty with fps 0, got %q", eta)
	}
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(10)
	b.Write([]byte("hello"))
	if b.String() != "hello" {
		t.Errorf("got %q", b.String())
	}
	b.Write([]byte(" wereld!"))
	if got := b.String(); got != "lo wereld!" {
		t.Errorf("tail should keep the trailing 10 bytes, got %q", got)
	}
}
