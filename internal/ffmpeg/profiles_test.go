package ffmpeg

import "testing"

func TestGetProfileFallback(t *testing.T) {
	p := GetProfile("bestaat_niet")
	if p.ID != DefaultProfileID {
		t.Errorf("unknown id should fall back to %s, got %s", DefaultProfileID, p.ID)
	}

	p = GetProfile("cpu_medium")
	if p.VideoCodec != "libx265" || p.Preset != "medium" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestEffectiveCodec(t *testing.T) {
	tests := []struct {
		codec   string
		gpuMode string
		want    string
	}{
		{"hevc_nvenc", "nvidia", "hevc_nvenc"},
		{"hevc_nvenc", "cpu", "libx265"},
		{"hevc_nvenc", "", "libx265"},
		{"h264_nvenc", "nvidia", "h264_nvenc"},
		{"h264_nvenc", "cpu", "libx264"},
		{"libx265", "cpu", "libx265"},
		{"libx265", "nvidia", "libx265"},
		{"libx264", "cpu", "libx264"},
		{"hevc_nvenc", "NVIDIA", "hevc_nvenc"},
	}
	for _, tt := range tests {
		got := EffectiveCodec(tt.codec, tt.gpuMode)
		if got != tt.want {
			t.Errorf("EffectiveCodec(%q, %q) = %q, want %q", tt.codec, tt.gpuMode, got, tt.want)
		}
	}
}

func TestNeedsConversion(t *testing.T) {
	tests := []struct {
		source string
		target string
		want   bool
	}{
		{"hevc", "hevc_nvenc", false},
		{"h265", "hevc_nvenc", false},
		{"hevc", "libx265", false},
		{"h264", "hevc_nvenc", true},
		{"h264", "h264_nvenc", false},
		{"h264", "libx264", false},
		{"hevc", "h264_nvenc", true},
		{"mpeg4", "hevc_nvenc", true},
		{CodecUnknown, "hevc_nvenc", true},
		{CodecUnknown, "libx264", true},
	}
	for _, tt := range tests {
		got := NeedsConversion(tt.source, tt.target)
		if got != tt.want {
			t.Errorf("NeedsConversion(%q, %q) = %v, want %v", tt.source, tt.target, got, tt.want)
		}
	}
}

func TestIsVideoFile(t *testing.T) {
	for _, path := range []string{"a.mkv", "b.MP4", "/x/y/c.avi", "d.ts", "e.wmv"} {
		if !IsVideoFile(path) {
			t.Errorf("IsVideoFile(%q) = false, want true", path)
		}
	}
	for _, path := range []string{"a.srt", "b.txt", "c.jpg", "noext", "d.mkv.part"} {
		if IsVideoFile(path) {
			t.Errorf("IsVideoFile(%q) = true, want false", path)
		}
	}
}
