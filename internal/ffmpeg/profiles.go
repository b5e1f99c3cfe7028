package ffmpeg

import "strings"

// Profile is a named conversion profile: target codec, encoder preset and
// quality value (qp for NVENC, crf for CPU encoders).
type Profile struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	VideoCodec string `json:"codec"`
	Preset     string `json:"-"`
	Quality    string `json:"-"`
	GPU        bool   `json:"gpu"`
}

// profiles in the order the API lists them.
var profiles = []Profile{
	{ID: "nvenc_max", Label: "NVENC H.265 — Max kwaliteit", VideoCodec: "hevc_nvenc", Preset: "p7", Quality: "19", GPU: true},
	{ID: "nvenc_high", Label: "NVENC H.265 — Hoge kwaliteit", VideoCodec: "hevc_nvenc", Preset: "p6", Quality: "23", GPU: true},
	{ID: "nvenc_balanced", Label: "NVENC H.265 — Gebalanceerd", VideoCodec: "hevc_nvenc", Preset: "p4", Quality: "26", GPU: true},
	{ID: "h264_nvenc", Label: "NVENC H.264 — Hoge kwaliteit", VideoCodec: "h264_nvenc", Preset: "p6", Quality: "20", GPU: true},
	{ID: "cpu_slow", Label: "CPU H.265 — Max kwaliteit", VideoCodec: "libx265", Preset: "slow", Quality: "22", GPU: false},
	{ID: "cpu_medium", Label: "CPU H.265 — Gebalanceerd", VideoCodec: "libx265", Preset: "medium", Quality: "24", GPU: false},
	{ID: "cpu_fast", Label: "CPU H.265 — Snel", VideoCodec: "libx265", Preset: "fast", Quality: "26", GPU: false},
	{ID: "h264_cpu", Label: "CPU H.264 — Gebalanceerd", VideoCodec: "libx264", Preset: "medium", Quality: "22", GPU: false},
}

// DefaultProfileID is used when the configured profile id is unknown.
const DefaultProfileID = "nvenc_max"

// GetProfile returns the profile for the given id, falling back to the
// default profile for unknown ids.
func GetProfile(id string) Profile {
	for _, p := range profiles {
		if p.ID == id {
			return p
		}
	}
	return GetProfile(DefaultProfileID)
}

// ListProfiles returns all profiles in display order.
func ListProfiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// EffectiveCodec applies the GPU mode downgrade: NVENC codecs fall back to
// their CPU equivalents unless gpuMode is "nvidia". The persisted profile id
// is never rewritten; the downgrade happens at dispatch time.
func EffectiveCodec(videoCodec, gpuMode string) string {
	if !strings.Contains(videoCodec, "nvenc") || strings.ToLower(gpuMode) == "nvidia" {
		return videoCodec
	}
	if strings.Contains(videoCodec, "hevc") {
		return "libx265"
	}
	return "libx264"
}

// NeedsConversion reports whether a file with the given source codec should
// be transcoded towards the target codec family. Probe failures surface as
// codec "unknown", which always needs conversion.
func NeedsConversion(sourceCodec, targetCodec string) bool {
	if strings.Contains(targetCodec, "hevc") && (sourceCodec == "hevc" || sourceCodec == "h265") {
		return false
	}
	if strings.Contains(targetCodec, "h264") && sourceCodec == "h264" {
		return false
	}
	return true
}
