package platform

// Profile captures the destination's output constraints used when reframing
// clips: target resolution, codecs and limits.
type Profile struct {
	// TargetWidth/TargetHeight are the exact output resolution clips are
	// resized to after cropping.
	TargetWidth  int
	TargetHeight int

	// MaxDurationSec is the longest clip the destination accepts.
	MaxDurationSec int

	// MaxFileSize is in bytes.
	MaxFileSize int64

	VideoCodec   string
	AudioCodec   string
	VideoBitrate string
	AudioBitrate string

	// OutputFormat is the container ("mp4", "webm").
	OutputFormat string

	// ForcePortrait crops landscape sources to the portrait aspect before
	// resizing.
	ForcePortrait bool
}

var profiles = map[Platform]Profile{
	YouTube: {
		TargetWidth:    1080,
		TargetHeight:   1920,
		MaxDurationSec: 60,
		MaxFileSize:    256 * 1024 * 1024,
		VideoCodec:     "libx264",
		AudioCodec:     "aac",
		VideoBitrate:   "2M",
		AudioBitrate:   "128k",
		OutputFormat:   "mp4",
		ForcePortrait:  true,
	},
	TikTok: {
		TargetWidth:    1080,
		TargetHeight:   1920,
		MaxDurationSec: 180,
		MaxFileSize:    287 * 1024 * 1024,
		VideoCodec:     "libx264",
		AudioCodec:     "aac",
		VideoBitrate:   "2M",
		AudioBitrate:   "128k",
		OutputFormat:   "mp4",
		ForcePortrait:  true,
	},
	Instagram: {
		TargetWidth:    1080,
		TargetHeight:   1920,
		MaxDurationSec: 90,
		MaxFileSize:    250 * 1024 * 1024,
		VideoCodec:     "libx264",
		AudioCodec:     "aac",
		VideoBitrate:   "2M",
		AudioBitrate:   "128k",
		OutputFormat:   "mp4",
		ForcePortrait:  true,
	},
	Twitter: {
		TargetWidth:    1280,
		TargetHeight:   720,
		MaxDurationSec: 140,
		MaxFileSize:    512 * 1024 * 1024,
		VideoCodec:     "libx264",
		AudioCodec:     "aac",
		VideoBitrate:   "5M",
		AudioBitrate:   "128k",
		OutputFormat:   "mp4",
		ForcePortrait:  false,
	},
}

// ProfileFor returns the destination profile for p. Unknown platforms get the
// portrait 9:16 default so reframing still produces something publishable.
func ProfileFor(p Platform) Profile {
	if prof, ok := profiles[p]; ok {
		return prof
	}
	return Profile{
		TargetWidth:  1080,
		TargetHeight: 1920,
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		VideoBitrate: "2M",
		AudioBitrate: "128k",
		OutputFormat: "mp4",
	}
}
