// Package media wraps the ffmpeg operations the clip pipeline needs: probing,
// muxing separately downloaded streams, cutting segments, and reframing to a
// platform's aspect ratio.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"clipcast/internal/platform"
	logx "clipcast/pkg/logx"
)

// Metadata is what Probe extracts from a source file.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
}

// Transcoder is the pipeline's view of ffmpeg. The ffmpeg binary is an
// external process; everything here honors ctx only between invocations.
type Transcoder interface {
	Probe(ctx context.Context, path string) (Metadata, error)
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
	Cut(ctx context.Context, inputPath, outputPath string, seg Segment, profile platform.Profile) error
	Reframe(ctx context.Context, inputPath, outputPath string, src Metadata, targetWidth, targetHeight int) error
}

// FFmpeg runs the real binary through ffmpeg-go.
type FFmpeg struct {
	log logx.Logger
}

func NewFFmpeg(log logx.Logger) *FFmpeg {
	return &FFmpeg{log: log}
}

// Probe reads stream metadata via ffprobe. Duration falls back from the video
// stream to the container format section; files with neither are rejected.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	probe, err := ffmpeg.Probe(path)
	if err != nil {
		return Metadata{}, errors.Wrapf(err, "probe %s", path)
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return Metadata{}, errors.WithStack(err)
	}

	streams, _ := data["streams"].([]interface{})
	var video map[string]interface{}
	for _, raw := range streams {
		s, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if ct, _ := s["codec_type"].(string); ct == "video" {
			video = s
			break
		}
	}
	if video == nil {
		return Metadata{}, errors.Errorf("no video stream in %s", path)
	}

	md := Metadata{}
	if w, ok := video["width"].(float64); ok {
		md.Width = int(w)
	}
	if h, ok := video["height"].(float64); ok {
		md.Height = int(h)
	}
	md.Codec, _ = video["codec_name"].(string)

	if s, ok := video["duration"].(string); ok {
		if d, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			md.Duration = d
		}
	}
	if md.Duration == 0 {
		if format, ok := data["format"].(map[string]interface{}); ok {
			if s, ok := format["duration"].(string); ok {
				if d, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					md.Duration = d
				}
			}
		}
	}
	if md.Duration == 0 {
		return Metadata{}, errors.Errorf("could not determine duration of %s", path)
	}
	return md, nil
}

// Mux joins a video-only and an audio-only file into one mp4. The video track
// is copied untouched; audio is re-encoded to aac for container compatibility.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	video := ffmpeg.Input(videoPath)
	audio := ffmpeg.Input(audioPath)
	err := ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outputPath, ffmpeg.KwArgs{
		"c:v":      "copy",
		"c:a":      "aac",
		"movflags": "+faststart",
	}).OverWriteOutput().Run()
	if err != nil {
		return errors.Wrapf(err, "mux %s + %s", videoPath, audioPath)
	}
	return nil
}

// Cut extracts one planned segment and encodes it to the platform profile.
func (f *FFmpeg) Cut(ctx context.Context, inputPath, outputPath string, seg Segment, profile platform.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stream := ffmpeg.Input(inputPath, ffmpeg.KwArgs{
		"ss": seg.Start,
		"t":  seg.Duration,
	})
	err := stream.Output(outputPath, ffmpeg.KwArgs{
		"c:v":        profile.VideoCodec,
		"c:a":        profile.AudioCodec,
		"b:v":        profile.VideoBitrate,
		"b:a":        profile.AudioBitrate,
		"pix_fmt":    "yuv420p",
		"movflags":   "+faststart",
		"g":          60,
		"keyint_min": 30,
	}).OverWriteOutput().Run()
	if err != nil {
		return errors.Wrapf(err, "cut %s [%d+%ds]", inputPath, seg.Start, seg.Duration)
	}
	return nil
}

// Reframe crops and scales the input to the target aspect ratio. The crop is
// centered, with the vertical window pulled up by 5% of the source height:
// faces and subtitles sit above center in most footage.
func (f *FFmpeg) Reframe(ctx context.Context, inputPath, outputPath string, src Metadata, targetWidth, targetHeight int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filter := reframeFilter(src, targetWidth, targetHeight)
	err := ffmpeg.Input(inputPath).Output(outputPath, ffmpeg.KwArgs{
		"filter_complex": filter,
		"c:v":            "libx264",
		"c:a":            "copy",
		"pix_fmt":        "yuv420p",
		"movflags":       "+faststart",
	}).OverWriteOutput().Run()
	if err != nil {
		return errors.Wrapf(err, "reframe %s to %dx%d", inputPath, targetWidth, targetHeight)
	}
	return nil
}

// reframeFilter builds the crop+scale chain. The crop window matches the
// target aspect exactly; dimensions are forced even for the encoder.
func reframeFilter(src Metadata, targetWidth, targetHeight int) string {
	cropW, cropH, cropX, cropY := cropWindow(src.Width, src.Height, targetWidth, targetHeight)
	return fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d", cropW, cropH, cropX, cropY, targetWidth, targetHeight)
}

// cropWindow computes the largest window of the target aspect that fits the
// source. A horizontally cropped window stays centered; a vertically cropped
// one is biased 5% of the source height upward, clamped to the frame.
func cropWindow(srcW, srcH, targetW, targetH int) (w, h, x, y int) {
	srcAspect := float64(srcW) / float64(srcH)
	targetAspect := float64(targetW) / float64(targetH)

	if srcAspect > targetAspect {
		// Source is wider: full height, crop the sides.
		h = srcH
		w = int(float64(srcH) * targetAspect)
		w -= w % 2
		x = (srcW - w) / 2
		y = 0
		return w, h, x, y
	}

	// Source is taller: full width, crop top and bottom.
	w = srcW
	h = int(float64(srcW) / targetAspect)
	h -= h % 2
	y = (srcH-h)/2 - srcH/20
	if y < 0 {
		y = 0
	}
	x = 0
	return w, h, x, y
}
