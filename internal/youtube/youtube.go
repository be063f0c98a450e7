// Package youtube downloads source footage for the clip pipeline. Video and
// audio arrive as separate adaptive streams; the pipeline muxes them back
// together before cutting.
package youtube

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	yt "github.com/kkdai/youtube/v2"
	"github.com/pkg/errors"

	logx "clipcast/pkg/logx"
)

// Source is the downloaded raw material for one pipeline run.
type Source struct {
	VideoPath string
	AudioPath string
	Title     string
	ID        string
}

type Downloader struct {
	client yt.Client
	log    logx.Logger
}

func NewDownloader(log logx.Logger) *Downloader {
	return &Downloader{client: yt.Client{}, log: log}
}

// Download fetches the best video-only and audio-only streams into dir.
// Highest quality wins: muxing locally beats the capped progressive formats.
func (d *Downloader) Download(ctx context.Context, url, dir string) (Source, error) {
	video, err := d.client.GetVideoContext(ctx, url)
	if err != nil {
		return Source{}, errors.Wrapf(err, "resolve %s", url)
	}

	videoFormats := video.Formats.Type("video")
	videoFormats.Sort()
	if len(videoFormats) == 0 {
		return Source{}, errors.Errorf("no video formats for %s", video.ID)
	}
	videoFormat := &videoFormats[0]

	audioFormats := video.Formats.WithAudioChannels().Type("audio")
	audioFormats.Sort()
	if len(audioFormats) == 0 {
		return Source{}, errors.Errorf("no audio formats for %s", video.ID)
	}
	audioFormat := &audioFormats[0]

	d.log.Info("downloading source",
		logx.String("video_id", video.ID),
		logx.String("quality", videoFormat.QualityLabel),
		logx.Duration("duration", video.Duration))

	videoPath := filepath.Join(dir, "source_video"+formatExt(videoFormat.MimeType))
	if err := d.fetch(ctx, video, videoFormat, videoPath); err != nil {
		return Source{}, errors.Wrap(err, "download video stream")
	}

	audioPath := filepath.Join(dir, "source_audio"+formatExt(audioFormat.MimeType))
	if err := d.fetch(ctx, video, audioFormat, audioPath); err != nil {
		return Source{}, errors.Wrap(err, "download audio stream")
	}

	return Source{
		VideoPath: videoPath,
		AudioPath: audioPath,
		Title:     video.Title,
		ID:        video.ID,
	}, nil
}

func (d *Downloader) fetch(ctx context.Context, video *yt.Video, format *yt.Format, path string) error {
	stream, _, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return err
	}
	defer stream.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, stream); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// formatExt maps a stream mime type to a container extension.
func formatExt(mime string) string {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "mp4"):
		return ".mp4"
	case strings.Contains(mime, "webm"):
		return ".webm"
	default:
		return ".bin"
	}
}
