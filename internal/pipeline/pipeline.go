// Package pipeline turns one source video into numbered clips in an account's
// clip directory. A run is a tracked job moving through fixed stages: acquire,
// normalize, segment, reframe. Cancellation is cooperative and checked between
// stages; a finished stage's output is never rolled back.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"clipcast/internal/jobs"
	"clipcast/internal/media"
	"clipcast/internal/platform"
	"clipcast/internal/registry"
	"clipcast/internal/youtube"
	logx "clipcast/pkg/logx"
)

// Progress milestones reported per stage.
const (
	progressAcquire   = 10
	progressNormalize = 40
	progressSegment   = 70
	progressReframe   = 90
)

// Fetcher downloads adaptive YouTube streams.
type Fetcher interface {
	Download(ctx context.Context, url, dir string) (youtube.Source, error)
}

// Request describes one generation run. Exactly one of SourceURL and
// SourcePath must be set.
type Request struct {
	Platform platform.Platform
	Account  string

	SourceURL  string
	SourcePath string

	// ClipDuration overrides the account's configured clip length, seconds.
	ClipDuration int

	// SkipReframe keeps the source aspect ratio even on portrait platforms.
	SkipReframe bool
}

// Generator runs the clip pipeline.
type Generator struct {
	reg     *registry.Registry
	fetch   Fetcher
	tx      media.Transcoder
	tracker *jobs.Tracker
	httpc   *http.Client
	dataDir string
	log     logx.Logger
}

func New(reg *registry.Registry, fetch Fetcher, tx media.Transcoder, tracker *jobs.Tracker, dataDir string, log logx.Logger) *Generator {
	return &Generator{
		reg:     reg,
		fetch:   fetch,
		tx:      tx,
		tracker: tracker,
		httpc:   &http.Client{},
		dataDir: dataDir,
		log:     log,
	}
}

// WorkspaceRoot is where in-flight runs stage their intermediate files.
func (g *Generator) WorkspaceRoot() string {
	return filepath.Join(g.dataDir, "workspaces")
}

// Generate starts a run in the background and returns its job id.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if (req.SourceURL == "") == (req.SourcePath == "") {
		return "", errors.New("exactly one of source url and source path is required")
	}
	if _, err := g.reg.Get(req.Platform, req.Account); err != nil {
		return "", err
	}

	id := g.tracker.Create(jobs.KindGenerate)
	go g.run(ctx, id, req)
	return id, nil
}

// cancelled checks the cooperative flag and, when set, moves the job to its
// terminal cancelled state at the current progress.
func (g *Generator) cancelled(id string, progress int) bool {
	if !g.tracker.CancelRequested(id) {
		return false
	}
	_ = g.tracker.Update(id, jobs.StatusCancelled, progress, "cancelled")
	return true
}

func (g *Generator) fail(id string, progress int, err error) {
	_ = g.tracker.Update(id, jobs.StatusFailed, progress, err.Error())
	g.log.Error("generation failed", logx.String("job", id), logx.Err(err))
}

func (g *Generator) run(ctx context.Context, id string, req Request) {
	rec, err := g.reg.Get(req.Platform, req.Account)
	if err != nil {
		g.fail(id, 0, err)
		return
	}

	workspace := filepath.Join(g.WorkspaceRoot(), id)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		g.fail(id, 0, errors.Wrap(err, "create workspace"))
		return
	}
	defer os.RemoveAll(workspace)

	// Acquire.
	if g.cancelled(id, 0) {
		return
	}
	_ = g.tracker.Progress(id, progressAcquire, "acquiring source")

	acquired, err := g.acquire(ctx, req, workspace)
	if err != nil {
		g.fail(id, progressAcquire, err)
		return
	}

	// Normalize: a single progressive file passes through; split streams are
	// muxed into one container.
	if g.cancelled(id, progressAcquire) {
		return
	}
	_ = g.tracker.Progress(id, progressNormalize, "normalizing source")

	normalized := acquired.videoPath
	if acquired.audioPath != "" {
		normalized = filepath.Join(workspace, "normalized.mp4")
		if err := g.tx.Mux(ctx, acquired.videoPath, acquired.audioPath, normalized); err != nil {
			g.fail(id, progressNormalize, err)
			return
		}
	}
	md, err := g.tx.Probe(ctx, normalized)
	if err != nil {
		g.fail(id, progressNormalize, err)
		return
	}

	// Segment.
	if g.cancelled(id, progressNormalize) {
		return
	}
	clipSec := req.ClipDuration
	if clipSec <= 0 {
		clipSec = rec.EffectiveClipDuration()
	}
	segments := media.PlanSegments(md.Duration, clipSec)
	if len(segments) == 0 {
		g.fail(id, progressNormalize,
			errors.Errorf("source is %.0fs, shorter than one %ds clip", md.Duration, clipSec))
		return
	}
	_ = g.tracker.Progress(id, progressSegment,
		fmt.Sprintf("cutting %d clips of %ds", len(segments), clipSec))

	clipsDir := filepath.Join(rec.ClipDir, "clips")
	if err := os.MkdirAll(clipsDir, 0o755); err != nil {
		g.fail(id, progressSegment, errors.Wrap(err, "create clips directory"))
		return
	}

	// Numbering continues after what is already on disk so the upload
	// sequence stays contiguous across runs.
	existing := registry.CountClips(rec.ClipDir)
	profile := platform.ProfileFor(req.Platform)

	var produced []string
	for i, seg := range segments {
		if g.cancelled(id, progressSegment) {
			return
		}
		out := filepath.Join(clipsDir, fmt.Sprintf("clip_%d.mp4", existing+i+1))
		if err := g.tx.Cut(ctx, normalized, out, seg, profile); err != nil {
			g.fail(id, progressSegment, errors.Wrapf(err, "cut clip %d", i+1))
			return
		}
		produced = append(produced, out)
	}

	// Reframe.
	if g.cancelled(id, progressSegment) {
		return
	}
	if needsReframe(req, profile, md) {
		_ = g.tracker.Progress(id, progressReframe, "reframing clips")
		for _, clip := range produced {
			if g.cancelled(id, progressReframe) {
				return
			}
			if err := g.reframe(ctx, clip, workspace, md, profile); err != nil {
				g.fail(id, progressReframe, err)
				return
			}
		}
	}

	if g.cancelled(id, progressReframe) {
		return
	}
	_ = g.tracker.Update(id, jobs.StatusCompleted, 100,
		fmt.Sprintf("generated %d clips", len(produced)))
	g.log.Info("generation complete",
		logx.String("job", id),
		logx.String("platform", string(req.Platform)),
		logx.String("account", req.Account),
		logx.Int("clips", len(produced)))
}

// reframe rewrites one clip through a staging file so a failed run never
// leaves a half-written clip in the sequence.
func (g *Generator) reframe(ctx context.Context, clip, workspace string, md media.Metadata, profile platform.Profile) error {
	staged := filepath.Join(workspace, "reframe_"+filepath.Base(clip))
	if err := g.tx.Reframe(ctx, clip, staged, md, profile.TargetWidth, profile.TargetHeight); err != nil {
		return err
	}
	return os.Rename(staged, clip)
}

func needsReframe(req Request, profile platform.Profile, md media.Metadata) bool {
	if req.SkipReframe || !profile.ForcePortrait {
		return false
	}
	// Already at or narrower than the target aspect: nothing to crop.
	return md.Width*profile.TargetHeight > md.Height*profile.TargetWidth
}

type acquiredSource struct {
	videoPath string
	audioPath string
}

func (g *Generator) acquire(ctx context.Context, req Request, workspace string) (acquiredSource, error) {
	switch {
	case req.SourcePath != "":
		dst := filepath.Join(workspace, "source"+filepath.Ext(req.SourcePath))
		if err := copyFile(req.SourcePath, dst); err != nil {
			return acquiredSource{}, errors.Wrap(err, "copy local source")
		}
		return acquiredSource{videoPath: dst}, nil

	case isYouTubeURL(req.SourceURL):
		src, err := g.fetch.Download(ctx, req.SourceURL, workspace)
		if err != nil {
			return acquiredSource{}, err
		}
		return acquiredSource{videoPath: src.VideoPath, audioPath: src.AudioPath}, nil

	default:
		dst := filepath.Join(workspace, "source.mp4")
		if err := g.httpDownload(ctx, req.SourceURL, dst); err != nil {
			return acquiredSource{}, errors.Wrap(err, "download source")
		}
		return acquiredSource{videoPath: dst}, nil
	}
}

func (g *Generator) httpDownload(ctx context.Context, url, dst string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %s fetching %s", resp.Status, url)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return err
	}
	return f.Close()
}

func isYouTubeURL(url string) bool {
	url = strings.ToLower(url)
	return strings.Contains(url, "youtube.com/") || strings.Contains(url, "youtu.be/")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
