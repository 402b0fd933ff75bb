// Package ingest turns a video channel into staged audio segments:
// discovery, keyword filtering, download, segmentation and publication.
// Every stage contains its failures per item; only failures that stop all
// progress (listing the channel, acquiring the run lock) end a run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"moorecollect/config"
	"moorecollect/core/audio"
	"moorecollect/logger"
	"moorecollect/storage"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLocked means another ingestion run is using the same workspace.
var ErrLocked = errors.New("another ingestion run holds the lock")

// Options configure one run.
type Options struct {
	ChannelURL       string
	Keywords         []string
	InputDir         string
	OutputDir        string
	SegmentLength    time.Duration
	Prefix           string
	LockPath         string
	YtDlpPath        string
	DiscoveryTimeout time.Duration
	DownloadTimeout  time.Duration
	// SkipDownload segments whatever is already in InputDir.
	SkipDownload bool
	SkipUpload   bool
	// Progress receives progress bars when it is a terminal.
	Progress io.Writer
}

// OptionsFromConfig maps the INGEST_* settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ChannelURL:       cfg.ChannelURL,
		Keywords:         cfg.Keywords,
		InputDir:         cfg.IngestInputDir,
		OutputDir:        cfg.IngestOutputDir,
		SegmentLength:    time.Duration(cfg.SegmentLengthMs) * time.Millisecond,
		Prefix:           cfg.IngestPrefix,
		LockPath:         cfg.IngestLockPath,
		YtDlpPath:        cfg.YtDlpPath,
		DiscoveryTimeout: cfg.DiscoveryTimeout,
		DownloadTimeout:  cfg.DownloadTimeout,
		Progress:         os.Stderr,
	}
}

// RunReport summarises a run.
type RunReport struct {
	RunID      string
	Discovered int
	Matched    int
	Download   DownloadReport
	Segments   SegmentReport
	Publish    PublishReport
	Uploaded   bool
}

// Pipeline chains the stages.
type Pipeline struct {
	opts  Options
	run   CommandRunner
	codec audio.Processor
	store storage.ObjectStore
}

// New builds a pipeline. store may be nil when uploads are skipped.
func New(opts Options, run CommandRunner, codec audio.Processor, store storage.ObjectStore) *Pipeline {
	if run == nil {
		run = ExecRunner
	}
	return &Pipeline{opts: opts, run: run, codec: codec, store: store}
}

// Run executes every stage once under the workspace lock.
func (p *Pipeline) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString()}
	log := logger.L().With(zap.String("runId", report.RunID))

	if !p.opts.SkipUpload && p.store == nil {
		return report, fmt.Errorf("upload requested but no object store configured")
	}
	if p.opts.SegmentLength <= 0 {
		return report, fmt.Errorf("segment length must be positive, got %v", p.opts.SegmentLength)
	}

	lock := flock.New(p.opts.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return report, fmt.Errorf("acquire ingestion lock %s: %w", p.opts.LockPath, err)
	}
	if !ok {
		return report, fmt.Errorf("%w: %s", ErrLocked, p.opts.LockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release ingestion lock", zap.Error(err))
		}
	}()

	for _, dir := range []string{p.opts.InputDir, p.opts.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return report, err
		}
	}
	log.Info("ingestion started",
		zap.String("channel", p.opts.ChannelURL),
		zap.Strings("keywords", p.opts.Keywords),
		zap.Bool("skipDownload", p.opts.SkipDownload),
		zap.Bool("skipUpload", p.opts.SkipUpload))

	if !p.opts.SkipDownload {
		if err := p.fetch(ctx, log, &report); err != nil {
			return report, err
		}
	}

	files, err := wavFiles(p.opts.InputDir)
	if err != nil {
		return report, fmt.Errorf("read %s: %w", p.opts.InputDir, err)
	}
	tick, done := progress(p.opts.Progress, len(files), "segmenting")
	report.Segments, err = SegmentDir(p.opts.InputDir, p.opts.OutputDir, p.opts.SegmentLength, log, tick)
	done()
	if err != nil {
		return report, fmt.Errorf("read %s: %w", p.opts.InputDir, err)
	}

	if p.opts.SkipUpload {
		log.Info("upload skipped", zap.Int("chunks", len(report.Segments.Chunks)))
	} else {
		tick, done = progress(p.opts.Progress, len(report.Segments.Chunks), "uploading")
		report.Publish = NewPublisher(p.store, p.opts.Prefix, log).Publish(ctx, p.opts.OutputDir, report.Segments.Chunks, tick)
		done()
		report.Uploaded = true
	}

	log.Info("ingestion finished",
		zap.Int("matched", report.Matched),
		zap.Int("downloaded", len(report.Download.Files)),
		zap.Int("chunks", len(report.Segments.Chunks)),
		zap.Int("uploaded", report.Publish.Succeeded))
	return report, nil
}

func (p *Pipeline) fetch(ctx context.Context, log *zap.Logger, report *RunReport) error {
	dctx := ctx
	if p.opts.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.opts.DiscoveryTimeout)
		defer cancel()
	}
	candidates, err := NewDiscoverer(p.run, p.opts.YtDlpPath, log).Discover(dctx, p.opts.ChannelURL)
	if err != nil {
		return err
	}
	report.Discovered = len(candidates)

	videos := FilterByKeywords(candidates, p.opts.Keywords, log)
	report.Matched = len(videos)

	tick, done := progress(p.opts.Progress, len(videos), "downloading")
	defer done()
	d := NewDownloader(p.run, p.opts.YtDlpPath, p.codec, p.opts.InputDir, p.opts.DownloadTimeout, log)
	report.Download = d.Download(ctx, videos, tick)
	return nil
}
