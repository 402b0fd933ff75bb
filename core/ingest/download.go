package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"moorecollect/core/audio"
	"moorecollect/core/keys"

	"go.uber.org/zap"
)

// Downloader fetches best-available audio per video and normalises it to
// 16-bit PCM WAV named after the video title.
type Downloader struct {
	run     CommandRunner
	ytdlp   string
	codec   audio.Processor
	dir     string
	timeout time.Duration
	log     *zap.Logger
}

// NewDownloader writes into dir. timeout bounds each video; zero means no
// per-video limit.
func NewDownloader(run CommandRunner, ytdlp string, codec audio.Processor, dir string, timeout time.Duration, log *zap.Logger) *Downloader {
	return &Downloader{run: run, ytdlp: ytdlp, codec: codec, dir: dir, timeout: timeout, log: log}
}

// DownloadArgs fetches the audio stream and prints the final path.
func DownloadArgs(dir, url string) []string {
	return []string{
		"-f", "bestaudio/best",
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
		"--print", "after_move:filepath",
		"--no-simulate",
		"--no-progress",
		"--quiet",
		url,
	}
}

// DownloadReport lists produced WAV files and the labels of failed videos.
type DownloadReport struct {
	Files  []string
	Failed []string
}

// Download processes every video; one failure never stops the batch.
func (d *Downloader) Download(ctx context.Context, videos []Video, tick func()) DownloadReport {
	var report DownloadReport
	d.log.Info("starting downloads", zap.Int("videos", len(videos)), zap.String("dir", d.dir))
	for _, v := range videos {
		if ctx.Err() != nil {
			break
		}
		path, err := d.one(ctx, v)
		if err != nil {
			d.log.Error("download failed",
				zap.String("title", v.Title),
				zap.String("id", v.ID),
				zap.Error(err))
			report.Failed = append(report.Failed, v.Label())
		} else {
			d.log.Info("audio downloaded", zap.String("title", v.Title), zap.String("file", path))
			report.Files = append(report.Files, path)
		}
		if tick != nil {
			tick()
		}
	}
	return report
}

func (d *Downloader) one(ctx context.Context, v Video) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", err
	}

	out, err := d.run(ctx, d.ytdlp, DownloadArgs(d.dir, v.WatchURL())...)
	if err != nil {
		return "", err
	}
	src := lastLine(string(out))
	if src == "" {
		return "", fmt.Errorf("yt-dlp reported no output file")
	}
	if strings.EqualFold(filepath.Ext(src), keys.AudioExt) {
		return src, nil
	}

	dst := strings.TrimSuffix(src, filepath.Ext(src)) + keys.AudioExt
	if err := d.codec.ToWAV(ctx, src, dst); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		d.log.Warn("failed to remove source download", zap.String("file", src), zap.Error(err))
	}
	if seconds, err := d.codec.GetAudioDuration(ctx, dst); err != nil {
		d.log.Warn("could not probe transcoded audio", zap.String("file", dst), zap.Error(err))
	} else {
		d.log.Debug("transcoded audio", zap.String("file", dst), zap.Float32("seconds", seconds))
	}
	return dst, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
