package ingest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"moorecollect/core/audio"
	"moorecollect/core/keys"

	"go.uber.org/zap"
)

// SegmentReport lists chunk paths and the files that could not be split.
type SegmentReport struct {
	Files  int
	Chunks []string
	Failed []string
}

// SegmentDir splits every .wav in inputDir into fixed-length chunks under
// outputDir/<file base name>/partN.wav. A file that fails is logged and
// skipped. Rerunning overwrites existing chunks.
func SegmentDir(inputDir, outputDir string, length time.Duration, log *zap.Logger, tick func()) (SegmentReport, error) {
	var report SegmentReport
	files, err := wavFiles(inputDir)
	if err != nil {
		return report, err
	}
	report.Files = len(files)
	log.Info("segmenting audio files",
		zap.Int("files", len(files)),
		zap.Duration("segmentLength", length))

	for _, name := range files {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		folder := filepath.Join(outputDir, base)
		chunks, err := audio.SplitWAV(filepath.Join(inputDir, name), folder, length)
		if err != nil {
			log.Error("segmentation failed", zap.String("file", name), zap.Error(err))
			report.Failed = append(report.Failed, name)
		} else {
			log.Info("file segmented", zap.String("file", name), zap.Int("chunks", len(chunks)))
			report.Chunks = append(report.Chunks, chunks...)
		}
		if tick != nil {
			tick()
		}
	}
	log.Info("segmentation done", zap.Int("chunks", len(report.Chunks)), zap.Int("failed", len(report.Failed)))
	return report, nil
}

// wavFiles returns the .wav file names directly inside dir, sorted. A
// missing directory has no files.
func wavFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), keys.AudioExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
