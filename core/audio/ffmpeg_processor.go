package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"moorecollect/logger"
)

// Canonical segment format: uncompressed 16-bit PCM.
const (
	CanonicalCodec = "pcm_s16le"
)

// FFmpegProcessor implements the Processor interface using ffmpeg.
type FFmpegProcessor struct {
	ffmpegPath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

func (p *FFmpegProcessor) ffprobePath() string {
	dir, base := filepath.Split(p.ffmpegPath)
	return filepath.Join(dir, strings.Replace(base, "ffmpeg", "ffprobe", 1))
}

// ToWAVArgs returns the ffmpeg arguments used to transcode inputFile.
func ToWAVArgs(inputFile, outputFile string) []string {
	return []string{
		"-y",
		"-i", inputFile,
		"-vn",
		"-acodec", CanonicalCodec,
		"-f", "wav",
		outputFile,
	}
}

// ToWAV transcodes any audio input to canonical PCM WAV.
func (p *FFmpegProcessor) ToWAV(ctx context.Context, inputFile, outputFile string) error {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", outputFile, err)
	}

	args := ToWAVArgs(inputFile, outputFile)
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("executing ffmpeg",
		logger.String("bin", p.ffmpegPath),
		logger.String("args", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}
	return nil
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbeDuration extracts format.duration (seconds) from ffprobe JSON.
func parseProbeDuration(out []byte) (float32, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(out, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output")
	}
	duration, err := strconv.ParseFloat(probeData.Format.Duration, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string %q: %w", probeData.Format.Duration, err)
	}
	return float32(duration), nil
}

// GetAudioDuration uses ffprobe to get the duration of an audio file in seconds.
func (p *FFmpegProcessor) GetAudioDuration(ctx context.Context, inputFile string) (float32, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath(), args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	duration, err := parseProbeDuration(out.Bytes())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", inputFile, err)
	}
	return duration, nil
}
