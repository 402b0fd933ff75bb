package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

// ErrNotWAV is returned for inputs that are not PCM WAV files.
var ErrNotWAV = errors.New("not a PCM wav file")

// WAVInfo describes a decoded WAV stream.
type WAVInfo struct {
	SampleRate int
	BitDepth   int
	Channels   int
	Frames     int64
}

// Duration is frames / sample rate.
func (i WAVInfo) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(i.Frames) * time.Second / time.Duration(i.SampleRate)
}

// Seconds is the duration as float seconds.
func (i WAVInfo) Seconds() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

func readInfo(d *wav.Decoder) (WAVInfo, error) {
	if !d.IsValidFile() {
		return WAVInfo{}, ErrNotWAV
	}
	if d.WavAudioFormat != pcmFormat {
		return WAVInfo{}, fmt.Errorf("%w: audio format %d", ErrNotWAV, d.WavAudioFormat)
	}
	if err := d.FwdToPCM(); err != nil {
		return WAVInfo{}, fmt.Errorf("seek to pcm data: %w", err)
	}
	info := WAVInfo{
		SampleRate: int(d.SampleRate),
		BitDepth:   int(d.BitDepth),
		Channels:   int(d.NumChans),
	}
	frameSize := int64(info.Channels) * int64(info.BitDepth/8)
	if info.SampleRate == 0 || frameSize == 0 {
		return WAVInfo{}, fmt.Errorf("%w: empty format header", ErrNotWAV)
	}
	info.Frames = d.PCMLen() / frameSize
	return info, nil
}

// ProbeWAV decodes the header of an in-memory WAV file.
func ProbeWAV(data []byte) (WAVInfo, error) {
	return readInfo(wav.NewDecoder(bytes.NewReader(data)))
}

// WAVDurationSeconds returns sample count / sample rate for an in-memory file.
func WAVDurationSeconds(data []byte) (float64, error) {
	info, err := ProbeWAV(data)
	if err != nil {
		return 0, err
	}
	return info.Seconds(), nil
}

// SegmentCount is ceil(total / length).
func SegmentCount(total, length time.Duration) int {
	if length <= 0 || total <= 0 {
		return 0
	}
	return int((total + length - 1) / length)
}

// SegmentName is the 1-based chunk file name: part1.wav, part2.wav, ...
func SegmentName(index int) string {
	return fmt.Sprintf("part%d.wav", index)
}

// SplitWAV cuts inputFile into consecutive chunks of length written to
// outputDir as part1.wav, part2.wav, ... The final chunk holds the remainder
// and may be shorter. Returned paths are in chunk order.
func SplitWAV(inputFile, outputDir string, length time.Duration) ([]string, error) {
	if length <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %v", length)
	}

	in, err := os.Open(inputFile)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	d := wav.NewDecoder(in)
	info, err := readInfo(d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inputFile, err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	framesPerChunk := int64(info.SampleRate) * length.Milliseconds() / 1000
	if framesPerChunk <= 0 {
		return nil, fmt.Errorf("segment length %v is shorter than one frame", length)
	}
	samplesPerChunk := int(framesPerChunk) * info.Channels

	format := &goaudio.Format{NumChannels: info.Channels, SampleRate: info.SampleRate}
	readBuf := &goaudio.IntBuffer{
		Format:         format,
		Data:           make([]int, 4096*info.Channels),
		SourceBitDepth: info.BitDepth,
	}

	var (
		paths   []string
		pending = make([]int, 0, samplesPerChunk)
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		path := filepath.Join(outputDir, SegmentName(len(paths)+1))
		if err := WriteWAV(path, info, pending); err != nil {
			return err
		}
		paths = append(paths, path)
		pending = pending[:0]
		return nil
	}

	for {
		n, err := d.PCMBuffer(readBuf)
		if err != nil && !errors.Is(err, io.EOF) {
			return paths, fmt.Errorf("decode %s: %w", inputFile, err)
		}
		if n == 0 {
			break
		}
		data := readBuf.Data[:n]
		for len(data) > 0 {
			room := samplesPerChunk - len(pending)
			take := min(room, len(data))
			pending = append(pending, data[:take]...)
			data = data[take:]
			if len(pending) == samplesPerChunk {
				if err := flush(); err != nil {
					return paths, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return paths, err
	}
	return paths, nil
}

// WriteWAV encodes interleaved samples as a PCM WAV file at path.
func WriteWAV(path string, info WAVInfo, samples []int) error {
	format := &goaudio.Format{NumChannels: info.Channels, SampleRate: info.SampleRate}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(out, info.SampleRate, info.BitDepth, info.Channels, pcmFormat)
	if err := enc.Write(&goaudio.IntBuffer{Format: format, Data: samples, SourceBitDepth: info.BitDepth}); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return out.Close()
}
