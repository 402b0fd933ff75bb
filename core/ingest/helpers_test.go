package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"moorecollect/core/audio"
)

func writeWAV(t *testing.T, path string, ms int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := audio.WriteWAV(path, audio.WAVInfo{SampleRate: 1000, BitDepth: 16, Channels: 1}, make([]int, ms)); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

// fakeYtDlp answers listing calls with listing and download calls by
// writing "<dir>/<title>.webm" for the requested watch URL.
type fakeYtDlp struct {
	mu      sync.Mutex
	listing string
	titles  map[string]string // url -> title
	fail    map[string]bool   // url -> fail
	calls   [][]string
}

func (f *fakeYtDlp) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if args[0] == "--flat-playlist" {
		if f.listing == "" {
			return nil, errors.New("channel unreachable")
		}
		return []byte(f.listing), nil
	}

	url := args[len(args)-1]
	if f.fail[url] {
		return nil, fmt.Errorf("yt-dlp: HTTP Error 403 for %s", url)
	}
	var tmpl string
	for i, a := range args {
		if a == "-o" {
			tmpl = args[i+1]
		}
	}
	path := strings.Replace(tmpl, "%(title)s.%(ext)s", f.titles[url]+".webm", 1)
	if err := os.WriteFile(path, []byte("webm"), 0644); err != nil {
		return nil, err
	}
	return []byte("[download] done\n" + path + "\n"), nil
}

// fakeTranscoder writes a WAV of fixed length instead of running ffmpeg.
type fakeTranscoder struct {
	t  *testing.T
	ms int
}

func (f fakeTranscoder) ToWAV(ctx context.Context, in, out string) error {
	if _, err := os.Stat(in); err != nil {
		return err
	}
	writeWAV(f.t, out, f.ms)
	return nil
}

func (f fakeTranscoder) GetAudioDuration(ctx context.Context, in string) (float32, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return 0, err
	}
	seconds, err := audio.WAVDurationSeconds(data)
	return float32(seconds), err
}
