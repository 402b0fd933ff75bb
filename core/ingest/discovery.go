package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Video is one downloadable source recording.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// WatchURL returns the URL to hand to the downloader.
func (v Video) WatchURL() string {
	if v.URL != "" {
		return v.URL
	}
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Label identifies the video in logs.
func (v Video) Label() string {
	if v.Title != "" {
		return v.Title
	}
	if v.ID != "" {
		return v.ID
	}
	return "unknown"
}

// Discoverer lists the videos of a channel with yt-dlp.
type Discoverer struct {
	run   CommandRunner
	ytdlp string
	log   *zap.Logger
}

// NewDiscoverer creates a discoverer using the given yt-dlp binary.
func NewDiscoverer(run CommandRunner, ytdlp string, log *zap.Logger) *Discoverer {
	return &Discoverer{run: run, ytdlp: ytdlp, log: log}
}

// DiscoverArgs lists a channel without downloading anything.
func DiscoverArgs(channelURL string) []string {
	return []string{"--flat-playlist", "-J", "--quiet", "--no-warnings", channelURL}
}

// Discover returns the channel's candidates as raw JSON values so the
// filter can skip malformed ones.
func (d *Discoverer) Discover(ctx context.Context, channelURL string) ([]json.RawMessage, error) {
	d.log.Info("discovering channel videos", zap.String("channel", channelURL))
	out, err := d.run(ctx, d.ytdlp, DiscoverArgs(channelURL)...)
	if err != nil {
		return nil, fmt.Errorf("list channel %s: %w", channelURL, err)
	}
	candidates, err := FlattenEntries(out)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		d.log.Warn("no videos found on channel", zap.String("channel", channelURL))
	}
	d.log.Info("channel listed", zap.Int("videos", len(candidates)))
	return candidates, nil
}

type playlistNode struct {
	Title   string            `json:"title"`
	URL     string            `json:"url"`
	Entries []json.RawMessage `json:"entries"`
}

// FlattenEntries walks the nested playlist tabs of a channel listing and
// returns the leaf entries. Short-form tabs and entries are dropped. Leaves
// that are not JSON objects are kept as is.
func FlattenEntries(listing []byte) ([]json.RawMessage, error) {
	var root playlistNode
	if err := json.Unmarshal(listing, &root); err != nil {
		return nil, fmt.Errorf("decode channel listing: %w", err)
	}
	var out []json.RawMessage
	for _, entry := range root.Entries {
		out = flatten(out, entry)
	}
	return out, nil
}

func flatten(out []json.RawMessage, raw json.RawMessage) []json.RawMessage {
	if !isObject(raw) {
		return append(out, raw)
	}
	var node playlistNode
	if err := json.Unmarshal(raw, &node); err != nil {
		// the filter logs it
		return append(out, raw)
	}
	if isShort(node) {
		return out
	}
	if node.Entries == nil {
		return append(out, raw)
	}
	for _, child := range node.Entries {
		out = flatten(out, child)
	}
	return out
}

func isShort(n playlistNode) bool {
	return strings.Contains(n.Title, "Shorts") || strings.Contains(n.URL, "/shorts/")
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
