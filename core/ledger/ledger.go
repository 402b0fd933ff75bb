// Package ledger is the annotation store. Every read scans the annotations
// namespace; there is no secondary index. Writes are idempotent because
// each (segment, contributor) pair maps to exactly one key.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"moorecollect/core/audio"
	"moorecollect/core/keys"
	"moorecollect/logger"
	"moorecollect/storage"
)

// Annotation is the persisted record. Field names are the wire format.
type Annotation struct {
	AudioPath     string  `json:"audio_path"`
	User          string  `json:"user"`
	Transcription string  `json:"transcription"`
	Traduction    string  `json:"traduction"`
	Duration      float64 `json:"duration"`
	CreatedAt     string  `json:"created_at"`
}

// Submission is one contributor's input for one segment.
type Submission struct {
	SegmentKey    string
	Contributor   string
	Transcription string
	Translation   string
}

// TimestampLayout is the ISO-8601 layout used for created_at.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Ledger reads and writes annotation records.
type Ledger struct {
	store storage.ObjectStore
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over store.
func New(store storage.ObjectStore, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) listAnnotationKeys(ctx context.Context, prefix string) ([]string, error) {
	all, err := l.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list annotations under %q: %w", prefix, err)
	}
	out := all[:0]
	for _, k := range all {
		if strings.HasSuffix(k, keys.AnnotationExt) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (l *Ledger) load(ctx context.Context, key string) (Annotation, error) {
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return Annotation{}, err
	}
	var ann Annotation
	if err := json.Unmarshal(data, &ann); err != nil {
		return Annotation{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return ann, nil
}

// ProcessedSegments returns the segment file names contributor already
// annotated under title.
func (l *Ledger) ProcessedSegments(ctx context.Context, contributor, title string) (map[string]struct{}, error) {
	if err := keys.ValidateContributor(contributor); err != nil {
		return nil, err
	}
	ks, err := l.listAnnotationKeys(ctx, keys.AnnotationPrefix(title))
	if err != nil {
		return nil, err
	}

	suffix := keys.AnnotationSuffix(contributor)
	processed := make(map[string]struct{})
	for _, k := range ks {
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		ref, ok := keys.ParseAnnotationKey(k)
		if !ok || ref.Contributor != contributor {
			continue
		}
		processed[ref.SegmentName()] = struct{}{}
	}
	return processed, nil
}

// TotalDuration sums duration (seconds) over every annotation by contributor.
// Records that cannot be read are logged and skipped.
func (l *Ledger) TotalDuration(ctx context.Context, contributor string) (float64, error) {
	if err := keys.ValidateContributor(contributor); err != nil {
		return 0, err
	}
	ks, err := l.listAnnotationKeys(ctx, keys.AnnotationsRoot+"/")
	if err != nil {
		return 0, err
	}

	suffix := keys.AnnotationSuffix(contributor)
	var total float64
	for _, k := range ks {
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		ann, err := l.load(ctx, k)
		if err != nil {
			logger.Warn("skipping unreadable annotation", logger.String("key", k), logger.ErrorField(err))
			continue
		}
		total += ann.Duration
	}
	return total, nil
}

// TotalMinutes is TotalDuration expressed in minutes.
func (l *Ledger) TotalMinutes(ctx context.Context, contributor string) (float64, error) {
	secs, err := l.TotalDuration(ctx, contributor)
	return secs / 60.0, err
}

// AllAnnotations loads every record in the namespace. Unreadable or
// malformed records are logged and left out.
func (l *Ledger) AllAnnotations(ctx context.Context) ([]Annotation, error) {
	ks, err := l.listAnnotationKeys(ctx, keys.AnnotationsRoot+"/")
	if err != nil {
		return nil, err
	}

	out := make([]Annotation, 0, len(ks))
	for _, k := range ks {
		ann, err := l.load(ctx, k)
		if err != nil {
			logger.Warn("skipping unreadable annotation", logger.String("key", k), logger.ErrorField(err))
			continue
		}
		out = append(out, ann)
	}
	return out, nil
}

// Coverage maps segment file name -> contributors that annotated it, for one title.
func (l *Ledger) Coverage(ctx context.Context, title string) (map[string][]string, error) {
	ks, err := l.listAnnotationKeys(ctx, keys.AnnotationPrefix(title))
	if err != nil {
		return nil, err
	}
	coverage := make(map[string][]string)
	for _, k := range ks {
		ref, ok := keys.ParseAnnotationKey(k)
		if !ok {
			continue
		}
		coverage[ref.SegmentName()] = append(coverage[ref.SegmentName()], ref.Contributor)
	}
	return coverage, nil
}

// TitleFullyAnnotated reports whether every segment of title has at least
// one annotation from anyone. A title with no segments is not complete.
func (l *Ledger) TitleFullyAnnotated(ctx context.Context, title string, segmentKeys []string) (bool, error) {
	if len(segmentKeys) == 0 {
		return false, nil
	}
	coverage, err := l.Coverage(ctx, title)
	if err != nil {
		return false, err
	}
	for _, sk := range segmentKeys {
		seg, ok := keys.ParseSegmentKey(sk)
		if !ok {
			return false, fmt.Errorf("not a segment key: %q", sk)
		}
		if len(coverage[seg.Name]) == 0 {
			return false, nil
		}
	}
	return true, nil
}

// segmentDuration downloads and decodes the segment. Any failure degrades
// to zero so the contributor's work is still saved.
func (l *Ledger) segmentDuration(ctx context.Context, segmentKey string) float64 {
	data, err := l.store.Get(ctx, segmentKey)
	if err != nil {
		logger.Warn("duration lookup failed, recording 0",
			logger.String("key", segmentKey), logger.ErrorField(err))
		return 0
	}
	secs, err := audio.WAVDurationSeconds(data)
	if err != nil {
		logger.Warn("duration lookup failed, recording 0",
			logger.String("key", segmentKey), logger.ErrorField(err))
		return 0
	}
	return secs
}

// encode marshals without HTML escaping so non-ASCII and markup survive as typed.
func encode(ann Annotation) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ann); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SaveAnnotation writes the record for (segment, contributor). An existing
// record for the same pair is replaced.
func (l *Ledger) SaveAnnotation(ctx context.Context, sub Submission) (Annotation, error) {
	key, err := keys.AnnotationKey(sub.SegmentKey, sub.Contributor)
	if err != nil {
		return Annotation{}, err
	}

	ann := Annotation{
		AudioPath:     sub.SegmentKey,
		User:          sub.Contributor,
		Transcription: sub.Transcription,
		Traduction:    sub.Translation,
		Duration:      l.segmentDuration(ctx, sub.SegmentKey),
		CreatedAt:     l.now().UTC().Format(TimestampLayout),
	}

	payload, err := encode(ann)
	if err != nil {
		return Annotation{}, fmt.Errorf("encode annotation %s: %w", key, err)
	}
	if err := l.store.Put(ctx, key, payload, "application/json"); err != nil {
		return Annotation{}, fmt.Errorf("save annotation: %w", err)
	}

	logger.Info("annotation saved",
		logger.String("key", key),
		logger.String("user", sub.Contributor),
		logger.Float64("duration", ann.Duration))
	return ann, nil
}
