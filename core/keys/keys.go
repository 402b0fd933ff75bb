// Package keys maps titles, segments and annotations to object store keys
// and back. Every other component relies on this convention: the second
// path component of a segment key is its title, and an annotation key is
// derived from (title, segment, contributor) alone so existence can be
// checked without an index.
package keys

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	AnnotationsRoot = "annotations"
	Delimiter       = "__"
	AudioExt        = ".wav"
	AnnotationExt   = ".json"
	// StatusKey holds the title completion record. It lives outside the
	// annotations namespace so ledger scans never see it.
	StatusKey = "status/titles.json"
)

// ErrInvalidContributor is returned for identities that would break key parsing.
var ErrInvalidContributor = errors.New("invalid contributor")

// Segment is a staged audio chunk.
type Segment struct {
	Key   string
	Title string
	Name  string // file name, e.g. "part3.wav"
}

// Base returns the file name without extension ("part3").
func (s Segment) Base() string {
	return strings.TrimSuffix(s.Name, AudioExt)
}

// AnnotationRef is the information recoverable from an annotation key.
type AnnotationRef struct {
	Key         string
	Title       string
	SegmentBase string
	Contributor string
}

// SegmentName returns the segment file name this annotation refers to.
func (a AnnotationRef) SegmentName() string {
	return a.SegmentBase + AudioExt
}

// ValidateContributor rejects blank identities and those containing the
// delimiter or a path separator. A leading underscore would merge with the
// delimiter and make the key parse back as a different contributor.
func ValidateContributor(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidContributor)
	case strings.HasPrefix(name, "_"):
		return fmt.Errorf("%w: %q starts with an underscore", ErrInvalidContributor, name)
	case strings.Contains(name, Delimiter):
		return fmt.Errorf("%w: %q contains %q", ErrInvalidContributor, name, Delimiter)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidContributor, name)
	}
	return nil
}

// SegmentKey builds <root>/<title>/<name>.wav.
func SegmentKey(root, title, name string) string {
	return path.Join(root, title, SegmentFileName(name))
}

// SegmentFileName appends the audio extension when missing.
func SegmentFileName(name string) string {
	if strings.HasSuffix(name, AudioExt) {
		return name
	}
	return name + AudioExt
}

// ParseSegmentKey splits a staged key. Keys with fewer than three
// components or another extension are not segments.
func ParseSegmentKey(key string) (Segment, bool) {
	if !strings.HasSuffix(key, AudioExt) {
		return Segment{}, false
	}
	parts := strings.Split(key, "/")
	if len(parts) < 3 || parts[1] == "" {
		return Segment{}, false
	}
	return Segment{Key: key, Title: parts[1], Name: parts[len(parts)-1]}, true
}

// TitleOf returns the parent directory of a segment key, which is the title
// under which its annotations are filed.
func TitleOf(segmentKey string) string {
	parts := strings.Split(segmentKey, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// AnnotationPrefix is the listing prefix for one title's annotations.
func AnnotationPrefix(title string) string {
	return AnnotationsRoot + "/" + title + "/"
}

// AnnotationSuffix is what every annotation key of contributor ends with.
func AnnotationSuffix(contributor string) string {
	return Delimiter + contributor + AnnotationExt
}

// AnnotationKey builds annotations/<title>/<segment-base>__<contributor>.json.
func AnnotationKey(segmentKey, contributor string) (string, error) {
	if err := ValidateContributor(contributor); err != nil {
		return "", err
	}
	title := TitleOf(segmentKey)
	if title == "" {
		return "", fmt.Errorf("segment key %q has no title component", segmentKey)
	}
	base := strings.TrimSuffix(path.Base(segmentKey), AudioExt)
	return AnnotationPrefix(title) + base + AnnotationSuffix(contributor), nil
}

// ParseAnnotationKey recovers title, segment and contributor. The
// contributor is whatever follows the last delimiter.
func ParseAnnotationKey(key string) (AnnotationRef, bool) {
	if !strings.HasSuffix(key, AnnotationExt) {
		return AnnotationRef{}, false
	}
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != AnnotationsRoot {
		return AnnotationRef{}, false
	}
	stem := strings.TrimSuffix(parts[2], AnnotationExt)
	i := strings.LastIndex(stem, Delimiter)
	if i <= 0 || i+len(Delimiter) >= len(stem) {
		return AnnotationRef{}, false
	}
	return AnnotationRef{
		Key:         key,
		Title:       parts[1],
		SegmentBase: stem[:i],
		Contributor: stem[i+len(Delimiter):],
	}, true
}
