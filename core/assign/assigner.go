// Package assign decides which segment a contributor works on next. It holds
// no state of its own: every transition takes a Session and returns the
// updated one, and the work list is rebuilt from the segment store and the
// ledger on each call.
package assign

import (
	"context"
	"errors"
	"fmt"

	"moorecollect/core/keys"
	"moorecollect/core/ledger"
	"moorecollect/core/segments"
	"moorecollect/logger"
)

var (
	// ErrNothingLeft is a normal outcome: every candidate title is exhausted.
	ErrNothingLeft  = errors.New("nothing left to annotate")
	ErrNotStarted   = errors.New("session not started")
	ErrNoTitle      = errors.New("no title selected")
	ErrUnknownTitle = errors.New("unknown title")
	ErrNoSegment    = errors.New("no segment to submit")
)

// SegmentSource lists staged segments grouped by title.
type SegmentSource interface {
	ListByTitle(ctx context.Context) (map[string][]string, error)
}

// Ledger is the part of the annotation ledger the assigner needs.
type Ledger interface {
	ProcessedSegments(ctx context.Context, contributor, title string) (map[string]struct{}, error)
	TitleFullyAnnotated(ctx context.Context, title string, segmentKeys []string) (bool, error)
	SaveAnnotation(ctx context.Context, sub ledger.Submission) (ledger.Annotation, error)
}

// Assigner drives contributor sessions.
type Assigner struct {
	segments SegmentSource
	ledger   Ledger
	status   StatusStore
}

// New creates an assigner.
func New(segments SegmentSource, l Ledger, status StatusStore) *Assigner {
	return &Assigner{segments: segments, ledger: l, status: status}
}

// TitleOverview summarises one title for the front end.
type TitleOverview struct {
	Title     string `json:"title"`
	Segments  int    `json:"segments"`
	Completed bool   `json:"completed"`
}

// Start opens a session for contributor.
func (a *Assigner) Start(contributor string) (Session, error) {
	if err := keys.ValidateContributor(contributor); err != nil {
		return Session{State: NotStarted}, err
	}
	return Session{
		Contributor: contributor,
		State:       TitleSelection,
		Cursors:     map[string]int{},
		Exhausted:   map[string]bool{},
		Submitted:   map[string]bool{},
	}, nil
}

// ChangeContributor drops all progress and starts over as name.
func (a *Assigner) ChangeContributor(name string) (Session, error) {
	return a.Start(name)
}

func (a *Assigner) completed(ctx context.Context) map[string]bool {
	status, err := a.status.Completed(ctx)
	if err != nil {
		logger.Warn("completion status unavailable, offering every title", logger.ErrorField(err))
		return map[string]bool{}
	}
	return status
}

// Overview lists every title with its segment count and cached completion.
func (a *Assigner) Overview(ctx context.Context) ([]TitleOverview, error) {
	grouped, err := a.segments.ListByTitle(ctx)
	if err != nil {
		return nil, err
	}
	completed := a.completed(ctx)
	out := make([]TitleOverview, 0, len(grouped))
	for _, title := range segments.Titles(grouped) {
		out = append(out, TitleOverview{Title: title, Segments: len(grouped[title]), Completed: completed[title]})
	}
	return out, nil
}

// CandidateTitles is every title minus those exhausted in this session and
// those cached as globally completed, sorted by name.
func (a *Assigner) CandidateTitles(ctx context.Context, s Session) ([]string, error) {
	if !s.started() {
		return nil, ErrNotStarted
	}
	grouped, err := a.segments.ListByTitle(ctx)
	if err != nil {
		return nil, err
	}
	completed := a.completed(ctx)

	var out []string
	for _, title := range segments.Titles(grouped) {
		if s.Exhausted[title] || completed[title] {
			continue
		}
		out = append(out, title)
	}
	return out, nil
}

// SelectTitle makes title current and positions on its next open segment.
func (a *Assigner) SelectTitle(ctx context.Context, s Session, title string) (Session, View, error) {
	if !s.started() {
		return s, View{State: NotStarted}, ErrNotStarted
	}
	next := s.clone()
	next.Title = title
	next.State = Annotating
	return a.evaluate(ctx, next)
}

// Current re-reads the work list for the selected title and exposes the
// segment at the cursor.
func (a *Assigner) Current(ctx context.Context, s Session) (Session, View, error) {
	if !s.started() {
		return s, View{State: NotStarted}, ErrNotStarted
	}
	if s.Title == "" {
		return s, View{State: s.State}, ErrNoTitle
	}
	next := s.clone()
	next.State = Annotating
	return a.evaluate(ctx, next)
}

// Submit saves the contributor's annotation for the current segment and
// advances the cursor.
func (a *Assigner) Submit(ctx context.Context, s Session, transcription, translation string) (Session, View, error) {
	cur, view, err := a.Current(ctx, s)
	if err != nil {
		return s, view, err
	}
	if view.Segment == "" {
		return cur, view, ErrNoSegment
	}

	if _, err := a.ledger.SaveAnnotation(ctx, ledger.Submission{
		SegmentKey:    view.Segment,
		Contributor:   cur.Contributor,
		Transcription: transcription,
		Translation:   translation,
	}); err != nil {
		return cur, view, err
	}

	next := cur.clone()
	next.Submitted[view.Segment] = true
	next.Cursors[next.Title] = view.Position + 1
	next.State = Submitted
	return a.evaluate(ctx, next)
}

// Next continues on the current title if it has work, otherwise walks the
// candidate titles in order. When none has work it returns ErrNothingLeft.
func (a *Assigner) Next(ctx context.Context, s Session) (Session, View, error) {
	if !s.started() {
		return s, View{State: NotStarted}, ErrNotStarted
	}
	if s.Title != "" && !s.Exhausted[s.Title] {
		cur, view, err := a.Current(ctx, s)
		if err != nil && !errors.Is(err, ErrUnknownTitle) {
			return s, view, err
		}
		if err == nil && view.State != TitleExhausted {
			return cur, view, nil
		}
		if err == nil {
			s = cur
		}
	}

	candidates, err := a.CandidateTitles(ctx, s)
	if err != nil {
		return s, View{State: s.State}, err
	}
	for _, title := range candidates {
		next, view, err := a.SelectTitle(ctx, s, title)
		if err != nil {
			return s, view, err
		}
		if view.State != TitleExhausted {
			return next, view, nil
		}
		s = next
	}

	s = s.clone()
	s.Title = ""
	s.State = TitleSelection
	return s, View{State: TitleSelection}, ErrNothingLeft
}

// workList is the title's segments minus those the contributor annotated
// before this session. Segments submitted during the session are kept so
// cursor positions stay put.
func (a *Assigner) workList(ctx context.Context, s Session, segs []string) ([]string, error) {
	processed, err := a.ledger.ProcessedSegments(ctx, s.Contributor, s.Title)
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, len(segs))
	for _, key := range segs {
		seg, ok := keys.ParseSegmentKey(key)
		if !ok {
			continue
		}
		if _, done := processed[seg.Name]; done && !s.Submitted[key] {
			continue
		}
		list = append(list, key)
	}
	return list, nil
}

// nextOpen finds the first entry at or after cursor not yet submitted in
// the session, wrapping once. -1 means the list is exhausted.
func nextOpen(list []string, submitted map[string]bool, cursor int) int {
	cursor = max(0, min(cursor, len(list)))
	for i := cursor; i < len(list); i++ {
		if !submitted[list[i]] {
			return i
		}
	}
	for i := 0; i < cursor; i++ {
		if !submitted[list[i]] {
			return i
		}
	}
	return -1
}

// evaluate positions s (already a private copy) within its title and
// handles exhaustion.
func (a *Assigner) evaluate(ctx context.Context, s Session) (Session, View, error) {
	grouped, err := a.segments.ListByTitle(ctx)
	if err != nil {
		return s, View{State: s.State}, err
	}
	segs := grouped[s.Title]
	if len(segs) == 0 {
		return s, View{State: s.State}, fmt.Errorf("%w: %q", ErrUnknownTitle, s.Title)
	}

	list, err := a.workList(ctx, s, segs)
	if err != nil {
		return s, View{State: s.State}, err
	}

	open := 0
	for _, key := range list {
		if !s.Submitted[key] {
			open++
		}
	}
	view := View{Title: s.Title, Unprocessed: len(list), Total: len(segs), Remaining: open}

	idx := nextOpen(list, s.Submitted, s.Cursors[s.Title])
	if idx < 0 {
		s.Cursors[s.Title] = len(list)
		s.State = TitleExhausted
		s.Exhausted[s.Title] = true
		view.State = TitleExhausted
		view.Position = len(list)
		view.GloballyCompleted = a.refreshCompletion(ctx, s.Title, segs)
		logger.Info("title exhausted for contributor",
			logger.String("title", s.Title),
			logger.String("user", s.Contributor),
			logger.Bool("globallyCompleted", view.GloballyCompleted))
		return s, view, nil
	}

	delete(s.Exhausted, s.Title)
	s.Cursors[s.Title] = idx
	view.State = s.State
	view.Segment = list[idx]
	view.Position = idx
	return s, view, nil
}

// refreshCompletion recomputes group-wide completion and caches a positive
// result. Failures are logged; they only delay the cache update.
func (a *Assigner) refreshCompletion(ctx context.Context, title string, segs []string) bool {
	done, err := a.ledger.TitleFullyAnnotated(ctx, title, segs)
	if err != nil {
		logger.Warn("completion check failed", logger.String("title", title), logger.ErrorField(err))
		return false
	}
	if done {
		if err := a.status.MarkCompleted(ctx, title); err != nil {
			logger.Warn("failed to persist completion", logger.String("title", title), logger.ErrorField(err))
		}
	}
	return done
}

// RecomputeCompletion rebuilds the completion cache from the ledger. Titles
// are only ever marked, never unmarked.
func (a *Assigner) RecomputeCompletion(ctx context.Context) (map[string]bool, error) {
	grouped, err := a.segments.ListByTitle(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(grouped))
	for _, title := range segments.Titles(grouped) {
		result[title] = a.refreshCompletion(ctx, title, grouped[title])
	}
	return result, nil
}
