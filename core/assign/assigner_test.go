package assign

import (
	"context"
	"errors"
	"testing"

	"moorecollect/core/keys"
	"moorecollect/core/ledger"
	"moorecollect/core/segments"
	"moorecollect/storage"
)

type fixture struct {
	store    *storage.MemoryStore
	ledger   *ledger.Ledger
	status   *ObjectStatusStore
	assigner *Assigner
}

func newFixture(t *testing.T, segmentKeys ...string) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, k := range segmentKeys {
		if err := store.Put(context.Background(), k, []byte("pcm"), "audio/wav"); err != nil {
			t.Fatal(err)
		}
	}
	l := ledger.New(store)
	status := NewObjectStatusStore(store)
	return &fixture{
		store:    store,
		ledger:   l,
		status:   status,
		assigner: New(segments.NewReader(store, "audios"), l, status),
	}
}

func (f *fixture) annotate(t *testing.T, segment, who string) {
	t.Helper()
	if _, err := f.ledger.SaveAnnotation(context.Background(), ledger.Submission{SegmentKey: segment, Contributor: who}); err != nil {
		t.Fatal(err)
	}
}

func mustStart(t *testing.T, a *Assigner, who string) Session {
	t.Helper()
	s, err := a.Start(who)
	if err != nil {
		t.Fatalf("start %s: %v", who, err)
	}
	return s
}

func TestSessionWalksTitlesInOrder(t *testing.T) {
	f := newFixture(t,
		"audios/a/part1.wav",
		"audios/a/part2.wav",
		"audios/b/part1.wav",
	)
	ctx := context.Background()
	s := mustStart(t, f.assigner, "ali")

	s, view, err := f.assigner.Next(ctx, s)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if view.Segment != "audios/a/part1.wav" || view.State != Annotating || view.Position != 0 || view.Remaining != 2 {
		t.Fatalf("first view = %+v", view)
	}

	s, view, err = f.assigner.Submit(ctx, s, "tr1", "fr1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.State != Submitted || view.Segment != "audios/a/part2.wav" || view.Position != 1 || view.Remaining != 1 {
		t.Fatalf("after first submit = %+v", view)
	}

	s, view, err = f.assigner.Submit(ctx, s, "tr2", "fr2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.State != TitleExhausted || !view.GloballyCompleted {
		t.Fatalf("after last submit = %+v", view)
	}
	if !s.Exhausted["a"] {
		t.Fatal("title a should be exhausted for the session")
	}
	status, _ := f.status.Completed(ctx)
	if !status["a"] {
		t.Fatalf("completion should have been persisted, got %v", status)
	}

	s, view, err = f.assigner.Next(ctx, s)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if view.Title != "b" || view.Segment != "audios/b/part1.wav" {
		t.Fatalf("expected to move on to b, got %+v", view)
	}

	s, _, err = f.assigner.Submit(ctx, s, "", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := f.assigner.Next(ctx, s); !errors.Is(err, ErrNothingLeft) {
		t.Fatalf("expected ErrNothingLeft, got %v", err)
	}
}

func TestNoDuplicateCreditAcrossSessions(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/a/part2.wav", "audios/a/part3.wav")
	ctx := context.Background()
	f.annotate(t, "audios/a/part1.wav", "ali")

	s := mustStart(t, f.assigner, "ali")
	s, view, err := f.assigner.SelectTitle(ctx, s, "a")
	if err != nil {
		t.Fatal(err)
	}
	if view.Segment != "audios/a/part2.wav" || view.Unprocessed != 2 || view.Total != 3 {
		t.Fatalf("view = %+v", view)
	}

	s, view, err = f.assigner.Submit(ctx, s, "x", "y")
	if err != nil {
		t.Fatal(err)
	}
	if view.Segment != "audios/a/part3.wav" {
		t.Fatalf("part2 must not be re-offered, got %+v", view)
	}

	// a fresh session sees part2 as processed too
	fresh := mustStart(t, f.assigner, "ali")
	_, view, err = f.assigner.SelectTitle(ctx, fresh, "a")
	if err != nil {
		t.Fatal(err)
	}
	if view.Segment != "audios/a/part3.wav" || view.Unprocessed != 1 {
		t.Fatalf("later session view = %+v", view)
	}

	processed, _ := f.ledger.ProcessedSegments(ctx, "ali", "a")
	if _, ok := processed["part2.wav"]; !ok {
		t.Fatalf("processed = %v", processed)
	}
}

func TestOtherContributorsDoNotShrinkPersonalList(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/a/part2.wav", "audios/b/part1.wav")
	ctx := context.Background()
	f.annotate(t, "audios/a/part1.wav", "awa")

	s := mustStart(t, f.assigner, "ali")
	_, view, err := f.assigner.SelectTitle(ctx, s, "a")
	if err != nil {
		t.Fatal(err)
	}
	if view.Segment != "audios/a/part1.wav" || view.Unprocessed != 2 {
		t.Fatalf("awa's work must not exclude segments for ali: %+v", view)
	}
}

func TestGloballyCompletedTitlesAreNotCandidates(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/b/part1.wav")
	ctx := context.Background()

	awa := mustStart(t, f.assigner, "awa")
	awa, _, err := f.assigner.SelectTitle(ctx, awa, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.assigner.Submit(ctx, awa, "t", "f"); err != nil {
		t.Fatal(err)
	}

	ali := mustStart(t, f.assigner, "ali")
	titles, err := f.assigner.CandidateTitles(ctx, ali)
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 1 || titles[0] != "b" {
		t.Fatalf("candidates = %v, want [b]", titles)
	}

	overview, err := f.assigner.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(overview) != 2 || !overview[0].Completed || overview[1].Completed {
		t.Fatalf("overview = %+v", overview)
	}
}

func TestNothingLeftOnEmptyStore(t *testing.T) {
	f := newFixture(t)
	s := mustStart(t, f.assigner, "ali")
	_, view, err := f.assigner.Next(context.Background(), s)
	if !errors.Is(err, ErrNothingLeft) {
		t.Fatalf("expected ErrNothingLeft, got %v", err)
	}
	if view.State != TitleSelection {
		t.Fatalf("state = %v", view.State)
	}
	titles, err := f.assigner.CandidateTitles(context.Background(), s)
	if err != nil || len(titles) != 0 {
		t.Fatalf("candidates = %v, %v", titles, err)
	}
}

func TestStartValidatesContributor(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"", "a__b", "a/b", "_ali"} {
		s, err := f.assigner.Start(name)
		if !errors.Is(err, keys.ErrInvalidContributor) {
			t.Errorf("%q: expected ErrInvalidContributor, got %v", name, err)
		}
		if s.State != NotStarted {
			t.Errorf("%q: state = %v", name, s.State)
		}
	}
	if _, _, err := f.assigner.Next(context.Background(), Session{}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestUnderscoreNamesKeepSeparateCredit(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/a/part2.wav")
	ctx := context.Background()
	f.annotate(t, "audios/a/part1.wav", "ali_")

	own, err := f.ledger.ProcessedSegments(ctx, "ali_", "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := own["part1.wav"]; !ok || len(own) != 1 {
		t.Fatalf("processed(ali_) = %v", own)
	}
	other, _ := f.ledger.ProcessedSegments(ctx, "ali", "a")
	if len(other) != 0 {
		t.Fatalf("processed(ali) = %v", other)
	}

	s := mustStart(t, f.assigner, "ali_")
	s, view, err := f.assigner.SelectTitle(ctx, s, "a")
	if err != nil {
		t.Fatal(err)
	}
	if view.Segment != "audios/a/part2.wav" || view.Unprocessed != 1 {
		t.Fatalf("view = %+v", view)
	}
	if _, view, err = f.assigner.Submit(ctx, s, "x", "y"); err != nil {
		t.Fatal(err)
	}
	if view.State != TitleExhausted || !view.GloballyCompleted {
		t.Fatalf("title should be complete, got %+v", view)
	}
}

func TestSelectUnknownTitle(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav")
	s := mustStart(t, f.assigner, "ali")
	if _, _, err := f.assigner.SelectTitle(context.Background(), s, "zzz"); !errors.Is(err, ErrUnknownTitle) {
		t.Fatalf("expected ErrUnknownTitle, got %v", err)
	}
	if _, _, err := f.assigner.Current(context.Background(), s); !errors.Is(err, ErrNoTitle) {
		t.Fatalf("expected ErrNoTitle, got %v", err)
	}
}

func TestFailedSubmitDoesNotAdvance(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/a/part2.wav")
	ctx := context.Background()
	s := mustStart(t, f.assigner, "ali")
	s, _, err := f.assigner.SelectTitle(ctx, s, "a")
	if err != nil {
		t.Fatal(err)
	}

	f.store.FailPut("annotations/a/part1__ali.json", errors.New("timeout"))
	after, view, err := f.assigner.Submit(ctx, s, "t", "f")
	if err == nil {
		t.Fatal("expected submit error")
	}
	if after.Cursor() != 0 || view.Segment != "audios/a/part1.wav" || len(after.Submitted) != 0 {
		t.Fatalf("cursor moved on failure: cursor=%d view=%+v", after.Cursor(), view)
	}
}

func TestTransitionsDoNotMutateInput(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/a/part2.wav")
	ctx := context.Background()
	s := mustStart(t, f.assigner, "ali")
	s, _, err := f.assigner.SelectTitle(ctx, s, "a")
	if err != nil {
		t.Fatal(err)
	}

	before := s.Cursor()
	next, _, err := f.assigner.Submit(ctx, s, "t", "f")
	if err != nil {
		t.Fatal(err)
	}
	if s.Cursor() != before || len(s.Submitted) != 0 {
		t.Fatal("input session was mutated")
	}
	if next.Cursor() != 1 || !next.Submitted["audios/a/part1.wav"] {
		t.Fatalf("next = %+v", next)
	}
}

func TestCursorClampedWhenListShrinks(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/a/part2.wav", "audios/a/part3.wav")
	ctx := context.Background()
	s := mustStart(t, f.assigner, "ali")
	s.Title = "a"
	s.Cursors["a"] = 2

	// the same contributor finished part2 and part3 elsewhere
	f.annotate(t, "audios/a/part2.wav", "ali")
	f.annotate(t, "audios/a/part3.wav", "ali")

	s, view, err := f.assigner.Current(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if view.Segment != "audios/a/part1.wav" || s.Cursor() != 0 {
		t.Fatalf("expected clamp back to part1, got %+v cursor=%d", view, s.Cursor())
	}
	if s.Cursor() < 0 || s.Cursor() > view.Unprocessed {
		t.Fatalf("cursor %d out of [0, %d]", s.Cursor(), view.Unprocessed)
	}
}

func TestRecomputeCompletionIsMonotonic(t *testing.T) {
	f := newFixture(t, "audios/a/part1.wav", "audios/b/part1.wav", "audios/b/part2.wav")
	ctx := context.Background()
	f.annotate(t, "audios/a/part1.wav", "ali")
	f.annotate(t, "audios/b/part1.wav", "awa")

	got, err := f.assigner.RecomputeCompletion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got["a"] || got["b"] {
		t.Fatalf("recompute = %v", got)
	}

	f.annotate(t, "audios/a/part1.wav", "awa")
	got, _ = f.assigner.RecomputeCompletion(ctx)
	if !got["a"] {
		t.Fatal("completion must stay true after more writes")
	}
	status, _ := f.status.Completed(ctx)
	if !status["a"] || status["b"] {
		t.Fatalf("status = %v", status)
	}
}

func TestNextOpen(t *testing.T) {
	list := []string{"a", "b", "c"}
	cases := []struct {
		submitted map[string]bool
		cursor    int
		want      int
	}{
		{nil, 0, 0},
		{map[string]bool{"a": true}, 0, 1},
		{map[string]bool{"c": true}, 2, 0},
		{nil, 99, 0},
		{nil, -3, 0},
		{map[string]bool{"a": true, "b": true, "c": true}, 1, -1},
	}
	for _, c := range cases {
		if got := nextOpen(list, c.submitted, c.cursor); got != c.want {
			t.Errorf("nextOpen(%v, %d) = %d, want %d", c.submitted, c.cursor, got, c.want)
		}
	}
	if got := nextOpen(nil, nil, 0); got != -1 {
		t.Fatalf("empty list = %d", got)
	}
}
