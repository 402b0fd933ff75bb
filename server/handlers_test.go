package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"moorecollect/config"
	"moorecollect/core/assign"
	"moorecollect/core/ledger"
	"moorecollect/core/segments"
	"moorecollect/core/stats"
	"moorecollect/storage"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, segmentKeys ...string) (http.Handler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, k := range segmentKeys {
		if err := store.Put(context.Background(), k, []byte("pcm"), "audio/wav"); err != nil {
			t.Fatal(err)
		}
	}
	l := ledger.New(store)
	a := assign.New(segments.NewReader(store, "audios"), l, assign.NewObjectStatusStore(store))
	return NewRouter(NewHandler(a, l, store, time.Hour)), store
}

func do(t *testing.T, router http.Handler, method, path, body string) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, resp
}

func payload(t *testing.T, resp apiResponse) SessionPayload {
	t.Helper()
	var p SessionPayload
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		t.Fatalf("decode payload %s: %v", resp.Data, err)
	}
	return p
}

func TestSessionFlow(t *testing.T) {
	router, store := newTestRouter(t, "audios/a/part1.wav", "audios/a/part2.wav")

	code, resp := do(t, router, http.MethodPost, "/api/sessions", `{"contributor":"ali"}`)
	if code != http.StatusCreated || !resp.Success {
		t.Fatalf("start = %d %+v", code, resp)
	}
	p := payload(t, resp)
	if p.View.Segment != "audios/a/part1.wav" || p.AudioURL == "" || p.View.State != assign.Annotating {
		t.Fatalf("start payload = %+v", p)
	}

	code, resp = do(t, router, http.MethodPost, "/api/sessions/ali/submit", `{"transcription":"yãmb yaa wãna","traduction":"comment vas-tu"}`)
	if code != http.StatusOK {
		t.Fatalf("submit = %d %+v", code, resp)
	}
	p = payload(t, resp)
	if p.View.Segment != "audios/a/part2.wav" || p.View.State != assign.Submitted {
		t.Fatalf("after submit = %+v", p.View)
	}
	if _, err := store.Get(context.Background(), "annotations/a/part1__ali.json"); err != nil {
		t.Fatalf("annotation not stored: %v", err)
	}

	code, resp = do(t, router, http.MethodGet, "/api/sessions/ali/current", "")
	if code != http.StatusOK || payload(t, resp).View.Segment != "audios/a/part2.wav" {
		t.Fatalf("current = %d %+v", code, resp)
	}

	code, resp = do(t, router, http.MethodPost, "/api/sessions/ali/submit", `{}`)
	if code != http.StatusOK || payload(t, resp).View.State != assign.TitleExhausted {
		t.Fatalf("last submit = %d %+v", code, resp)
	}

	code, resp = do(t, router, http.MethodPost, "/api/sessions/ali/next", "")
	if code != http.StatusOK || resp.Message != MsgNoAudio {
		t.Fatalf("next = %d %+v", code, resp)
	}

	code, resp = do(t, router, http.MethodGet, "/api/titles", "")
	if code != http.StatusOK {
		t.Fatalf("titles = %d", code)
	}
	var titles []assign.TitleOverview
	if err := json.Unmarshal(resp.Data, &titles); err != nil || len(titles) != 1 || !titles[0].Completed {
		t.Fatalf("titles = %s, %v", resp.Data, err)
	}

	code, resp = do(t, router, http.MethodGet, "/api/stats", "")
	var summary stats.Summary
	if err := json.Unmarshal(resp.Data, &summary); err != nil || code != http.StatusOK || summary.Annotations != 2 {
		t.Fatalf("stats = %d %s", code, resp.Data)
	}

	code, resp = do(t, router, http.MethodGet, "/api/contributors/ali/duration", "")
	if code != http.StatusOK || !bytes.Contains(resp.Data, []byte(`"minutes":0`)) {
		t.Fatalf("duration = %d %s", code, resp.Data)
	}

	code, _ = do(t, router, http.MethodDelete, "/api/sessions/ali", "")
	if code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	code, resp = do(t, router, http.MethodGet, "/api/sessions/ali/current", "")
	if code != http.StatusNotFound || resp.Error != MsgNoSession {
		t.Fatalf("after delete = %d %+v", code, resp)
	}
}

func TestSelectTitleAndCandidates(t *testing.T) {
	router, _ := newTestRouter(t, "audios/a/part1.wav", "audios/b/part1.wav")
	do(t, router, http.MethodPost, "/api/sessions", `{"contributor":"awa"}`)

	code, resp := do(t, router, http.MethodGet, "/api/sessions/awa/candidates", "")
	var titles []string
	if err := json.Unmarshal(resp.Data, &titles); err != nil || code != http.StatusOK || len(titles) != 2 {
		t.Fatalf("candidates = %d %s", code, resp.Data)
	}

	code, resp = do(t, router, http.MethodPost, "/api/sessions/awa/title", `{"title":"b"}`)
	if code != http.StatusOK || payload(t, resp).View.Segment != "audios/b/part1.wav" {
		t.Fatalf("select = %d %+v", code, resp)
	}

	code, resp = do(t, router, http.MethodPost, "/api/sessions/awa/title", `{"title":"zzz"}`)
	if code != http.StatusNotFound || resp.Error != MsgNoAudio {
		t.Fatalf("unknown title = %d %+v", code, resp)
	}
	code, resp = do(t, router, http.MethodPost, "/api/sessions/awa/title", `{}`)
	if code != http.StatusBadRequest || resp.Error != "title is required" {
		t.Fatalf("missing title = %d %+v", code, resp)
	}
}

func TestStartSessionValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	cases := []struct {
		body string
		want int
	}{
		{`{"contributor":"a__b"}`, http.StatusBadRequest},
		{`{"contributor":"_ali"}`, http.StatusBadRequest},
		{`{"contributor":"a/b"}`, http.StatusBadRequest},
		{`{"contributor":""}`, http.StatusBadRequest},
		{`{"contributor":"ali","extra":1}`, http.StatusBadRequest},
		{``, http.StatusBadRequest},
		{`{"contributor":"ali"}`, http.StatusCreated},
	}
	for _, c := range cases {
		code, resp := do(t, router, http.MethodPost, "/api/sessions", c.body)
		if code != c.want {
			t.Errorf("%q: code = %d (%+v), want %d", c.body, code, resp, c.want)
		}
	}
}

func TestEmptyStoreIsNotAnError(t *testing.T) {
	router, _ := newTestRouter(t)

	code, resp := do(t, router, http.MethodGet, "/api/titles", "")
	if code != http.StatusOK || resp.Message != MsgNoAudio || string(resp.Data) != "[]" {
		t.Fatalf("titles = %d %+v", code, resp)
	}
	code, resp = do(t, router, http.MethodPost, "/api/sessions", `{"contributor":"ali"}`)
	if code != http.StatusCreated || resp.Message != MsgNoAudio {
		t.Fatalf("start = %d %+v", code, resp)
	}
	code, resp = do(t, router, http.MethodGet, "/api/stats", "")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("stats = %d %+v", code, resp)
	}
}

func TestStorageFailure(t *testing.T) {
	router, store := newTestRouter(t, "audios/a/part1.wav")
	store.FailList(errors.New("connection refused"))
	code, resp := do(t, router, http.MethodGet, "/api/titles", "")
	if code != http.StatusBadGateway || resp.Error != MsgStorageFailure {
		t.Fatalf("titles = %d %+v", code, resp)
	}
}

func TestAudioHandler(t *testing.T) {
	router, _ := newTestRouter(t, "audios/a/part1.wav")

	code, resp := do(t, router, http.MethodGet, "/api/audio?key=audios/a/part1.wav", "")
	if code != http.StatusOK || !bytes.Contains(resp.Data, []byte("memory:///")) {
		t.Fatalf("audio = %d %+v", code, resp)
	}
	code, resp = do(t, router, http.MethodGet, "/api/audio?key=audios/a/part9.wav", "")
	if code != http.StatusNotFound || resp.Error != MsgNoAudio {
		t.Fatalf("missing = %d %+v", code, resp)
	}
	code, _ = do(t, router, http.MethodGet, "/api/audio?key=notes.txt", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad key = %d", code)
	}
}

func TestCORSAndRequestID(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/titles", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("request id = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestClassify(t *testing.T) {
	if code, msg := classify(config.ErrMissingStorage); code != http.StatusServiceUnavailable || msg != MsgConfigStorage {
		t.Fatalf("missing storage = %d %s", code, msg)
	}
	if code, _ := classify(assign.ErrNoTitle); code != http.StatusConflict {
		t.Fatalf("no title = %d", code)
	}
}
