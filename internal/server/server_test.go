package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/jewelbot/internal/controller"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine"
	"github.com/ChamsBouzaiene/jewelbot/internal/engine/protocol"
	"github.com/ChamsBouzaiene/jewelbot/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

type call struct {
	SessionID string
	Input     controller.Input
}

// fakeTurner answers turns from a function and records every call.
type fakeTurner struct {
	mu     sync.Mutex
	calls  []call
	resets []string
	turn   func(ctx context.Context, id string, in controller.Input) (controller.Reply, error)
	stored map[string]*session.Session
}

func (f *fakeTurner) RunTurn(ctx context.Context, id string, in controller.Input) (controller.Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{SessionID: id, Input: in})
	f.mu.Unlock()
	if id == "" {
		return controller.Reply{}, controller.ErrMissingSession
	}
	if f.turn == nil {
		return controller.Reply{Text: "echo: " + in.Text}, nil
	}
	return f.turn(ctx, id, in)
}

func (f *fakeTurner) Reset(_ context.Context, id string) error {
	if id == "" {
		return controller.ErrMissingSession
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, id)
	return nil
}

func (f *fakeTurner) Session(_ context.Context, id string) (*session.Session, error) {
	if s, ok := f.stored[id]; ok {
		return s, nil
	}
	return nil, session.ErrNotFound
}

func (f *fakeTurner) lastCall(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no turn was run")
	}
	return f.calls[len(f.calls)-1]
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	srv := New(&fakeTurner{}, Options{})
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestChat(t *testing.T) {
	turner := &fakeTurner{turn: func(_ context.Context, _ string, in controller.Input) (controller.Reply, error) {
		return controller.Reply{Text: "Which style?", Images: []string{"a.jpg"}}, nil
	}}
	srv := New(turner, Options{})
	defer srv.Close()

	w := post(t, srv.Handler(), "/chat", `{"query":"a ring","image":"data:image/png;base64,AAAA","thread_id":"t1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := decodeBody[ChatResponse](t, w)
	want := ChatResponse{Response: "Which style?", Images: []string{"a.jpg"}, ThreadID: "t1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	wantCall := call{SessionID: "t1", Input: controller.Input{Text: "a ring", Images: []string{"data:image/png;base64,AAAA"}}}
	if diff := cmp.Diff(wantCall, turner.lastCall(t)); diff != "" {
		t.Errorf("turn mismatch (-want +got):\n%s", diff)
	}
}

func TestChatAssignsThreadID(t *testing.T) {
	turner := &fakeTurner{}
	srv := New(turner, Options{})
	defer srv.Close()

	w := post(t, srv.Handler(), "/chat", `{"query":"hello"}`)
	got := decodeBody[ChatResponse](t, w)
	if got.ThreadID == "" {
		t.Fatal("thread_id was not assigned")
	}
	if turner.lastCall(t).SessionID != got.ThreadID {
		t.Errorf("turn ran on %q, response says %q", turner.lastCall(t).SessionID, got.ThreadID)
	}
	if got.Images == nil {
		t.Error("images should encode as an empty array")
	}
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		err          error
		wantStatus   int
		wantResponse string
	}{
		{
			name:         "external failure",
			body:         `{"query":"hi","thread_id":"t1"}`,
			err:          engine.External("extract_style", errors.New("provider down")),
			wantStatus:   http.StatusBadGateway,
			wantResponse: controller.RetryText,
		},
		{
			name:         "oracle timeout",
			body:         `{"query":"hi","thread_id":"t1"}`,
			err:          context.DeadlineExceeded,
			wantStatus:   http.StatusBadGateway,
			wantResponse: controller.RetryText,
		},
		{
			name:         "invariant violation",
			body:         `{"query":"hi","thread_id":"t1"}`,
			err:          engine.Violation("test", "broken"),
			wantStatus:   http.StatusInternalServerError,
			wantResponse: controller.RetryText,
		},
		{
			name:       "empty message",
			body:       `{"query":"","thread_id":"t1"}`,
			err:        controller.ErrEmptyMessage,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"query":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turner := &fakeTurner{turn: func(context.Context, string, controller.Input) (controller.Reply, error) {
				return controller.Reply{}, tt.err
			}}
			srv := New(turner, Options{})
			defer srv.Close()

			w := post(t, srv.Handler(), "/chat", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantResponse == "" {
				return
			}
			got := decodeBody[ChatResponse](t, w)
			if got.Response != tt.wantResponse {
				t.Errorf("response = %q, want %q", got.Response, tt.wantResponse)
			}
			if strings.Contains(w.Body.String(), "provider down") {
				t.Error("provider detail leaked to the client")
			}
		})
	}
}

func TestChatRateLimit(t *testing.T) {
	srv := New(&fakeTurner{}, Options{RateLimit: 2, RateWindow: time.Hour})
	defer srv.Close()

	for i := 0; i < 2; i++ {
		if w := post(t, srv.Handler(), "/chat", `{"query":"hi","thread_id":"t1"}`); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if w := post(t, srv.Handler(), "/chat", `{"query":"hi","thread_id":"t1"}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}
	if w := post(t, srv.Handler(), "/chat", `{"query":"hi","thread_id":"t2"}`); w.Code != http.StatusOK {
		t.Errorf("other thread status = %d, want 200", w.Code)
	}
}

func TestReset(t *testing.T) {
	turner := &fakeTurner{}
	srv := New(turner, Options{})
	defer srv.Close()

	w := post(t, srv.Handler(), "/reset", `{"thread_id":"t1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decodeBody[map[string]string](t, w); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
	if diff := cmp.Diff([]string{"t1"}, turner.resets); diff != "" {
		t.Errorf("resets mismatch (-want +got):\n%s", diff)
	}

	if w := post(t, srv.Handler(), "/reset", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing thread status = %d, want 400", w.Code)
	}
}

func TestGetSession(t *testing.T) {
	stored := session.New("t1")
	stored.Append(session.NewTurn(session.RoleUser, "hi", nil))
	srv := New(&fakeTurner{stored: map[string]*session.Session{"t1": stored}}, Options{})
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/t1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"hi"`) {
		t.Errorf("session body missing turn: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", w.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") {
		t.Fatal("first request denied")
	}
	if rl.Allow("a") {
		t.Fatal("second request inside window allowed")
	}
	now = now.Add(61 * time.Second)
	if !rl.Allow("a") {
		t.Error("request after window denied")
	}

	rl.evict()
	if len(rl.requests) != 1 {
		t.Errorf("evict dropped live key: %v", rl.requests)
	}

	disabled := NewRateLimiter(0, time.Minute)
	if !disabled.Allow("a") {
		t.Error("disabled limiter denied a request")
	}
	disabled.Stop()
}

func collect(events *[]protocol.Event, mu *sync.Mutex) Emit {
	return func(ev protocol.Event) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, ev)
	}
}

func TestDispatcherCommands(t *testing.T) {
	turner := &fakeTurner{}
	d := NewDispatcher(turner, nil, nil)

	var (
		mu     sync.Mutex
		events []protocol.Event
	)
	emit := collect(&events, &mu)

	d.HandleLine(context.Background(), []byte(`{"type":"user_message","session_id":"s1","message":"hi","request_id":"r1"}`), emit)
	d.HandleLine(context.Background(), []byte(`{"type":"reset_session","session_id":"s1"}`), emit)
	d.HandleLine(context.Background(), []byte(`not json`), emit)

	var types []protocol.EventType
	for _, ev := range events {
		types = append(types, ev.GetType())
	}
	want := []protocol.EventType{protocol.EventStatus, protocol.EventReply, protocol.EventStatus, protocol.EventError}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	reply := events[1].(protocol.ReplyEvent)
	if reply.Text != "echo: hi" || reply.RequestID != "r1" {
		t.Errorf("reply = %+v", reply)
	}
	if code := events[3].(protocol.ErrorEvent).Code; code != protocol.CodeProtocol {
		t.Errorf("decode failure code = %s", code)
	}
}

func TestDispatcherCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	turner := &fakeTurner{turn: func(ctx context.Context, _ string, _ controller.Input) (controller.Reply, error) {
		close(started)
		<-ctx.Done()
		return controller.Reply{}, ctx.Err()
	}}
	d := NewDispatcher(turner, nil, nil)

	var (
		mu     sync.Mutex
		events []protocol.Event
	)
	emit := collect(&events, &mu)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(context.Background(), protocol.UserMessageCommand{SessionID: "s1", Message: "hi", RequestID: "r1"}, emit)
	}()
	<-started
	if d.InFlight() != 1 {
		t.Fatalf("InFlight() = %d, want 1", d.InFlight())
	}
	d.Dispatch(context.Background(), protocol.CancelRequestCommand{SessionID: "s1"}, emit)
	<-done

	if d.InFlight() != 0 {
		t.Errorf("InFlight() after cancel = %d", d.InFlight())
	}
	mu.Lock()
	defer mu.Unlock()
	var sawCancelled bool
	for _, ev := range events {
		if e, ok := ev.(protocol.ErrorEvent); ok {
			sawCancelled = e.Code == protocol.CodeCancelled && e.RequestID == "r1"
		}
	}
	if !sawCancelled {
		t.Errorf("no cancelled error event in %+v", events)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{controller.ErrEmptyMessage, protocol.CodeBadRequest},
		{engine.External("caption", errors.New("x")), protocol.CodeExternal},
		{engine.Violation("c", "d"), protocol.CodeInternal},
		{context.Canceled, protocol.CodeCancelled},
		{errors.New("disk full"), protocol.CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestWebSocketTurn(t *testing.T) {
	srv := New(&fakeTurner{}, Options{})
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	cmd := protocol.UserMessageCommand{Type: protocol.CommandUserMessage, SessionID: "s1", Message: "rings", RequestID: "r9"}
	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		t.Fatalf("write error = %v", err)
	}

	for {
		var ev map[string]any
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read error = %v", err)
		}
		if ev["type"] != string(protocol.EventReply) {
			continue
		}
		if ev["text"] != "echo: rings" || ev["request_id"] != "r9" {
			t.Errorf("reply = %v", ev)
		}
		return
	}
}
