package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snappy-loop/donghua/internal/llm"
)

type reply struct {
	value string
	err   error
}

// call is one blocked agent invocation awaiting a reply from the test.
type call struct {
	input string
	reply chan reply
}

// blockingAgent hands every call to the test and blocks until it is answered.
type blockingAgent struct {
	prompts chan *call
	images  chan *call
}

func newBlockingAgent() *blockingAgent {
	return &blockingAgent{
		prompts: make(chan *call, 8),
		images:  make(chan *call, 8),
	}
}

func (a *blockingAgent) GeneratePrompt(ctx context.Context, description string) (string, error) {
	return a.await(ctx, a.prompts, description)
}

func (a *blockingAgent) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return a.await(ctx, a.images, prompt)
}

func (a *blockingAgent) await(ctx context.Context, calls chan *call, input string) (string, error) {
	c := &call{input: input, reply: make(chan reply, 1)}
	calls <- c
	select {
	case r := <-c.reply:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func next(t *testing.T, calls chan *call) *call {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent call")
		return nil
	}
}

func expectNoCall(t *testing.T, calls chan *call) {
	t.Helper()
	select {
	case c := <-calls:
		t.Fatalf("unexpected agent call with input %q", c.input)
	case <-time.After(20 * time.Millisecond):
	}
}

// waitFor polls the session until cond holds.
func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := s.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, last snapshot %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func promptIs(st Status) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.Prompt.Status == st }
}

func imageIs(st Status) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.Image.Status == st }
}

// withPrompt drives a new session to prompt success(text).
func withPrompt(t *testing.T, agent *blockingAgent, text string) *Session {
	t.Helper()
	s := New(context.Background(), agent, time.Second)
	if !s.SubmitDescription("a swordswoman in white robes") {
		t.Fatal("SubmitDescription rejected a valid description")
	}
	next(t, agent.prompts).reply <- reply{value: text}
	waitFor(t, s, promptIs(StatusSuccess))
	return s
}

func TestSubmitDescription_StartsPromptAndResetsImage(t *testing.T) {
	agent := newBlockingAgent()
	s := withPrompt(t, agent, "elegant swordswoman")

	if !s.RequestImage() {
		t.Fatal("RequestImage should start from a usable prompt")
	}
	next(t, agent.images).reply <- reply{value: "data:image/png;base64,Zm9v"}
	waitFor(t, s, imageIs(StatusSuccess))

	if !s.SubmitDescription("an old monk") {
		t.Fatal("SubmitDescription rejected a valid description")
	}
	snap := s.Snapshot()
	if snap.Prompt.Status != StatusPending {
		t.Errorf("prompt status = %q, want pending", snap.Prompt.Status)
	}
	if snap.Image.Status != StatusIdle || snap.Image.Value != "" {
		t.Errorf("image = %+v, want empty idle", snap.Image)
	}
	if snap.CanGeneratePrompt || snap.CanGenerateImage {
		t.Errorf("no action should be enabled while the prompt is pending: %+v", snap)
	}
	if got := next(t, agent.prompts).input; got != "an old monk" {
		t.Errorf("agent received %q, want the submitted description", got)
	}
}

func TestSubmitDescription_BlankIsNoop(t *testing.T) {
	for _, desc := range []string{"", "   ", "\n\t"} {
		agent := newBlockingAgent()
		s := New(context.Background(), agent, time.Second)
		before := s.Snapshot()

		if s.SubmitDescription(desc) {
			t.Errorf("SubmitDescription(%q) = true, want no-op", desc)
		}
		expectNoCall(t, agent.prompts)
		if after := s.Snapshot(); after != before {
			t.Errorf("SubmitDescription(%q) changed state: %+v", desc, after)
		}
	}
}

func TestSubmitDescription_IgnoredWhilePending(t *testing.T) {
	agent := newBlockingAgent()
	s := New(context.Background(), agent, time.Second)
	s.SubmitDescription("first")
	c := next(t, agent.prompts)

	if s.SubmitDescription("second") {
		t.Error("SubmitDescription should be a no-op while pending")
	}
	expectNoCall(t, agent.prompts)

	c.reply <- reply{value: "first prompt"}
	snap := waitFor(t, s, promptIs(StatusSuccess))
	if snap.Prompt.Value != "first prompt" {
		t.Errorf("prompt = %q, want first prompt", snap.Prompt.Value)
	}
}

func TestPromptSuccess_EnablesImage(t *testing.T) {
	agent := newBlockingAgent()
	s := New(context.Background(), agent, time.Second)
	if s.RequestImage() {
		t.Fatal("RequestImage should be a no-op before any prompt")
	}
	s.SubmitDescription("desc")
	if s.RequestImage() {
		t.Fatal("RequestImage should be a no-op while the prompt is pending")
	}
	next(t, agent.prompts).reply <- reply{value: "styled"}

	snap := waitFor(t, s, promptIs(StatusSuccess))
	if snap.Prompt.Value != "styled" {
		t.Errorf("prompt = %q, want styled", snap.Prompt.Value)
	}
	if !snap.CanGenerateImage || !snap.CanGeneratePrompt {
		t.Errorf("both actions should be enabled after success: %+v", snap)
	}
	expectNoCall(t, agent.images)
}

func TestPromptFallback_DoesNotEnableImage(t *testing.T) {
	agent := newBlockingAgent()
	s := withPrompt(t, agent, llm.FallbackPrompt)

	snap := s.Snapshot()
	if snap.Prompt.Status != StatusSuccess || snap.Prompt.Value != llm.FallbackPrompt {
		t.Fatalf("prompt = %+v, want success(fallback)", snap.Prompt)
	}
	if snap.CanGenerateImage {
		t.Error("fallback prompt should not enable image generation")
	}
	if s.RequestImage() {
		t.Error("RequestImage should be a no-op for the fallback prompt")
	}
	expectNoCall(t, agent.images)
}

func TestPromptFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"error message kept", errors.New("quota or rate limit exceeded"), "quota or rate limit exceeded"},
		{"empty message falls back", errors.New(""), promptFailedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := newBlockingAgent()
			s := New(context.Background(), agent, time.Second)
			s.SubmitDescription("desc")
			next(t, agent.prompts).reply <- reply{err: tt.err}

			snap := waitFor(t, s, promptIs(StatusFailed))
			if snap.Prompt.Reason != tt.want {
				t.Errorf("reason = %q, want %q", snap.Prompt.Reason, tt.want)
			}
			if snap.CanGenerateImage {
				t.Error("failed prompt should not enable image generation")
			}
		})
	}
}

func TestRequestImage_SendsPromptAndIgnoresDuplicates(t *testing.T) {
	agent := newBlockingAgent()
	s := withPrompt(t, agent, "elegant swordswoman... full body shot...")

	if !s.RequestImage() {
		t.Fatal("RequestImage should start")
	}
	if s.RequestImage() {
		t.Error("RequestImage should be a no-op while the image is pending")
	}
	c := next(t, agent.images)
	expectNoCall(t, agent.images)
	if c.input != "elegant swordswoman... full body shot..." {
		t.Errorf("image agent received %q, want the exact prompt text", c.input)
	}

	c.reply <- reply{value: "data:image/png;base64,Zm9v"}
	snap := waitFor(t, s, imageIs(StatusSuccess))
	if snap.Image.Value != "data:image/png;base64,Zm9v" {
		t.Errorf("image = %q", snap.Image.Value)
	}
}

func TestRequestImage_Failure(t *testing.T) {
	tests := []struct {
		name  string
		reply reply
		want  string
	}{
		{"no image", reply{err: errors.New("No image data found in response.")}, "No image data found in response."},
		{"empty payload", reply{}, imageFailedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := newBlockingAgent()
			s := withPrompt(t, agent, "styled")
			s.RequestImage()
			next(t, agent.images).reply <- tt.reply

			snap := waitFor(t, s, imageIs(StatusFailed))
			if snap.Image.Reason != tt.want || snap.Image.Value != "" {
				t.Errorf("image = %+v, want failed(%q)", snap.Image, tt.want)
			}
		})
	}
}

func TestDismissImage(t *testing.T) {
	for _, outcome := range []reply{{value: "data:image/png;base64,Zm9v"}, {err: errors.New("boom")}} {
		agent := newBlockingAgent()
		s := withPrompt(t, agent, "styled")
		s.RequestImage()
		next(t, agent.images).reply <- outcome
		waitFor(t, s, func(sn Snapshot) bool { return sn.Image.Status != StatusPending })

		if !s.DismissImage() {
			t.Fatal("DismissImage should apply from a settled state")
		}
		if got := s.Snapshot().Image; got != (RequestState[string]{Status: StatusIdle}) {
			t.Errorf("image after dismiss = %+v, want empty idle", got)
		}
		if s.DismissImage() {
			t.Error("DismissImage on idle should be a no-op")
		}
	}
}

func TestDismissImage_InFlightStillCompletes(t *testing.T) {
	agent := newBlockingAgent()
	s := withPrompt(t, agent, "styled")
	s.RequestImage()
	c := next(t, agent.images)

	s.DismissImage()
	c.reply <- reply{value: "data:image/png;base64,Zm9v"}
	waitFor(t, s, imageIs(StatusSuccess))
}

func TestStaleImageDiscardedAfterNewDescription(t *testing.T) {
	agent := newBlockingAgent()
	s := withPrompt(t, agent, "styled")
	s.RequestImage()
	stale := next(t, agent.images)

	s.SubmitDescription("another hero")
	prompt := next(t, agent.prompts)

	stale.reply <- reply{value: "data:image/png;base64,c3RhbGU="}
	prompt.reply <- reply{value: "another styled"}
	s.Wait()

	snap := s.Snapshot()
	if snap.Image.Status != StatusIdle || snap.Image.Value != "" {
		t.Errorf("stale image applied: %+v", snap.Image)
	}
	if snap.Prompt.Value != "another styled" {
		t.Errorf("prompt = %q, want another styled", snap.Prompt.Value)
	}
}

func TestSubscribe_ReceivesLatestSnapshot(t *testing.T) {
	agent := newBlockingAgent()
	s := New(context.Background(), agent, time.Second)
	updates, unsubscribe := s.Subscribe()

	s.SubmitDescription("desc")
	next(t, agent.prompts).reply <- reply{value: "styled"}
	s.Wait()

	select {
	case snap := <-updates:
		if snap.Prompt.Status != StatusSuccess || snap.Prompt.Value != "styled" {
			t.Errorf("latest snapshot = %+v, want prompt success", snap.Prompt)
		}
	default:
		t.Fatal("no snapshot delivered")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-updates; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestCallTimeoutFailsRequest(t *testing.T) {
	agent := newBlockingAgent()
	s := New(context.Background(), agent, 10*time.Millisecond)
	s.SubmitDescription("desc")
	next(t, agent.prompts)

	snap := waitFor(t, s, promptIs(StatusFailed))
	if snap.Prompt.Reason != context.DeadlineExceeded.Error() {
		t.Errorf("reason = %q", snap.Prompt.Reason)
	}
}
