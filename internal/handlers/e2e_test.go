package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snappy-loop/donghua/internal/agents"
	"github.com/snappy-loop/donghua/internal/llm"
	"github.com/snappy-loop/donghua/internal/session"
)

// geminiCall is the subset of a generateContent request the scenario checks.
type geminiCall struct {
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ImageConfig *struct {
			AspectRatio string `json:"aspectRatio"`
			ImageSize   string `json:"imageSize"`
		} `json:"imageConfig"`
	} `json:"generationConfig"`
}

// TestSwordswomanScenario drives a session through the real Gemini client
// against a fake endpoint.
func TestSwordswomanScenario(t *testing.T) {
	const styled = "elegant swordswoman... full body shot..."
	var (
		mu    sync.Mutex
		calls = map[string]geminiCall{}
	)
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c geminiCall
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &c)
		mu.Lock()
		calls[r.URL.Path] = c
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "image") {
			io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"Zm9v"}}]}}]}`)
			return
		}
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"`+styled+`"}]}}]}`)
	}))
	defer gemini.Close()

	client := llm.NewClient(context.Background(), llm.Config{APIKey: "test-key", Endpoint: gemini.URL})
	agent := agents.NewCharacterAgent(client)
	store := session.NewStore(context.Background(), agent, time.Hour, time.Minute, 5*time.Second)
	r := NewRouter(NewHandler(store, agent, nil, time.Hour, false), passThrough)

	id := createSession(t, r)
	base := "/api/sessions/" + id.String()
	do(t, r, http.MethodPost, base+"/prompt", `{"description":"a swordswoman in white robes"}`)
	snap := waitForSnapshot(t, r, id, func(s session.Snapshot) bool { return s.Prompt.Status == session.StatusSuccess })
	if snap.Prompt.Value != styled {
		t.Fatalf("prompt = %q, want %q", snap.Prompt.Value, styled)
	}

	do(t, r, http.MethodPost, base+"/image", "")
	snap = waitForSnapshot(t, r, id, func(s session.Snapshot) bool { return s.Image.Status == session.StatusSuccess })
	if snap.Image.Value != "data:image/png;base64,Zm9v" {
		t.Errorf("image = %q", snap.Image.Value)
	}

	mu.Lock()
	defer mu.Unlock()
	text, ok := calls["/v1beta/models/gemini-3-flash-preview:generateContent"]
	if !ok {
		t.Fatalf("text model not called; got %v", calls)
	}
	if text.SystemInstruction == nil || len(text.SystemInstruction.Parts) == 0 ||
		text.SystemInstruction.Parts[0].Text != llm.SystemInstruction {
		t.Error("text call missing the system instruction")
	}
	if len(text.Contents) == 0 || text.Contents[0].Parts[0].Text != llm.PromptRequest("a swordswoman in white robes") {
		t.Error("text call missing the task message with the description")
	}

	image, ok := calls["/v1beta/models/gemini-3-pro-image-preview:generateContent"]
	if !ok {
		t.Fatal("image model not called")
	}
	if len(image.Contents) == 0 || image.Contents[0].Parts[0].Text != styled {
		t.Error("image call should carry the exact prompt text")
	}
	if ic := image.GenerationConfig.ImageConfig; ic == nil || ic.AspectRatio != "9:16" || ic.ImageSize != "1K" {
		t.Errorf("image config = %+v", ic)
	}
}
