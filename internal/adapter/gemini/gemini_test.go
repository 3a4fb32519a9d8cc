package gemini_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/flap-ai/flapd/internal/adapter/gemini"
	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/port/provider"
)

func event(text, finishReason string) string {
	if finishReason != "" {
		return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]},"finishReason":%q}]}`, text, finishReason)
	}
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

func sseBody(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("data: ")
		b.WriteString(l)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestCompleteRoleMapping(t *testing.T) {
	var captured struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Errorf("api key header = %s", r.Header.Get("x-goog-api-key"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_, _ = w.Write([]byte(event("answer", "")))
	}))
	defer srv.Close()

	c := gemini.New("key", gemini.WithBaseURL(srv.URL))
	msgs := []chat.Message{
		chat.System("be helpful"),
		chat.User("hi"),
		chat.Assistant("hello"),
	}
	got, err := c.Complete(context.Background(), msgs)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "answer" {
		t.Errorf("text = %q", got.Text)
	}

	roles := make([]string, len(captured.Contents))
	for i, ct := range captured.Contents {
		roles[i] = ct.Role
	}
	if !reflect.DeepEqual(roles, []string{"user", "user", "model"}) {
		t.Errorf("roles = %v", roles)
	}
	if !strings.HasPrefix(captured.Contents[0].Parts[0].Text, "System instructions: ") {
		t.Errorf("system turn = %q", captured.Contents[0].Parts[0].Text)
	}
}

func TestStreamCumulativeDiff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.String(), "streamGenerateContent") || r.URL.Query().Get("alt") != "sse" {
			t.Errorf("url = %s", r.URL.String())
		}
		_, _ = w.Write([]byte(sseBody(
			event("Hi", ""),
			event("Hi there", ""),
			event("Hi there!", "STOP"),
		)))
	}))
	defer srv.Close()

	c := gemini.New("key", gemini.WithBaseURL(srv.URL))

	var deltas []string
	var done bool
	for delta, err := range c.Stream(context.Background(), []chat.Message{chat.User("hi")}) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		switch delta.Kind {
		case provider.KindContent:
			deltas = append(deltas, delta.Text)
		case provider.KindDone:
			done = true
		}
	}

	if !reflect.DeepEqual(deltas, []string{"Hi", " there", "!"}) {
		t.Errorf("deltas = %q", deltas)
	}
	if !done {
		t.Error("missing done delta")
	}
}

func TestStreamFinishReasonWithoutSentinel(t *testing.T) {
	// The final event carries finishReason and no new text; the stream must
	// still terminate with exactly one done delta.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sseBody(
			event("all of it", ""),
			event("all of it", "STOP"),
		)))
	}))
	defer srv.Close()

	c := gemini.New("key", gemini.WithBaseURL(srv.URL))

	var content strings.Builder
	dones := 0
	for delta, err := range c.Stream(context.Background(), nil) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		switch delta.Kind {
		case provider.KindContent:
			content.WriteString(delta.Text)
		case provider.KindDone:
			dones++
		}
	}
	if content.String() != "all of it" {
		t.Errorf("content = %q", content.String())
	}
	if dones != 1 {
		t.Errorf("done deltas = %d, want 1", dones)
	}
}

func TestStreamModelRestart(t *testing.T) {
	// When the cumulative text stops extending the previous text, the new
	// text is emitted whole rather than dropped.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sseBody(
			event("first try", ""),
			event("second answer", "STOP"),
		)))
	}))
	defer srv.Close()

	c := gemini.New("key", gemini.WithBaseURL(srv.URL))

	var deltas []string
	for delta, err := range c.Stream(context.Background(), nil) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		if delta.Kind == provider.KindContent {
			deltas = append(deltas, delta.Text)
		}
	}
	if !reflect.DeepEqual(deltas, []string{"first try", "second answer"}) {
		t.Errorf("deltas = %q", deltas)
	}
}
