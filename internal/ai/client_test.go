package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btnalit/routeros-aiops/internal/models"
)

func chatReply(content string) string {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	out, _ := json.Marshal(reply)
	return string(out)
}

func TestClientAnalyze(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatReply(`{"summary":"interface flapping on ether1","recommendations":["check cable"],"riskLevel":"high","confidence":0.85}`)))
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-model", time.Second)
	result, err := c.Analyze(context.Background(), Request{
		Type:    "root_cause",
		Context: map[string]string{"message": "ether1 link down"},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %s", gotPath)
	}
	if result.Summary != "interface flapping on ether1" {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.RiskLevel != "high" || result.Confidence != 0.85 {
		t.Errorf("risk = %s, confidence = %v", result.RiskLevel, result.Confidence)
	}
}

func TestClientFencedReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("Here is my analysis:\n```json\n{\"summary\":\"noise\",\"riskLevel\":\"low\",\"confidence\":0.9}\n```")))
	}))
	defer server.Close()

	c := NewClient(server.URL, "m", time.Second)
	result, err := c.Analyze(context.Background(), Request{Type: "noise_check"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Summary != "noise" || result.RiskLevel != "low" {
		t.Errorf("result = %+v", result)
	}
}

func TestClientBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "m", time.Second)
	_, err := c.Analyze(context.Background(), Request{Type: "noise_check"})
	if models.KindOf(err) != models.KindDependency {
		t.Errorf("kind = %v, want dependency", models.KindOf(err))
	}
}

func TestClientDisabled(t *testing.T) {
	c := NewClient("", "m", time.Second)
	if c.Enabled() {
		t.Error("empty endpoint should be disabled")
	}
	if _, err := c.Analyze(context.Background(), Request{}); err != ErrDisabled {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestParseResultClampsAndDefaults(t *testing.T) {
	result, err := parseResult(`{"summary":"x","riskLevel":"bogus","confidence":1.7}`)
	if err != nil {
		t.Fatalf("parseResult: %v", err)
	}
	if result.RiskLevel != "medium" {
		t.Errorf("riskLevel = %s, want medium default", result.RiskLevel)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped 1", result.Confidence)
	}

	if _, err := parseResult("no json here"); err == nil {
		t.Error("expected error for reply without JSON")
	}
}
