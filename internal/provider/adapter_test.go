package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		wantErr bool
	}{
		{"ok", "a red fox", false},
		{"empty", "", true},
		{"whitespace", "   \n\t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(Request{Prompt: tt.prompt})
			if tt.wantErr && !errors.Is(err, ErrEmptyPrompt) {
				t.Errorf("expected ErrEmptyPrompt, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEffectiveOutputs(t *testing.T) {
	if got := EffectiveOutputs(Request{NumOutputs: 0}); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := EffectiveOutputs(Request{NumOutputs: -2}); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := EffectiveOutputs(Request{NumOutputs: 3}); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestSoraDelegatesAndTagsMetadata(t *testing.T) {
	stub := &stubAdapter{}
	sora := NewSora("sora-2", "kling-2.6", stub)

	resp, err := sora.Generate(context.Background(), Request{Prompt: "city at dusk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("expected 1 delegate call, got %d", stub.calls)
	}
	if resp.Metadata[MetaRoutedFrom] != "sora-2" {
		t.Errorf("expected routed_from sora-2, got %q", resp.Metadata[MetaRoutedFrom])
	}
	if resp.Metadata[MetaRoutedTo] != "kling-2.6" {
		t.Errorf("expected routed_to kling-2.6, got %q", resp.Metadata[MetaRoutedTo])
	}
}

func TestSoraRejectsEmptyPromptBeforeDelegating(t *testing.T) {
	stub := &stubAdapter{}
	sora := NewSora("sora-2", "kling-2.6", stub)

	if _, err := sora.Generate(context.Background(), Request{}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if stub.calls != 0 {
		t.Errorf("expected no delegate calls, got %d", stub.calls)
	}
}

func TestSoraCheckStatusRequiresPollingDelegate(t *testing.T) {
	sora := NewSora("sora-2", "kling-2.6", &stubAdapter{})

	if _, err := sora.CheckStatus(context.Background(), "task-1"); err == nil {
		t.Fatal("expected an error when the delegate cannot check status")
	}
}

func TestMapTaskStatus(t *testing.T) {
	tests := []struct {
		in       string
		expected TaskStatus
	}{
		{"queued", TaskStatusPending},
		{"STARTING", TaskStatusPending},
		{"processing", TaskStatusRunning},
		{"succeeded", TaskStatusSucceeded},
		{"Completed", TaskStatusSucceeded},
		{"failed", TaskStatusFailed},
		{"canceled", TaskStatusCancelled},
		{"something-new", TaskStatusRunning},
	}

	for _, tt := range tests {
		if got := MapTaskStatus(tt.in); got != tt.expected {
			t.Errorf("MapTaskStatus(%q): expected %q, got %q", tt.in, tt.expected, got)
		}
	}
}

type scriptedPoller struct {
	tasks []AsyncTask
	calls int
}

func (p *scriptedPoller) Poll(ctx context.Context, taskID string) (*AsyncTask, error) {
	if p.calls >= len(p.tasks) {
		return nil, errors.New("poller exhausted")
	}
	task := p.tasks[p.calls]
	p.calls++
	return &task, nil
}

func TestWaitForTaskSucceedsAfterPending(t *testing.T) {
	poller := &scriptedPoller{tasks: []AsyncTask{
		{ID: "t1", Status: TaskStatusPending},
		{ID: "t1", Status: TaskStatusRunning},
		{ID: "t1", Status: TaskStatusSucceeded, Result: &Response{ID: "t1", Status: StatusCompleted}},
	}}

	cfg := PollConfig{Interval: time.Millisecond, MaxAttempts: 10}
	resp, err := WaitForTask(context.Background(), poller, "t1", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "t1" || resp.Status != StatusCompleted {
		t.Errorf("unexpected response: %+v", resp)
	}
	if poller.calls != 3 {
		t.Errorf("expected 3 polls, got %d", poller.calls)
	}
}

func TestWaitForTaskFailure(t *testing.T) {
	poller := &scriptedPoller{tasks: []AsyncTask{
		{ID: "t2", Status: TaskStatusFailed, Error: errors.New("upstream exploded")},
	}}

	cfg := PollConfig{Interval: time.Millisecond, MaxAttempts: 10}
	if _, err := WaitForTask(context.Background(), poller, "t2", cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestWaitForTaskMaxAttempts(t *testing.T) {
	poller := &scriptedPoller{tasks: []AsyncTask{
		{Status: TaskStatusRunning},
		{Status: TaskStatusRunning},
	}}

	cfg := PollConfig{Interval: time.Millisecond, MaxAttempts: 2}
	if _, err := WaitForTask(context.Background(), poller, "t3", cfg); err == nil {
		t.Fatal("expected max attempts error")
	}
}

func TestWaitForTaskRequiresID(t *testing.T) {
	if _, err := WaitForTask(context.Background(), &scriptedPoller{}, "", DefaultPollConfig); err == nil {
		t.Fatal("expected error for empty task id")
	}
}

func TestReplicateOutputListUnmarshal(t *testing.T) {
	var single replicateOutputList
	if err := json.Unmarshal([]byte(`"https://example.com/a.png"`), &single); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(single) != 1 || single[0] != "https://example.com/a.png" {
		t.Errorf("unexpected single output: %v", single)
	}

	var many replicateOutputList
	if err := json.Unmarshal([]byte(`["a","b"]`), &many); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(many) != 2 {
		t.Errorf("unexpected list output: %v", many)
	}

	var none replicateOutputList
	if err := json.Unmarshal([]byte(`null`), &none); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty list, got %v", none)
	}
}
