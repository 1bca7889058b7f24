package routing

import (
	"testing"

	"mediaforge/internal/config"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		creds      Credentials
		modelID    string
		expectID   string
		expectRout bool
	}{
		{
			name:       "veo without gemini routes to kling",
			creds:      Credentials{Kling: true},
			modelID:    "veo-3.1",
			expectID:   "kling-2.6",
			expectRout: true,
		},
		{
			name:     "veo with gemini stays",
			creds:    Credentials{Gemini: true},
			modelID:  "veo-3.1",
			expectID: "veo-3.1",
		},
		{
			name:       "gpt-image without openai routes to flux",
			creds:      Credentials{Replicate: true},
			modelID:    "gpt-image-1",
			expectID:   "flux-1.1-pro",
			expectRout: true,
		},
		{
			name:       "seedream without volcengine routes to flux",
			creds:      Credentials{Replicate: true},
			modelID:    "seedream-4.0",
			expectID:   "flux-1.1-pro",
			expectRout: true,
		},
		{
			name:     "seedream with volcengine stays",
			creds:    Credentials{Volcengine: true},
			modelID:  "seedream-4.0",
			expectID: "seedream-4.0",
		},
		{
			name:     "unpoliced model passes through",
			creds:    Credentials{},
			modelID:  "kling-2.6",
			expectID: "kling-2.6",
		},
		{
			name:     "unknown model passes through",
			creds:    Credentials{},
			modelID:  "not-a-model",
			expectID: "not-a-model",
		},
		{
			name:     "whitespace trimmed",
			creds:    Credentials{Gemini: true},
			modelID:  "  veo-3.1  ",
			expectID: "veo-3.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewResolver(tt.creds).Resolve(tt.modelID)
			if got.ModelID != tt.expectID {
				t.Errorf("expected model %q, got %q", tt.expectID, got.ModelID)
			}
			if got.Routed != tt.expectRout {
				t.Errorf("expected routed=%v, got %v", tt.expectRout, got.Routed)
			}
			if got.Routed && got.Reason == "" {
				t.Error("expected a non-empty reason for a routed result")
			}
			if !got.Routed && got.Reason != "" {
				t.Errorf("expected empty reason, got %q", got.Reason)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := NewResolver(Credentials{Replicate: true})
	first := r.Resolve("gpt-image-1")
	for i := 0; i < 5; i++ {
		if got := r.Resolve("gpt-image-1"); got != first {
			t.Fatalf("expected deterministic result, got %+v then %+v", first, got)
		}
	}
}

func TestCredentialsFromConfig(t *testing.T) {
	creds := CredentialsFromConfig(config.Config{
		GeminiAPIKey:    "  ",
		OpenAIAPIKey:    "sk-test",
		ReplicateAPIKey: "r8-test",
	})

	if creds.Gemini {
		t.Error("whitespace-only key should not count as configured")
	}
	if !creds.OpenAI || !creds.Replicate {
		t.Error("expected openai and replicate credentials to be detected")
	}
	if creds.Kling || creds.Volcengine {
		t.Error("unset keys should not count as configured")
	}
}
