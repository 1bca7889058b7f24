package routing

import (
	"strings"

	"github.com/sirupsen/logrus"

	"mediaforge/internal/config"
)

// Credentials is a snapshot of which provider credentials are configured.
// The resolver only looks at presence, never at the secrets themselves.
type Credentials struct {
	Gemini     bool
	OpenAI     bool
	Replicate  bool
	Kling      bool
	Volcengine bool
}

// CredentialsFromConfig derives the credential snapshot from configuration.
func CredentialsFromConfig(cfg config.Config) Credentials {
	return Credentials{
		Gemini:     strings.TrimSpace(cfg.GeminiAPIKey) != "",
		OpenAI:     strings.TrimSpace(cfg.OpenAIAPIKey) != "",
		Replicate:  strings.TrimSpace(cfg.ReplicateAPIKey) != "",
		Kling:      strings.TrimSpace(cfg.KlingAPIKey) != "",
		Volcengine: strings.TrimSpace(cfg.VolcengineAPIKey) != "",
	}
}

// Result reports the model a request should actually run on. Routed is false
// when the requested model is served as-is.
type Result struct {
	ModelID string `json:"model_id"`
	Routed  bool   `json:"routed"`
	Reason  string `json:"reason,omitempty"`
}

type policy struct {
	requested  string
	substitute string
	missing    func(Credentials) bool
	reason     string
}

// Substitution policies, evaluated in order. Each fires only when the
// requested model's credential is absent.
var policies = []policy{
	{
		requested:  "veo-3.1",
		substitute: "kling-2.6",
		missing:    func(c Credentials) bool { return !c.Gemini },
		reason:     "gemini credentials are not configured, serving via kling-2.6",
	},
	{
		requested:  "gpt-image-1",
		substitute: "flux-1.1-pro",
		missing:    func(c Credentials) bool { return !c.OpenAI },
		reason:     "openai credentials are not configured, serving via flux-1.1-pro",
	},
	{
		requested:  "seedream-4.0",
		substitute: "flux-1.1-pro",
		missing:    func(c Credentials) bool { return !c.Volcengine },
		reason:     "volcengine credentials are not configured, serving via flux-1.1-pro",
	},
}

// Resolver maps a requested model id to the model that will serve it, based
// on which provider credentials are configured. Resolution is deterministic:
// the same inputs always produce the same result.
type Resolver struct {
	creds Credentials
}

func NewResolver(creds Credentials) *Resolver {
	return &Resolver{creds: creds}
}

// Resolve applies the substitution policies to a requested model id. Unknown
// ids pass through unchanged; catalog validation happens at a higher layer.
func (r *Resolver) Resolve(modelID string) Result {
	requested := strings.TrimSpace(modelID)

	for _, p := range policies {
		if p.requested != requested {
			continue
		}
		if !p.missing(r.creds) {
			break
		}
		logrus.WithFields(logrus.Fields{
			"requested_model": requested,
			"resolved_model":  p.substitute,
		}).Info("routing_substitution")
		return Result{ModelID: p.substitute, Routed: true, Reason: p.reason}
	}

	return Result{ModelID: requested}
}
