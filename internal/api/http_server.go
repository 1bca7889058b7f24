package api

import (
	"strings"
	"time"

	"mediaforge/internal/auth"
	"mediaforge/internal/config"
	"mediaforge/internal/model"
	"mediaforge/internal/provider"
	"mediaforge/internal/routing"
	"mediaforge/internal/service"
	"mediaforge/internal/storage"
)

// HTTPHandler holds the wired dependencies for all HTTP endpoints.
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string
	authManager       *auth.Manager

	registry *provider.Registry
	resolver *routing.Resolver

	generationService *service.GenerationService
}

// NewHTTPHandler wires the HTTP layer.
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	registry := provider.NewDefaultRegistry(cfg)
	resolver := routing.NewResolver(routing.CredentialsFromConfig(cfg))
	persister := service.NewOutputPersister(store, normalisePublicBase(cfg.StoragePublicBaseURL))
	dispatcher := service.NewHTTPDispatcher(cfg.PublicBaseURL, cfg.InternalToken)

	generationSvc := service.NewGenerationService(repo, registry, resolver, persister, dispatcher)

	return &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
		authManager:       authManager,
		registry:          registry,
		resolver:          resolver,
		generationService: generationSvc,
	}, nil
}

// normalisePublicBase normalizes the public URL base path.
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
