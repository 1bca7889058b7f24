package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mediaforge/internal/entity"
	"mediaforge/internal/model/sql"
	"mediaforge/internal/provider"
	"mediaforge/internal/routing"
	"mediaforge/internal/service"
)

// ctxAwareAdapter fails when the processing context is already dead, the way
// a real provider call would.
type ctxAwareAdapter struct{}

func (ctxAwareAdapter) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &provider.Response{
		Status:  provider.StatusCompleted,
		Outputs: []provider.Output{{URL: "https://cdn.example.com/a.png"}},
	}, nil
}

func TestProcessGenerationOutlivesRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&entity.DbGeneration{}, &entity.DbOutput{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := sql.NewGormRepository(db)

	registry := provider.NewRegistry()
	registry.Register(provider.ModelConfig{
		ID: "flux-1.1-pro", Type: provider.ModelTypeImage, ImageRate: 0.04,
	}, func() provider.Adapter { return ctxAwareAdapter{} })

	svc := service.NewGenerationService(
		repo,
		registry,
		routing.NewResolver(routing.Credentials{Replicate: true}),
		service.NewOutputPersister(nil, "/files"),
		nil,
	)

	generation := &entity.DbGeneration{
		UserID: 1, ModelID: "flux-1.1-pro", Prompt: "a lighthouse at dawn",
		Status: entity.GenerationStatusProcessing,
	}
	if err := repo.CreateGeneration(context.Background(), generation); err != nil {
		t.Fatalf("create generation: %v", err)
	}

	h := &HTTPHandler{generationService: svc}
	r := gin.New()
	r.POST("/api/internal/generations/process", h.ProcessGeneration)

	body, err := json.Marshal(entity.ProcessGenerationRequest{GenerationID: generation.ID})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/internal/generations/process", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	// A dead request context stands in for the submitting client timing out
	// and closing the connection; processing must carry on regardless.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result service.ProcessResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Outcome != service.OutcomeProcessed {
		t.Fatalf("expected processed, got %q (%s)", result.Outcome, result.Error)
	}

	loaded, err := repo.GetGeneration(context.Background(), generation.ID)
	if err != nil {
		t.Fatalf("get generation: %v", err)
	}
	if loaded.Status != entity.GenerationStatusCompleted {
		t.Errorf("expected completed, got %q", loaded.Status)
	}
}
