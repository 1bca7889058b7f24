package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mediaforge/internal/entity"
	"mediaforge/internal/provider"
	"mediaforge/internal/storage"
	"mediaforge/internal/utils"
)

const (
	outputDownloadTimeout = 2 * time.Minute
	outputMaxBytes        = 512 << 20 // 512 MiB per artifact
)

// OutputPersister re-uploads provider artifacts into durable storage.
// Provider URLs commonly expire within hours, so every output is downloaded
// and saved; when that fails for any reason the provider URL is kept as the
// file URL so the generation still completes.
type OutputPersister struct {
	store         storage.Storage
	publicBaseURL string
	httpClient    *http.Client
}

func NewOutputPersister(store storage.Storage, publicBaseURL string) *OutputPersister {
	return &OutputPersister{
		store:         store,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		httpClient:    &http.Client{Timeout: outputDownloadTimeout},
	}
}

// PersistOutputs converts provider outputs into database output rows, saving
// each artifact under a user/generation keyed directory. Outputs are
// persisted concurrently; order is preserved.
func (p *OutputPersister) PersistOutputs(ctx context.Context, userID, generationID uint, fileType string, outputs []provider.Output) []entity.DbOutput {
	results := make([]entity.DbOutput, len(outputs))

	var wg sync.WaitGroup
	for i, output := range outputs {
		wg.Add(1)
		go func(idx int, out provider.Output) {
			defer wg.Done()
			results[idx] = p.persistOne(ctx, userID, generationID, idx, fileType, out)
		}(i, output)
	}
	wg.Wait()

	return results
}

func (p *OutputPersister) persistOne(ctx context.Context, userID, generationID uint, index int, fileType string, output provider.Output) entity.DbOutput {
	row := entity.DbOutput{
		GenerationID: generationID,
		FileURL:      output.URL,
		ProviderURL:  output.URL,
		FileType:     fileType,
		Width:        output.Width,
		Height:       output.Height,
		Duration:     output.Duration,
	}

	if p == nil || p.store == nil {
		return row
	}

	fileURL, err := p.saveArtifact(ctx, userID, generationID, index, output.URL)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"generation_id": generationID,
			"output_index":  index,
			"error":         err,
		}).Warn("output persistence failed, keeping provider url")
		return row
	}

	row.FileURL = fileURL
	return row
}

func (p *OutputPersister) saveArtifact(ctx context.Context, userID, generationID uint, index int, sourceURL string) (string, error) {
	data, ext, err := p.fetchArtifact(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	key, err := p.store.Save(ctx, data, storage.SaveOptions{
		Dir:       storage.OutputDir(userID, generationID),
		BaseName:  fmt.Sprintf("out_%d", index),
		Extension: ext,
	})
	if err != nil {
		return "", fmt.Errorf("save output: %w", err)
	}

	return p.publicURL(key), nil
}

// fetchArtifact loads the artifact bytes from either an inline data URL or an
// HTTP(S) URL.
func (p *OutputPersister) fetchArtifact(ctx context.Context, sourceURL string) ([]byte, string, error) {
	trimmed := strings.TrimSpace(sourceURL)
	if trimmed == "" {
		return nil, "", errors.New("empty output url")
	}

	if strings.HasPrefix(trimmed, "data:") {
		return utils.DecodeMediaPayload(trimmed)
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return nil, "", fmt.Errorf("unsupported output url scheme: %q", trimmed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("download output: http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, outputMaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read output: %w", err)
	}
	if len(data) > outputMaxBytes {
		return nil, "", fmt.Errorf("output exceeds %d bytes", outputMaxBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty output body")
	}

	ext := utils.ExtensionFromMime(resp.Header.Get("Content-Type"))
	if ext == "" {
		ext = utils.ExtensionFromMime(http.DetectContentType(data))
	}
	if ext == "" {
		ext = "bin"
	}

	return data, ext, nil
}

func (p *OutputPersister) publicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if p.publicBaseURL == "" {
		return "/" + key
	}
	return p.publicBaseURL + "/" + key
}
