package service

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaforge/internal/entity"
	"mediaforge/internal/provider"
	"mediaforge/internal/storage"
)

// Minimal valid PNG header bytes; enough for content type detection.
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func newLocalPersister(t *testing.T) (*OutputPersister, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	return NewOutputPersister(store, "/files"), dir
}

func TestPersistOutputsDownloadsAndRewrites(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer server.Close()

	persister, dir := newLocalPersister(t)
	outputs := persister.PersistOutputs(context.Background(), 1, 42, entity.FileTypeImage, []provider.Output{
		{URL: server.URL + "/a.png", Width: 1024, Height: 1024},
	})

	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	out := outputs[0]
	if out.FileURL != "/files/outputs/u1/g42/out_0.png" {
		t.Errorf("unexpected file url: %q", out.FileURL)
	}
	if out.ProviderURL != server.URL+"/a.png" {
		t.Errorf("expected provider url preserved, got %q", out.ProviderURL)
	}
	if out.Width != 1024 || out.Height != 1024 {
		t.Errorf("expected dimensions carried over, got %dx%d", out.Width, out.Height)
	}

	saved := filepath.Join(dir, "outputs", "u1", "g42", "out_0.png")
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("expected artifact on disk at %s: %v", saved, err)
	}
}

func TestPersistOutputsFallsBackToProviderURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	persister, _ := newLocalPersister(t)
	outputs := persister.PersistOutputs(context.Background(), 1, 42, entity.FileTypeImage, []provider.Output{
		{URL: server.URL + "/gone.png"},
	})

	if outputs[0].FileURL != server.URL+"/gone.png" {
		t.Errorf("expected fallback to provider url, got %q", outputs[0].FileURL)
	}
}

func TestPersistOutputsPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "bad.png") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer server.Close()

	persister, _ := newLocalPersister(t)
	outputs := persister.PersistOutputs(context.Background(), 2, 7, entity.FileTypeImage, []provider.Output{
		{URL: server.URL + "/good.png"},
		{URL: server.URL + "/bad.png"},
	})

	if outputs[0].FileURL != "/files/outputs/u2/g7/out_0.png" {
		t.Errorf("expected first output persisted, got %q", outputs[0].FileURL)
	}
	if outputs[1].FileURL != server.URL+"/bad.png" {
		t.Errorf("expected second output to fall back, got %q", outputs[1].FileURL)
	}
}

func TestPersistOutputsDecodesDataURL(t *testing.T) {
	persister, _ := newLocalPersister(t)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	outputs := persister.PersistOutputs(context.Background(), 3, 9, entity.FileTypeImage, []provider.Output{
		{URL: dataURL},
	})

	if outputs[0].FileURL != "/files/outputs/u3/g9/out_0.png" {
		t.Errorf("expected inline payload persisted, got %q", outputs[0].FileURL)
	}
}

func TestPersistOutputsWithoutStorage(t *testing.T) {
	persister := NewOutputPersister(nil, "/files")
	outputs := persister.PersistOutputs(context.Background(), 1, 1, entity.FileTypeVideo, []provider.Output{
		{URL: "https://cdn.example.com/clip.mp4"},
	})
	if outputs[0].FileURL != "https://cdn.example.com/clip.mp4" {
		t.Errorf("expected provider url passthrough, got %q", outputs[0].FileURL)
	}
	if outputs[0].FileType != entity.FileTypeVideo {
		t.Errorf("expected video type, got %q", outputs[0].FileType)
	}
}
