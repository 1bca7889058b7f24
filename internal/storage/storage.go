package storage

import (
	"context"
	"fmt"
	"strings"

	"mediaforge/internal/config"
)

const (
	// TypeLocal is the local filesystem backend.
	TypeLocal = "local"
	// TypeS3 is Amazon S3 or an S3-compatible backend.
	TypeS3 = "s3"
	// TypeOSS is Aliyun OSS.
	TypeOSS = "oss"
	// TypeCOS is Tencent COS.
	TypeCOS = "cos"
	// TypeR2 is Cloudflare R2.
	TypeR2 = "r2"
)

// SaveOptions controls how a backend persists a file.
//
// Dir is a relative directory the object lives in (segments are sanitized
// individually); generation outputs use user/generation keyed directories so
// artifacts are addressable per owner. ContentType, when set, is stored with
// the object; otherwise it is derived from Extension.
type SaveOptions struct {
	Dir          string
	BaseName     string
	Extension    string
	ContentType  string
	SkipIfExists bool
}

// Storage persists binary data and returns a backend-specific key (for local
// storage, a relative path under the public base dir).
type Storage interface {
	Save(ctx context.Context, data []byte, opts SaveOptions) (string, error)
}

// LocalBaseDirProvider is implemented by backends that expose a local
// directory which can be served directly over HTTP.
type LocalBaseDirProvider interface {
	LocalBaseDir() string
}

// NewStorage instantiates the storage backend selected by configuration.
func NewStorage(cfg config.Config) (Storage, error) {
	typeName := strings.ToLower(strings.TrimSpace(cfg.StorageType))
	switch typeName {
	case "", TypeLocal:
		return NewLocalStorage(cfg.StorageLocalDir)
	case TypeS3:
		return NewS3Storage(cfg)
	case TypeOSS:
		return NewOSSStorage(cfg)
	case TypeCOS:
		return NewCOSStorage(cfg)
	case TypeR2:
		return NewR2Storage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}
