package objectstore

import "fmt"

// Config describes which adapter to build and its settings.
type Config struct {
	Adapter string
	Local   LocalOptions
	S3      S3Options
}

// LocalOptions configures the local filesystem adapter.
type LocalOptions struct {
	BasePath string
}

// NewAdapter builds the configured object-store adapter.
func NewAdapter(cfg Config) (Adapter, error) {
	switch cfg.Adapter {
	case "local":
		return NewLocalAdapter(cfg.Local.BasePath)
	case "s3":
		return NewS3Adapter(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown object store adapter: %s", cfg.Adapter)
	}
}
