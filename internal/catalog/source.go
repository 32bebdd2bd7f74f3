package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/garyellow/menubot-go/internal/r2client"
)

// MaxCatalogBytes bounds a decompressed catalog.
const MaxCatalogBytes = 4 << 20

// Snapshot is one fetched copy of a catalog document.
type Snapshot struct {
	Data    []byte
	Format  Format
	Version string
}

// Source supplies catalog documents.
type Source interface {
	// Name describes the source in logs.
	Name() string
	// Stat returns a cheap change marker without reading the document.
	Stat(ctx context.Context) (string, error)
	// Fetch reads the whole document.
	Fetch(ctx context.Context) (*Snapshot, error)
}

// EmbeddedSource serves the built-in catalog.
type EmbeddedSource struct{}

// Name implements Source.
func (EmbeddedSource) Name() string { return "embedded" }

// Stat implements Source. The embedded catalog never changes.
func (EmbeddedSource) Stat(context.Context) (string, error) { return "embedded", nil }

// Fetch implements Source.
func (EmbeddedSource) Fetch(context.Context) (*Snapshot, error) {
	return &Snapshot{Data: DefaultYAML, Format: FormatYAML, Version: "embedded"}, nil
}

// FileSource reads a catalog from disk. Paths ending in .zst are
// zstd-compressed; the extension before it picks the format.
type FileSource struct {
	Path string
}

// Name implements Source.
func (s FileSource) Name() string { return "file:" + s.Path }

// Stat implements Source using size and modification time.
func (s FileSource) Stat(context.Context) (string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return "", fmt.Errorf("stat catalog: %w", err)
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()), nil
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) (*Snapshot, error) {
	version, err := s.Stat(ctx)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	data, err := readCatalog(f, s.Path)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Data: data, Format: FormatFromPath(s.Path), Version: version}, nil
}

// ObjectStore is the part of *r2client.Client used by R2Source.
type ObjectStore interface {
	HeadObject(ctx context.Context, key string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// R2Source reads a published catalog object. The ETag is the version.
type R2Source struct {
	Store ObjectStore
	Key   string
}

// Name implements Source.
func (s R2Source) Name() string { return "r2:" + s.Key }

// Stat implements Source.
func (s R2Source) Stat(ctx context.Context) (string, error) {
	etag, err := s.Store.HeadObject(ctx, s.Key)
	if err != nil {
		return "", fmt.Errorf("stat catalog object: %w", err)
	}
	return etag, nil
}

// Fetch implements Source.
func (s R2Source) Fetch(ctx context.Context) (*Snapshot, error) {
	body, etag, err := s.Store.Download(ctx, s.Key)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return nil, fmt.Errorf("catalog object %q: %w", s.Key, err)
		}
		return nil, fmt.Errorf("fetch catalog object: %w", err)
	}
	defer body.Close()

	data, err := readCatalog(body, s.Key)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Data: data, Format: FormatFromPath(s.Key), Version: etag}, nil
}

func readCatalog(r io.Reader, name string) ([]byte, error) {
	if strings.HasSuffix(name, ".zst") {
		data, err := r2client.DecompressStream(r, MaxCatalogBytes)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", name, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxCatalogBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", name, err)
	}
	if len(data) > MaxCatalogBytes {
		return nil, fmt.Errorf("read catalog %s: larger than %d bytes", name, MaxCatalogBytes)
	}
	return data, nil
}
