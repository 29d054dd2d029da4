package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BartekS5/nyc-taxi-etl/pkg/logger"
	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/BartekS5/nyc-taxi-etl/pkg/utils"
)

// Object is a fetched partition file held in memory.
type Object struct {
	Partition models.Partition
	Name      string
	Data      []byte
	// Cached is set when Data came from the local cache.
	Cached bool
}

// Fetcher resolves partitions to object names, downloads them from Source
// and keeps a copy in CacheDir. An empty CacheDir disables the cache.
type Fetcher struct {
	Source   Source
	CacheDir string
	Pattern  string
	// Verify rejects unusable bytes before they are cached. Cached files
	// that fail it are dropped and downloaded again.
	Verify func(data []byte) error
}

func NewFetcher(src Source, cacheDir, pattern string) *Fetcher {
	return &Fetcher{Source: src, CacheDir: cacheDir, Pattern: pattern, Verify: CheckParquet}
}

func (f *Fetcher) ObjectName(p models.Partition) string {
	return fmt.Sprintf(f.Pattern, p.String())
}

func (f *Fetcher) cachePath(p models.Partition) string {
	return filepath.Join(f.CacheDir, f.ObjectName(p))
}

func (f *Fetcher) Fetch(ctx context.Context, p models.Partition) (*Object, error) {
	name := f.ObjectName(p)

	if f.CacheDir != "" {
		data, err := os.ReadFile(f.cachePath(p))
		switch {
		case err == nil && f.verify(data) == nil:
			logger.Debugw("using cached partition file", "partition", p.String(), "path", f.cachePath(p))
			return &Object{Partition: p, Name: name, Data: data, Cached: true}, nil
		case err == nil:
			logger.Warnw("cached partition file is unusable, downloading again", "partition", p.String(), "path", f.cachePath(p))
			if err := f.Discard(p); err != nil {
				return nil, models.NewError(models.KindTransientIO, fmt.Errorf("removing cached %s: %w", name, err))
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, models.NewError(models.KindTransientIO, fmt.Errorf("reading cached %s: %w", name, err))
		}
	}

	logger.Infow("downloading partition", "partition", p.String(), "object", name)
	rc, err := f.Source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, models.NewError(models.KindTransientIO, fmt.Errorf("downloading %s: %w", name, err))
	}
	if err := f.verify(data); err != nil {
		return nil, models.NewError(models.KindConstraintViolation, fmt.Errorf("downloaded %s is unusable: %w", name, err))
	}

	if f.CacheDir != "" {
		if err := utils.WriteAtomic(f.cachePath(p), data); err != nil {
			return nil, models.NewError(models.KindTransientIO, fmt.Errorf("caching %s: %w", name, err))
		}
	}
	logger.Infow("downloaded partition", "partition", p.String(), "bytes", len(data))
	return &Object{Partition: p, Name: name, Data: data}, nil
}

func (f *Fetcher) verify(data []byte) error {
	if f.Verify == nil {
		return nil
	}
	return f.Verify(data)
}

// Discard removes the cached file of p. A missing file is not an error.
func (f *Fetcher) Discard(p models.Partition) error {
	if f.CacheDir == "" {
		return nil
	}
	err := os.Remove(f.cachePath(p))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
