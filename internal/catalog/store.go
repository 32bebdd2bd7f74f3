package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/garyellow/menubot-go/internal/config"
	"github.com/garyellow/menubot-go/internal/logger"
	"github.com/garyellow/menubot-go/internal/metrics"
)

type loaded struct {
	catalog       *Catalog
	sourceVersion string
	loadedAt      time.Time
}

// Store serves the live catalog and swaps it when the source changes.
// Readers never block; a rejected reload leaves the previous catalog live.
type Store struct {
	source  Source
	live    atomic.Pointer[loaded]
	group   singleflight.Group
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewStore creates a store. Call Load before Current.
func NewStore(source Source, log *logger.Logger, m *metrics.Metrics) *Store {
	return &Store{source: source, logger: log.WithModule("catalog"), metrics: m}
}

// Load performs the first load. Any error is fatal for the caller.
func (s *Store) Load(ctx context.Context) error {
	_, _, err := s.Reload(ctx)
	return err
}

// Reload fetches the source and swaps in the new catalog if it differs and
// validates. Concurrent calls share one fetch.
func (s *Store) Reload(ctx context.Context) (*Catalog, bool, error) {
	type outcome struct {
		catalog *Catalog
		changed bool
	}

	v, err, shared := s.group.Do("reload", func() (any, error) {
		c, changed, err := s.reload(ctx)
		return outcome{c, changed}, err
	})
	if shared {
		s.metrics.RecordSingleflightDedup("catalog")
	}
	if err != nil {
		return nil, false, err
	}
	o := v.(outcome)
	return o.catalog, o.changed, nil
}

func (s *Store) reload(ctx context.Context) (*Catalog, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, config.CatalogFetch)
	defer cancel()

	snap, err := s.source.Fetch(ctx)
	if err != nil {
		s.metrics.RecordCatalogReload("fetch_error")
		return nil, false, fmt.Errorf("fetch catalog from %s: %w", s.source.Name(), err)
	}

	if cur := s.live.Load(); cur != nil && cur.sourceVersion == snap.Version {
		s.metrics.RecordCatalogReload("unchanged")
		return cur.catalog, false, nil
	}

	c, err := Compile(snap.Data, snap.Format)
	if err != nil {
		s.metrics.RecordCatalogReload("invalid")
		s.logger.WithError(err).
			WithField("source", s.source.Name()).
			WithField("source_version", snap.Version).
			Error("Catalog rejected")
		return nil, false, fmt.Errorf("load catalog from %s: %w", s.source.Name(), err)
	}

	prev := s.live.Swap(&loaded{catalog: c, sourceVersion: snap.Version, loadedAt: time.Now()})
	s.metrics.RecordCatalogReload("success")
	s.metrics.SetCatalogSize(len(c.triggers), len(c.responses))

	entry := s.logger.
		WithField("source", s.source.Name()).
		WithField("version", c.Version()).
		WithField("triggers", len(c.triggers)).
		WithField("responses", len(c.responses))
	if prev != nil {
		entry = entry.WithField("previous_version", prev.catalog.Version())
	}
	entry.Info("Catalog loaded")

	return c, true, nil
}

// Current returns the live catalog, or nil before the first Load.
func (s *Store) Current() *Catalog {
	if l := s.live.Load(); l != nil {
		return l.catalog
	}
	return nil
}

// LoadedAt returns when the live catalog was swapped in.
func (s *Store) LoadedAt() time.Time {
	if l := s.live.Load(); l != nil {
		return l.loadedAt
	}
	return time.Time{}
}

// Poll checks the source every interval and reloads when its version
// changes. It blocks until ctx is done.
func (s *Store) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.WithField("interval", interval.String()).
		WithField("source", s.source.Name()).
		Info("Catalog polling started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Catalog polling stopped")
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Store) pollOnce(ctx context.Context) {
	statCtx, cancel := context.WithTimeout(ctx, config.CatalogFetch)
	version, err := s.source.Stat(statCtx)
	cancel()
	if err != nil {
		s.logger.WithError(err).Warn("Catalog poll: stat failed")
		return
	}
	if cur := s.live.Load(); cur != nil && cur.sourceVersion == version {
		return
	}
	// Errors are logged inside reload; the previous catalog stays live.
	_, _, _ = s.Reload(ctx)
}
