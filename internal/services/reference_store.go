package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/ml"
	"github.com/temcen/tripwise/pkg/models"
)

// Catalog is the loaded item table plus the canonical columns it provided.
type Catalog struct {
	Items   []models.Item
	Columns map[string]bool
}

// HasColumn reports whether the source table carried the canonical column.
func (c *Catalog) HasColumn(name string) bool {
	return c != nil && c.Columns[name]
}

// ModelLoader loads the model set for a catalog.
type ModelLoader interface {
	LoadAll(catalog []models.Item) *ml.ModelSet
}

// ReferenceData is an immutable snapshot of everything requests read.
// It is replaced as a whole on reload and never mutated in place.
type ReferenceData struct {
	Version    int64
	LoadedAt   time.Time
	Catalog    *Catalog
	Models     *ml.ModelSet
	Popularity *MemoryPopularity

	items        map[string]int
	interactions map[string][]models.Interaction
	profiles     map[string]models.UserProfile
}

// NewReferenceData indexes the loaded tables. Duplicate item ids keep the
// first occurrence.
func NewReferenceData(version int64, catalog *Catalog, interactions []models.Interaction, profiles []models.UserProfile, modelSet *ml.ModelSet) *ReferenceData {
	if catalog == nil {
		catalog = &Catalog{Columns: map[string]bool{}}
	}
	if modelSet == nil {
		modelSet = &ml.ModelSet{}
	}

	data := &ReferenceData{
		Version:      version,
		LoadedAt:     time.Now(),
		Models:       modelSet,
		items:        make(map[string]int, len(catalog.Items)),
		interactions: make(map[string][]models.Interaction),
		profiles:     make(map[string]models.UserProfile, len(profiles)),
	}

	deduped := make([]models.Item, 0, len(catalog.Items))
	for _, item := range catalog.Items {
		if _, dup := data.items[item.ID]; dup {
			continue
		}
		data.items[item.ID] = len(deduped)
		deduped = append(deduped, item)
	}
	data.Catalog = &Catalog{Items: deduped, Columns: catalog.Columns}

	for _, in := range interactions {
		data.interactions[in.UserID] = append(data.interactions[in.UserID], in)
	}
	for _, p := range profiles {
		data.profiles[p.UserID] = p
	}

	data.Popularity = NewMemoryPopularity(data.interactions, data.clusterLabels())
	return data
}

// Item returns the catalog item with the given id.
func (d *ReferenceData) Item(id string) (models.Item, bool) {
	idx, ok := d.items[id]
	if !ok {
		return models.Item{}, false
	}
	return d.Catalog.Items[idx], true
}

// UserHistory returns the user's interactions in load order.
func (d *ReferenceData) UserHistory(userID string) []models.Interaction {
	return d.interactions[userID]
}

// Profile returns the user's demographic record.
func (d *ReferenceData) Profile(userID string) (models.UserProfile, bool) {
	p, ok := d.profiles[userID]
	return p, ok
}

// clusterLabels resolves a label for every profile: the stored label when
// present, otherwise the segmentation model's assignment.
func (d *ReferenceData) clusterLabels() map[string]int {
	labels := make(map[string]int, len(d.profiles))
	for id, p := range d.profiles {
		if p.Cluster != nil {
			labels[id] = *p.Cluster
			continue
		}
		if d.Models.Segmenter == nil {
			continue
		}
		if label, err := d.Models.Segmenter.AssignCluster(p); err == nil {
			labels[id] = label
		}
	}
	return labels
}

// ReferenceStore serves the current snapshot and swaps in new ones.
type ReferenceStore struct {
	current atomic.Pointer[ReferenceData]
	mu      sync.Mutex
	version int64

	loader  ReferenceLoader
	models  ModelLoader
	metrics *MetricsCollector
	logger  *logrus.Logger
}

func NewReferenceStore(loader ReferenceLoader, models ModelLoader, metrics *MetricsCollector, logger *logrus.Logger) *ReferenceStore {
	return &ReferenceStore{
		loader:  loader,
		models:  models,
		metrics: metrics,
		logger:  logger,
	}
}

// Current returns the snapshot being served, nil before the first load.
func (s *ReferenceStore) Current() *ReferenceData {
	return s.current.Load()
}

// Reload builds a complete snapshot and swaps it in. Concurrent reloads are
// serialized; on failure the previous snapshot stays in place.
func (s *ReferenceStore) Reload(ctx context.Context) (*ReferenceData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	catalog, err := s.loader.LoadCatalog(ctx)
	if err != nil {
		s.metrics.RecordReload(false, 0, 0)
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	interactions, err := s.loader.LoadInteractions(ctx)
	if err != nil {
		s.metrics.RecordReload(false, 0, 0)
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	profiles, err := s.loader.LoadProfiles(ctx)
	if err != nil {
		s.metrics.RecordReload(false, 0, 0)
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	var modelSet *ml.ModelSet
	if s.models != nil {
		modelSet = s.models.LoadAll(catalog.Items)
	}

	s.version++
	data := NewReferenceData(s.version, catalog, interactions, profiles, modelSet)
	s.current.Store(data)

	s.metrics.RecordReload(true, data.Version, len(data.Catalog.Items))
	s.logger.WithFields(logrus.Fields{
		"version":      data.Version,
		"items":        len(data.Catalog.Items),
		"interactions": len(interactions),
		"profiles":     len(profiles),
		"duration":     time.Since(start),
	}).Info("Reference data loaded")

	return data, nil
}

// Run reloads on every tick until ctx is done. A non-positive interval
// returns immediately.
func (s *ReferenceStore) Run(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reloadCtx, cancel := context.WithTimeout(ctx, timeout)
			if _, err := s.Reload(reloadCtx); err != nil {
				s.logger.WithError(err).Error("Periodic reference reload failed, keeping previous snapshot")
			}
			cancel()
		}
	}
}
