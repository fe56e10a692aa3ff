package catalog

import (
	"context"
	"fmt"
	"sync"

	"corsair/internal/domain"
)

// StatsFetcher supplies live mission stats for one kind.
type StatsFetcher interface {
	MissionStats(ctx context.Context, kind domain.MissionKind) ([]domain.MissionStats, error)
}

// layerKinds maps a layer id to the mission kinds it fetches stats for.
var layerKinds = map[int][]domain.MissionKind{
	1: {domain.KindEvents},
	2: {domain.KindEvents, domain.KindPlunders},
	3: {domain.KindBurners, domain.KindPlunders, domain.KindSpecials},
}

// KindsForLayer returns the applicable mission kinds for a layer.
func KindsForLayer(id int) []domain.MissionKind {
	kinds, ok := layerKinds[id]
	if !ok {
		return nil
	}
	out := make([]domain.MissionKind, len(kinds))
	copy(out, kinds)
	return out
}

// Catalog owns the layer/mission tree for a session. It is constructed
// from static config, then enriched in place by Load. All mutation goes
// through the catalog; callers get copies.
type Catalog struct {
	mu      sync.RWMutex
	fetcher StatsFetcher
	layers  []domain.Layer
	loadErr error
}

func New(fetcher StatsFetcher, static []domain.Layer) *Catalog {
	layers := make([]domain.Layer, len(static))
	for i, l := range static {
		layers[i] = l
		layers[i].Missions = make([]domain.Mission, len(l.Missions))
		copy(layers[i].Missions, l.Missions)
	}
	return &Catalog{fetcher: fetcher, layers: layers}
}

// Load fetches stats per layer kind and merges them into the static
// mission list by name. All network fetches run outside the catalog
// lock so readers are never blocked on the worker; the merge applies in
// one locked pass once every fetch of the cycle has succeeded. Missions
// with no fetched match keep nil stats; that is the not-yet-loaded
// state, never an error. A failed fetch sets the catalog error and
// discards the whole cycle, so readers never see a half-enriched view.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.RLock()
	ids := make([]int, len(c.layers))
	for i, l := range c.layers {
		ids[i] = l.ID
	}
	c.mu.RUnlock()

	fetched := make([][][]domain.MissionStats, len(ids))
	for i, id := range ids {
		for _, kind := range KindsForLayer(id) {
			stats, err := c.fetcher.MissionStats(ctx, kind)
			if err != nil {
				loadErr := fmt.Errorf("fetch %s stats for layer %d: %w", kind, id, err)
				c.mu.Lock()
				c.loadErr = loadErr
				c.mu.Unlock()
				return loadErr
			}
			fetched[i] = append(fetched[i], stats)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadErr = nil
	for i := range c.layers {
		for _, stats := range fetched[i] {
			mergeStats(c.layers[i].Missions, stats)
		}
	}
	return nil
}

func mergeStats(missions []domain.Mission, stats []domain.MissionStats) {
	byName := make(map[string]domain.MissionStats, len(stats))
	for _, s := range stats {
		byName[s.Name] = s
	}
	for i := range missions {
		if s, ok := byName[missions[i].Name]; ok {
			copied := s
			missions[i].Stats = &copied
		}
	}
}

// Err returns the error from the last load cycle, if any.
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadErr
}

// Layers returns a copy of the layer list.
func (c *Catalog) Layers() []domain.Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Layer, len(c.layers))
	for i, l := range c.layers {
		out[i] = l
		out[i].Missions = make([]domain.Mission, len(l.Missions))
		copy(out[i].Missions, l.Missions)
	}
	return out
}

// Layer returns one layer by id.
func (c *Catalog) Layer(id int) (domain.Layer, bool) {
	for _, l := range c.Layers() {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Layer{}, false
}

// Mission finds a mission by id across all layers.
func (c *Catalog) Mission(id string) (domain.Mission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.layers {
		for _, m := range l.Missions {
			if m.ID == id {
				return m, true
			}
		}
	}
	return domain.Mission{}, false
}

// MissionByPath finds a mission by its worker path.
func (c *Catalog) MissionByPath(path string) (domain.Mission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.layers {
		for _, m := range l.Missions {
			if m.Path == path {
				return m, true
			}
		}
	}
	return domain.Mission{}, false
}
