package catalog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"corsair/internal/catalog"
	"corsair/internal/domain"
)

type fakeFetcher struct {
	stats map[domain.MissionKind][]domain.MissionStats
	fail  map[domain.MissionKind]error
	calls []domain.MissionKind
}

func (f *fakeFetcher) MissionStats(_ context.Context, kind domain.MissionKind) ([]domain.MissionStats, error) {
	f.calls = append(f.calls, kind)
	if err := f.fail[kind]; err != nil {
		return nil, err
	}
	return f.stats[kind], nil
}

func staticLayers() []domain.Layer {
	return []domain.Layer{
		{ID: 1, Name: "Tortuga Shallows", Missions: []domain.Mission{
			{ID: "m-gem", Name: "Gem Emporium", Kind: domain.KindEvents, Path: "events/gem-emporium"},
			{ID: "m-derby", Name: "Driftwood Derby", Kind: domain.KindEvents, Path: "events/driftwood-derby"},
		}},
		{ID: 2, Name: "Kraken Reach", Missions: []domain.Mission{
			{ID: "m-convoy", Name: "Merchant Convoy", Kind: domain.KindPlunders, Path: "plunders/merchant-convoy"},
		}},
	}
}

func TestKindsForLayer(t *testing.T) {
	cases := []struct {
		layer int
		want  []domain.MissionKind
	}{
		{1, []domain.MissionKind{domain.KindEvents}},
		{2, []domain.MissionKind{domain.KindEvents, domain.KindPlunders}},
		{3, []domain.MissionKind{domain.KindBurners, domain.KindPlunders, domain.KindSpecials}},
		{4, nil},
	}
	for _, tc := range cases {
		got := catalog.KindsForLayer(tc.layer)
		if len(got) != len(tc.want) {
			t.Fatalf("layer %d: expected %v, got %v", tc.layer, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("layer %d: expected %v, got %v", tc.layer, tc.want, got)
			}
		}
	}
}

func TestLoadMergesStatsByName(t *testing.T) {
	fetcher := &fakeFetcher{stats: map[domain.MissionKind][]domain.MissionStats{
		domain.KindEvents: {{Name: "Gem Emporium", Yield: "Gems"}},
	}}
	cat := catalog.New(fetcher, staticLayers())
	if err := cat.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	m, ok := cat.Mission("m-gem")
	if !ok {
		t.Fatalf("mission not found")
	}
	if m.Stats == nil || m.Stats.Yield != "Gems" {
		t.Fatalf("expected merged stats, got %+v", m.Stats)
	}
	// Unmatched static missions stay not-yet-loaded, never an error.
	derby, _ := cat.Mission("m-derby")
	if derby.Stats != nil {
		t.Fatalf("expected nil stats for unmatched mission")
	}
	if cat.Err() != nil {
		t.Fatalf("unexpected catalog error: %v", cat.Err())
	}
}

func TestLoadFetchFailureHaltsCycle(t *testing.T) {
	boom := errors.New("worker unavailable")
	fetcher := &fakeFetcher{
		stats: map[domain.MissionKind][]domain.MissionStats{
			domain.KindEvents: {{Name: "Gem Emporium", Yield: "Gems"}},
		},
		fail: map[domain.MissionKind]error{domain.KindPlunders: boom},
	}
	cat := catalog.New(fetcher, staticLayers())
	err := cat.Load(context.Background())
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if cat.Err() == nil {
		t.Fatalf("expected catalog error flag set")
	}
	// Layer 2's plunders fetch failed, so nothing was fetched after it.
	last := fetcher.calls[len(fetcher.calls)-1]
	if last != domain.KindPlunders {
		t.Fatalf("expected fetching to stop at the failure, last was %s", last)
	}
	// The failed cycle is discarded as a whole; even stats fetched before
	// the failure are not merged.
	convoy, _ := cat.Mission("m-convoy")
	if convoy.Stats != nil {
		t.Fatalf("expected no stats after failed cycle")
	}
	gem, _ := cat.Mission("m-gem")
	if gem.Stats != nil {
		t.Fatalf("expected pre-failure fetches discarded with the cycle")
	}
}

type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) MissionStats(_ context.Context, _ domain.MissionKind) ([]domain.MissionStats, error) {
	f.once.Do(func() { close(f.entered) })
	<-f.release
	return nil, nil
}

func TestReadersNotBlockedDuringLoad(t *testing.T) {
	fetcher := &blockingFetcher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cat := catalog.New(fetcher, staticLayers())

	loadDone := make(chan error, 1)
	go func() { loadDone <- cat.Load(context.Background()) }()
	<-fetcher.entered

	readDone := make(chan struct{})
	go func() {
		cat.Layers()
		cat.Mission("m-gem")
		close(readDone)
	}()
	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatalf("reader blocked while an enrichment fetch was in flight")
	}

	close(fetcher.release)
	if err := <-loadDone; err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestNewDoesNotAliasStaticConfig(t *testing.T) {
	static := staticLayers()
	fetcher := &fakeFetcher{stats: map[domain.MissionKind][]domain.MissionStats{
		domain.KindEvents: {{Name: "Gem Emporium", Yield: "Gems"}},
	}}
	cat := catalog.New(fetcher, static)
	if err := cat.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if static[0].Missions[0].Stats != nil {
		t.Fatalf("expected static config untouched by enrichment")
	}
}
