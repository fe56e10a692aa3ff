// Package views serves the client's remote snapshots through the cache:
// each read hits the worker once, then is served locally until a claim
// cycle invalidates its key.
package views

import (
	"context"

	"corsair/internal/cache"
	"corsair/internal/domain"
)

// Source is the worker read surface the views go through.
type Source interface {
	NFTs(ctx context.Context) ([]domain.NFT, error)
	Me(ctx context.Context) (domain.Profile, error)
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	ArenaLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	ActiveMissions(ctx context.Context) ([]domain.ActiveMission, error)
}

type Views struct {
	Source Source
	Store  *cache.Store
}

func New(src Source, store *cache.Store) Views {
	return Views{Source: src, Store: store}
}

// Fleet returns the caller's captains, cached under the nfts key.
func (v Views) Fleet(ctx context.Context) ([]domain.NFT, error) {
	got, err := v.Store.GetOrFetch(ctx, cache.KeyNFTs, func(ctx context.Context) (any, error) {
		return v.Source.NFTs(ctx)
	})
	if err != nil {
		return nil, err
	}
	return got.([]domain.NFT), nil
}

// Profile returns the caller's balance snapshot.
func (v Views) Profile(ctx context.Context) (domain.Profile, error) {
	got, err := v.Store.GetOrFetch(ctx, cache.KeyProfile, func(ctx context.Context) (any, error) {
		return v.Source.Me(ctx)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return got.(domain.Profile), nil
}

// Leaderboard returns the main or arena ranking.
func (v Views) Leaderboard(ctx context.Context, arena bool) ([]domain.LeaderboardEntry, error) {
	key := cache.KeyLeaderboard
	fetch := v.Source.Leaderboard
	if arena {
		key = cache.KeyArenaLeaderboard
		fetch = v.Source.ArenaLeaderboard
	}
	got, err := v.Store.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return got.([]domain.LeaderboardEntry), nil
}

// ActiveMissions returns the missions currently in progress.
func (v Views) ActiveMissions(ctx context.Context) ([]domain.ActiveMission, error) {
	got, err := v.Store.GetOrFetch(ctx, cache.KeyActiveMissions, func(ctx context.Context) (any, error) {
		return v.Source.ActiveMissions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return got.([]domain.ActiveMission), nil
}
