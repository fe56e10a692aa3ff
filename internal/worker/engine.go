package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/google/uuid"

	"corsair/internal/config"
	"corsair/internal/domain"
	"corsair/internal/events"
	"corsair/internal/repo"
)

// Engine holds the simulated worker's state and rules. It accepts mission
// dispatches, resolves them after a short delay, and pushes the outcome
// over the hub, matching the contract the production worker exposes.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Hub       *Hub
	JWTSecret string

	// ResolveDelay is how long a job stays pending before resolution.
	// Zero means the default 2s; negative resolves immediately.
	ResolveDelay time.Duration
	Now          func() time.Time
	Logger       *log.Logger
}

func New(db *sql.DB, cfg *config.Config, secret string) *Engine {
	return &Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Hub:       NewHub(),
		JWTSecret: secret,
		Now:       time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e *Engine) resolveDelay() time.Duration {
	if e.ResolveDelay != 0 {
		return e.ResolveDelay
	}
	return 2 * time.Second
}

var starterFleet = []string{"One-Eyed Moira", "Salt Beard", "Red Annika", "The Quartermaster"}

// Login ensures the user exists (seeding a starter fleet on first login)
// and issues a bearer token.
func (e *Engine) Login(ctx context.Context, wallet string) (string, error) {
	if wallet == "" {
		return "", errors.New("wallet is required")
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	created, err := e.Repo.EnsureUser(ctx, tx, wallet, "", now)
	if err != nil {
		return "", err
	}
	if created {
		for i, name := range starterFleet {
			nft := domain.NFT{
				ID:     fmt.Sprintf("%s-capt-%d", wallet, i+1),
				Name:   name,
				Wallet: wallet,
			}
			if err := e.Repo.InsertNFT(ctx, tx, nft); err != nil {
				return "", fmt.Errorf("seed fleet: %w", err)
			}
		}
		if err := e.Events.Append(ctx, tx, "user.created", wallet, "", events.EventPayload{"fleet": len(starterFleet)}); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return IssueToken(e.JWTSecret, wallet, now)
}

// Initiate accepts one staged mission group and returns its job id.
func (e *Engine) Initiate(ctx context.Context, wallet, missionPath string, nftIDs []string) (domain.Job, error) {
	if missionPath == "" {
		return domain.Job{}, errors.New("missionPath is required")
	}
	return e.submit(ctx, wallet, repo.JobKindMission, missionPath, nftIDs)
}

// InitiateArena accepts an arena entry under the same job contract.
func (e *Engine) InitiateArena(ctx context.Context, wallet string, nftIDs []string) (domain.Job, error) {
	return e.submit(ctx, wallet, repo.JobKindArena, "", nftIDs)
}

func (e *Engine) submit(ctx context.Context, wallet, kind, missionPath string, nftIDs []string) (domain.Job, error) {
	ids := nonEmpty(nftIDs)
	if len(ids) == 0 {
		return domain.Job{}, errors.New("nfts is required")
	}
	owned, err := e.Repo.OwnsNFTs(ctx, wallet, ids)
	if err != nil {
		return domain.Job{}, err
	}
	if !owned {
		return domain.Job{}, errors.New("invalid nft ids for wallet")
	}
	fleet, err := e.Repo.ListNFTs(ctx, wallet)
	if err != nil {
		return domain.Job{}, err
	}
	busy := map[string]bool{}
	for _, n := range fleet {
		if n.OnMission {
			busy[n.ID] = true
		}
	}
	for _, id := range ids {
		if busy[id] {
			return domain.Job{}, fmt.Errorf("captain %s is already on a mission", id)
		}
	}

	job := repo.JobRow{
		ID:          uuid.NewString(),
		Wallet:      wallet,
		Kind:        kind,
		MissionPath: missionPath,
		NFTIDs:      ids,
		SubmittedAt: e.now().UTC().Format(time.RFC3339Nano),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertJob(ctx, tx, job); err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	if err := e.Repo.SetNFTsOnMission(ctx, tx, ids, true); err != nil {
		return domain.Job{}, err
	}
	if err := e.Events.Append(ctx, tx, "job.submitted", wallet, job.ID, events.EventPayload{
		"kind": kind, "mission_path": missionPath, "nfts": ids,
	}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return domain.Job{ID: job.ID, Wallet: wallet}, nil
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Stats derives the live mission stats for one kind from the configured
// world. Outcomes are a fixed table; risk and duration vary per mission.
func (e *Engine) Stats(kind domain.MissionKind) []domain.MissionStats {
	var out []domain.MissionStats
	for _, layer := range e.Config.World.Layers {
		for _, m := range layer.Missions {
			if m.Kind != kind {
				continue
			}
			out = append(out, statsFor(m))
		}
	}
	return out
}

var kindYields = map[domain.MissionKind]string{
	domain.KindEvents:   "Gems",
	domain.KindPlunders: "Treasure",
	domain.KindBurners:  "Gems",
	domain.KindSpecials: "Treasure",
	domain.KindRaids:    "Treasure",
	domain.KindGenesis:  "Gems",
}

var riskLevels = []string{"Low", "Medium", "High"}

func statsFor(m domain.Mission) domain.MissionStats {
	h := hashOf(m.Name)
	return domain.MissionStats{
		Name:          m.Name,
		Kind:          string(m.Kind),
		Yield:         kindYields[m.Kind],
		Risk:          riskLevels[h%3],
		DurationHours: float64(2 + h%6),
		Outcomes: []domain.Outcome{
			{Effect: "Lost at sea", Chance: 0.2},
			{Effect: "Standard haul", Chance: 0.6, Multiplier: 1},
			{Effect: "Jackpot", Chance: 0.2, Multiplier: 2},
		},
	}
}

func hashOf(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// ResolveDue resolves every pending job past the resolve delay, credits
// rewards, releases the crew, and pushes a notification per job.
func (e *Engine) ResolveDue(ctx context.Context) error {
	cutoff := e.now().Add(-e.resolveDelay())
	due, err := e.Repo.PendingJobs(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, job := range due {
		n, err := e.resolve(ctx, job)
		if err != nil {
			return fmt.Errorf("resolve job %s: %w", job.ID, err)
		}
		e.Hub.Push(job.Wallet, n)
	}
	return nil
}

// resolve decides an outcome deterministically from the job id, so runs
// are reproducible, and applies it in one transaction.
func (e *Engine) resolve(ctx context.Context, job repo.JobRow) (domain.Notification, error) {
	h := hashOf(job.ID)
	switch {
	case h%5 == 0:
		job.Error = "The crew was lost at sea"
	case h%5 == 4:
		job.Effect = "Jackpot"
		job.Multiplier = 2
	default:
		job.Effect = "Standard haul"
		job.Multiplier = 1
	}
	if job.Error == "" {
		base := float64(10+h%40) * job.Multiplier
		if job.Kind == repo.JobKindArena {
			job.Treasure = base
		} else {
			job.Gems = base
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Notification{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ResolveJob(ctx, tx, job, e.now()); err != nil {
		return domain.Notification{}, err
	}
	if err := e.Repo.SetNFTsOnMission(ctx, tx, job.NFTIDs, false); err != nil {
		return domain.Notification{}, err
	}
	if job.Error == "" {
		if err := e.Repo.AddRewards(ctx, tx, job.Wallet, job.Gems, job.Treasure); err != nil {
			return domain.Notification{}, err
		}
	}
	evtType := "job.resolved"
	if job.Error != "" {
		evtType = "job.failed"
	}
	if err := e.Events.Append(ctx, tx, evtType, job.Wallet, job.ID, events.EventPayload{
		"effect": job.Effect, "error": job.Error, "gems": job.Gems, "treasure": job.Treasure,
	}); err != nil {
		return domain.Notification{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Notification{}, err
	}

	return domain.Notification{
		Type: job.Kind,
		Data: domain.NotificationData{
			ID:         job.ID,
			Error:      job.Error,
			Effect:     job.Effect,
			Multiplier: job.Multiplier,
			Gems:       job.Gems,
			Treasure:   job.Treasure,
		},
	}, nil
}

// Run resolves due jobs on a fixed cadence until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.ResolveDue(ctx); err != nil {
				e.logger().Printf("resolve due jobs: %v", err)
			}
		}
	}
}
