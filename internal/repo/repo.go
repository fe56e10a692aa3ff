package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"corsair/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Repo wraps the worker's SQLite store.
type Repo struct {
	DB *sql.DB
}

// JobRow is the persisted form of one submitted mission dispatch.
type JobRow struct {
	ID          string
	Wallet      string
	Kind        string
	MissionPath string
	NFTIDs      []string
	Status      string
	Error       string
	Effect      string
	Multiplier  float64
	Gems        float64
	Treasure    float64
	SubmittedAt string
	ResolvedAt  string
}

// Job kinds mirror the notification types they resolve into.
const (
	JobKindMission = "initiate"
	JobKindArena   = "arena"
)

// EnsureUser inserts the user if missing and returns whether it was new.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, wallet, username string, now time.Time) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE wallet=?`, wallet).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO users(wallet,username,created_at) VALUES (?,?,?)`,
		wallet, username, now.UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return true, nil
}

// GetUser returns the balance snapshot for a wallet.
func (r Repo) GetUser(ctx context.Context, wallet string) (domain.Profile, error) {
	var p domain.Profile
	var username sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT wallet, username, gems, treasure FROM users WHERE wallet=?`, wallet).
		Scan(&p.Wallet, &username, &p.Gems, &p.Treasure)
	if err == sql.ErrNoRows {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	p.Username = username.String
	return p, nil
}

// AddRewards credits a wallet inside the caller's transaction.
func (r Repo) AddRewards(ctx context.Context, tx *sql.Tx, wallet string, gems, treasure float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET gems=gems+?, treasure=treasure+? WHERE wallet=?`,
		gems, treasure, wallet)
	return err
}

// InsertNFT adds one captain to a wallet's fleet.
func (r Repo) InsertNFT(ctx context.Context, tx *sql.Tx, n domain.NFT) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO nfts(id,name,wallet,on_mission) VALUES (?,?,?,?)`,
		n.ID, n.Name, n.Wallet, boolInt(n.OnMission))
	return err
}

// ListNFTs returns a wallet's fleet.
func (r Repo) ListNFTs(ctx context.Context, wallet string) ([]domain.NFT, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, wallet, on_mission FROM nfts WHERE wallet=? ORDER BY id`, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.NFT
	for rows.Next() {
		var n domain.NFT
		var onMission int
		if err := rows.Scan(&n.ID, &n.Name, &n.Wallet, &onMission); err != nil {
			return nil, err
		}
		n.OnMission = onMission != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

// OwnsNFTs checks that every id belongs to the wallet.
func (r Repo) OwnsNFTs(ctx context.Context, wallet string, ids []string) (bool, error) {
	for _, id := range ids {
		var owner string
		err := r.DB.QueryRowContext(ctx, `SELECT wallet FROM nfts WHERE id=?`, id).Scan(&owner)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if owner != wallet {
			return false, nil
		}
	}
	return true, nil
}

// SetNFTsOnMission flips the on_mission flag for a set of captains.
func (r Repo) SetNFTsOnMission(ctx context.Context, tx *sql.Tx, ids []string, on bool) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE nfts SET on_mission=? WHERE id=?`, boolInt(on), id); err != nil {
			return err
		}
	}
	return nil
}

// InsertJob records a newly accepted dispatch.
func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j JobRow) error {
	nfts, err := json.Marshal(j.NFTIDs)
	if err != nil {
		return fmt.Errorf("marshal nft ids: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs(id,wallet,kind,mission_path,nfts_json,status,submitted_at) VALUES (?,?,?,?,?,'pending',?)`,
		j.ID, j.Wallet, j.Kind, nullable(j.MissionPath), string(nfts), j.SubmittedAt)
	return err
}

// GetJob fetches one job by id.
func (r Repo) GetJob(ctx context.Context, id string) (JobRow, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id,wallet,kind,mission_path,nfts_json,status,error,effect,multiplier,gems,treasure,submitted_at,resolved_at FROM jobs WHERE id=?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return JobRow{}, ErrNotFound
	}
	return j, err
}

// PendingJobs returns jobs submitted at or before the cutoff, oldest first.
func (r Repo) PendingJobs(ctx context.Context, cutoff time.Time) ([]JobRow, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,wallet,kind,mission_path,nfts_json,status,error,effect,multiplier,gems,treasure,submitted_at,resolved_at
		 FROM jobs WHERE status='pending' AND submitted_at<=? ORDER BY submitted_at`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRow
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ResolveJob marks a job resolved with its outcome inside the caller's tx.
func (r Repo) ResolveJob(ctx context.Context, tx *sql.Tx, j JobRow, resolvedAt time.Time) error {
	status := "resolved"
	if j.Error != "" {
		status = "failed"
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status=?, error=?, effect=?, multiplier=?, gems=?, treasure=?, resolved_at=? WHERE id=?`,
		status, nullable(j.Error), nullable(j.Effect), j.Multiplier, j.Gems, j.Treasure,
		resolvedAt.UTC().Format(time.RFC3339), j.ID)
	return err
}

// ActiveMissions returns the wallet's pending mission jobs as staged groups.
func (r Repo) ActiveMissions(ctx context.Context, wallet string) ([]domain.ActiveMission, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT mission_path, nfts_json FROM jobs WHERE wallet=? AND status='pending' AND kind=? ORDER BY submitted_at`,
		wallet, JobKindMission)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ActiveMission
	for rows.Next() {
		var am domain.ActiveMission
		var path sql.NullString
		var nftsJSON string
		if err := rows.Scan(&path, &nftsJSON); err != nil {
			return nil, err
		}
		am.MissionPath = path.String
		if err := json.Unmarshal([]byte(nftsJSON), &am.NFTIDs); err != nil {
			return nil, fmt.Errorf("unmarshal nft ids: %w", err)
		}
		out = append(out, am)
	}
	return out, rows.Err()
}

// Leaderboard ranks users by the given balance column.
func (r Repo) Leaderboard(ctx context.Context, byTreasure bool, limit int) ([]domain.LeaderboardEntry, error) {
	col := "gems"
	if byTreasure {
		col = "treasure"
	}
	if limit <= 0 {
		limit = 25
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT wallet, username, `+col+` FROM users ORDER BY `+col+` DESC, wallet LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LeaderboardEntry
	rank := 0
	for rows.Next() {
		var e domain.LeaderboardEntry
		var username sql.NullString
		if err := rows.Scan(&e.Wallet, &username, &e.Score); err != nil {
			return nil, err
		}
		rank++
		e.Rank = rank
		e.Username = username.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestEvents returns the newest activity-feed entries.
func (r Repo) LatestEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, ts, type, wallet, job_id, payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var wallet, jobID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &wallet, &jobID, &e.Payload); err != nil {
			return nil, err
		}
		e.Wallet = wallet.String
		e.JobID = jobID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (JobRow, error) {
	var j JobRow
	var missionPath, errStr, effect, resolvedAt sql.NullString
	var multiplier sql.NullFloat64
	var nftsJSON string
	err := row.Scan(&j.ID, &j.Wallet, &j.Kind, &missionPath, &nftsJSON, &j.Status,
		&errStr, &effect, &multiplier, &j.Gems, &j.Treasure, &j.SubmittedAt, &resolvedAt)
	if err != nil {
		return JobRow{}, err
	}
	j.MissionPath = missionPath.String
	j.Error = errStr.String
	j.Effect = effect.String
	j.Multiplier = multiplier.Float64
	j.ResolvedAt = resolvedAt.String
	if err := json.Unmarshal([]byte(nftsJSON), &j.NFTIDs); err != nil {
		return JobRow{}, fmt.Errorf("unmarshal nft ids: %w", err)
	}
	return j, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
