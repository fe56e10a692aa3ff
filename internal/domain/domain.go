package domain

import "time"

// MissionKind categorizes missions and drives per-layer catalog fetches.
type MissionKind string

const (
	KindPlunders MissionKind = "Plunders"
	KindEvents   MissionKind = "Events"
	KindBurners  MissionKind = "Burners"
	KindSpecials MissionKind = "Specials"
	KindRaids    MissionKind = "Raids"
	KindGenesis  MissionKind = "Genesis"
)

// Layer is a world zone holding an ordered mission list. Layers are built
// from static config at startup and enriched in place with live stats;
// they are never destroyed during a session.
type Layer struct {
	ID       int       `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Image    string    `json:"image,omitempty" yaml:"image,omitempty"`
	Missions []Mission `json:"missions" yaml:"missions"`
}

type Mission struct {
	ID   string      `json:"id" yaml:"id"`
	Name string      `json:"name" yaml:"name"`
	Kind MissionKind `json:"kind" yaml:"kind"`
	// Path is the worker-side route segment used when initiating.
	Path string  `json:"path" yaml:"path"`
	X    float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y    float64 `json:"y,omitempty" yaml:"y,omitempty"`
	// Stats stays nil until the live enrichment for its kind completes.
	Stats *MissionStats `json:"stats,omitempty" yaml:"-"`
}

// MissionStats is the live-fetched payload describing yield and risk.
type MissionStats struct {
	Name          string    `json:"name"`
	Kind          string    `json:"kind,omitempty"`
	Yield         string    `json:"yield"`
	Risk          string    `json:"risk"`
	DurationHours float64   `json:"duration_hours"`
	Outcomes      []Outcome `json:"outcomes,omitempty"`
}

type Outcome struct {
	Effect     string  `json:"effect"`
	Chance     float64 `json:"chance,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
}

// ActiveMission is a staged mission + asset selection, consumed on submit.
type ActiveMission struct {
	MissionPath string   `json:"missionPath"`
	MissionName string   `json:"missionName,omitempty"`
	NFTIDs      []string `json:"nfts"`
}

// Job is the opaque handle returned by the worker for one submitted group.
// Transient state: resolved by a matching notification or abandoned when
// the batch timeout elapses. Never persisted client-side.
type Job struct {
	ID          string    `json:"jobId"`
	Wallet      string    `json:"wallet,omitempty"`
	SubmittedAt time.Time `json:"-"`
}

// Notification types delivered over the push channel.
const (
	NotifyInitiate = "initiate"
	NotifyArena    = "arena"
)

// Notification is an inbound push event correlated to a Job by data.id.
type Notification struct {
	Type string           `json:"type"`
	Data NotificationData `json:"data"`
}

type NotificationData struct {
	ID         string  `json:"id"`
	Error      string  `json:"error,omitempty"`
	Effect     string  `json:"effect,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Gems       float64 `json:"gems,omitempty"`
	Treasure   float64 `json:"treasure,omitempty"`
}

// Failed reports whether the job behind this notification failed.
func (n Notification) Failed() bool { return n.Data.Error != "" }

// Outcome status for resolved mission attempts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ClaimedMission is the normalized record of one resolved mission attempt.
type ClaimedMission struct {
	MissionName       string   `json:"mission_name"`
	NFTIDs            []string `json:"nft_ids"`
	LoadedNFTIDs      []string `json:"loaded_nft_ids,omitempty"`
	Outcome           string   `json:"outcome"`
	OutcomeEffect     string   `json:"outcome_effect,omitempty"`
	OutcomeMultiplier float64  `json:"outcome_multiplier,omitempty"`
	Gems              float64  `json:"gems,omitempty"`
	Treasure          float64  `json:"treasure,omitempty"`
}

// MissionGroup aggregates claimed missions sharing a name for display.
type MissionGroup struct {
	MissionName       string   `json:"mission_name"`
	NFTIDs            []string `json:"nft_ids"`
	LoadedNFTIDs      []string `json:"loaded_nft_ids,omitempty"`
	Attempts          int      `json:"attempts"`
	OutcomeMultiplier float64  `json:"outcome_multiplier,omitempty"`
	Gems              float64  `json:"gems,omitempty"`
	Treasure          float64  `json:"treasure,omitempty"`
}

// NFT is an owned captain usable as mission crew.
type NFT struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Wallet    string `json:"wallet"`
	OnMission bool   `json:"on_mission"`
}

// Profile is the authenticated user's balance snapshot.
type Profile struct {
	Wallet   string  `json:"wallet"`
	Username string  `json:"username,omitempty"`
	Gems     float64 `json:"gems"`
	Treasure float64 `json:"treasure"`
}

type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	Wallet   string  `json:"wallet"`
	Username string  `json:"username,omitempty"`
	Score    float64 `json:"score"`
}

// Event is one entry in the worker activity feed.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	Wallet  string `json:"wallet,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Payload string `json:"payload_json,omitempty"`
}
