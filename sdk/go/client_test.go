package corsairsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"corsair/internal/domain"
	corsairsdk "corsair/sdk/go"
)

func newTestClient(srv *httptest.Server) *corsairsdk.Client {
	c := corsairsdk.New(srv.URL)
	c.RetryDelay = time.Millisecond
	return c
}

func TestLoginInstallsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Wallet string `json:"wallet"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Wallet != "0xabc" {
			t.Errorf("unexpected login body: %+v err=%v", body, err)
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	token, err := c.Login(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token != "tok-1" || c.BearerToken != "tok-1" {
		t.Fatalf("expected token installed, got %q / %q", token, c.BearerToken)
	}
}

func TestInitiateMissionSendsGroupAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/missions/initiate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body struct {
			MissionPath string   `json:"missionPath"`
			NFTs        []string `json:"nfts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.MissionPath != "events/gem-emporium" || len(body.NFTs) != 2 {
			t.Errorf("unexpected body %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"jobId": "job-42"})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.BearerToken = "tok-1"
	job, err := c.InitiateMission(context.Background(), domain.ActiveMission{
		MissionPath: "events/gem-emporium",
		NFTIDs:      []string{"capt-1", "capt-2"},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if job.ID != "job-42" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.SubmittedAt.IsZero() {
		t.Fatalf("expected submission time stamped")
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []domain.NFT{{ID: "capt-1"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	nfts, err := c.NFTs(context.Background())
	if err != nil {
		t.Fatalf("nfts: %v", err)
	}
	if hits != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits)
	}
	if len(nfts) != 1 || nfts[0].ID != "capt-1" {
		t.Fatalf("unexpected inventory %+v", nfts)
	}
}

func TestGetStopsRetryingAfterBudget(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Me(context.Background())
	var apiErr *corsairsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected API error, got %v", err)
	}
	if hits != 3 {
		t.Fatalf("expected retry budget of 3, got %d attempts", hits)
	}
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.ActiveMissions(context.Background())
	var apiErr *corsairsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if hits != 1 {
		t.Fatalf("404 must not be retried, got %d attempts", hits)
	}
}

func TestMutatingCallsAreNeverRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.InitiateMission(context.Background(), domain.ActiveMission{
		MissionPath: "events/gem-emporium",
		NFTIDs:      []string{"capt-1"},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if hits != 1 {
		t.Fatalf("mutating call retried %d times", hits)
	}
}

func TestMissionStatsQueryEncodesKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/missions/stats" || r.URL.Query().Get("kind") != "Plunders" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []domain.MissionStats{{Name: "Galleon Run", Yield: "Treasure"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	stats, err := c.MissionStats(context.Background(), domain.KindPlunders)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Yield != "Treasure" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
