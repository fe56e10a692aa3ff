package worker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corsair/internal/cache"
	"corsair/internal/domain"
	"corsair/internal/notify"
	"corsair/internal/reconcile"
	"corsair/internal/worker"
	corsairsdk "corsair/sdk/go"
)

func newTestServer(t *testing.T) (*httptest.Server, *worker.Engine) {
	t.Helper()
	e, _ := newTestEngine(t)
	handler, err := worker.NewHandler(worker.Config{Engine: e})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func stagedGroup(path string, nfts ...string) domain.ActiveMission {
	return domain.ActiveMission{MissionPath: path, MissionName: path, NFTIDs: nfts}
}

func TestAPIRejectsUnauthenticatedReads(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v0/nfts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	// Health stays open.
	resp, err = http.Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", resp.StatusCode)
	}
}

func TestLoginThenAuthenticatedReads(t *testing.T) {
	srv, _ := newTestServer(t)
	c := corsairsdk.New(srv.URL + "/v0")
	c.RetryDelay = time.Millisecond
	if _, err := c.Login(context.Background(), "0xabc"); err != nil {
		t.Fatalf("login: %v", err)
	}

	nfts, err := c.NFTs(context.Background())
	if err != nil {
		t.Fatalf("nfts: %v", err)
	}
	if len(nfts) != 4 {
		t.Fatalf("expected starter fleet over the API, got %d", len(nfts))
	}
	me, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Wallet != "0xabc" || me.Gems != 0 {
		t.Fatalf("unexpected profile %+v", me)
	}
	stats, err := c.MissionStats(context.Background(), "Events")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) == 0 {
		t.Fatalf("expected stats over the API")
	}
}

func TestInitiateConflictSurfacesAs409(t *testing.T) {
	srv, _ := newTestServer(t)
	c := corsairsdk.New(srv.URL + "/v0")
	if _, err := c.Login(context.Background(), "0xabc"); err != nil {
		t.Fatalf("login: %v", err)
	}
	am := stagedGroup("events/gem-emporium", "0xabc-capt-1")
	if _, err := c.InitiateMission(context.Background(), am); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	_, err := c.InitiateMission(context.Background(), stagedGroup("plunders/galleon-run", "0xabc-capt-1"))
	apiErr, ok := err.(*corsairsdk.APIError)
	if !ok || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for busy captain, got %v", err)
	}
}

// The full dispatch cycle: login, stage a batch, submit it, receive the
// completion push over the websocket, and reconcile to a terminal state.
func TestDispatchRoundTripOverPushChannel(t *testing.T) {
	srv, e := newTestServer(t)
	c := corsairsdk.New(srv.URL + "/v0")
	token, err := c.Login(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := notify.NewFeed(0)
	listener := &notify.Listener{
		URL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Token: token,
		Feed:  feed,
	}
	go listener.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for e.Hub.Connections() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("push channel never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	store := cache.NewStore()
	store.Set(cache.KeyNFTs, "stale")
	rec := reconcile.New(c, feed, store)
	rec.Keys = cache.MissionKeys
	rec.Timeout = 5 * time.Second

	batch := []domain.ActiveMission{
		stagedGroup("events/gem-emporium", "0xabc-capt-1"),
		stagedGroup("plunders/galleon-run", "0xabc-capt-2", "0xabc-capt-3"),
	}
	jobs, err := rec.Dispatch(ctx, batch)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	// Push the jobs past their resolve delay and deliver the outcomes.
	if err := e.ResolveDue(ctx); err != nil {
		t.Fatalf("resolve due: %v", err)
	}

	res, err := rec.Await(ctx)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if res.State != reconcile.BatchResolved {
		t.Fatalf("expected resolution, got %s", res.State)
	}
	if got := len(res.Successes) + len(res.Failures); got != 2 {
		t.Fatalf("expected 2 outcomes, got %d", got)
	}
	if _, ok := store.Get(cache.KeyNFTs); ok {
		t.Fatalf("expected dependent snapshots flushed after the cycle")
	}

	claims := reconcile.Claimed(res)
	if len(claims) != 2 {
		t.Fatalf("expected 2 claimed records, got %d", len(claims))
	}
	for _, cm := range claims {
		if cm.MissionName == "" {
			t.Fatalf("claimed record lost its mission name: %+v", cm)
		}
	}
}
