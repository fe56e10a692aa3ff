package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"corsair/internal/domain"
)

// BatchState tracks one dispatch batch through its lifecycle.
type BatchState int

const (
	BatchIdle BatchState = iota
	BatchPending
	BatchResolved
	BatchTimedOut
)

func (s BatchState) String() string {
	switch s {
	case BatchIdle:
		return "idle"
	case BatchPending:
		return "pending"
	case BatchResolved:
		return "resolved"
	case BatchTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ErrEmptyGroup aborts a dispatch when any group carries no asset ids.
// The whole batch is rejected; a mixed valid/invalid batch must never be
// partially submitted.
var ErrEmptyGroup = errors.New("an error occurred, try again later")

// ErrBatchPending rejects a dispatch while another batch is in flight.
// Only one batch may be pending per reconciler.
var ErrBatchPending = errors.New("a dispatch batch is already pending")

// ErrNoBatch is returned by Await when nothing is pending.
var ErrNoBatch = errors.New("no pending batch")

// DefaultTimeout bounds how long a batch may stay pending, measured from
// the moment the job-id list is set.
const DefaultTimeout = 20 * time.Second

// Gateway submits one staged mission group and returns its job handle.
type Gateway interface {
	InitiateMission(ctx context.Context, am domain.ActiveMission) (domain.Job, error)
}

// Invalidator flushes dependent remote snapshots after a claim cycle.
type Invalidator interface {
	Invalidate(keys ...string)
}

// Feed is the reconciler's view of the notification store.
type Feed interface {
	Take(jobID, typ string) (domain.Notification, bool)
	Subscribe() (<-chan struct{}, func())
}

// Reconciler drives a dispatch batch from submission through resolution:
// Idle -> Pending on a fully successful dispatch, then Pending -> Resolved
// once every job id has a matching notification, or Pending -> TimedOut
// when the window elapses first. Both exits flush the cache keys.
type Reconciler struct {
	Gateway Gateway
	Feed    Feed
	Caches  Invalidator

	// Type is the expected notification type for this call site.
	Type string
	// Keys are the cache keys invalidated on Resolved and TimedOut.
	Keys    []string
	Timeout time.Duration
	Logger  *log.Logger
	Now     func() time.Time

	mu           sync.Mutex
	state        BatchState
	loading      bool
	jobIDs       []string
	groups       map[string]domain.ActiveMission
	pendingSince time.Time
}

func New(gw Gateway, feed Feed, caches Invalidator) *Reconciler {
	return &Reconciler{
		Gateway: gw,
		Feed:    feed,
		Caches:  caches,
		Type:    domain.NotifyInitiate,
		Timeout: DefaultTimeout,
		Now:     time.Now,
	}
}

func (r *Reconciler) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// State returns the current batch state.
func (r *Reconciler) State() BatchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Loading reports whether a dispatch batch is being submitted or awaited.
func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// JobIDs returns the pending job-id list.
func (r *Reconciler) JobIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobIDs))
	copy(out, r.jobIDs)
	return out
}

// Dispatch validates and submits a batch of staged mission groups.
// Groups are submitted sequentially; the first non-2xx aborts the rest.
// Jobs already accepted by the worker are left pending server-side.
// On full success the reconciler transitions to Pending.
func (r *Reconciler) Dispatch(ctx context.Context, batch []domain.ActiveMission) ([]domain.Job, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyGroup
	}
	for _, am := range batch {
		if !hasAssets(am) {
			return nil, ErrEmptyGroup
		}
	}

	// A batch is in flight from the moment submissions start, not from
	// the moment the job-id list is set. Checking loading here closes the
	// window where a second Dispatch could slip in mid-submission and
	// overwrite the first batch's job ids.
	r.mu.Lock()
	if r.state == BatchPending || r.loading {
		r.mu.Unlock()
		return nil, ErrBatchPending
	}
	r.loading = true
	r.mu.Unlock()

	jobs := make([]domain.Job, 0, len(batch))
	groups := make(map[string]domain.ActiveMission, len(batch))
	for _, am := range batch {
		job, err := r.Gateway.InitiateMission(ctx, am)
		if err != nil {
			r.mu.Lock()
			r.loading = false
			r.mu.Unlock()
			return jobs, fmt.Errorf("initiate %s: %w", am.MissionPath, err)
		}
		jobs = append(jobs, job)
		groups[job.ID] = am
	}

	r.mu.Lock()
	r.state = BatchPending
	r.jobIDs = make([]string, 0, len(jobs))
	for _, j := range jobs {
		r.jobIDs = append(r.jobIDs, j.ID)
	}
	r.groups = groups
	r.pendingSince = r.now()
	r.mu.Unlock()
	return jobs, nil
}

func hasAssets(am domain.ActiveMission) bool {
	for _, id := range am.NFTIDs {
		if id != "" {
			return true
		}
	}
	return false
}

// Resolution is the outcome of one batch.
type Resolution struct {
	State      BatchState
	Successes  []domain.Notification
	Failures   []domain.Notification
	Unresolved []string
	// Groups maps each job id back to the staged group that produced it.
	Groups map[string]domain.ActiveMission
}

// Summary produces the user-facing toast for this resolution.
func (res Resolution) Summary() string {
	if res.State == BatchTimedOut {
		return "Timeout, reloading..."
	}
	if len(res.Failures) == 0 {
		return fmt.Sprintf("%d mission(s) started", len(res.Successes))
	}
	return fmt.Sprintf("%d mission(s) started, %d failed", len(res.Successes), len(res.Failures))
}

// Await blocks until every pending job id has a matching notification of
// the expected type, or until the timeout window (armed when the job-id
// list was set) elapses. Notification arrival order does not matter; only
// set coverage does. Both exits invalidate the cache keys and clear the
// job-id list. Cancelling ctx resets the batch to Idle without flushing.
func (r *Reconciler) Await(ctx context.Context) (Resolution, error) {
	r.mu.Lock()
	if r.state != BatchPending {
		r.mu.Unlock()
		return Resolution{}, ErrNoBatch
	}
	pending := make(map[string]bool, len(r.jobIDs))
	for _, id := range r.jobIDs {
		pending[id] = true
	}
	groups := r.groups
	deadline := r.pendingSince.Add(r.timeout())
	r.mu.Unlock()

	updates, unsubscribe := r.Feed.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var successes, failures []domain.Notification
	collect := func() bool {
		for id := range pending {
			n, ok := r.Feed.Take(id, r.Type)
			if !ok {
				continue
			}
			delete(pending, id)
			if n.Failed() {
				failures = append(failures, n)
			} else {
				successes = append(successes, n)
			}
		}
		return len(pending) == 0
	}

	for {
		if collect() {
			r.finish(BatchResolved)
			return Resolution{
				State:     BatchResolved,
				Successes: successes,
				Failures:  failures,
				Groups:    groups,
			}, nil
		}
		select {
		case <-ctx.Done():
			r.reset()
			return Resolution{}, ctx.Err()
		case <-timer.C:
			unresolved := make([]string, 0, len(pending))
			for id := range pending {
				unresolved = append(unresolved, id)
			}
			r.finish(BatchTimedOut)
			r.logger().Printf("batch timed out with %d unresolved job(s)", len(unresolved))
			return Resolution{
				State:      BatchTimedOut,
				Successes:  successes,
				Failures:   failures,
				Unresolved: unresolved,
				Groups:     groups,
			}, nil
		case <-updates:
		}
	}
}

// Run dispatches a batch and awaits its resolution in one call.
func (r *Reconciler) Run(ctx context.Context, batch []domain.ActiveMission) (Resolution, error) {
	if _, err := r.Dispatch(ctx, batch); err != nil {
		return Resolution{}, err
	}
	return r.Await(ctx)
}

func (r *Reconciler) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

// finish applies the terminal transition: flush caches, clear the job-id
// list, drop the loading flag.
func (r *Reconciler) finish(state BatchState) {
	if r.Caches != nil {
		r.Caches.Invalidate(r.Keys...)
	}
	r.mu.Lock()
	r.state = state
	r.jobIDs = nil
	r.groups = nil
	r.loading = false
	r.mu.Unlock()
}

// reset abandons the batch without flushing caches (caller went away).
func (r *Reconciler) reset() {
	r.mu.Lock()
	r.state = BatchIdle
	r.jobIDs = nil
	r.groups = nil
	r.loading = false
	r.mu.Unlock()
}
