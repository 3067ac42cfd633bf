// Package workflow drives the review approval flow: selection, optimistic
// status updates with rollback, and reconciliation against the store.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/internal/shard"
)

// Action is the in-flight bulk action tag. A controller instance runs at
// most one bulk action at a time.
type Action string

const (
	ActionNone      Action = ""
	ActionApproving Action = "approving"
	ActionRejecting Action = "rejecting"
	ActionEditing   Action = "editing"
	ActionDeleting  Action = "deleting"
)

// actionState tracks the optimistic state machine of the most recent
// action: pending while the store call is out, then committed or rolled
// back. The idempotent-conflict path commits rather than rolling back.
type actionState string

const (
	statePending    actionState = "pending"
	stateCommitted  actionState = "committed"
	stateRolledBack actionState = "rolled_back"
)

var (
	// ErrActionInFlight reports that another bulk action has not finished.
	ErrActionInFlight = errors.New("another action is in flight")
	// ErrNothingSelected reports an empty selection on a bulk action.
	ErrNothingSelected = errors.New("nothing selected")
	// ErrEmptyReason reports a rejection without a reason.
	ErrEmptyReason = errors.New("rejection requires a reason")
	// ErrStaleSelection reports that an approval touched an id the
	// controller has never classified; the caller must refresh first.
	ErrStaleSelection = errors.New("selection is out of date, refresh required")
)

// BlockedError refuses an approval because required fields are missing on
// stub shards. No store call is made when this is returned.
type BlockedError struct {
	Missing map[string][]string // shard id -> missing field names
}

func (e *BlockedError) Error() string {
	ids := make([]string, 0, len(e.Missing))
	for id := range e.Missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("approval blocked, required fields missing on %v", ids)
}

// Store is the persistence surface the controller drives. Implementations
// are pre-scoped to one campaign or resource.
type Store interface {
	ApproveBatch(ctx context.Context, ids []string) error
	RejectBatch(ctx context.Context, ids []string, reason string) error
	ListStaged(ctx context.Context) ([]model.StagingRecord, error)
}

// Controller holds the review session state for one scope. All methods are
// safe for concurrent use.
type Controller struct {
	store Store

	mu        sync.Mutex
	selection map[string]bool
	processed map[string]bool
	shards    map[string]shard.Shard
	action    Action
	inFlight  map[string]bool // per-id markers for single-row actions
	lastState actionState
}

// NewController creates a controller over a pre-scoped store.
func NewController(store Store) *Controller {
	return &Controller{
		store:     store,
		selection: make(map[string]bool),
		processed: make(map[string]bool),
		shards:    make(map[string]shard.Shard),
		inFlight:  make(map[string]bool),
	}
}

// SelectAll adds every record of the given groups to the selection,
// skipping ids already processed.
func (c *Controller) SelectAll(groups []model.StagingGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, group := range groups {
		for _, rec := range group.Records {
			if !c.processed[rec.ID] {
				c.selection[rec.ID] = true
			}
		}
	}
}

// SelectNone clears the selection.
func (c *Controller) SelectNone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = make(map[string]bool)
}

// Toggle flips one id's selection membership.
func (c *Controller) Toggle(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection[id] {
		delete(c.selection, id)
	} else {
		c.selection[id] = true
	}
}

// Selected returns the selected ids in deterministic order.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.selection)
}

// IsSelected reports whether an id is in the selection set.
func (c *Controller) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection[id]
}

// IsProcessed reports whether an id carries an optimistic processed mark.
func (c *Controller) IsProcessed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed[id]
}

// InFlightAction returns the current bulk action tag.
func (c *Controller) InFlightAction() Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.action
}

// ApproveSelected approves every selected shard as one batch. If any
// selected stub is missing required fields, the whole action is refused
// with a BlockedError before any store call. On success the selection is
// cleared; on failure the optimistic marks are rolled back, unless the
// store reports the records were already resolved by another actor, which
// counts as success.
func (c *Controller) ApproveSelected(ctx context.Context) error {
	c.mu.Lock()
	if c.action != ActionNone {
		c.mu.Unlock()
		return ErrActionInFlight
	}
	ids := sortedKeys(c.selection)
	if len(ids) == 0 {
		c.mu.Unlock()
		return ErrNothingSelected
	}

	// The gate only holds if every selected id has a classified shard to
	// check; an unknown id means the local view is stale, so refuse rather
	// than approve blind.
	missing := make(map[string][]string)
	for _, id := range ids {
		sh, ok := c.shards[id]
		if !ok {
			c.mu.Unlock()
			return ErrStaleSelection
		}
		if fields := shard.MissingFields(sh); len(fields) > 0 {
			missing[id] = fields
		}
	}
	if len(missing) > 0 {
		c.mu.Unlock()
		return &BlockedError{Missing: missing}
	}

	c.action = ActionApproving
	c.lastState = statePending
	for _, id := range ids {
		c.processed[id] = true
	}
	c.mu.Unlock()

	err := c.store.ApproveBatch(ctx, ids)

	return c.settle(ids, err, true)
}

// RejectSelected rejects every selected shard as one batch. The reason is
// mandatory. Same optimistic protocol as ApproveSelected, without the
// required-field gate.
func (c *Controller) RejectSelected(ctx context.Context, reason string) error {
	if reason == "" {
		return ErrEmptyReason
	}

	c.mu.Lock()
	if c.action != ActionNone {
		c.mu.Unlock()
		return ErrActionInFlight
	}
	ids := sortedKeys(c.selection)
	if len(ids) == 0 {
		c.mu.Unlock()
		return ErrNothingSelected
	}
	c.action = ActionRejecting
	c.lastState = statePending
	for _, id := range ids {
		c.processed[id] = true
	}
	c.mu.Unlock()

	err := c.store.RejectBatch(ctx, ids, reason)

	return c.settle(ids, err, true)
}

// ApproveOne approves a single shard with a per-id in-flight marker, so
// the rest of the list stays interactive while the call is out.
func (c *Controller) ApproveOne(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.inFlight[id] {
		c.mu.Unlock()
		return ErrActionInFlight
	}
	sh, ok := c.shards[id]
	if !ok {
		c.mu.Unlock()
		return ErrStaleSelection
	}
	if fields := shard.MissingFields(sh); len(fields) > 0 {
		c.mu.Unlock()
		return &BlockedError{Missing: map[string][]string{id: fields}}
	}
	c.inFlight[id] = true
	c.processed[id] = true
	c.mu.Unlock()

	err := c.store.ApproveBatch(ctx, []string{id})

	return c.settleOne(id, err)
}

// RejectOne rejects a single shard. The reason is mandatory.
func (c *Controller) RejectOne(ctx context.Context, id string, reason string) error {
	if reason == "" {
		return ErrEmptyReason
	}

	c.mu.Lock()
	if c.inFlight[id] {
		c.mu.Unlock()
		return ErrActionInFlight
	}
	c.inFlight[id] = true
	c.processed[id] = true
	c.mu.Unlock()

	err := c.store.RejectBatch(ctx, []string{id}, reason)

	return c.settleOne(id, err)
}

// BeginAction claims the bulk action slot for an edit or delete flow that
// runs outside the controller. The returned release function must be
// called when the flow finishes.
func (c *Controller) BeginAction(kind Action) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.action != ActionNone {
		return nil, ErrActionInFlight
	}
	c.action = kind
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.action = ActionNone
	}, nil
}

// Refresh re-reads the staged records for the scope and reconciles local
// state: processed marks and selections for ids the server no longer
// lists as staged are dropped, and the classification cache is rebuilt.
func (c *Controller) Refresh(ctx context.Context) error {
	records, err := c.store.ListStaged(ctx)
	if err != nil {
		return err
	}

	shards := make(map[string]shard.Shard, len(records))
	for i := range records {
		cand := model.CandidateFromRecord(&records[i])
		shards[records[i].ID] = shard.Classify(cand)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards = shards
	for id := range c.processed {
		if _, still := shards[id]; !still {
			delete(c.processed, id)
		}
	}
	for id := range c.selection {
		if _, still := shards[id]; !still {
			delete(c.selection, id)
		}
	}
	return nil
}

// WatchRefresh triggers a refresh a fixed delay after each signal, until
// the context ends or the channel closes. The signal channel is handed in
// by whoever owns the upload lifecycle.
func (c *Controller) WatchRefresh(ctx context.Context, signals <-chan struct{}, delay time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			_ = c.Refresh(ctx)
		}
	}
}

// settle finishes a bulk action: commit on success or idempotent conflict
// (keeping the optimistic marks), roll back otherwise.
func (c *Controller) settle(ids []string, err error, clearSelection bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.action = ActionNone

	if err == nil || errors.Is(err, repository.ErrAlreadyResolved) {
		c.lastState = stateCommitted
		if clearSelection {
			for _, id := range ids {
				delete(c.selection, id)
			}
		}
		return nil
	}

	c.lastState = stateRolledBack
	for _, id := range ids {
		delete(c.processed, id)
	}
	return err
}

// settleOne finishes a single-id action under the per-id marker.
func (c *Controller) settleOne(id string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)

	if err == nil || errors.Is(err, repository.ErrAlreadyResolved) {
		delete(c.selection, id)
		return nil
	}
	delete(c.processed, id)
	return err
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
