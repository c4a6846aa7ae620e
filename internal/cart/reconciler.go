// Package cart keeps a session's cart consistent between the backend and the
// local store. Mutations go to the backend when the session is authenticated
// and fall back to an optimistic local merge when the backend is unreachable
// or rejects the call.
package cart

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cart-gateway/internal/model"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/store"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Remote is the part of the backend client the reconciler drives.
type Remote interface {
	Authenticated() bool
	ListCart(ctx context.Context) (remote.Result[[]model.CartItem], error)
	AddToCart(ctx context.Context, productID string, quantity int) (remote.Result[remote.Empty], error)
	UpdateCartItem(ctx context.Context, itemID string, quantity int) (remote.Result[remote.Empty], error)
	RemoveCartItem(ctx context.Context, itemID string) (remote.Result[remote.Empty], error)
	ClearCart(ctx context.Context) (remote.Result[remote.Empty], error)
}

// Reconciler owns the live cart of one session.
//
// Mutations are serialized: mu is held for the whole remote round trip, so a
// second mutation starts from the state the first one settled in. Readers use
// Snapshot, which returns the last settled cart without waiting on mu.
type Reconciler struct {
	key    string
	remote Remote
	store  store.Store
	logger zerolog.Logger

	mu      sync.Mutex
	current *model.Cart
	loaded  bool
	// acked holds local line ids the backend accepted but whose refresh failed.
	// Reconcile must not replay them.
	acked map[string]struct{}

	refreshes singleflight.Group

	view    sync.RWMutex
	settled *model.Cart
	state   MutationState

	subsMu  sync.Mutex
	subs    map[uint64]chan *model.Cart
	nextSub uint64
	closed  bool
}

// NewReconciler creates a reconciler for the cart stored under key. rem may
// be nil for a guest cart.
func NewReconciler(key string, rem Remote, st store.Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		key:     key,
		remote:  rem,
		store:   st,
		logger:  logger.With().Str("component", "cart-reconciler").Str("cart_key", key).Logger(),
		current: model.NewCart(),
		acked:   make(map[string]struct{}),
		settled: model.NewCart(),
		subs:    make(map[uint64]chan *model.Cart),
	}
}

// Key returns the cart key the reconciler persists under.
func (r *Reconciler) Key() string {
	return r.key
}

// Snapshot returns a copy of the last settled cart.
func (r *Reconciler) Snapshot() *model.Cart {
	r.view.RLock()
	defer r.view.RUnlock()
	return r.settled.Clone()
}

// State returns the state of the latest mutation.
func (r *Reconciler) State() MutationState {
	r.view.RLock()
	defer r.view.RUnlock()
	return r.state
}

func (r *Reconciler) authenticated() bool {
	return r.remote != nil && r.remote.Authenticated()
}

// Load (re)reads the cart at session start. An authenticated session lists
// the server cart and keeps any unreconciled lines from the stored snapshot;
// when the backend cannot serve the list, or the session is a guest, the
// stored snapshot is used as is. A session the backend answers with 401 or
// 403 gets an empty cart.
func (r *Reconciler) Load(ctx context.Context) (*model.Cart, MutationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}
	cart, state := r.loadLocked(ctx)
	return cart, state, nil
}

func (r *Reconciler) loadLocked(ctx context.Context) (*model.Cart, MutationState) {
	stored := r.store.Load(ctx, r.key)
	r.loaded = true

	if !r.authenticated() {
		return r.swap(stored, StateAppliedLocalFallback), StateAppliedLocalFallback
	}

	server, err := r.fetchLocked(ctx)
	if err != nil {
		if denied(err) {
			// A refused session sees none of the stored snapshot.
			return r.swap(model.NewCart(), StateAppliedLocalFallback), StateAppliedLocalFallback
		}
		return r.swap(stored, StateAppliedLocalFallback), StateAppliedLocalFallback
	}
	for _, item := range stored.Items {
		if item.Unreconciled() && server.Find(item.ID) < 0 {
			server.Items = append(server.Items, item)
		}
	}
	return r.settle(ctx, server, StateAppliedRemote), StateAppliedRemote
}

// Current returns the cart once any in-flight mutation has settled, loading
// it on first use.
func (r *Reconciler) Current(ctx context.Context) (*model.Cart, MutationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}
	if !r.loaded {
		cart, state := r.loadLocked(ctx)
		return cart, state, nil
	}
	return r.current.Clone(), r.State(), nil
}

// begin loads the cart on first use and marks a mutation as pending.
func (r *Reconciler) begin(ctx context.Context) {
	if !r.loaded {
		r.loadLocked(ctx)
	}
	r.view.Lock()
	r.state = StatePending
	r.view.Unlock()
}

// AddItem adds quantity units of product. quantity must be positive.
func (r *Reconciler) AddItem(ctx context.Context, product model.Product, quantity int) (*model.Cart, MutationState, error) {
	if quantity <= 0 {
		return nil, StateIdle, model.ErrInvalidQuantity
	}
	if product.ID == "" {
		return nil, StateIdle, model.ErrMissingProduct
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}
	r.begin(ctx)

	if !r.authenticated() {
		return r.fallback(ctx, mergeAdd(r.current, product, quantity))
	}

	res, err := r.remote.AddToCart(ctx, product.ID, quantity)
	if !r.accepted("add to cart", res, err) {
		return r.fallback(ctx, mergeAdd(r.current, product, quantity))
	}

	if server, err := r.fetchLocked(ctx); err == nil {
		return r.settle(ctx, r.withPending(server), StateAppliedRemote), StateAppliedRemote, nil
	}

	next := mergeAdd(r.current, product, quantity)
	if id := newLine(r.current, next); id != "" {
		r.acked[id] = struct{}{}
	}
	return r.fallback(ctx, next)
}

// RemoveItem removes the line with id. Removing a missing line is a no-op
// that reports StateIdle.
func (r *Reconciler) RemoveItem(ctx context.Context, id string) (*model.Cart, MutationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}
	return r.removeLocked(ctx, id)
}

func (r *Reconciler) removeLocked(ctx context.Context, id string) (*model.Cart, MutationState, error) {
	if !r.loaded {
		r.loadLocked(ctx)
	}
	i := r.current.Find(id)
	if i < 0 {
		return r.current.Clone(), StateIdle, nil
	}
	r.begin(ctx)

	if !r.authenticated() || r.current.Items[i].Unreconciled() {
		delete(r.acked, id)
		return r.fallback(ctx, mergeRemove(r.current, id))
	}

	res, err := r.remote.RemoveCartItem(ctx, id)
	if r.accepted("remove cart item", res, err) {
		if server, err := r.fetchLocked(ctx); err == nil {
			return r.settle(ctx, r.withPending(server), StateAppliedRemote), StateAppliedRemote, nil
		}
	}
	return r.fallback(ctx, mergeRemove(r.current, id))
}

// UpdateQuantity sets the quantity of the line with id. A quantity of zero or
// less removes the line.
func (r *Reconciler) UpdateQuantity(ctx context.Context, id string, quantity int) (*model.Cart, MutationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}
	if quantity <= 0 {
		return r.removeLocked(ctx, id)
	}

	if !r.loaded {
		r.loadLocked(ctx)
	}
	i := r.current.Find(id)
	if i < 0 {
		return r.current.Clone(), StateIdle, nil
	}
	r.begin(ctx)

	if !r.authenticated() || r.current.Items[i].Unreconciled() {
		return r.fallback(ctx, mergeQuantity(r.current, id, quantity))
	}

	res, err := r.remote.UpdateCartItem(ctx, id, quantity)
	if r.accepted("update cart item", res, err) {
		if server, err := r.fetchLocked(ctx); err == nil {
			return r.settle(ctx, r.withPending(server), StateAppliedRemote), StateAppliedRemote, nil
		}
	}
	return r.fallback(ctx, mergeQuantity(r.current, id, quantity))
}

// Clear empties the cart. The local cart is emptied whatever the backend
// answers, so calling Clear twice is safe.
func (r *Reconciler) Clear(ctx context.Context) (*model.Cart, MutationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}
	r.begin(ctx)

	state := StateAppliedLocalFallback
	if r.authenticated() {
		res, err := r.remote.ClearCart(ctx)
		if r.accepted("clear cart", res, err) {
			state = StateAppliedRemote
		}
	}

	clear(r.acked)
	return r.settle(ctx, model.NewCart(), state), state, nil
}

// Refresh replaces the cart with the server cart. Concurrent callers share a
// single backend round trip. When the backend cannot be reached the current
// cart is kept and StateAppliedLocalFallback is reported.
func (r *Reconciler) Refresh(ctx context.Context) (*model.Cart, MutationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}

	v, _, _ := r.refreshes.Do("refresh", func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		cart, state := r.refreshLocked(ctx)
		return outcome{cart: cart, state: state}, nil
	})

	out := v.(outcome)
	return out.cart.Clone(), out.state, nil
}

type outcome struct {
	cart  *model.Cart
	state MutationState
}

func (r *Reconciler) refreshLocked(ctx context.Context) (*model.Cart, MutationState) {
	if !r.authenticated() {
		if !r.loaded {
			return r.loadLocked(ctx)
		}
		return r.current.Clone(), StateAppliedLocalFallback
	}

	server, err := r.fetchLocked(ctx)
	if err != nil {
		if !r.loaded {
			return r.loadLocked(ctx)
		}
		return r.current.Clone(), StateAppliedLocalFallback
	}
	r.loaded = true
	clear(r.acked)
	return r.settle(ctx, server, StateAppliedRemote), StateAppliedRemote
}

// Reconcile replays every unreconciled line against the backend and then
// refreshes. Lines the backend rejects are dropped. When the backend becomes
// unreachable midway, the remaining lines stay unreconciled.
func (r *Reconciler) Reconcile(ctx context.Context) (*model.Cart, MutationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, StateIdle, err
	}
	if !r.loaded {
		r.loadLocked(ctx)
	}
	if !r.authenticated() {
		return r.current.Clone(), StateAppliedLocalFallback, nil
	}
	r.begin(ctx)

	next := r.current.Clone()
	kept := next.Items[:0]
	reachable := true
	replayed := 0
	for _, item := range next.Items {
		if !reachable || !item.Unreconciled() {
			kept = append(kept, item)
			continue
		}
		if _, ok := r.acked[item.ID]; ok {
			kept = append(kept, item)
			continue
		}

		res, err := r.remote.AddToCart(ctx, item.ProductID, item.Quantity)
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Str("product_id", item.ProductID).Msg("backend unreachable during reconcile")
			reachable = false
			kept = append(kept, item)
		case !res.OK:
			r.logger.Warn().
				Int("status", res.Status).
				Str("product_id", item.ProductID).
				Str("error", res.Error).
				Msg("backend rejected unreconciled line, dropping it")
		default:
			replayed++
			r.acked[item.ID] = struct{}{}
			kept = append(kept, item)
		}
	}
	next.Items = kept

	if reachable {
		if server, err := r.fetchLocked(ctx); err == nil {
			clear(r.acked)
			r.logger.Info().Int("replayed", replayed).Msg("cart reconciled")
			return r.settle(ctx, server, StateAppliedRemote), StateAppliedRemote, nil
		}
	}
	return r.fallback(ctx, next)
}

// fetchLocked lists the server cart. Rejections and transport failures are
// both reported as errors after logging.
func (r *Reconciler) fetchLocked(ctx context.Context) (*model.Cart, error) {
	res, err := r.remote.ListCart(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to fetch server cart")
		return nil, err
	}
	if !res.OK {
		r.logger.Warn().Int("status", res.Status).Str("error", res.Error).Msg("backend rejected cart fetch")
		return nil, res.Rejection()
	}
	return fromServer(res.Data), nil
}

// withPending carries the unreconciled lines of the current cart over into
// server so a successful mutation does not drop them before Reconcile runs.
// Acked lines are already part of server under their backend id.
func (r *Reconciler) withPending(server *model.Cart) *model.Cart {
	for _, item := range r.current.Items {
		if !item.Unreconciled() {
			continue
		}
		if _, ok := r.acked[item.ID]; ok {
			delete(r.acked, item.ID)
			continue
		}
		if server.Find(item.ID) < 0 {
			server.Items = append(server.Items, item)
		}
	}
	return server
}

// denied reports whether the backend refused the session itself.
func denied(err error) bool {
	var rej *remote.RejectionError
	if !errors.As(err, &rej) {
		return false
	}
	return rej.Status == http.StatusUnauthorized || rej.Status == http.StatusForbidden
}

// accepted logs a failed backend call and reports whether it succeeded.
func (r *Reconciler) accepted(op string, res remote.Result[remote.Empty], err error) bool {
	if err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("backend unreachable, applying locally")
		return false
	}
	if !res.OK {
		r.logger.Warn().
			Str("op", op).
			Int("status", res.Status).
			Str("error", res.Error).
			Str("field", res.Field).
			Msg("backend rejected mutation, applying locally")
		return false
	}
	return true
}

func (r *Reconciler) fallback(ctx context.Context, next *model.Cart) (*model.Cart, MutationState, error) {
	return r.settle(ctx, next, StateAppliedLocalFallback), StateAppliedLocalFallback, nil
}

// settle persists next and makes it the current and settled cart. Callers
// hold mu, so the store write and the swap are seen together.
func (r *Reconciler) settle(ctx context.Context, next *model.Cart, state MutationState) *model.Cart {
	next.UpdatedAt = time.Now().UTC()

	var err error
	if next.IsEmpty() {
		err = r.store.Clear(ctx, r.key)
	} else {
		err = r.store.Save(ctx, r.key, next)
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to persist cart snapshot")
	}

	return r.swap(next, state)
}

func (r *Reconciler) swap(next *model.Cart, state MutationState) *model.Cart {
	r.current = next

	r.view.Lock()
	r.settled = next.Clone()
	r.state = state
	r.view.Unlock()

	r.publish(next)
	return next.Clone()
}

// newLine returns the id of the line next has and prev lacks, or "".
func newLine(prev, next *model.Cart) string {
	for _, item := range next.Items {
		if prev.Find(item.ID) < 0 {
			return item.ID
		}
	}
	return ""
}
