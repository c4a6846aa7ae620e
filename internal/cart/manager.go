package cart

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sync"
	"time"

	"cart-gateway/internal/model"
	"cart-gateway/internal/session"
	"cart-gateway/internal/store"

	"github.com/rs/zerolog"
)

// Credentials identify the caller of a cart operation. Token takes
// precedence over GuestID.
type Credentials struct {
	Token   string
	GuestID string
}

var guestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,128}$`)

// Key derives the cart key for the credentials. A token maps to a digest of
// the whole token; its claims are unverified and never pick the cart.
func (c Credentials) Key() (string, error) {
	if c.Token != "" {
		sum := sha256.Sum256([]byte(c.Token))
		return "token:" + hex.EncodeToString(sum[:]), nil
	}
	if c.GuestID == "" {
		return "", model.ErrMissingSession
	}
	if !guestIDPattern.MatchString(c.GuestID) {
		return "", model.ErrInvalidSession
	}
	return "guest:" + c.GuestID, nil
}

// RemoteFactory builds the backend client for a session.
type RemoteFactory func(s *session.Session) Remote

type entry struct {
	reconciler *Reconciler
	session    *session.Session
	lastUsed   time.Time
}

// Manager hands out one reconciler per cart key.
type Manager struct {
	newRemote RemoteFactory
	store     store.Store
	logger    zerolog.Logger
	onCreate  []func(*Reconciler)
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver registers fn to run for every reconciler the manager creates.
func WithObserver(fn func(*Reconciler)) Option {
	return func(m *Manager) {
		m.onCreate = append(m.onCreate, fn)
	}
}

// NewManager creates a manager. newRemote may be nil, in which case every
// cart is kept locally.
func NewManager(newRemote RemoteFactory, st store.Store, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		newRemote: newRemote,
		store:     st,
		logger:    logger.With().Str("component", "cart-manager").Logger(),
		now:       time.Now,
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the reconciler for creds, creating it on first use.
func (m *Manager) Get(creds Credentials) (*Reconciler, error) {
	key, err := creds.Key()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.entries[key]
	if ok {
		e.lastUsed = m.now()
		m.mu.Unlock()
		return e.reconciler, nil
	}

	sess := session.New()
	if creds.Token != "" {
		sess.Init(creds.Token)
	}
	var rem Remote
	if m.newRemote != nil && creds.Token != "" {
		rem = m.newRemote(sess)
	}
	e = &entry{
		reconciler: NewReconciler(key, rem, m.store, m.logger),
		session:    sess,
		lastUsed:   m.now(),
	}
	m.entries[key] = e
	m.mu.Unlock()

	m.logger.Debug().Str("cart_key", key).Bool("authenticated", rem != nil).Msg("cart session created")
	for _, fn := range m.onCreate {
		fn(e.reconciler)
	}
	return e.reconciler, nil
}

// Forget drops the reconciler for creds and ends its subscriptions. The
// stored snapshot is kept.
func (m *Manager) Forget(creds Credentials) error {
	key, err := creds.Key()
	if err != nil {
		return err
	}

	m.mu.Lock()
	e, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()

	if ok {
		e.session.Clear()
		e.reconciler.Close()
	}
	return nil
}

// Close ends the subscriptions of every live reconciler, typically at
// shutdown. The reconcilers themselves stay usable.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.reconciler.Close()
	}
}

// Prune drops reconcilers unused for longer than idle and ends their
// subscriptions. Their stored snapshots are kept, so a returning session
// reloads its cart.
func (m *Manager) Prune(idle time.Duration) int {
	m.mu.Lock()
	now := m.now()
	var stale []*entry
	for key, e := range m.entries {
		if now.Sub(e.lastUsed) > idle {
			stale = append(stale, e)
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		e.reconciler.Close()
	}
	if len(stale) > 0 {
		m.logger.Debug().Int("evicted", len(stale)).Msg("idle cart sessions evicted")
	}
	return len(stale)
}

// Run prunes idle reconcilers every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Prune(idle)
		}
	}
}

// Len returns the number of live reconcilers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MergeGuest moves the lines of the guest cart guestID into target, typically
// right after login, then clears the guest cart.
func (m *Manager) MergeGuest(ctx context.Context, guestID string, target *Reconciler) (*model.Cart, MutationState, error) {
	guest, err := m.Get(Credentials{GuestID: guestID})
	if err != nil {
		return nil, StateIdle, err
	}
	if guest == target {
		return target.Snapshot(), StateIdle, nil
	}

	lines, _, err := guest.Load(ctx)
	if err != nil {
		return nil, StateIdle, err
	}

	cart, state := target.Snapshot(), StateIdle
	for _, item := range lines.Items {
		product := model.Product{
			ID:            item.ProductID,
			Name:          item.Name,
			Price:         item.Price,
			OriginalPrice: item.OriginalPrice,
			Image:         item.Image,
		}
		cart, state, err = target.AddItem(ctx, product, item.Quantity)
		if err != nil {
			return nil, StateIdle, err
		}
	}

	if _, _, err := guest.Clear(ctx); err != nil {
		return nil, StateIdle, err
	}
	if err := m.Forget(Credentials{GuestID: guestID}); err != nil {
		return nil, StateIdle, err
	}

	m.logger.Info().
		Str("cart_key", target.Key()).
		Int("merged_lines", len(lines.Items)).
		Msg("guest cart merged")
	return cart, state, nil
}
