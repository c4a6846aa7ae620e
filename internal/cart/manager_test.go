package cart

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"cart-gateway/internal/model"
	"cart-gateway/internal/remote"
	"cart-gateway/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	return signedTokenWith(t, "test-secret", sub, exp)
}

func signedTokenWith(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestCredentials_Key(t *testing.T) {
	jwtToken := signedToken(t, "42", time.Now().Add(time.Hour))
	tokenKey, err := Credentials{Token: jwtToken}.Key()
	require.NoError(t, err)

	tests := []struct {
		name    string
		creds   Credentials
		want    string
		wantErr error
	}{
		{name: "token wins over guest", creds: Credentials{Token: jwtToken, GuestID: "guest-123456"}, want: tokenKey},
		{name: "guest", creds: Credentials{GuestID: "guest-123456"}, want: "guest:guest-123456"},
		{name: "nothing", creds: Credentials{}, wantErr: model.ErrMissingSession},
		{name: "short guest id", creds: Credentials{GuestID: "abc"}, wantErr: model.ErrInvalidSession},
		{name: "guest id with path characters", creds: Credentials{GuestID: "../../etc/passwd"}, wantErr: model.ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.creds.Key()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("tokens are hashed", func(t *testing.T) {
		for _, token := range []string{"opaque-token", jwtToken} {
			key, err := Credentials{Token: token}.Key()
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(key, "token:"))
			assert.Len(t, key, len("token:")+64)
			assert.NotContains(t, key, token)
			assert.NotContains(t, key, "42")
		}
	})

	t.Run("claims do not pick the key", func(t *testing.T) {
		exp := time.Now().Add(time.Hour)
		genuine, err := Credentials{Token: signedToken(t, "alice", exp)}.Key()
		require.NoError(t, err)
		forged, err := Credentials{Token: signedTokenWith(t, "attacker-key", "alice", exp)}.Key()
		require.NoError(t, err)
		assert.NotEqual(t, genuine, forged)
	})
}

func newTestManager(t *testing.T, backend *fakeBackend, opts ...Option) *Manager {
	t.Helper()
	factory := func(s *session.Session) Remote {
		return &sessionRemote{fakeBackend: backend, session: s}
	}
	return NewManager(factory, newTestStore(t), zerolog.Nop(), opts...)
}

// sessionRemote reports authentication from the session like the real client.
type sessionRemote struct {
	*fakeBackend
	session *session.Session
}

func (s *sessionRemote) Authenticated() bool {
	return s.session.Authenticated()
}

func TestManager_Get(t *testing.T) {
	backend := newFakeBackend()
	var created []string
	m := newTestManager(t, backend, WithObserver(func(r *Reconciler) {
		created = append(created, r.Key())
	}))

	token := signedToken(t, "7", time.Now().Add(time.Hour))
	tokenKey, err := Credentials{Token: token}.Key()
	require.NoError(t, err)

	r1, err := m.Get(Credentials{Token: token})
	require.NoError(t, err)
	assert.Equal(t, tokenKey, r1.Key())

	again, err := m.Get(Credentials{Token: token})
	require.NoError(t, err)
	assert.Same(t, r1, again)

	// another token is another cart, whatever its claims say
	r2, err := m.Get(Credentials{Token: signedToken(t, "7", time.Now().Add(2*time.Hour))})
	require.NoError(t, err)
	assert.NotSame(t, r1, r2)

	g, err := m.Get(Credentials{GuestID: "guest-123456"})
	require.NoError(t, err)
	assert.NotSame(t, r1, g)

	assert.Equal(t, []string{tokenKey, r2.Key(), "guest:guest-123456"}, created)
	assert.Equal(t, 3, m.Len())

	_, err = m.Get(Credentials{})
	assert.ErrorIs(t, err, model.ErrMissingSession)
}

// issuedRemote answers 401 for every token the backend did not issue.
type issuedRemote struct {
	*sessionRemote
	issued string
}

func (i *issuedRemote) ListCart(ctx context.Context) (remote.Result[[]model.CartItem], error) {
	if i.session.Token() != i.issued {
		return remote.Result[[]model.CartItem]{Status: http.StatusUnauthorized, Error: "invalid token"}, nil
	}
	return i.sessionRemote.ListCart(ctx)
}

func TestManager_ForgedTokenSeesEmptyCart(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	st := newTestStore(t)
	exp := time.Now().Add(time.Hour)
	genuine := signedToken(t, "alice", exp)
	forged := signedTokenWith(t, "attacker-key", "alice", exp)

	newManager := func() *Manager {
		return NewManager(func(s *session.Session) Remote {
			return &issuedRemote{sessionRemote: &sessionRemote{fakeBackend: backend, session: s}, issued: genuine}
		}, st, zerolog.Nop())
	}

	m := newManager()
	victim, err := m.Get(Credentials{Token: genuine})
	require.NoError(t, err)
	_, state, err := victim.AddItem(ctx, shoe, 1)
	require.NoError(t, err)
	require.Equal(t, StateAppliedRemote, state)

	t.Run("live manager", func(t *testing.T) {
		attacker, err := m.Get(Credentials{Token: forged})
		require.NoError(t, err)
		assert.NotSame(t, victim, attacker)

		cart, _, err := attacker.Current(ctx)
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		assert.Len(t, victim.Snapshot().Items, 1)
	})

	t.Run("fresh manager", func(t *testing.T) {
		attacker, err := newManager().Get(Credentials{Token: forged})
		require.NoError(t, err)

		cart, _, err := attacker.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
	})
}

func TestManager_ExpiredTokenStaysLocal(t *testing.T) {
	backend := newFakeBackend()
	m := newTestManager(t, backend)

	r, err := m.Get(Credentials{Token: signedToken(t, "9", time.Now().Add(-time.Minute))})
	require.NoError(t, err)

	_, state, err := r.AddItem(context.Background(), shoe, 1)
	require.NoError(t, err)
	assert.Equal(t, StateAppliedLocalFallback, state)
	assert.Zero(t, backend.count("add"))
}

func TestManager_Forget(t *testing.T) {
	m := newTestManager(t, newFakeBackend())
	creds := Credentials{GuestID: "guest-123456"}

	r, err := m.Get(creds)
	require.NoError(t, err)
	updates, _ := r.Subscribe()

	require.NoError(t, m.Forget(creds))
	assert.Equal(t, 0, m.Len())

	_, open := <-updates
	assert.False(t, open)

	again, err := m.Get(creds)
	require.NoError(t, err)
	assert.NotSame(t, r, again)
}

func TestManager_Close(t *testing.T) {
	m := newTestManager(t, newFakeBackend())

	a, err := m.Get(Credentials{GuestID: "guest-aaaaaaaa"})
	require.NoError(t, err)
	b, err := m.Get(Credentials{GuestID: "guest-bbbbbbbb"})
	require.NoError(t, err)
	ua, _ := a.Subscribe()
	ub, _ := b.Subscribe()

	m.Close()

	_, open := <-ua
	assert.False(t, open)
	_, open = <-ub
	assert.False(t, open)
	assert.Equal(t, 2, m.Len())
}

func TestManager_Prune(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, newFakeBackend())
	m.now = func() time.Time { return now }

	idle, err := m.Get(Credentials{GuestID: "guest-aaaaaaaa"})
	require.NoError(t, err)
	_, _, err = idle.AddItem(ctx, shoe, 2)
	require.NoError(t, err)
	updates, _ := idle.Subscribe()

	now = now.Add(20 * time.Minute)
	_, err = m.Get(Credentials{GuestID: "guest-bbbbbbbb"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, 1, m.Prune(10*time.Minute))
	assert.Equal(t, 1, m.Len())
	for range updates {
	}

	// the evicted session reloads its stored cart
	back, err := m.Get(Credentials{GuestID: "guest-aaaaaaaa"})
	require.NoError(t, err)
	assert.NotSame(t, idle, back)
	cart, _, err := back.Current(ctx)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	// use keeps a session alive
	now = now.Add(8 * time.Minute)
	_, err = m.Get(Credentials{GuestID: "guest-bbbbbbbb"})
	require.NoError(t, err)
	now = now.Add(8 * time.Minute)
	assert.Equal(t, 1, m.Prune(10*time.Minute))
	assert.Equal(t, 1, m.Len())

	now = now.Add(time.Hour)
	assert.Equal(t, 1, m.Prune(10*time.Minute))
	assert.Zero(t, m.Len())
}

func TestManager_Run(t *testing.T) {
	m := newTestManager(t, newFakeBackend())
	_, err := m.Get(Credentials{GuestID: "guest-aaaaaaaa"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond, 0)
		close(done)
	}()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestManager_MergeGuest(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	m := newTestManager(t, backend)

	guest, err := m.Get(Credentials{GuestID: "guest-123456"})
	require.NoError(t, err)
	_, _, err = guest.AddItem(ctx, shoe, 2)
	require.NoError(t, err)
	_, _, err = guest.AddItem(ctx, hat, 1)
	require.NoError(t, err)

	user, err := m.Get(Credentials{Token: signedToken(t, "5", time.Now().Add(time.Hour))})
	require.NoError(t, err)

	cart, state, err := m.MergeGuest(ctx, "guest-123456", user)
	require.NoError(t, err)
	assert.Equal(t, StateAppliedRemote, state)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.ItemCount())
	assert.False(t, cart.HasUnreconciled())
	assert.Equal(t, 2, backend.count("add"))

	// the guest cart is gone
	assert.Equal(t, 1, m.Len())
	fresh, err := m.Get(Credentials{GuestID: "guest-123456"})
	require.NoError(t, err)
	loaded, _, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Items)
}
