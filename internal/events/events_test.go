package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/model"
	"cart-gateway/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject: subject, data: data})
	return nil
}

func (f *fakePublisher) last() (message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return message{}, false
	}
	return f.msgs[len(f.msgs)-1], true
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return st
}

func TestSubject(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"user:42", "cart.settled.user:42"},
		{"guest:abc.def_12", "cart.settled.guest:abc_def_12"},
		{"token:*>", "cart.settled.token:__"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject(tt.key))
	}
}

func TestNotifier_PublishesSettledCart(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, zerolog.Nop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	r := cart.NewReconciler("guest:abcdefgh", nil, newStore(t), zerolog.Nop())
	n.Attach(r)

	_, _, err := r.AddItem(context.Background(), model.Product{ID: "p1", Name: "Shoe", Price: 100}, 3)
	require.NoError(t, err)

	var got CartSettled
	assert.Eventually(t, func() bool {
		msg, ok := pub.last()
		if !ok {
			return false
		}
		assert.Equal(t, "cart.settled.guest:abcdefgh", msg.subject)
		return json.Unmarshal(msg.data, &got) == nil && got.ItemCount == 3
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "guest:abcdefgh", got.Key)
	assert.Equal(t, cart.StateAppliedLocalFallback, got.State)
	assert.Equal(t, fixed, got.At)
	require.Len(t, got.Cart.Items, 1)
	assert.Equal(t, "p1", got.Cart.Items[0].ProductID)

	r.Close()
	n.Wait()
}

func TestNotifier_PublishFailureKeepsRunning(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	n := NewNotifier(pub, zerolog.Nop())

	r := cart.NewReconciler("guest:abcdefgh", nil, newStore(t), zerolog.Nop())
	n.Attach(r)

	_, _, err := r.AddItem(context.Background(), model.Product{ID: "p1", Price: 10}, 1)
	require.NoError(t, err)

	r.Close()
	n.Wait()

	_, ok := pub.last()
	assert.False(t, ok)
}

func TestNotifier_WithManager(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, zerolog.Nop())
	m := cart.NewManager(nil, newStore(t), zerolog.Nop(), cart.WithObserver(n.Attach))

	creds := cart.Credentials{GuestID: "guest-0001"}
	r, err := m.Get(creds)
	require.NoError(t, err)

	_, _, err = r.AddItem(context.Background(), model.Product{ID: "p2", Price: 5}, 2)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		msg, ok := pub.last()
		return ok && msg.subject == "cart.settled.guest:guest-0001"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Forget(creds))
	n.Wait()
}
