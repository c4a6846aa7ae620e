// Package events publishes settled carts to NATS so other services can follow
// cart changes without polling the gateway.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"cart-gateway/internal/cart"
	"cart-gateway/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectPrefix is prepended to the cart key to form the publish subject.
const SubjectPrefix = "cart.settled."

// Publisher sends a message on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// CartSettled is the payload of a settled-cart event.
type CartSettled struct {
	Key       string             `json:"key"`
	State     cart.MutationState `json:"state"`
	ItemCount int                `json:"itemCount"`
	Cart      *model.Cart        `json:"cart"`
	At        time.Time          `json:"at"`
}

// Notifier forwards every settled cart of the reconcilers it is attached to.
type Notifier struct {
	pub    Publisher
	logger zerolog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewNotifier creates a notifier publishing through pub.
func NewNotifier(pub Publisher, logger zerolog.Logger) *Notifier {
	return &Notifier{
		pub:    pub,
		logger: logger.With().Str("component", "events").Logger(),
		now:    time.Now,
	}
}

// Attach subscribes to r and publishes until r is closed. It matches the
// signature of cart.WithObserver.
func (n *Notifier) Attach(r *cart.Reconciler) {
	ch, _ := r.Subscribe()
	key := r.Key()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for c := range ch {
			n.publish(key, r.State(), c)
		}
	}()
}

// Wait blocks until every attached reconciler has been closed and its last
// event sent.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) publish(key string, state cart.MutationState, c *model.Cart) {
	data, err := json.Marshal(CartSettled{
		Key:       key,
		State:     state,
		ItemCount: c.ItemCount(),
		Cart:      c,
		At:        n.now().UTC(),
	})
	if err != nil {
		n.logger.Error().Err(err).Str("cart_key", key).Msg("failed to encode cart event")
		return
	}

	subject := Subject(key)
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish cart event")
		return
	}
	n.logger.Debug().Str("subject", subject).Int("item_count", c.ItemCount()).Msg("cart event published")
}

// Subject returns the subject for a cart key. Dots and wildcards in the key
// would split or widen the subject, so they are replaced.
func Subject(key string) string {
	return SubjectPrefix + subjectToken.Replace(key)
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Connect dials NATS with reconnect logging.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, error) {
	log := logger.With().Str("component", "nats").Logger()

	nc, err := nats.Connect(url,
		nats.Name("cart-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}
