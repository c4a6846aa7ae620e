package cart

import "cart-gateway/internal/model"

// Subscribe returns a channel that receives every settled cart and a func
// that stops the subscription. A subscriber that falls behind only sees the
// latest settled cart. The channel is closed by cancel or Close.
func (r *Reconciler) Subscribe() (<-chan *model.Cart, func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	ch := make(chan *model.Cart, 1)
	if r.closed {
		close(ch)
		return ch, func() {}
	}

	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	return ch, func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
}

// Close ends every subscription. The reconciler stays usable.
func (r *Reconciler) Close() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

func (r *Reconciler) publish(cart *model.Cart) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	for _, ch := range r.subs {
		cart := cart.Clone()
		select {
		case ch <- cart:
			continue
		default:
		}
		// drop the stale snapshot and replace it
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cart:
		default:
		}
	}
}
