// Package watch provides the publish/subscribe pieces behind observable
// queries: keyed change signals, a latest-value holder, and query feeds
// that re-run a loader whenever their key changes.
//
// All channels carry latest-value semantics: a slow reader never blocks a
// publisher, it simply sees the most recent value when it reads.
package watch

import (
	"context"
	"sync"
)

// offer delivers v on a channel of capacity one, replacing any value the
// reader has not picked up yet. Callers must serialize offers per channel.
func offer[T any](c chan T, v T) {
	for {
		select {
		case c <- v:
			return
		default:
		}
		select {
		case <-c:
		default:
		}
	}
}

// Hub fans out change signals to subscribers of a key.
type Hub[K comparable] struct {
	mu   sync.Mutex
	subs map[K]map[chan struct{}]struct{}
}

func NewHub[K comparable]() *Hub[K] {
	return &Hub[K]{subs: make(map[K]map[chan struct{}]struct{})}
}

// Subscribe registers interest in key. The returned channel receives a
// coalesced signal after every Notify for key; unsubscribe releases it.
func (h *Hub[K]) Subscribe(key K) (signals <-chan struct{}, unsubscribe func()) {
	c := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[key] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], c)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
		})
	}
}

// Notify signals every subscriber of key.
func (h *Hub[K]) Notify(key K) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[key] {
		signal(c)
	}
}

// NotifyAll signals every subscriber of every key.
func (h *Hub[K]) NotifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for c := range set {
			signal(c)
		}
	}
}

// Keys returns the keys that currently have subscribers.
func (h *Hub[K]) Keys() []K {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]K, 0, len(h.subs))
	for k := range h.subs {
		keys = append(keys, k)
	}
	return keys
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// Value holds the latest value of T and pushes every change to its
// subscribers.
type Value[T any] struct {
	mu   sync.Mutex
	v    T
	subs map[*Subscription[T]]struct{}
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[*Subscription[T]]struct{})}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.v
}

// Set stores x and publishes it.
func (v *Value[T]) Set(x T) {
	v.Update(func(T) T { return x })
}

// Update replaces the value with fn(current) atomically and publishes it.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.v = fn(v.v)
	for s := range v.subs {
		offer(s.c, v.v)
	}
	return v.v
}

// Subscribe returns a subscription that immediately holds the current value.
func (v *Value[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{c: make(chan T, 1)}
	s.cancel = func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[s]; ok {
			delete(v.subs, s)
			close(s.c)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs[s] = struct{}{}
	s.c <- v.v
	return s
}

// Subscription is a cancellable handle on a Value.
type Subscription[T any] struct {
	c      chan T
	cancel func()
	once   sync.Once
}

// C receives the latest value. It is closed by Cancel.
func (s *Subscription[T]) C() <-chan T {
	return s.c
}

func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
}

// Result is one emission of a Feed.
type Result[T any] struct {
	Value T
	Err   error
}

// Feed is a running observable query.
type Feed[T any] struct {
	c      chan Result[T]
	cancel context.CancelFunc
	done   chan struct{}
}

// Observe runs load once right away and again after every signal for key
// on hub, publishing each result on the returned Feed. The subscription is
// taken before the first load so no change in between is missed.
func Observe[K comparable, T any](ctx context.Context, hub *Hub[K], key K, load func(context.Context) (T, error)) *Feed[T] {
	ctx, cancel := context.WithCancel(ctx)
	signals, unsubscribe := hub.Subscribe(key)

	f := &Feed[T]{
		c:      make(chan Result[T], 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(f.done)
		defer close(f.c)
		defer unsubscribe()

		for {
			v, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			offer(f.c, Result[T]{Value: v, Err: err})

			select {
			case <-ctx.Done():
				return
			case <-signals:
			}
		}
	}()

	return f
}

// C receives query results. It is closed once the feed stops.
func (f *Feed[T]) C() <-chan Result[T] {
	return f.c
}

// Cancel stops the feed and waits for its goroutine to exit.
func (f *Feed[T]) Cancel() {
	f.cancel()
	<-f.done
}
