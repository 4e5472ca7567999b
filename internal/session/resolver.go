package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/skyauth/internal/credstore"
	"github.com/nkiryanov/skyauth/internal/identity"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/models"
)

// Identifier is the part of identity client the resolver depends on
type Identifier interface {
	Identify(ctx context.Context, access string) (identity.Identity, error)
	Refresh(ctx context.Context, refresh string) (string, error)
}

// Resolver determines session state from stored tokens.
//
// One attempt runs identify, on 401 refreshes the access token at most once and
// identifies again. The attempt ends in PhaseValid or PhaseDenied. Network calls
// run detached from the caller context, so an abandoned attempt still completes
// and fills the cache.
type Resolver struct {
	store  credstore.Store
	client Identifier
	cache  *identityCache
	logger logger.Logger

	refreshes singleflight.Group

	// Serializes delivery so subscribers see transitions in order
	deliverMu sync.Mutex

	mu          sync.Mutex
	phase       Phase
	state       State
	subscribers []subscriber
	nextID      int
}

type subscriber struct {
	id int
	fn func(Transition)
}

func newResolver(store credstore.Store, client Identifier, cache *identityCache, l logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		client: client,
		cache:  cache,
		logger: l,
		phase:  PhaseNoToken,
		state:  State{Kind: Unauthenticated},
	}
}

// Initial phase derived from the store without network calls
func (r *Resolver) Initial(ctx context.Context) (Phase, error) {
	_, ok, err := r.store.Get(ctx, models.KeyAccessToken)
	if err != nil {
		return PhaseNoToken, fmt.Errorf("failed to read access token: %w", err)
	}
	if !ok {
		return PhaseNoToken, nil
	}
	return PhaseResolving, nil
}

// State returns the outcome of the last transition
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn to be called on every transition
// Calls are sequential and follow transition order. fn must not call Resolve.
func (r *Resolver) Subscribe(fn func(Transition)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.subscribers = append(r.subscribers, subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		for i, s := range r.subscribers {
			if s.id == id {
				r.subscribers = append(r.subscribers[:i:i], r.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Resolve runs one resolution attempt.
// If ctx is done before the attempt ends, Pending with ctx error is returned and the attempt goes on in background.
func (r *Resolver) Resolve(ctx context.Context) State {
	done := make(chan State, 1)
	go func() {
		done <- r.resolve(context.WithoutCancel(ctx))
	}()

	select {
	case state := <-done:
		return state
	case <-ctx.Done():
		return State{Kind: Pending, Err: ctx.Err()}
	}
}

func (r *Resolver) resolve(ctx context.Context) State {
	initial, err := r.Initial(ctx)
	if err != nil {
		return r.begin(PhaseNoToken).deny(err)
	}
	if initial == PhaseNoToken {
		return r.begin(PhaseNoToken).deny(nil)
	}

	at := r.begin(PhaseResolving)
	refreshed := false

	for {
		access, ok, err := r.store.Get(ctx, models.KeyAccessToken)
		if err != nil {
			return at.deny(fmt.Errorf("failed to read access token: %w", err))
		}
		if !ok {
			return at.deny(nil)
		}

		id, err := r.cache.identify(ctx, access, r.client.Identify)
		switch {
		case err != nil:
			r.logger.Warn("Identify failed", "error", err)
			return at.deny(err)
		case !id.NeedsRefresh:
			return at.move(PhaseValid, id.User, nil)
		case refreshed:
			// Second 401 within one attempt, no more refreshes
			return at.deny(nil)
		}

		refresh, ok, err := r.store.Get(ctx, models.KeyRefreshToken)
		if err != nil {
			return at.deny(fmt.Errorf("failed to read refresh token: %w", err))
		}
		if !ok {
			return at.deny(nil)
		}

		at.move(PhaseRecovering, models.User{}, nil)

		if _, err := r.refresh(ctx, refresh); err != nil {
			r.logger.Info("Refresh failed", "error", err)
			return at.deny(err)
		}

		refreshed = true
		at.move(PhaseResolving, models.User{}, nil)
	}
}

// refresh exchanges refresh token for a new access token
// Concurrent calls with the same refresh token share one request
func (r *Resolver) refresh(ctx context.Context, refresh string) (string, error) {
	v, err, _ := r.refreshes.Do(cacheKey("refresh", refresh), func() (any, error) {
		return r.client.Refresh(ctx, refresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// reset moves resolver to PhaseNoToken after credentials were dropped
func (r *Resolver) reset() {
	r.begin(PhaseNoToken)
}

// attempt tracks the phase of one resolution attempt
type attempt struct {
	r     *Resolver
	phase Phase
}

// begin starts an attempt, emitting transition from the last known phase if it differs
func (r *Resolver) begin(p Phase) *attempt {
	r.mu.Lock()
	last := r.phase
	r.mu.Unlock()

	at := &attempt{r: r, phase: last}
	if last != p {
		at.move(p, models.User{}, nil)
	}
	at.phase = p
	return at
}

func (at *attempt) deny(err error) State {
	return at.move(PhaseDenied, models.User{}, err)
}

func (at *attempt) move(to Phase, user models.User, err error) State {
	r := at.r

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	t := Transition{From: at.phase, To: to, State: stateFor(to, user, err)}
	at.phase = to

	r.mu.Lock()
	r.phase = to
	r.state = t.State
	subscribers := make([]subscriber, len(r.subscribers))
	copy(subscribers, r.subscribers)
	r.mu.Unlock()

	r.logger.Debug("Session transition", "from", t.From.String(), "to", t.To.String())

	for _, s := range subscribers {
		s.fn(t)
	}

	return t.State
}
