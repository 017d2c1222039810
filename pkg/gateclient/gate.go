package gateclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// State is the position of a module gate in the activate / open flow.
type State string

const (
	StateUnknown          State = "unknown"
	StateChecking         State = "checking"
	StateNotActivated     State = "not_activated"
	StateActivating       State = "activating"
	StateActivated        State = "activated"
	StateActivationFailed State = "activation_failed"
	StateOpening          State = "opening"
	StateOpened           State = "opened"
	StateOpenFailed       State = "open_failed"
)

// User identifies the current visitor. A Nil ID means anonymous.
type User struct {
	ID    uuid.UUID
	Email string
}

// Module is the catalog entry a gate guards.
type Module struct {
	Slug        string
	Title       string
	Price       int
	FallbackURL string
}

// Navigator opens a target URL, typically by handing it to the embedding UI.
type Navigator func(ctx context.Context, target string) error

// ModuleGate runs the activation flow for one module and one user. It is the
// state behind a module card: check on show, activate on click, open on
// demand. All methods are safe for concurrent use.
type ModuleGate struct {
	mu       sync.Mutex
	client   *Client
	cache    *SessionCache
	module   Module
	user     User
	navigate Navigator
	logger   *slog.Logger

	state   State
	lastErr error
	closed  bool
}

// NewModuleGate creates a gate in StateUnknown.
func NewModuleGate(client *Client, cache *SessionCache, module Module, user User, navigate Navigator, logger *slog.Logger) *ModuleGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModuleGate{
		client:   client,
		cache:    cache,
		module:   module,
		user:     user,
		navigate: navigate,
		logger:   logger,
		state:    StateUnknown,
	}
}

// State returns the current gate state.
func (g *ModuleGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Err returns the error behind the last failure state, if any.
func (g *ModuleGate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// Close detaches the gate, typically when the user navigates away. Later
// state transitions become no-ops so a slow response cannot repaint a card
// that is gone.
func (g *ModuleGate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// setState applies a transition unless the gate is closed. It reports whether
// the transition took effect.
func (g *ModuleGate) setState(state State, err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.state = state
	g.lastErr = err
	return true
}

// Refresh resolves the gate to Activated or NotActivated. The session cache
// answers first; only a miss goes to the server. Anonymous users resolve to
// NotActivated without any network call. A failing check also resolves to
// NotActivated, so a broken read path can only under-report access.
func (g *ModuleGate) Refresh(ctx context.Context) State {
	if g.user.ID == uuid.Nil {
		g.setState(StateNotActivated, nil)
		return g.State()
	}
	if g.cache != nil && g.cache.Contains(g.module.Slug) {
		g.setState(StateActivated, nil)
		return g.State()
	}

	g.setState(StateChecking, nil)
	active, err := g.client.CheckActivation(ctx, g.user.ID, g.module.Slug)
	if err != nil {
		g.logger.Warn("activation check failed", "module", g.module.Slug, "error", err)
		g.setState(StateNotActivated, err)
		return g.State()
	}
	if active {
		if g.cache != nil {
			g.cache.Add(g.module.Slug)
		}
		g.setState(StateActivated, nil)
	} else {
		g.setState(StateNotActivated, nil)
	}
	return g.State()
}

// Activate unlocks the module for the user. Already-activated gates succeed
// without a server call. On success the session cache gains the module
// immediately.
func (g *ModuleGate) Activate(ctx context.Context) error {
	if err := g.requireUser(); err != nil {
		return err
	}
	if g.State() == StateActivated {
		return nil
	}

	g.setState(StateActivating, nil)
	_, err := g.client.Activate(ctx, g.user.ID, g.user.Email, g.module.Slug, g.module.Price)
	if err != nil {
		g.setState(StateActivationFailed, err)
		return err
	}
	if g.cache != nil {
		g.cache.Add(g.module.Slug)
	}
	g.setState(StateActivated, nil)
	return nil
}

// Open fetches a fresh access grant and navigates to the module. Each call
// requests a new grant. Targets are tried in order, the signed URL first and
// the module fallback second; the first to navigate wins. When grant issuance
// itself is down, the fallback URL still opens, without a token.
func (g *ModuleGate) Open(ctx context.Context) error {
	if err := g.requireUser(); err != nil {
		return err
	}

	g.setState(StateOpening, nil)
	grant, err := g.client.AccessToken(ctx, g.user.ID, g.user.Email, g.module.Slug)
	if err != nil {
		if errors.Is(err, ErrNotActivated) {
			if g.cache != nil {
				g.cache.Remove(g.module.Slug)
			}
			g.setState(StateNotActivated, err)
			return err
		}
		if g.module.FallbackURL == "" {
			g.setState(StateOpenFailed, err)
			return err
		}
		g.logger.Warn("access grant failed, trying fallback", "module", g.module.Slug, "error", err)
		grant = &Grant{}
	}

	var lastErr error
	for _, target := range g.openTargets(grant) {
		if err := g.navigate(ctx, target); err != nil {
			g.logger.Warn("navigation failed", "module", g.module.Slug, "target", target, "error", err)
			lastErr = err
			continue
		}
		g.setState(StateOpened, nil)
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no target to open module %q", g.module.Slug)
	}
	g.setState(StateOpenFailed, lastErr)
	return lastErr
}

// openTargets builds the ordered list of URLs to try for a grant.
func (g *ModuleGate) openTargets(grant *Grant) []string {
	var targets []string
	if grant.URL != "" {
		targets = append(targets, grant.URL)
	}
	if g.module.FallbackURL != "" && g.module.FallbackURL != grant.URL {
		target := g.module.FallbackURL
		if grant.Token != "" {
			target = appendToken(target, grant.Token)
		}
		targets = append(targets, target)
	}
	return targets
}

func (g *ModuleGate) requireUser() error {
	if g.user.ID != uuid.Nil {
		return nil
	}
	return &AuthRequiredError{RedirectTo: "/login?redirect=/card/" + g.module.Slug}
}

// appendToken adds the token query parameter to a URL.
func appendToken(target, token string) string {
	if strings.Contains(target, "?") {
		return target + "&token=" + url.QueryEscape(token)
	}
	return target + "?token=" + url.QueryEscape(token)
}
