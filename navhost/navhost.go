// Package navhost serves navigation events over HTTP.
//
// A browser is pointed at GET /navigate?url=<target> (as a bookmarklet or a
// search keyword). Every request becomes one navigation event on a fresh tab:
// subscriptions whose rule matches the target are called, and the response
// redirects to wherever the tab was last sent, or to the target unchanged.
package navhost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/hashicorp/go-uuid"

	"github.com/mindtastic/authuser/interceptor"
	"github.com/mindtastic/authuser/log"
)

// Ensure that Host implements both sides of the navigation contract
var (
	_ interceptor.EventSource = (*Host)(nil)
	_ interceptor.TabHost     = (*Host)(nil)
)

// ErrUnknownTab is returned by UpdateTab for an ID that is not the active tab.
var ErrUnknownTab = errors.New("unknown tab")

// Host is an HTTP navigation host.
type Host struct {
	mu   sync.RWMutex
	subs []interceptor.Subscription
}

// New returns a Host without subscriptions.
func New() *Host {
	return &Host{}
}

// Subscribe adds sub. Subscriptions are expected at startup, but adding one
// while serving is safe.
func (h *Host) Subscribe(sub interceptor.Subscription) error {
	if sub.Handle == nil {
		return fmt.Errorf("subscription for %s has no handler", sub.Service)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, sub)
	return nil
}

func (h *Host) matching(target string) []interceptor.Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []interceptor.Subscription
	for _, s := range h.subs {
		if s.Rule.Match(target) {
			out = append(out, s)
		}
	}
	return out
}

type tab struct {
	mu  sync.Mutex
	id  string
	url string
}

type tabKey struct{}

func withTab(ctx context.Context, t *tab) context.Context {
	return context.WithValue(ctx, tabKey{}, t)
}

func tabFrom(ctx context.Context) (*tab, bool) {
	t, ok := ctx.Value(tabKey{}).(*tab)
	return t, ok
}

// ActiveTab returns the tab of the request carried by ctx.
func (h *Host) ActiveTab(ctx context.Context) (interceptor.Tab, error) {
	t, ok := tabFrom(ctx)
	if !ok {
		return interceptor.Tab{}, interceptor.ErrNoActiveTab
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return interceptor.Tab{ID: t.id, URL: t.url}, nil
}

// UpdateTab points the request's tab at u.
func (h *Host) UpdateTab(ctx context.Context, id string, u string) (interceptor.Tab, error) {
	t, ok := tabFrom(ctx)
	if !ok || t.id != id {
		return interceptor.Tab{}, fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.url = u
	return interceptor.Tab{ID: t.id, URL: t.url}, nil
}

// Navigate delivers a navigation to target and returns where the tab ended up.
func (h *Host) Navigate(ctx context.Context, target string) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("error generating tab id: %w", err)
	}
	t := &tab{id: id, url: target}
	ctx = withTab(ctx, t)

	for _, s := range h.matching(target) {
		if err := s.Handle(ctx, target); err != nil {
			return "", fmt.Errorf("error handling navigation for %s: %w", s.Service, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url, nil
}

// ServeHTTP handles GET /navigate?url=<target>.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "invalid method", http.StatusMethodNotAllowed)
		return
	}

	target := r.URL.Query().Get("url")
	if err := validateTarget(target); err != nil {
		log.Debugf("rejected navigation target %q: %v", target, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dest, err := h.Navigate(r.Context(), target)
	if err != nil {
		log.Errorf("error navigating to %s: %v", target, err)
		http.Error(w, "could not resolve default account", http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

func validateTarget(target string) error {
	if target == "" {
		return errors.New("missing url parameter")
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}
