// Package interceptor rewrites navigations to supported services so that they
// land on the configured default account.
//
// A navigation host delivers events through an EventSource and exposes the
// browser's tabs through a TabHost. Every event is handled independently: the
// Interceptor keeps no state between events, so hosts may call Handle from as
// many goroutines as they like.
package interceptor

import (
	"context"
	"errors"
	"fmt"

	"github.com/mindtastic/authuser"
	"github.com/mindtastic/authuser/log"
)

// ErrNoActiveTab is returned by a TabHost when no tab is both active and in
// the last focused window.
var ErrNoActiveTab = errors.New("no active tab")

// Handler receives the target URL of a navigation event.
type Handler func(ctx context.Context, url string) error

// Subscription asks an EventSource to deliver every navigation whose URL
// satisfies Rule to Handle.
type Subscription struct {
	Service authuser.Service
	Rule    authuser.MatchRule
	Handle  Handler
}

// An EventSource delivers navigation events. Filtering against the
// subscription's rule is the source's job.
type EventSource interface {
	Subscribe(Subscription) error
}

// Tab is a browser tab as reported by a TabHost.
type Tab struct {
	ID  string
	URL string
}

// A TabHost navigates browser tabs.
type TabHost interface {
	// ActiveTab returns the tab that is active in the last focused window,
	// or ErrNoActiveTab.
	ActiveTab(ctx context.Context) (Tab, error)
	// UpdateTab loads url in the tab identified by id.
	UpdateTab(ctx context.Context, id string, url string) (Tab, error)
}

// Outcome describes what Handle did with an event.
type Outcome int

const (
	// Skipped means the URL already carried an account marker.
	Skipped Outcome = iota
	// Redirected means the active tab was sent to the rewritten URL.
	Redirected
	// NoActiveTab means the URL was rewritten but there was no tab to update.
	NoActiveTab
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Redirected:
		return "redirected"
	case NoActiveTab:
		return "no-active-tab"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Interceptor rewrites navigation events using the service registry.
type Interceptor struct {
	store authuser.Store
	tabs  TabHost
}

// New returns an Interceptor resolving accounts from store and redirecting
// through tabs.
func New(store authuser.Store, tabs TabHost) *Interceptor {
	return &Interceptor{
		store: store,
		tabs:  tabs,
	}
}

// registrationGroups lists the services in the order they are subscribed:
// the guarded query-parameter family first, then the path-segment family.
var registrationGroups = [][]authuser.Service{
	{authuser.Meet, authuser.YouTube},
	{authuser.Photos, authuser.Mail, authuser.Drive},
}

// Subscriptions returns one subscription per service, bound to this Interceptor.
func (i *Interceptor) Subscriptions() []Subscription {
	var subs []Subscription
	for _, group := range registrationGroups {
		for _, svc := range group {
			svc := svc
			subs = append(subs, Subscription{
				Service: svc,
				Rule:    authuser.MatchRuleFor(svc),
				Handle: func(ctx context.Context, url string) error {
					_, err := i.Handle(ctx, svc, url)
					return err
				},
			})
		}
	}
	return subs
}

// Register subscribes every service with src. It is meant to be called once
// at startup.
func (i *Interceptor) Register(src EventSource) error {
	for _, sub := range i.Subscriptions() {
		if err := src.Subscribe(sub); err != nil {
			return fmt.Errorf("error subscribing %s: %w", sub.Service, err)
		}
		log.Debugf("subscribed %s with %s", sub.Service, sub.Rule)
	}
	return nil
}

// Handle processes one navigation of svc to url. The URL is assumed to have
// been matched against svc's rule already.
func (i *Interceptor) Handle(ctx context.Context, svc authuser.Service, url string) (Outcome, error) {
	if svc.Guarded() && authuser.AlreadyRewritten(url) {
		return Skipped, nil
	}

	account, err := authuser.DefaultAccount(ctx, i.store, svc)
	if err != nil {
		return 0, err
	}

	dest := authuser.RewriteFor(svc)(account, url)
	log.Infof("Redirected from %s to %s", url, dest)

	tab, err := i.tabs.ActiveTab(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveTab) {
			log.Debugf("no active tab to redirect to %s", dest)
			return NoActiveTab, nil
		}
		return 0, fmt.Errorf("error querying active tab: %w", err)
	}

	if _, err := i.tabs.UpdateTab(ctx, tab.ID, dest); err != nil {
		return 0, fmt.Errorf("error updating tab %s: %w", tab.ID, err)
	}
	return Redirected, nil
}
