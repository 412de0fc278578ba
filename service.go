package authuser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Service identifies one of the supported multi-account web properties.
type Service int

const (
	Meet Service = iota
	Photos
	Mail
	Drive
	YouTube

	numServices
)

// Family groups services by the way their URLs carry the account.
type Family int

const (
	// QueryParameter services take the account as an authuser= query parameter.
	QueryParameter Family = iota
	// PathSegment services take the account as a u/<account>/ path segment.
	PathSegment
)

func (f Family) String() string {
	switch f {
	case QueryParameter:
		return "query-parameter"
	case PathSegment:
		return "path-segment"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// RewriteFunc returns url with account injected into it.
type RewriteFunc func(account, url string) string

// MatchRule decides whether a URL belongs to a service. Exactly one of
// HostEquals and URLMatches is set.
type MatchRule struct {
	HostEquals string
	URLMatches *regexp.Regexp
}

// Match reports whether rawURL satisfies the rule. The fragment is ignored
// and URLs that do not parse never match.
func (m MatchRule) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	u.Fragment = ""
	u.RawFragment = ""

	if m.HostEquals != "" {
		return strings.EqualFold(u.Hostname(), m.HostEquals)
	}
	if m.URLMatches != nil {
		return m.URLMatches.MatchString(u.String())
	}
	return false
}

func (m MatchRule) String() string {
	if m.HostEquals != "" {
		return "hostEquals:" + m.HostEquals
	}
	if m.URLMatches != nil {
		return "urlMatches:" + m.URLMatches.String()
	}
	return "<empty>"
}

type registryEntry struct {
	key     string
	family  Family
	rule    MatchRule
	rewrite RewriteFunc
}

// registry is indexed by Service. Its length is fixed at numServices and
// init rejects any service left without an entry.
var registry = [numServices]registryEntry{
	Meet: {
		key:     "Meet",
		family:  QueryParameter,
		rule:    MatchRule{HostEquals: "meet.google.com"},
		rewrite: appendQueryParameter,
	},
	Photos: {
		key:     "Photo",
		family:  PathSegment,
		rule:    MatchRule{URLMatches: regexp.MustCompile(`photos\.google\.com/$`)},
		rewrite: appendPathSegment(""),
	},
	Mail: {
		key:     "Mail",
		family:  PathSegment,
		rule:    MatchRule{URLMatches: regexp.MustCompile(`mail\.google\.com/$`)},
		rewrite: appendPathSegment("mail/"),
	},
	Drive: {
		key:     "Drive",
		family:  PathSegment,
		rule:    MatchRule{URLMatches: regexp.MustCompile(`drive\.google\.com/$`)},
		rewrite: appendPathSegment("drive/"),
	},
	YouTube: {
		key:     "Youtube",
		family:  QueryParameter,
		rule:    MatchRule{HostEquals: "www.youtube.com"},
		rewrite: appendQueryParameter,
	},
}

func init() {
	for s, e := range registry {
		if e.key == "" || e.rewrite == nil || (e.rule.HostEquals == "" && e.rule.URLMatches == nil) {
			panic(fmt.Sprintf("authuser: service %d has no registry entry", s))
		}
	}
}

func appendQueryParameter(account, u string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "authuser=" + account
}

func appendPathSegment(prefix string) RewriteFunc {
	return func(account, u string) string {
		return u + prefix + "u/" + account + "/"
	}
}

func entry(s Service) registryEntry {
	if !s.Valid() {
		panic(fmt.Sprintf("authuser: unknown service %d", int(s)))
	}
	return registry[s]
}

// Services returns every supported service in declaration order.
func Services() []Service {
	out := make([]Service, 0, numServices)
	for s := Service(0); s < numServices; s++ {
		out = append(out, s)
	}
	return out
}

// ParseService returns the service whose storage key equals name, ignoring case.
func ParseService(name string) (Service, error) {
	for s := Service(0); s < numServices; s++ {
		if strings.EqualFold(registry[s].key, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown service %q", name)
}

// Valid reports whether s is one of the enumerated services.
func (s Service) Valid() bool {
	return s >= 0 && s < numServices
}

// Key is the name the service's default account is stored under.
func (s Service) Key() string {
	return entry(s).key
}

func (s Service) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Service(%d)", int(s))
	}
	return registry[s].key
}

// Guarded reports whether events for s pass through the AlreadyRewritten check.
// Only query-parameter services are guarded; path-segment services rewrite
// every matching event.
func (s Service) Guarded() bool {
	return FamilyOf(s) == QueryParameter
}

// MatchRuleFor returns the match rule of s.
func MatchRuleFor(s Service) MatchRule {
	return entry(s).rule
}

// RewriteFor returns the rewrite function of s.
func RewriteFor(s Service) RewriteFunc {
	return entry(s).rewrite
}

// FamilyOf returns the rewrite family of s.
func FamilyOf(s Service) Family {
	return entry(s).family
}

var (
	authuserMarker = regexp.MustCompile(`authuser=\d`)
	embedMarker    = regexp.MustCompile(`/embed`)
)

// AlreadyRewritten reports whether u already carries an account marker or
// points at an embedded player, in which case it must be left alone.
func AlreadyRewritten(u string) bool {
	return authuserMarker.MatchString(u) || embedMarker.MatchString(u)
}
