package middleware

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RouteClass is the access class of a request path
type RouteClass int

const (
	// Protected paths require a session. Anything not listed is Protected.
	Protected RouteClass = iota
	// Public paths are reachable with or without a session
	Public
	// AuthOnly paths are for anonymous visitors only (login, register)
	AuthOnly
)

// String returns the metric/log label of the class
func (c RouteClass) String() string {
	switch c {
	case Public:
		return "public"
	case AuthOnly:
		return "auth_only"
	default:
		return "protected"
	}
}

// RoutePolicy lists the non-protected paths.
type RoutePolicy struct {
	PublicPaths    []string `yaml:"public_paths"`
	PublicPrefixes []string `yaml:"public_prefixes"`
	AuthOnlyPaths  []string `yaml:"auth_only_paths"`
}

// DefaultRoutePolicy returns the built-in allow-lists.
func DefaultRoutePolicy() RoutePolicy {
	return RoutePolicy{
		PublicPaths: []string{
			"/",
			"/login",
			"/register",
			"/forgot-password",
			"/reset-password",
			"/pricing",
			"/api/webhooks/stripe",
		},
		PublicPrefixes: []string{"/api/public", "/api/auth"},
		AuthOnlyPaths:  []string{"/login", "/register"},
	}
}

// LoadRoutePolicy reads a YAML route policy. An empty filename returns the default policy.
func LoadRoutePolicy(filename string) (RoutePolicy, error) {
	if filename == "" {
		return DefaultRoutePolicy(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return RoutePolicy{}, fmt.Errorf("failed to read route policy: %w", err)
	}

	var policy RoutePolicy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil {
		return RoutePolicy{}, fmt.Errorf("failed to parse route policy %s: %w", filename, err)
	}

	for _, list := range [][]string{policy.PublicPaths, policy.PublicPrefixes, policy.AuthOnlyPaths} {
		for _, p := range list {
			if !strings.HasPrefix(p, "/") {
				return RoutePolicy{}, fmt.Errorf("route policy path %q must be absolute", p)
			}
		}
	}
	return policy, nil
}

// Classifier maps request paths to route classes. It is immutable once built
// and safe for concurrent use.
type Classifier struct {
	public   map[string]struct{}
	prefixes []string
	authOnly map[string]struct{}
}

// NewClassifier builds a classifier from a policy
func NewClassifier(policy RoutePolicy) *Classifier {
	c := &Classifier{
		public:   make(map[string]struct{}, len(policy.PublicPaths)),
		authOnly: make(map[string]struct{}, len(policy.AuthOnlyPaths)),
	}
	for _, p := range policy.PublicPaths {
		c.public[cleanPath(p)] = struct{}{}
	}
	for _, p := range policy.AuthOnlyPaths {
		c.authOnly[cleanPath(p)] = struct{}{}
	}
	for _, p := range policy.PublicPrefixes {
		c.prefixes = append(c.prefixes, cleanPath(p))
	}
	return c
}

// Classify returns the class of p. AuthOnly wins over the public lists.
func (c *Classifier) Classify(p string) RouteClass {
	p = cleanPath(p)

	if _, ok := c.authOnly[p]; ok {
		return AuthOnly
	}
	if _, ok := c.public[p]; ok {
		return Public
	}
	for _, prefix := range c.prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return Public
		}
	}
	return Protected
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsCanonical reports whether p is already in cleaned form. A single trailing
// slash is allowed.
func IsCanonical(p string) bool {
	clean := cleanPath(p)
	return p == clean || p == clean+"/"
}

var excludedPaths = regexp.MustCompile(`^/(static/|assets/|_next/static/|_next/image(/|$)|favicon\.ico$)`)

// IsExcluded reports whether the gateway skips p entirely (static assets).
// Paths with dot segments or repeated slashes are never excluded.
func IsExcluded(p string) bool {
	return IsCanonical(p) && excludedPaths.MatchString(p)
}
