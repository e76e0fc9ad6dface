package auth

import (
	"sort"
	"strings"
)

// ScopeSet is a set of scope names. Matching is exact and case-sensitive.
type ScopeSet map[string]struct{}

// NewScopeSet builds a set from names, skipping empty strings.
func NewScopeSet(names ...string) ScopeSet {
	set := make(ScopeSet, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// ParseScopes splits a space-delimited scope claim.
func ParseScopes(claim string) ScopeSet {
	return NewScopeSet(strings.Split(claim, " ")...)
}

// ScopesFromClaim accepts the scope claim as decoded from JSON: a
// space-delimited string or an array of strings. Anything else is empty.
func ScopesFromClaim(v interface{}) ScopeSet {
	switch s := v.(type) {
	case string:
		return ParseScopes(s)
	case []interface{}:
		names := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				names = append(names, str)
			}
		}
		return NewScopeSet(names...)
	case []string:
		return NewScopeSet(s...)
	}
	return ScopeSet{}
}

// Has checks if the set contains scope
func (s ScopeSet) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// ContainsAll reports whether every scope in required is in s.
func (s ScopeSet) ContainsAll(required ScopeSet) bool {
	for scope := range required {
		if !s.Has(scope) {
			return false
		}
	}
	return true
}

// Sorted returns the scopes in lexical order.
func (s ScopeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

func (s ScopeSet) String() string {
	return strings.Join(s.Sorted(), " ")
}

// Policy is the per-function authorization requirement. An empty policy
// admits any authenticated caller.
type Policy struct {
	RequiredScopes ScopeSet
}

// RequireScopes builds a policy from scope names.
func RequireScopes(scopes ...string) Policy {
	return Policy{RequiredScopes: NewScopeSet(scopes...)}
}

// Allows reports whether a caller holding granted satisfies the policy.
func (p Policy) Allows(granted ScopeSet) bool {
	if len(p.RequiredScopes) == 0 {
		return true
	}
	return granted.ContainsAll(p.RequiredScopes)
}

// Authorize checks a verified token against the policy.
func (p Policy) Authorize(token *DecodedToken) error {
	if token == nil {
		return ErrInvalidToken
	}
	if !p.Allows(token.GrantedScopes()) {
		return ErrInsufficientScope
	}
	return nil
}
