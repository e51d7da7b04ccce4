// Package emailaddr decides which addresses may receive verification codes
// and produces the normalized form used as the store key.
package emailaddr

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	formatRe  = regexp.MustCompile(`^[a-zA-Z0-9]+([-_.][a-zA-Z0-9]+)*@([a-zA-Z0-9]+(-[a-zA-Z0-9]+)*\.)+[a-zA-Z]{2,}$`)
	numericRe = regexp.MustCompile(`^\d{5,11}$`)
	handleRe  = regexp.MustCompile(`^[a-z][a-z0-9._-]*$`)
)

// Reason identifies why an address was rejected.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonEmpty            Reason = "empty"
	ReasonLength           Reason = "length"
	ReasonFormat           Reason = "format"
	ReasonLocalPart        Reason = "local_part"
	ReasonDomainNotAllowed Reason = "domain_not_allowed"
)

// Kind is the shape of an accepted local part.
type Kind string

const (
	KindUnknown Kind = ""
	KindNumeric Kind = "numeric"
	KindHandle  Kind = "handle"
)

// Policy bounds which addresses are accepted.
type Policy struct {
	MinLength      int
	MaxLength      int
	AllowedDomains []string
}

// Result is the verdict for one address. Normalized and Kind are set only when Valid.
type Result struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"email,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`
	Reason     Reason `json:"reason,omitempty"`
	Message    string `json:"message"`
}

// Classifier validates addresses against a Policy. It holds no mutable state.
type Classifier struct {
	policy  Policy
	domains []string
}

func NewClassifier(p Policy) *Classifier {
	domains := make([]string, 0, len(p.AllowedDomains))
	for _, d := range p.AllowedDomains {
		domains = append(domains, strings.ToLower(strings.TrimSpace(d)))
	}
	return &Classifier{policy: p, domains: domains}
}

// Normalize lower-cases and trims an address. It is idempotent.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Classify runs the checks in order: presence, length, general syntax,
// local-part shape, domain allow-list.
func (c *Classifier) Classify(address string) Result {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return reject(ReasonEmpty, "email address is required")
	}

	if n := utf8.RuneCountInString(trimmed); n < c.policy.MinLength || n > c.policy.MaxLength {
		return reject(ReasonLength, fmt.Sprintf("email address must be %d-%d characters long", c.policy.MinLength, c.policy.MaxLength))
	}

	if !formatRe.MatchString(trimmed) {
		return reject(ReasonFormat, "invalid email format")
	}

	normalized := strings.ToLower(trimmed)
	local, domain, _ := strings.Cut(normalized, "@")

	kind := localPartKind(local)
	if kind == KindUnknown {
		return reject(ReasonLocalPart, "account name must be a 5-11 digit number or start with a letter")
	}

	if !slices.Contains(c.domains, domain) {
		return reject(ReasonDomainNotAllowed, "only the following email domains are accepted: "+strings.Join(c.domains, ", "))
	}

	return Result{Valid: true, Normalized: normalized, Kind: kind, Message: "email address accepted"}
}

// AllowedDomains returns the configured allow-list.
func (c *Classifier) AllowedDomains() []string {
	return slices.Clone(c.domains)
}

func localPartKind(local string) Kind {
	switch {
	case numericRe.MatchString(local):
		return KindNumeric
	case handleRe.MatchString(local):
		return KindHandle
	default:
		return KindUnknown
	}
}

func reject(reason Reason, msg string) Result {
	return Result{Reason: reason, Message: msg}
}
