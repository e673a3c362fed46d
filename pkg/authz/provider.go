package authz

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrUnknownPolicy is returned for a policy name no provider knows.
var ErrUnknownPolicy = errors.New("unknown policy")

// Provider resolves a policy name to the requirements it stands for. A policy
// is satisfied when any of its requirements is.
type Provider interface {
	Policy(name string) ([]Requirement, error)
}

// StaticPolicies is a fixed set of named policies.
type StaticPolicies map[string][]Requirement

// Policy implements Provider
func (s StaticPolicies) Policy(name string) ([]Requirement, error) {
	reqs, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return reqs, nil
}

// NewStaticPolicies builds named policies whose requirements are given as
// encoded policy names.
func NewStaticPolicies(named map[string][]string) (StaticPolicies, error) {
	policies := make(StaticPolicies, len(named))
	for name, encoded := range named {
		if len(encoded) == 0 {
			return nil, fmt.Errorf("policy %q has no requirements", name)
		}
		reqs := make([]Requirement, 0, len(encoded))
		for _, s := range encoded {
			p, err := ParsePolicyName(s)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", name, err)
			}
			reqs = append(reqs, p.Requirement())
		}
		policies[name] = reqs
	}
	return policies, nil
}

// SwappablePolicies serves a set of named policies that can be replaced while
// requests are being authorized, e.g. when the policy file changes.
type SwappablePolicies struct {
	current atomic.Pointer[StaticPolicies]
}

// NewSwappablePolicies starts with initial
func NewSwappablePolicies(initial StaticPolicies) *SwappablePolicies {
	s := &SwappablePolicies{}
	s.Store(initial)
	return s
}

// Store replaces the policies
func (s *SwappablePolicies) Store(policies StaticPolicies) {
	s.current.Store(&policies)
}

// Policy implements Provider
func (s *SwappablePolicies) Policy(name string) ([]Requirement, error) {
	return (*s.current.Load()).Policy(name)
}

// PolicyProvider decodes encoded policy names and hands any other name to a
// fallback provider. Resolved policies are memoised.
type PolicyProvider struct {
	fallback Provider
	logger   logrus.FieldLogger

	mu    sync.RWMutex
	cache map[string][]Requirement
	gen   uint64
}

// NewPolicyProvider creates a provider. fallback may be nil.
func NewPolicyProvider(fallback Provider, logger logrus.FieldLogger) *PolicyProvider {
	return &PolicyProvider{
		fallback: fallback,
		logger:   logger,
		cache:    make(map[string][]Requirement),
	}
}

// Policy resolves name. Malformed encoded names are logged at error level and
// returned as errors; they never fall through to the fallback.
func (p *PolicyProvider) Policy(name string) ([]Requirement, error) {
	p.mu.RLock()
	reqs, ok := p.cache[name]
	gen := p.gen
	p.mu.RUnlock()
	if ok {
		return reqs, nil
	}

	reqs, err := p.resolve(name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	// a Reset during resolve means reqs may come from replaced policies
	if p.gen == gen {
		p.cache[name] = reqs
	}
	p.mu.Unlock()
	return reqs, nil
}

// Reset forgets memoised policies so the next lookup asks the fallback again.
func (p *PolicyProvider) Reset() {
	p.mu.Lock()
	p.cache = make(map[string][]Requirement)
	p.gen++
	p.mu.Unlock()
}

func (p *PolicyProvider) resolve(name string) ([]Requirement, error) {
	policy, err := ParsePolicyName(name)
	if err == nil {
		return []Requirement{policy.Requirement()}, nil
	}

	if !errors.Is(err, ErrNotPolicyName) {
		p.logger.WithError(err).WithField("policy", name).Error("Corrupt policy name")
		return nil, err
	}

	if p.fallback == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p.fallback.Policy(name)
}
