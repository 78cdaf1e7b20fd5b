// Package appcontext loads what the sign-in and sign-up pages need about the
// requesting application: its public record and the password policy.
package appcontext

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smallbiznis/webauth/internal/accounts"
	"github.com/smallbiznis/webauth/internal/model"
	"github.com/smallbiznis/webauth/pkg/cache"
	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/metrics"
	"github.com/smallbiznis/webauth/pkg/password"
)

const rulesKey = "password:rules"

func applicationKey(clientID string) string {
	return "app:" + clientID
}

// RuleSource tells where the rules of a policy came from.
type RuleSource string

const (
	SourceRemote  RuleSource = "remote"
	SourceConfig  RuleSource = "config"
	SourceDefault RuleSource = "default"
)

// AccountsAPI is the part of the accounts client the service uses.
type AccountsAPI interface {
	GetApplication(ctx context.Context, clientID string) (*model.Application, error)
	ListPasswordRules(ctx context.Context) ([]password.Rule, error)
}

// AppContext is the application and password policy for one page request.
type AppContext struct {
	ClientID    string
	Application *model.Application
	// ApplicationErr is set when the application could not be loaded. The
	// policy is still usable.
	ApplicationErr error
	Policy         *password.Policy
	Source         RuleSource
}

// Rules returns the policy rules in order.
func (a *AppContext) Rules() []password.Rule {
	return a.Policy.Rules()
}

type Config struct {
	// Rules are used when the accounts API serves none. Empty means
	// password.DefaultRules.
	Rules        []password.Rule
	MatchTimeout time.Duration
	TTL          time.Duration
}

type Service struct {
	api     AccountsAPI
	store   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
	opts    []password.Option

	fallback       *password.Policy
	fallbackSource RuleSource

	mu       sync.Mutex
	compiled map[string]*password.Policy
}

// NewService compiles the fallback rules; an invalid fallback rule is an
// error.
func NewService(api AccountsAPI, store cache.Store, cfg Config, m *metrics.Metrics) (*Service, error) {
	var opts []password.Option
	if cfg.MatchTimeout > 0 {
		opts = append(opts, password.WithMatchTimeout(cfg.MatchTimeout))
	}

	rules, source := cfg.Rules, SourceConfig
	if len(rules) == 0 {
		rules, source = password.DefaultRules(), SourceDefault
	}

	fallback, err := password.Compile(rules, opts...)
	if err != nil {
		return nil, apperrors.Configuration("invalid configured password rule", err)
	}

	return &Service{
		api:            api,
		store:          store,
		ttl:            cfg.TTL,
		metrics:        m,
		opts:           opts,
		fallback:       fallback,
		fallbackSource: source,
		compiled:       make(map[string]*password.Policy),
	}, nil
}

// Load returns the application context for clientID. An empty clientID
// loads only the policy.
func (s *Service) Load(ctx context.Context, clientID string) (*AppContext, error) {
	policy, source, err := s.Policy(ctx)
	if err != nil {
		return nil, err
	}

	ac := &AppContext{ClientID: clientID, Policy: policy, Source: source}
	if clientID == "" {
		return ac, nil
	}

	ac.Application, ac.ApplicationErr = s.Application(ctx, clientID)
	return ac, nil
}

// Application fetches the application through the cache.
func (s *Service) Application(ctx context.Context, clientID string) (*model.Application, error) {
	key := applicationKey(clientID)

	var app model.Application
	if s.lookup(ctx, "application", key, &app) {
		return &app, nil
	}

	fetched, err := s.api.GetApplication(ctx, clientID)
	switch {
	case errors.Is(err, accounts.ErrApplicationNotFound):
		return nil, apperrors.NotFound("application", err)
	case errors.Is(err, accounts.ErrUnavailable):
		return nil, apperrors.Unavailable("accounts", err)
	case err != nil:
		return nil, apperrors.Internal(err)
	}

	s.save(ctx, key, fetched)
	return fetched, nil
}

// Policy returns the compiled password policy: the accounts API rules when
// served, else the configured rules, else the default rules.
func (s *Service) Policy(ctx context.Context) (*password.Policy, RuleSource, error) {
	var rules []password.Rule
	if !s.lookup(ctx, "rules", rulesKey, &rules) {
		fetched, err := s.fetchRules(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to fetch password rules, using fallback rules")
			return s.fallback, s.fallbackSource, nil
		}
		if err := s.storeRules(ctx, fetched); err != nil {
			log.Error().Err(err).Msg("accounts API served an invalid password rule")
			return nil, "", err
		}
		rules = fetched
	}

	if len(rules) == 0 {
		return s.fallback, s.fallbackSource, nil
	}
	policy, err := s.compile(rules)
	if err != nil {
		return nil, "", apperrors.Configuration("invalid password rule", err)
	}
	return policy, SourceRemote, nil
}

// RefreshRules fetches the rules from the accounts API and replaces the cached
// copy.
func (s *Service) RefreshRules(ctx context.Context) (int, error) {
	rules, err := s.fetchRules(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.storeRules(ctx, rules); err != nil {
		return 0, err
	}
	return len(rules), nil
}

// storeRules caches rules once they compile. Rules that do not compile are
// never cached.
func (s *Service) storeRules(ctx context.Context, rules []password.Rule) error {
	if len(rules) > 0 {
		if _, err := s.compile(rules); err != nil {
			return apperrors.Configuration("invalid password rule", err)
		}
	}
	s.save(ctx, rulesKey, rules)
	return nil
}

// fetchRules maps an endpoint that does not serve rules to an empty list.
func (s *Service) fetchRules(ctx context.Context) ([]password.Rule, error) {
	rules, err := s.api.ListPasswordRules(ctx)
	if errors.Is(err, accounts.ErrRulesNotServed) {
		return []password.Rule{}, nil
	}
	return rules, err
}

func (s *Service) compile(rules []password.Rule) (*password.Policy, error) {
	var b strings.Builder
	for _, r := range rules {
		b.WriteString(r.Label)
		b.WriteByte(0)
		b.WriteString(r.Pattern)
		b.WriteByte(0)
	}
	key := b.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.compiled[key]; ok {
		return p, nil
	}
	p, err := password.Compile(rules, s.opts...)
	if err != nil {
		return nil, err
	}
	s.compiled[key] = p
	return p, nil
}

func (s *Service) lookup(ctx context.Context, kind, key string, dst interface{}) bool {
	found, err := s.store.Get(ctx, key, dst)
	result := "miss"
	switch {
	case err != nil:
		result = "error"
		log.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
	case found:
		result = "hit"
	}
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(kind, result).Inc()
	}
	return found && err == nil
}

func (s *Service) save(ctx context.Context, key string, value interface{}) {
	if err := s.store.Set(ctx, key, value, s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to cache value")
	}
}
