package matching

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/resilience"
	"github.com/sells-group/lender-match/internal/scorer"
)

// ApplicationSource provides stored applications by id.
type ApplicationSource interface {
	GetApplication(ctx context.Context, id string) (*model.Application, error)
}

// PolicySource provides the current set of active policy records.
type PolicySource interface {
	ActivePolicies(ctx context.Context) ([]model.PolicyRecord, error)
}

// ResultCache stores computed match results. Implementations must treat a
// miss as (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) ([]model.MatchResult, bool, error)
	Set(ctx context.Context, key string, results []model.MatchResult) error
}

// Observer receives run-level measurements.
type Observer interface {
	ObserveRun(outcome string, duration time.Duration, results []model.MatchResult)
	ObserveCacheLookup(hit bool)
}

// Run outcomes reported to the Observer.
const (
	OutcomeSuccess         = "success"
	OutcomeNotFound        = "not_found"
	OutcomeInvalidSnapshot = "invalid_snapshot"
	OutcomeConfiguration   = "configuration_error"
	OutcomeEvaluation      = "evaluation_error"
	OutcomeError           = "error"
)

// Service loads a run's inputs from its sources and evaluates them.
type Service struct {
	apps     ApplicationSource
	policies PolicySource
	engine   *Engine
	retry    resilience.RetryConfig
	cache    ResultCache
	observer Observer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables result caching.
func WithCache(c ResultCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithObserver sets the run observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithRetry overrides the retry policy used when reading the sources.
func WithRetry(cfg resilience.RetryConfig) ServiceOption {
	return func(s *Service) { s.retry = cfg }
}

// NewService creates a Service.
func NewService(apps ApplicationSource, policies PolicySource, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		apps:     apps,
		policies: policies,
		engine:   engine,
		retry:    resilience.StoreRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Match evaluates the stored application id against every active policy.
// The returned run has no ID; persisting it is the caller's choice.
func (s *Service) Match(ctx context.Context, id string) (*model.MatchRun, error) {
	start := time.Now()
	run, err := s.match(ctx, id)
	if s.observer != nil {
		var results []model.MatchResult
		if run != nil {
			results = run.Results
		}
		s.observer.ObserveRun(Outcome(err), time.Since(start), results)
	}
	return run, err
}

func (s *Service) match(ctx context.Context, id string) (*model.MatchRun, error) {
	log := zap.L().With(zap.String("application_id", id))

	retry := s.retry
	retry.OnRetry = resilience.RetryLogger("store", "load match inputs")

	// Application and policies are read once, before any evaluation.
	app, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.Application, error) {
		return s.apps.GetApplication(ctx, id)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "matching: load application %s", id)
	}

	snap, err := NewSnapshot(*app)
	if err != nil {
		return nil, err
	}

	recs, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.PolicyRecord, error) {
		return s.policies.ActivePolicies(ctx)
	})
	if err != nil {
		return nil, eris.Wrap(err, "matching: load policies")
	}

	policies, err := policy.LoadAll(recs)
	if err != nil {
		return nil, err
	}

	hash := PolicySetHash(recs)
	key := CacheKey(id, hash, s.engine.ScorerHash())

	if s.cache != nil {
		cached, hit, cerr := s.cache.Get(ctx, key)
		if cerr != nil {
			log.Warn("matching: cache lookup failed", zap.Error(cerr))
		}
		if s.observer != nil && cerr == nil {
			s.observer.ObserveCacheLookup(hit)
		}
		if hit {
			log.Debug("matching: cache hit", zap.String("policy_hash", hash))
			return &model.MatchRun{ApplicationID: id, Results: cached, PolicyHash: hash, CreatedAt: time.Now().UTC()}, nil
		}
	}

	results, err := s.engine.Evaluate(ctx, snap, policies)
	if err != nil {
		return nil, err
	}
	wire := MatchResults(results)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, wire); err != nil {
			log.Warn("matching: cache store failed", zap.Error(err))
		}
	}

	eligible := 0
	for _, r := range results {
		if r.Eligible {
			eligible++
		}
	}
	log.Info("matching: run complete",
		zap.Int("policies", len(results)),
		zap.Int("eligible", eligible),
		zap.String("policy_hash", hash),
	)

	return &model.MatchRun{ApplicationID: id, Results: wire, PolicyHash: hash, CreatedAt: time.Now().UTC()}, nil
}

// PolicySetHash identifies a set of policy records, including their rules
// and scoring, so cached results are invalidated when any policy changes.
func PolicySetHash(recs []model.PolicyRecord) string {
	type entry struct {
		ID      string                  `json:"id"`
		Lender  string                  `json:"lender"`
		Name    string                  `json:"name"`
		Version int                     `json:"version"`
		Active  bool                    `json:"active"`
		Rules   []model.RuleDefinition  `json:"rules"`
		Scoring model.ScoringDefinition `json:"scoring"`
	}
	entries := make([]entry, len(recs))
	for i, r := range recs {
		entries[i] = entry{r.ID, r.LenderName, r.Name, r.Version, r.Active, r.Rules, r.Scoring}
	}
	return scorer.ConfigHash(entries)
}

// CacheKey builds the result-cache key for an application, policy set and
// global scorer config. Results computed under one scorer config are never
// served under another.
func CacheKey(applicationID, policyHash, scorerHash string) string {
	return "match:" + applicationID + ":" + policyHash + ":" + scorerHash
}

// NotFoundError is implemented by source errors that mean "no such record".
type NotFoundError interface {
	NotFound() bool
}

// Outcome classifies a Match error for metrics and transport mapping.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}

	var snapErr *InvalidSnapshotError
	var cfgErr *policy.ConfigurationError
	var evalErr *PolicyEvaluationError
	var nf NotFoundError

	switch {
	case errors.As(err, &snapErr):
		return OutcomeInvalidSnapshot
	case errors.As(err, &cfgErr):
		return OutcomeConfiguration
	case errors.As(err, &evalErr):
		return OutcomeEvaluation
	case errors.As(err, &nf) && nf.NotFound():
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
