package policy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/callwatch/internal/logging"
	"github.com/ppiankov/callwatch/internal/ratelimit"
)

// Engine holds the current RuleSet and swaps it on reload. Rate limit
// counters survive reloads.
type Engine struct {
	path    string
	logger  *zap.Logger
	limiter *ratelimit.Limiter
	now     func() time.Time

	mu    sync.RWMutex
	rules *RuleSet
}

// NewEngine loads the rule file at path.
func NewEngine(path string, logger *zap.Logger) (*Engine, error) {
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return &Engine{
		path:    path,
		rules:   rules,
		logger:  logging.OrNop(logger),
		limiter: ratelimit.NewLimiter(),
		now:     time.Now,
	}, nil
}

// NewEngineFromRules wraps an already parsed RuleSet. Reload is a no-op.
func NewEngineFromRules(rules *RuleSet) *Engine {
	return &Engine{
		rules:   rules,
		logger:  zap.NewNop(),
		limiter: ratelimit.NewLimiter(),
		now:     time.Now,
	}
}

// Path returns the watched rule file.
func (e *Engine) Path() string { return e.path }

// Rules returns the current RuleSet.
func (e *Engine) Rules() *RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// Evaluate applies the current rules, then the matching rule's rate limit.
func (e *Engine) Evaluate(method, url string) Result {
	return e.EvaluateWith(e.Rules(), method, url)
}

// EvaluateWith is Evaluate against a RuleSet the caller already holds, so
// the decision and that RuleSet's hash stay consistent across a reload.
// Rate limits still use the engine's counters.
func (e *Engine) EvaluateWith(rules *RuleSet, method, url string) Result {
	r, ok := rules.Match(method, url)
	if !ok {
		return rules.Evaluate(method, url)
	}
	res := r.result()
	if res.Decision != Allow || !r.RateLimit.Enabled() {
		return res
	}
	if check := e.limiter.Allow(r.ID, r.RateLimit, e.now()); check.Exceeded {
		e.logger.Info("rate limit exceeded",
			zap.String("rule_id", r.ID),
			zap.Int("limit", check.Limit),
		)
		return Result{Decision: Deny, Reasons: []string{check.Reason}, RuleID: r.ID}
	}
	return res
}

// Reload re-reads the rule file. On error the previous rules stay active.
func (e *Engine) Reload() error {
	if e.path == "" {
		return nil
	}
	rules, err := LoadRules(e.path)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	e.logger.Info("policy rules reloaded",
		zap.String("path", e.path),
		zap.String("hash", rules.Hash()),
		zap.Int("rules", len(rules.Rules)),
	)
	return nil
}
