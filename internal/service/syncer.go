package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/searchsync/internal/attributes"
	"github.com/utafrali/searchsync/internal/dirty"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	"github.com/utafrali/searchsync/internal/lock"
	"github.com/utafrali/searchsync/internal/repository"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithEnvironment sets the suffix used by PerEnvironment configurations.
func WithEnvironment(env string) Option {
	return func(s *Syncer) { s.environment = env }
}

// WithLocker makes collection creation exclusive across processes.
func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(s *Syncer) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithChecker replaces the default dirty checker.
func WithChecker(c *dirty.Checker) Option {
	return func(s *Syncer) { s.checker = c }
}

// WithClock overrides the clock used to name collection generations.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// Syncer owns the gateway and the declared models.
type Syncer struct {
	gateway   engine.Gateway
	extractor *attributes.Extractor
	checker   *dirty.Checker
	locker    lock.Locker
	logger    *slog.Logger

	environment  string
	lockTTL      time.Duration
	pollInterval time.Duration
	now          func() time.Time

	mu     sync.RWMutex
	models map[string]*Model
}

// NewSyncer creates a Syncer over gateway.
func NewSyncer(gateway engine.Gateway, logger *slog.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		gateway:      gateway,
		extractor:    attributes.NewExtractor(),
		checker:      dirty.NewChecker(),
		locker:       lock.Noop{},
		logger:       logger,
		lockTTL:      defaultLockTTL,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		models:       make(map[string]*Model),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Declare registers the indexing configuration of a model. The configuration
// is validated and frozen; declaring the same model twice is an error.
func (s *Syncer) Declare(name string, cfg domain.IndexConfiguration, source repository.Source) (*Model, error) {
	if name == "" {
		return nil, apperrors.BadConfiguration("model name is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("declare %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[name]; ok {
		return nil, apperrors.BadConfiguration(fmt.Sprintf("model %s is already declared", name))
	}
	m := &Model{
		name:   name,
		cfg:    cfg,
		alias:  cfg.ResolveIndexName(name, s.environment),
		source: source,
		syncer: s,
	}
	s.models[name] = m

	s.logger.Info("search model declared",
		slog.String("model", name),
		slog.String("index", m.alias),
	)
	return m, nil
}

// Model returns a declared model.
func (s *Syncer) Model(name string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	if !ok {
		return nil, apperrors.NotFound("model", name)
	}
	return m, nil
}

// Models lists the declared model names, sorted.
func (s *Syncer) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
