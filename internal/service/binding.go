package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/lock"
	"github.com/utafrali/searchsync/internal/repository"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

// Model is a declared model type: its configuration, its record source and
// the cached binding to the remote collection.
type Model struct {
	name   string
	cfg    domain.IndexConfiguration
	alias  string
	source repository.Source
	syncer *Syncer

	group   singleflight.Group
	mu      sync.RWMutex
	binding *domain.Binding

	reindexing atomic.Bool
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// IndexName returns the alias readers address.
func (m *Model) IndexName() string { return m.alias }

// Config returns the model's configuration.
func (m *Model) Config() domain.IndexConfiguration { return m.cfg }

func (m *Model) cached() *domain.Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.binding
}

func (m *Model) setBinding(b *domain.Binding) {
	m.mu.Lock()
	m.binding = b
	m.mu.Unlock()
}

// EnsureBinding resolves the model's collection. A cached binding is reused
// while its alias still resolves. Otherwise the remote alias is adopted, or,
// when create is set, a new collection generation and the alias are created.
// Without create a missing alias is a NOT_FOUND error.
func (m *Model) EnsureBinding(ctx context.Context, create bool) (domain.Binding, error) {
	if b := m.cached(); b != nil {
		_, err := m.syncer.gateway.GetCollection(ctx, b.AliasName)
		if err == nil {
			return *b, nil
		}
		if !apperrors.IsObjectNotFound(err) {
			return domain.Binding{}, fmt.Errorf("resolve binding %s: %w", m.alias, err)
		}
		m.setBinding(nil)
	}

	// The shared resolution outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := m.group.DoChan(strconv.FormatBool(create), func() (any, error) {
		return m.resolveBinding(context.WithoutCancel(ctx), create)
	})
	select {
	case <-ctx.Done():
		return domain.Binding{}, fmt.Errorf("resolve binding %s: %w", m.alias, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.Binding{}, res.Err
		}
		return res.Val.(domain.Binding), nil
	}
}

func (m *Model) resolveBinding(ctx context.Context, create bool) (domain.Binding, error) {
	b, found, err := m.adoptAlias(ctx)
	if err != nil || found {
		return b, err
	}
	if !create {
		return domain.Binding{}, apperrors.NotFound("search index", m.alias)
	}

	s := m.syncer
	release, err := s.locker.Acquire(ctx, "binding:"+m.alias, s.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		return m.awaitBinding(ctx)
	}
	if err != nil {
		return domain.Binding{}, fmt.Errorf("resolve binding %s: %w", m.alias, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release binding lock",
				slog.String("index", m.alias),
				slog.String("error", err.Error()),
			)
		}
	}()

	// Another process may have finished creating while we waited for the lock.
	if b, found, err := m.adoptAlias(ctx); err != nil || found {
		return b, err
	}

	name, err := m.createGeneration(ctx)
	if err != nil {
		return domain.Binding{}, err
	}
	if err := s.gateway.UpsertAlias(ctx, m.alias, name); err != nil {
		return domain.Binding{}, fmt.Errorf("create alias %s: %w", m.alias, err)
	}

	b = domain.Binding{CollectionName: name, AliasName: m.alias}
	m.setBinding(&b)
	s.logger.InfoContext(ctx, "search index created",
		slog.String("model", m.name),
		slog.String("index", m.alias),
		slog.String("collection", name),
	)
	return b, nil
}

// adoptAlias binds to the collection the remote alias points at. An alias
// whose collection was deleted counts as missing.
func (m *Model) adoptAlias(ctx context.Context) (domain.Binding, bool, error) {
	gw := m.syncer.gateway
	alias, err := gw.GetAlias(ctx, m.alias)
	if apperrors.IsObjectNotFound(err) {
		return domain.Binding{}, false, nil
	}
	if err != nil {
		return domain.Binding{}, false, fmt.Errorf("resolve binding %s: %w", m.alias, err)
	}

	if _, err := gw.GetCollection(ctx, alias.CollectionName); err != nil {
		if apperrors.IsObjectNotFound(err) {
			return domain.Binding{}, false, nil
		}
		return domain.Binding{}, false, fmt.Errorf("resolve binding %s: %w", m.alias, err)
	}

	b := domain.Binding{CollectionName: alias.CollectionName, AliasName: m.alias}
	m.setBinding(&b)
	return b, true, nil
}

// awaitBinding polls for the alias another process is creating.
func (m *Model) awaitBinding(ctx context.Context) (domain.Binding, error) {
	s := m.syncer
	ctx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return domain.Binding{}, fmt.Errorf("wait for index %s: %w", m.alias, ctx.Err())
		case <-ticker.C:
			b, found, err := m.adoptAlias(ctx)
			if err != nil || found {
				return b, err
			}
		}
	}
}

// createGeneration creates a physical collection named after the alias and
// the current unix time. Names already taken move to the next second.
func (m *Model) createGeneration(ctx context.Context) (string, error) {
	gw := m.syncer.gateway
	for ts := m.syncer.now().Unix(); ; ts++ {
		name := fmt.Sprintf("%s_%d", m.alias, ts)
		_, err := gw.GetCollection(ctx, name)
		if err == nil {
			continue
		}
		if !apperrors.IsObjectNotFound(err) {
			return "", fmt.Errorf("create collection %s: %w", name, err)
		}
		if err := gw.CreateCollection(ctx, m.cfg.Schema(name)); err != nil {
			return "", fmt.Errorf("create collection %s: %w", name, err)
		}
		return name, nil
	}
}
