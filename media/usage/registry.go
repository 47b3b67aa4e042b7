// Package usage discovers and severs references from owning CMS entities to
// cataloged assets. The catalog never hard-codes knowledge of consuming
// tables: each owning subsystem registers a resolver (and, if it wants forced
// deletion to work against it, a clearer) for its own entity kind.
package usage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/salonkit/mediavault/media/domain"
)

type registration struct {
	resolver domain.UsageResolver
	clearer  domain.ReferenceClearer
}

// Registry holds one resolver per entity kind and fans usage lookups out
// across all of them. A resolver that errors or times out is never treated as
// "zero usages": ResolveAll reports the failure so callers can fail closed.
type Registry struct {
	mu              sync.RWMutex
	registrations   map[string]registration
	resolverTimeout time.Duration
	log             zerolog.Logger
}

// NewRegistry creates an empty registry. resolverTimeout bounds each
// resolver's lookup independently so one slow subsystem cannot stall the rest.
func NewRegistry(resolverTimeout time.Duration, log zerolog.Logger) *Registry {
	if resolverTimeout <= 0 {
		resolverTimeout = 5 * time.Second
	}

	return &Registry{
		registrations:   make(map[string]registration),
		resolverTimeout: resolverTimeout,
		log:             log,
	}
}

// Register adds a resolver for an entity kind. clearer may be nil for kinds
// that only report usages; forced deletion fails closed against those.
// Registering the same kind twice replaces the previous registration.
func (r *Registry) Register(entityType string, resolver domain.UsageResolver, clearer domain.ReferenceClearer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[entityType] = registration{resolver: resolver, clearer: clearer}
}

// EntityTypes returns the registered entity kinds in sorted order.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.registrations))
	for t := range r.registrations {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ResolveAll asks every registered resolver whether it references assetURL and
// concatenates the results, ordered by entity type then entity name. Resolvers
// run in parallel, each under its own timeout.
//
// When any resolver fails, ResolveAll returns the usages the others found
// together with a resolver_failure error naming the failed kinds. Callers must
// treat that as "usages unknown", never as zero.
func (r *Registry) ResolveAll(ctx context.Context, assetURL string) ([]domain.Usage, error) {
	r.mu.RLock()
	snapshot := make(map[string]domain.UsageResolver, len(r.registrations))
	for t, reg := range r.registrations {
		snapshot[t] = reg.resolver
	}
	r.mu.RUnlock()

	var (
		mu     sync.Mutex
		usages []domain.Usage
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for entityType, resolver := range snapshot {
		entityType, resolver := entityType, resolver
		g.Go(func() error {
			resolveCtx, cancel := context.WithTimeout(gctx, r.resolverTimeout)
			defer cancel()

			found, err := resolver.Resolve(resolveCtx, assetURL)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.log.Warn().
					Err(err).
					Str("entityType", entityType).
					Str("assetURL", assetURL).
					Msg("usage resolver failed")
				failed = append(failed, entityType)
				// Swallow the error here so the remaining resolvers still run;
				// the failure is reported after the fan-in.
				return nil
			}
			usages = append(usages, found...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to resolve usages: %w", err)
	}

	sort.Slice(usages, func(i, j int) bool {
		if usages[i].EntityType != usages[j].EntityType {
			return usages[i].EntityType < usages[j].EntityType
		}
		if usages[i].EntityName != usages[j].EntityName {
			return usages[i].EntityName < usages[j].EntityName
		}
		return usages[i].FieldName < usages[j].FieldName
	})

	if len(failed) > 0 {
		sort.Strings(failed)
		return usages, &domain.Error{
			Kind:            domain.ErrResolverFailure,
			Message:         fmt.Sprintf("%d usage resolver(s) could not answer", len(failed)),
			Usages:          usages,
			FailedResolvers: failed,
		}
	}

	return usages, nil
}

// ClearReferences instructs the owning entity behind each usage to drop its
// reference to assetURL. Clearing is sequential and stops at the first
// failure: a partial clear must surface before any soft-delete proceeds.
func (r *Registry) ClearReferences(ctx context.Context, assetURL string, usages []domain.Usage) error {
	for _, u := range usages {
		r.mu.RLock()
		reg, ok := r.registrations[u.EntityType]
		r.mu.RUnlock()

		if !ok || reg.clearer == nil {
			return fmt.Errorf("no reference clearer registered for entity type %q", u.EntityType)
		}

		if err := reg.clearer.ClearReference(ctx, u.EntityID, u.FieldName, assetURL); err != nil {
			return fmt.Errorf("failed to clear %s reference on %s %s: %w", u.FieldName, u.EntityType, u.EntityID, err)
		}

		r.log.Info().
			Str("entityType", u.EntityType).
			Str("entityId", u.EntityID).
			Str("field", u.FieldName).
			Msg("cleared asset reference")
	}

	return nil
}
