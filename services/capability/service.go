// Package capability decides whether a tenant may use a named feature.
package capability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/campaign-gateway/internal/ttlcache"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service resolves features: tenant override, then plan default, then deny
type Service struct {
	plans  repositories.PlanRepository
	cache  *ttlcache.Cache[uuid.UUID, models.FeatureMap]
	group  singleflight.Group
	logger *zap.Logger
}

// NewService creates a Service caching plan maps for ttl
func NewService(plans repositories.PlanRepository, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		plans:  plans,
		cache:  ttlcache.New[uuid.UUID, models.FeatureMap](256, ttl),
		logger: logger,
	}
}

// Check returns nil when the feature is enabled for the tenant
func (s *Service) Check(ctx context.Context, identity models.Identity, tenant models.Tenant, feature string) error {
	enabled, err := s.Enabled(ctx, identity, tenant, feature)
	if err != nil {
		return err
	}
	if !enabled {
		return services.FeatureNotAvailable(feature)
	}
	return nil
}

// Enabled reports the resolved flag without building a denial
func (s *Service) Enabled(ctx context.Context, identity models.Identity, tenant models.Tenant, feature string) (bool, error) {
	if identity.IsOperator() {
		return true, nil
	}

	if enabled, defined := tenant.FeatureOverrides.Lookup(feature); defined {
		return enabled, nil
	}

	if tenant.PlanID == nil {
		return false, nil
	}
	defaults, err := s.planFeatures(ctx, *tenant.PlanID)
	if err != nil {
		return false, err
	}
	enabled, _ := defaults.Lookup(feature)
	return enabled, nil
}

// Features returns the merged map for a tenant, overrides winning
func (s *Service) Features(ctx context.Context, tenant models.Tenant) (models.FeatureMap, error) {
	merged := models.FeatureMap{}
	if tenant.PlanID != nil {
		defaults, err := s.planFeatures(ctx, *tenant.PlanID)
		if err != nil {
			return nil, err
		}
		for k, v := range defaults {
			merged[k] = v
		}
	}
	for k, v := range tenant.FeatureOverrides {
		merged[k] = v
	}
	return merged, nil
}

func (s *Service) planFeatures(ctx context.Context, planID uuid.UUID) (models.FeatureMap, error) {
	if features, ok := s.cache.Get(planID); ok {
		return features, nil
	}

	v, err, _ := s.group.Do(planID.String(), func() (interface{}, error) {
		plan, err := s.plans.GetByID(ctx, planID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				s.logger.Warn("tenant references unknown plan", zap.String("plan_id", planID.String()))
				return models.FeatureMap{}, nil
			}
			return nil, err
		}
		features := plan.Features
		if features == nil {
			features = models.FeatureMap{}
		}
		s.cache.Set(planID, features)
		return features, nil
	})
	if err != nil {
		return nil, services.WrapInternal("failed to load plan features", err)
	}
	return v.(models.FeatureMap), nil
}

// CacheStats exposes plan cache statistics
func (s *Service) CacheStats() ttlcache.Stats {
	return s.cache.Stats()
}
