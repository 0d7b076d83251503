package targets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/serviceline/serviceline/internal/platform/httpx"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/shared"
)

// Store is the persistence port of the service.
type Store interface {
	CityTarget(ctx context.Context, showroomID int64, city, month string) (*CityTarget, error)
	SaveCityTarget(ctx context.Context, showroomID, actorID int64, t CityTarget) error
	AdvisorTargets(ctx context.Context, showroomID int64, city, month string) ([]AdvisorTarget, error)
	ReplaceAdvisorTargets(ctx context.Context, showroomID, actorID int64, city, month string, list []AdvisorTarget) error
}

// AdvisorSource lists the advisors found in a city's billing rows.
type AdvisorSource interface {
	DistinctAdvisors(ctx context.Context, showroomID int64, city string) ([]Advisor, error)
}

// Invalidator drops cached dashboards after a save.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service implements target entry and distribution.
type Service struct {
	store    Store
	advisors AdvisorSource
	cache    Invalidator
	audit    shared.AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the targets service.
func NewService(store Store, advisors AdvisorSource, cache Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, advisors: advisors, cache: cache, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) scope(city, month string) (string, string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", "", shared.ErrCityRequired
	}
	m, err := shared.ParseMonth(month, s.now())
	if err != nil {
		return "", "", err
	}
	return city, m, nil
}

// CityTarget returns the saved city target, or zero values when none exists.
func (s *Service) CityTarget(ctx context.Context, p *rbac.Principal, city, month string) (*CityTarget, error) {
	city, month, err := s.scope(city, month)
	if err != nil {
		return nil, err
	}
	t, err := s.store.CityTarget(ctx, p.ShowroomID, city, month)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &CityTarget{City: city, Month: month}
	}
	return t, nil
}

// SaveCityTarget validates and upserts the city target.
func (s *Service) SaveCityTarget(ctx context.Context, p *rbac.Principal, t CityTarget) (*CityTarget, error) {
	city, month, err := s.scope(t.City, t.Month)
	if err != nil {
		return nil, err
	}
	if negative(t.Values) {
		return nil, fmt.Errorf("%w: %w", errNegative, httpx.ErrValidation)
	}
	t.City, t.Month = city, month
	if err := s.store.SaveCityTarget(ctx, p.ShowroomID, p.UserID, t); err != nil {
		return nil, fmt.Errorf("save city target: %w", err)
	}
	s.afterSave(ctx, p, "targets.city.save", city+"/"+month, map[string]any{"values": t.Values})
	return &t, nil
}

// AdvisorTargets returns the saved split; advisors without a row have a
// zero target.
func (s *Service) AdvisorTargets(ctx context.Context, showroomID int64, city, month string) ([]AdvisorTarget, error) {
	city, month, err := s.scope(city, month)
	if err != nil {
		return nil, err
	}
	return s.store.AdvisorTargets(ctx, showroomID, city, month)
}

// DistributeAutomatic splits the saved city target evenly across the
// advisors in the city's billing rows and replaces the previous split.
func (s *Service) DistributeAutomatic(ctx context.Context, p *rbac.Principal, city, month string) (*Distribution, error) {
	city, month, err := s.scope(city, month)
	if err != nil {
		return nil, err
	}
	cityTarget, err := s.store.CityTarget(ctx, p.ShowroomID, city, month)
	if err != nil {
		return nil, err
	}
	if cityTarget == nil {
		return nil, ErrNoCityTarget
	}
	advisors, err := s.advisors.DistinctAdvisors(ctx, p.ShowroomID, city)
	if err != nil {
		return nil, fmt.Errorf("load advisors: %w", err)
	}
	list := DistributeEvenly(cityTarget.Values, advisors)
	if len(list) == 0 {
		return nil, ErrNoAdvisors
	}
	if err := s.store.ReplaceAdvisorTargets(ctx, p.ShowroomID, p.UserID, city, month, list); err != nil {
		return nil, fmt.Errorf("save distribution: %w", err)
	}
	s.afterSave(ctx, p, "targets.advisors.distribute", city+"/"+month, map[string]any{"advisors": len(list)})
	return &Distribution{City: city, Month: month, Mode: ModeAutomatic, Advisors: list}, nil
}

// SaveManual replaces the split with an operator supplied list.
func (s *Service) SaveManual(ctx context.Context, p *rbac.Principal, d Distribution) (*Distribution, error) {
	city, month, err := s.scope(d.City, d.Month)
	if err != nil {
		return nil, err
	}
	list, err := ManualDistribution(d.Advisors)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceAdvisorTargets(ctx, p.ShowroomID, p.UserID, city, month, list); err != nil {
		return nil, fmt.Errorf("save distribution: %w", err)
	}
	s.afterSave(ctx, p, "targets.advisors.manual", city+"/"+month, map[string]any{"advisors": len(list)})
	return &Distribution{City: city, Month: month, Mode: ModeManual, Advisors: list}, nil
}

// ImportLegacy stores targets exported from browser storage. Entries with a
// missing city or a bad month are skipped and reported.
func (s *Service) ImportLegacy(ctx context.Context, p *rbac.Principal, in LegacyImport) (*ImportResult, error) {
	cities, dists, err := parseLegacy(in)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{}
	for _, c := range cities {
		if _, err := s.SaveCityTarget(ctx, p, c); err != nil {
			if isClientError(err) {
				res.Skipped = append(res.Skipped, fmt.Sprintf("%s %s: %v", c.City, c.Month, err))
				continue
			}
			return nil, err
		}
		res.CityTargets++
	}
	for _, d := range dists {
		saved, err := s.SaveManual(ctx, p, d)
		if err != nil {
			if isClientError(err) {
				res.Skipped = append(res.Skipped, fmt.Sprintf("%s %s: %v", d.City, d.Month, err))
				continue
			}
			return nil, err
		}
		res.Distributions++
		res.AdvisorRows += len(saved.Advisors)
	}
	return res, nil
}

func (s *Service) afterSave(ctx context.Context, p *rbac.Principal, action, entityID string, meta map[string]any) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
		}
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:    p.UserID,
		ShowroomID: p.ShowroomID,
		Action:     action,
		Entity:     "targets",
		EntityID:   entityID,
		Meta:       meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func isClientError(err error) bool {
	return errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrNotFound)
}
