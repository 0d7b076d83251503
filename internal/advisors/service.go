package advisors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/serviceline/serviceline/internal/shared"
	"github.com/serviceline/serviceline/internal/users"
)

// RecordStore reads and updates advisor assignments on service rows.
type RecordStore interface {
	UnassignedAdvisorNames(ctx context.Context, showroomID int64) (map[string]int64, error)
	AssignAdvisor(ctx context.Context, showroomID int64, name string, userID int64) (int64, error)
}

// Directory lists the service advisor accounts of a showroom.
type Directory interface {
	ListAdvisors(ctx context.Context, showroomID int64) ([]users.User, error)
}

// ShowroomSource lists showrooms with unassigned rows.
type ShowroomSource interface {
	ShowroomIDs(ctx context.Context) ([]int64, error)
}

// Invalidator drops cached dashboards after rows change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Report is the result of one reconciliation run.
type Report struct {
	ShowroomID   int64 `json:"showroomId"`
	Applied      bool  `json:"applied"`
	AssignedRows int64 `json:"assignedRows"`
	Plan
}

// Service runs advisor reconciliation.
type Service struct {
	records   RecordStore
	directory Directory
	showrooms ShowroomSource
	cache     Invalidator
	audit     shared.AuditRecorder
	logger    *slog.Logger
}

// NewService wires the reconciliation service.
func NewService(records RecordStore, directory Directory, showrooms ShowroomSource, cache Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, directory: directory, showrooms: showrooms, cache: cache, audit: audit, logger: logger}
}

// Reconcile builds the plan for a showroom and, when apply is set, writes
// advisor_id for every proposal. Ambiguous and unmatched names are left alone.
func (s *Service) Reconcile(ctx context.Context, showroomID, actorID int64, apply bool) (*Report, error) {
	names, err := s.records.UnassignedAdvisorNames(ctx, showroomID)
	if err != nil {
		return nil, fmt.Errorf("load unassigned names: %w", err)
	}
	accounts, err := s.directory.ListAdvisors(ctx, showroomID)
	if err != nil {
		return nil, fmt.Errorf("load advisors: %w", err)
	}
	candidates := make([]Candidate, 0, len(accounts))
	for _, u := range accounts {
		candidates = append(candidates, Candidate{UserID: u.ID, Name: u.Name})
	}

	report := &Report{ShowroomID: showroomID, Plan: BuildPlan(names, candidates)}
	if !apply {
		return report, nil
	}
	report.Applied = true
	for _, p := range report.Proposals {
		n, err := s.records.AssignAdvisor(ctx, showroomID, p.Name, p.UserID)
		if err != nil {
			return report, fmt.Errorf("assign %q: %w", p.Name, err)
		}
		report.AssignedRows += n
	}
	if report.AssignedRows > 0 && s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
		}
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:    actorID,
		ShowroomID: showroomID,
		Action:     "advisors.reconcile",
		Entity:     "service_records",
		EntityID:   fmt.Sprintf("showroom/%d", showroomID),
		Meta:       map[string]any{"assigned_rows": report.AssignedRows, "proposals": len(report.Proposals), "ambiguous": len(report.Ambiguous)},
	}); err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
	s.logger.Info("advisor reconciliation applied",
		slog.Int64("showroom_id", showroomID),
		slog.Int64("assigned_rows", report.AssignedRows),
		slog.Int("ambiguous", len(report.Ambiguous)),
		slog.Int("unmatched", len(report.Unmatched)),
	)
	return report, nil
}

// ReconcileAll runs Reconcile for every showroom with unassigned rows.
func (s *Service) ReconcileAll(ctx context.Context, apply bool) ([]Report, error) {
	ids, err := s.showrooms.ShowroomIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list showrooms: %w", err)
	}
	out := make([]Report, 0, len(ids))
	for _, id := range ids {
		r, err := s.Reconcile(ctx, id, 0, apply)
		if err != nil {
			return out, err
		}
		out = append(out, *r)
	}
	return out, nil
}
