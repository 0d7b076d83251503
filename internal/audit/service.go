package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// MaxExportRows caps a single CSV export.
	MaxExportRows = 10000
)

// Repository supplies timeline rows.
type Repository interface {
	Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Service reads the audit timeline of a showroom.
type Service struct {
	repo Repository
}

// NewService constructs the timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit rows. It fetches one extra row to
// decide whether a next page exists.
func (s *Service) Timeline(ctx context.Context, f TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, f, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row up to MaxExportRows.
func (s *Service) Export(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.Window(ctx, f, 0, MaxExportRows)
}

// WriteCSV encodes rows with a header line.
func WriteCSV(w io.Writer, rows []TimelineRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "actor_id", "actor", "action", "entity", "entity_id", "meta"}); err != nil {
		return err
	}
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			raw, err := json.Marshal(row.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			row.ActorName,
			row.Action,
			row.Entity,
			row.EntityID,
			meta,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
