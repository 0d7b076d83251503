package audit

import "time"

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	ShowroomID int64
	From       time.Time
	To         time.Time
	ActorID    int64
	Entity     string
	Action     string
	Page       int
	PageSize   int
}

// TimelineRow is one audit entry joined with the actor's name.
type TimelineRow struct {
	At        time.Time      `json:"at"`
	ActorID   int64          `json:"actor_id"`
	ActorName string         `json:"actor_name"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes a window without counting the full result.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps timeline rows with paging metadata.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
