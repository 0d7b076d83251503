// Package records stores and serves the rows extracted from uploads.
package records

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/serviceline/serviceline/internal/ingest"
)

// Record is one uploaded spreadsheet line after normalisation.
type Record struct {
	ID             int64             `json:"id"`
	UploadID       uuid.UUID         `json:"upload_id"`
	ShowroomID     int64             `json:"-"`
	City           string            `json:"city"`
	Type           ingest.UploadType `json:"type"`
	RONumber       string            `json:"ro_number,omitempty"`
	AdvisorName    string            `json:"service_advisor"`
	AdvisorID      *int64            `json:"advisor_id,omitempty"`
	VIN            string            `json:"vin,omitempty"`
	RegistrationNo string            `json:"registration_no,omitempty"`
	WorkType       string            `json:"work_type,omitempty"`
	LabourAmount   decimal.Decimal   `json:"labour_amount"`
	PartAmount     decimal.Decimal   `json:"part_amount"`
	Date           *time.Time        `json:"date,omitempty"`
	Matched        bool              `json:"matched"`
	Payload        map[string]string `json:"payload"`
}

// dateFields lists, per type, the canonical field used as the row date.
var dateFields = map[ingest.UploadType]string{
	ingest.TypeROBilling:       ingest.FieldBillDate,
	ingest.TypeWarranty:        ingest.FieldClaimDate,
	ingest.TypeBookingList:     ingest.FieldBookingDate,
	ingest.TypeRepairOrderList: ingest.FieldRODate,
}

// FromCanonical builds a Record from a row returned by ingest.Normalize.
// Missing amounts are zero; the full row is kept as payload.
func FromCanonical(row map[string]string, kind ingest.UploadType) Record {
	rec := Record{
		Type:           kind,
		RONumber:       strings.TrimSpace(row[ingest.FieldRONumber]),
		AdvisorName:    strings.TrimSpace(row[ingest.FieldServiceAdvisor]),
		VIN:            strings.TrimSpace(row[ingest.FieldVIN]),
		RegistrationNo: strings.TrimSpace(row[ingest.FieldRegistrationNo]),
		WorkType:       strings.TrimSpace(row[ingest.FieldWorkType]),
		LabourAmount:   ingest.Amount(row[ingest.FieldLabourAmount]),
		PartAmount:     ingest.Amount(row[ingest.FieldPartAmount]),
		Payload:        row,
	}
	if field, ok := dateFields[kind]; ok {
		if t, ok := ingest.ParseDate(row[field]); ok {
			rec.Date = &t
		}
	}
	return rec
}

// Filter scopes a listing. ShowroomID is mandatory.
type Filter struct {
	ShowroomID int64
	Type       ingest.UploadType
	City       string
	From, To   time.Time

	// Restrict to one advisor: rows assigned to AdvisorUserID, or
	// unassigned rows whose name equals AdvisorName ignoring case.
	AdvisorUserID int64
	AdvisorName   string
}
