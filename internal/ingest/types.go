// Package ingest turns uploaded service spreadsheets into canonical rows.
package ingest

import (
	"fmt"
	"strings"

	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// UploadType identifies the export a spreadsheet came from.
type UploadType string

const (
	TypeROBilling       UploadType = "ro_billing"
	TypeWarranty        UploadType = "warranty"
	TypeBookingList     UploadType = "booking_list"
	TypeOperationsPart  UploadType = "operations_part"
	TypeRepairOrderList UploadType = "repair_order_list"
)

// UploadTypes lists every accepted upload type.
func UploadTypes() []UploadType {
	return []UploadType{TypeROBilling, TypeWarranty, TypeBookingList, TypeOperationsPart, TypeRepairOrderList}
}

// Valid reports whether t is a known upload type.
func (t UploadType) Valid() bool {
	_, ok := aliasTable[t]
	return ok
}

// ErrUnknownType is returned by ParseUploadType.
var ErrUnknownType = fmt.Errorf("unknown upload type: %w", httpx.ErrValidation)

// dataTypeAliases maps the dashboard's fetch names onto stored types.
var dataTypeAliases = map[string]UploadType{
	"operations":      TypeOperationsPart,
	"service_booking": TypeBookingList,
}

// ParseUploadType resolves a type name, accepting the dashboard aliases
// "operations" and "service_booking".
func ParseUploadType(raw string) (UploadType, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if t, ok := dataTypeAliases[name]; ok {
		return t, nil
	}
	t := UploadType(name)
	if !t.Valid() {
		return "", fmt.Errorf("%q: %w", raw, ErrUnknownType)
	}
	return t, nil
}

// Canonical field names produced by Normalize.
const (
	FieldRONumber       = "ro_number"
	FieldBillDate       = "bill_date"
	FieldServiceAdvisor = "service_advisor"
	FieldVIN            = "vin"
	FieldRegistrationNo = "registration_no"
	FieldWorkType       = "work_type"
	FieldLabourAmount   = "labour_amount"
	FieldPartAmount     = "part_amount"
	FieldCustomerName   = "customer_name"
	FieldBookingNumber  = "booking_number"
	FieldBookingDate    = "booking_date"
	FieldStatus         = "status"
	FieldClaimNumber    = "claim_number"
	FieldClaimDate      = "claim_date"
	FieldClaimAmount    = "claim_amount"
	FieldPartNumber     = "part_number"
	FieldPartName       = "part_description"
	FieldQuantity       = "quantity"
	FieldOperationCode  = "operation_code"
	FieldRODate         = "ro_date"
)
