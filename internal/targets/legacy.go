package targets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// Browser storage keys the dashboard used before targets were persisted.
const (
	LegacyCityKey    = "gm_field_targets_v1"
	LegacyAdvisorKey = "advisor_field_targets_v1"
)

// LegacyImport is the body of POST /api/targets/import. Each key holds either
// the stored array or the raw string found in browser storage.
type LegacyImport struct {
	City     json.RawMessage `json:"gm_field_targets_v1"`
	Advisors json.RawMessage `json:"advisor_field_targets_v1"`
}

// ImportResult summarises an import.
type ImportResult struct {
	CityTargets   int      `json:"cityTargets"`
	Distributions int      `json:"distributions"`
	AdvisorRows   int      `json:"advisorRows"`
	Skipped       []string `json:"skipped,omitempty"`
}

// number accepts JSON numbers and numeric strings such as "1,200".
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = number(ingest.AmountFloat(s))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type legacyValues struct {
	Labour        number `json:"labour"`
	Parts         number `json:"parts"`
	TotalVehicles number `json:"totalVehicles"`
	PaidService   number `json:"paidService"`
	FreeService   number `json:"freeService"`
	RR            number `json:"rr"`
}

func (l legacyValues) values() Values {
	return Values{
		Labour:        float64(l.Labour),
		Parts:         float64(l.Parts),
		TotalVehicles: float64(l.TotalVehicles),
		PaidService:   float64(l.PaidService),
		FreeService:   float64(l.FreeService),
		RR:            float64(l.RR),
	}
}

type legacyCityEntry struct {
	City  string `json:"city"`
	Month string `json:"month"`
	legacyValues
}

type legacyAdvisorEntry struct {
	AdvisorName string `json:"advisorName"`
	City        string `json:"city"`
	Month       string `json:"month"`
	legacyValues
}

// decodeLegacy unmarshals raw into dest, unwrapping a JSON string first.
func decodeLegacy(raw json.RawMessage, dest any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		raw = json.RawMessage(inner)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode legacy targets: %v: %w", err, httpx.ErrValidation)
	}
	return nil
}

type legacyKey struct{ city, month string }

// parseLegacy turns the stored arrays into city targets and per city/month
// distributions.
func parseLegacy(in LegacyImport) ([]CityTarget, []Distribution, error) {
	var cities []legacyCityEntry
	if err := decodeLegacy(in.City, &cities); err != nil {
		return nil, nil, err
	}
	var advisors []legacyAdvisorEntry
	if err := decodeLegacy(in.Advisors, &advisors); err != nil {
		return nil, nil, err
	}

	outCities := make([]CityTarget, 0, len(cities))
	for _, c := range cities {
		outCities = append(outCities, CityTarget{City: strings.TrimSpace(c.City), Month: strings.TrimSpace(c.Month), Values: c.values()})
	}

	grouped := make(map[legacyKey]*Distribution)
	var order []legacyKey
	for _, a := range advisors {
		k := legacyKey{city: strings.TrimSpace(a.City), month: strings.TrimSpace(a.Month)}
		d, ok := grouped[k]
		if !ok {
			d = &Distribution{City: k.city, Month: k.month, Mode: ModeManual}
			grouped[k] = d
			order = append(order, k)
		}
		// Later entries for the same advisor overwrite earlier ones.
		name := strings.TrimSpace(a.AdvisorName)
		replaced := false
		for i := range d.Advisors {
			if strings.EqualFold(d.Advisors[i].AdvisorName, name) {
				d.Advisors[i].Values = a.values()
				replaced = true
			}
		}
		if !replaced {
			d.Advisors = append(d.Advisors, AdvisorTarget{AdvisorName: name, Values: a.values()})
		}
	}
	outDists := make([]Distribution, 0, len(order))
	for _, k := range order {
		outDists = append(outDists, *grouped[k])
	}
	return outCities, outDists, nil
}
