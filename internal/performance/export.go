package performance

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Advisor Performance"

var metricColumns = []struct {
	label string
	pick  func(AdvisorRow) Metric
}{
	{"Labour", func(r AdvisorRow) Metric { return r.Labour }},
	{"Parts", func(r AdvisorRow) Metric { return r.Parts }},
	{"Vehicles", func(r AdvisorRow) Metric { return r.TotalVehicles }},
	{"Paid Service", func(r AdvisorRow) Metric { return r.PaidService }},
	{"Free Service", func(r AdvisorRow) Metric { return r.FreeService }},
	{"R&R", func(r AdvisorRow) Metric { return r.RR }},
}

// WriteAdvisorWorkbook renders the dashboard as an xlsx workbook: a title
// row, a two level header and one row per advisor plus the total.
func WriteAdvisorWorkbook(w io.Writer, d *AdvisorDashboard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}
	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s, %s (%d working days left)", d.City, d.Month, d.RemainingDays)
	if err := f.SetCellValue(exportSheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", "A1", titleStyle); err != nil {
		return err
	}

	// Row 3: metric groups, row 4: sub columns.
	sub := []string{"Target", "Achieved", "Shortfall", "Per Day"}
	if err := f.SetCellValue(exportSheet, "A3", "Advisor"); err != nil {
		return err
	}
	if err := f.MergeCell(exportSheet, "A3", "A4"); err != nil {
		return err
	}
	for i, mc := range metricColumns {
		first := 2 + i*len(sub)
		start, _ := excelize.CoordinatesToCellName(first, 3)
		end, _ := excelize.CoordinatesToCellName(first+len(sub)-1, 3)
		if err := f.SetCellValue(exportSheet, start, mc.label); err != nil {
			return err
		}
		if err := f.MergeCell(exportSheet, start, end); err != nil {
			return err
		}
		for j, label := range sub {
			cell, _ := excelize.CoordinatesToCellName(first+j, 4)
			if err := f.SetCellValue(exportSheet, cell, label); err != nil {
				return err
			}
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(1 + len(metricColumns)*len(sub))
	if err := f.SetCellStyle(exportSheet, "A3", lastCol+"4", headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(exportSheet, "A", "A", 24); err != nil {
		return err
	}

	row := 5
	write := func(r AdvisorRow) error {
		values := []any{r.Advisor}
		for _, mc := range metricColumns {
			m := mc.pick(r)
			values = append(values, m.Target, m.Achieved, m.Shortfall, m.PerDayRequired)
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		row++
		return f.SetSheetRow(exportSheet, cell, &values)
	}
	for _, r := range d.Advisors {
		if err := write(r); err != nil {
			return err
		}
	}
	if err := write(d.Total); err != nil {
		return err
	}
	totalCell := fmt.Sprintf("A%d", row-1)
	if err := f.SetCellStyle(exportSheet, totalCell, fmt.Sprintf("%s%d", lastCol, row-1), totalStyle); err != nil {
		return err
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, XSplit: 1, YSplit: 4, TopLeftCell: "B5", ActivePane: "bottomRight"}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
