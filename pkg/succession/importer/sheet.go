package importer

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names recognized in an uploaded workbook, matched case-insensitively
const (
	SheetUsers           = "users"
	SheetRoles           = "roles"
	SheetSuccessionPlans = "successionplans"
)

// row is one data row of a sheet, addressed by lower-cased header name
type row struct {
	number int // 1-based spreadsheet row
	cells  map[string]string
}

func (r row) get(column string) string {
	return strings.TrimSpace(r.cells[column])
}

func (r row) blank() bool {
	for _, v := range r.cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// findSheet returns the workbook's name for sheet, ignoring case
func findSheet(f *excelize.File, sheet string) (string, bool) {
	for _, name := range f.GetSheetList() {
		if strings.EqualFold(strings.TrimSpace(name), sheet) {
			return name, true
		}
	}
	return "", false
}

// readRows reads a sheet whose first row holds column headers
func readRows(f *excelize.File, name string) ([]row, error) {
	raw, err := f.GetRows(name)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]row, 0, len(raw)-1)
	for i, values := range raw[1:] {
		r := row{number: i + 2, cells: make(map[string]string, len(headers))}
		for j, v := range values {
			if j < len(headers) && headers[j] != "" {
				r.cells[headers[j]] = v
			}
		}
		rows = append(rows, r)
	}
	return rows, nil
}
