// Package reports builds the admin xlsx exports.
package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/messmate/messmate/internal/domain/entitlement"
)

// MonthlyUsageXLSX renders per-account consumption counts for the month into
// a spreadsheet and returns the file bytes with a suggested filename.
func MonthlyUsageXLSX(rows []entitlement.ReportRow, now time.Time) ([]byte, string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{"account_type", "name", "menu_item", "meals_redeemed"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, "", err
	}

	rowN := 2
	for _, r := range rows {
		excelRow := []interface{}{
			string(r.OwnerKind),
			r.OwnerName,
			r.ItemName,
			r.Count,
		}
		cell, err := excelize.CoordinatesToCellName(1, rowN)
		if err != nil {
			return nil, "", err
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return nil, "", err
		}
		rowN++
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("meal_usage_%s.xlsx", now.Format("2006_01"))
	return buf.Bytes(), name, nil
}
