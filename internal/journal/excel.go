package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX writes the session history to an Excel workbook.
func ExportXLSX(records []SessionRecord, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const sheet = "Sessions"
	fx.SetSheetName(fx.GetSheetName(0), sheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F4E79"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	headers := []string{"Date", "Symbol", "Outcome", "Reason", "Direction",
		"Entry", "Stop Loss", "Take Profit", "Volume", "Ticket", "Closed At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
	}
	if err := fx.SetCellStyle(sheet, "A1", "K1", headerStyle); err != nil {
		return err
	}

	for row, rec := range records {
		values := []interface{}{
			rec.Date, rec.Symbol, string(rec.Outcome), rec.Reason, rec.Direction,
			rec.Entry, rec.StopLoss, rec.TakeProfit, rec.Volume, rec.TicketID,
			rec.ClosedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
		}
	}

	fx.SetColWidth(sheet, "A", "K", 14)
	return fx.SaveAs(path)
}
