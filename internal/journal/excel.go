package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

type excelStyles struct {
	header   int
	currency int
	number   int
}

func writeTradesXLSX(trades []Trade, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const sheet = "Trades"
	fx.SetSheetName(fx.GetSheetName(0), sheet)

	styles, err := createStyles(fx)
	if err != nil {
		return err
	}

	headers := []string{"#", "Symbol", "Direction", "Opened", "Closed", "Entry", "Exit", "Lots", "Realized PnL", "Reason"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	for i, t := range trades {
		row := i + 2
		set := func(col int, v interface{}, style int) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			fx.SetCellValue(sheet, cell, v)
			if style != 0 {
				fx.SetCellStyle(sheet, cell, cell, style)
			}
		}
		set(1, i+1, 0)
		set(2, t.Symbol, 0)
		set(3, string(t.Direction), 0)
		set(4, t.OpenedAt.Format("2006-01-02 15:04:05"), 0)
		set(5, t.ClosedAt.Format("2006-01-02 15:04:05"), 0)
		set(6, t.EntryPrice, styles.number)
		set(7, t.ExitPrice, styles.number)
		set(8, t.Volume, styles.number)
		set(9, t.RealizedPnL, styles.currency)
		set(10, t.Reason, 0)
	}

	fx.SetColWidth(sheet, "B", "B", 14)
	fx.SetColWidth(sheet, "D", "E", 20)
	fx.SetColWidth(sheet, "I", "I", 14)
	fx.SetColWidth(sheet, "J", "J", 28)

	return fx.SaveAs(path)
}

func createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.currency, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.number, err = fx.NewStyle(&excelize.Style{
		NumFmt: 2,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}
