package exporter

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
)

const maxSheetName = 31

// sheetName makes a localized title usable as a worksheet name.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	if name == "" {
		return "Plugins"
	}
	return name
}

func buildSpreadsheet(job *models.ExportJob, s *i18n.Strings) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(s.AdditionalPlugins)
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, fmt.Errorf("exporter: new sheet: %w", err)
	}
	if sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}
	if index, err := f.GetSheetIndex(sheet); err == nil {
		f.SetActiveSheet(index)
	}

	for i, h := range headerCells(s) {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	headStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"000000"}, Pattern: 1},
	})
	if err == nil {
		_ = f.SetCellStyle(sheet, "A1", "D1", headStyle)
	}

	for i, r := range job.Records {
		for col, v := range r.Cells() {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 40) // name
	_ = f.SetColWidth(sheet, "B", "B", 32) // component
	_ = f.SetColWidth(sheet, "C", "C", 18) // release
	_ = f.SetColWidth(sheet, "D", "D", 16) // version number

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeRenderFailed, "spreadsheet write failed", err)
	}
	return buf.Bytes(), nil
}
