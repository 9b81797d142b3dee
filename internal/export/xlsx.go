package export

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/senna-project/senninha/internal/domain"
)

// writeAggregateXLSX writes one workbook per batch with a row per client, the
// shape analysts expect when they open the batch output directly.
func (e *Exporter) writeAggregateXLSX(batchID string, summaries []domain.ClientSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Perfilamento"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"NIF",
		"Dívida total elegível",
		"Dívida elegível (individual)",
		"Dívida elegível (grupo)",
		"Perfila",
		"PARI/PERSI",
		"Total dívidas",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, s := range summaries {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, s.TaxID)
		write(2, s.TotalEligibleDebt)
		write(3, s.EligibleByIndividual)
		write(4, s.EligibleByGroup)
		write(5, yesNo(s.Qualifies))
		write(6, yesNo(s.HasPariPersi))
		write(7, s.LineCount)

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "D", 24)
	_ = f.SetColWidth(sheet, "E", "F", 12)

	path := filepath.Join(e.path(e.cfg.XLSXDir), batchID+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}
