package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/metriq/internal/domain"
)

var reportColumns = []string{"ID", "Name", "Version", "Owner", "Tier", "Status", "Last Updated", "Last Updated By"}

// WriteReport renders collection snapshots as a spreadsheet, one sheet per
// collection, for circulation outside the dashboard.
func WriteReport(path string, docs []Document) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, doc := range docs {
		sheet := doc.Collection
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", sheet, err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
			}
		}

		for col, header := range reportColumns {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return fmt.Errorf("failed to address header cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, header); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
		}

		for row, entity := range doc.Entities {
			values := []any{
				entity.ID,
				domain.StringField(entity, "name"),
				entity.Meta.Version,
				domain.StringField(entity, "owner"),
				domain.StringField(entity, "tier"),
				domain.StringField(entity, "status"),
				entity.Meta.LastUpdated.Format("2006-01-02 15:04:05"),
				entity.Meta.LastUpdatedBy,
			}
			for col, value := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, row+2)
				if err != nil {
					return fmt.Errorf("failed to address cell: %w", err)
				}
				if err := f.SetCellValue(sheet, cell, value); err != nil {
					return fmt.Errorf("failed to write row for %s: %w", entity.ID, err)
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}
