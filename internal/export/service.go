// Package export produces XLSX workbooks from finalized extraction results.
package export

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/contracts-desk/internal/model"
	"github.com/joseph-ayodele/contracts-desk/internal/session"
)

// Service turns session snapshots into XLSX bytes for download.
type Service struct {
	logger *slog.Logger
}

// NewService builds an export service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportSessionXLSX returns an XLSX workbook for a session's current result:
// one row per field with provenance and generation, plus a sheet per
// list-kind field for line items.
func (s *Service) ExportSessionXLSX(snap session.Snapshot) ([]byte, error) {
	if snap.Result == nil {
		return nil, fmt.Errorf("session %s has no extraction result", snap.SessionID)
	}
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Fields"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Field", "Kind", "Value", "Provenance", "Generation"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	row := 2
	for _, field := range snap.Result.Fields {
		if field.Value.Kind == model.KindList {
			if err := s.writeListSheet(f, field, snap.Result.Generation); err != nil {
				return nil, err
			}
		}
		values := []any{
			field.Name,
			string(field.Value.Kind),
			displayValue(field.Value),
			string(field.Provenance),
			snap.Result.Generation,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
		row++
	}

	// Default sheet created by excelize is unused.
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 && len(f.GetSheetList()) > 1 {
		_ = f.DeleteSheet("Sheet1")
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.ok",
		"session_id", snap.SessionID,
		"fields", len(snap.Result.Fields),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func (s *Service) writeListSheet(f *excelize.File, field model.ExtractedEntity, generation int) error {
	sheet := field.Name
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	// Union of keys across entries, sorted so column order is stable
	// across exports of the same result.
	var cols []string
	seen := map[string]bool{}
	for _, item := range field.Value.List {
		for k := range item {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	for i, h := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, item := range field.Value.List {
		for i, k := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			if v, ok := item[k]; ok {
				if err := f.SetCellValue(sheet, cell, displayValue(v)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func displayValue(v model.FieldValue) string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case model.KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case model.KindDate:
		return v.Date
	case model.KindList:
		return fmt.Sprintf("%d item(s)", len(v.List))
	default:
		return v.Str
	}
}
