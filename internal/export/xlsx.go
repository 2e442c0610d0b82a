// Package export renders an exam's result table as an XLSX workbook.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rfmoraes/clinic-exams/internal/exam"
)

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExamXLSX returns an XLSX workbook for one exam: a header block with the
// exam metadata followed by one row per result, grouped by category in the
// result set's sorted order.
func (s *Service) ExamXLSX(e *exam.Exam) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Resultados"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet excelize creates alongside ours.
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(1, 1, "Exame")
	write(2, 1, e.Title)
	write(1, 2, "Data")
	if !e.ExamDate.IsZero() {
		write(2, 2, e.ExamDate.Format("2006-01-02"))
	}
	write(1, 3, "Categoria")
	write(2, 3, string(e.Category))

	headers := []string{"Categoria", "Teste", "Valor"}
	const headerRow = 5
	for i, h := range headers {
		write(i+1, headerRow, h)
	}

	row := headerRow + 1
	for _, category := range e.Results.Categories() {
		for _, test := range e.Results.Tests(category) {
			write(1, row, category)
			write(2, row, test)
			write(3, row, e.Results[category][test])
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 22)
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "C", "C", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"exam_id", e.ID,
		"rows", row-headerRow-1,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
