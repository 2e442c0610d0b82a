package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rfmoraes/clinic-exams/internal/exam"
	"github.com/rfmoraes/clinic-exams/internal/results"
)

func TestExamXLSX(t *testing.T) {
	e := &exam.Exam{
		ID:       "ex-1",
		Title:    "Hormonais — 2026-08-01",
		ExamDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Category: "Hormonais",
		Results: results.Set{
			"Hormonais":  {"TSH": "2.1", "T4 Livre": "1.2"},
			"Bioquímica": {"Glicose": "92"},
		},
	}

	data, err := NewService(nil).ExamXLSX(e)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	const sheet = "Resultados"
	title, err := f.GetCellValue(sheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Hormonais — 2026-08-01", title)

	// Categories come out sorted: Bioquímica before Hormonais.
	cat, _ := f.GetCellValue(sheet, "A6")
	test, _ := f.GetCellValue(sheet, "B6")
	val, _ := f.GetCellValue(sheet, "C6")
	assert.Equal(t, "Bioquímica", cat)
	assert.Equal(t, "Glicose", test)
	assert.Equal(t, "92", val)

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rows), 8, "header block, column header, and three result rows")
}

func TestExamXLSXEmptyResults(t *testing.T) {
	e := &exam.Exam{ID: "ex-2", Title: "Sem resultados"}

	data, err := NewService(nil).ExamXLSX(e)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	header, _ := f.GetCellValue("Resultados", "A5")
	assert.Equal(t, "Categoria", header)
}
