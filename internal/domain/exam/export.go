package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/clinic/clinic/internal/platform/jobs"
)

const (
	examsSheet    = "Exames"
	abnormalSheet = "Alterados"
	XLSXMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Export returns an XLSX workbook with the analyzed exams of a patient and
// the file name to offer it under.
func (s *Service) Export(ctx context.Context, patientID uuid.UUID) ([]byte, string, error) {
	start := time.Now()
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, "", err
	}
	all, err := s.exams.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, "", err
	}
	var done []*Exam
	for _, e := range all {
		if e.ProcessingStatus == jobs.StatusCompleted {
			done = append(done, e)
		}
	}

	data, err := buildWorkbook(done)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info().Str("patient_id", patientID.String()).Int("rows", len(done)).
		Dur("elapsed", time.Since(start)).Msg("exam export built")
	return data, fmt.Sprintf("exames-%s.xlsx", p.ID), nil
}

func buildWorkbook(exams []*Exam) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", examsSheet)
	if _, err := f.NewSheet(abnormalSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	writeRow(f, examsSheet, 1, "Data do exame", "Tipo", "Categoria", "Subcategoria", "Arquivo", "Resumo", "Confiança", "Alterados")
	writeRow(f, abnormalSheet, 1, "Data do exame", "Exame", "Parâmetro", "Valor", "Referência", "Status")
	_ = f.SetCellStyle(examsSheet, "A1", "H1", bold)
	_ = f.SetCellStyle(abnormalSheet, "A1", "F1", bold)

	row, abnormalRow := 2, 2
	for _, e := range exams {
		date := examDateCell(e)
		confidence := ""
		if e.Confidence != nil {
			confidence = fmt.Sprintf("%.0f%%", *e.Confidence*100)
		}
		writeRow(f, examsSheet, row, date, deref(e.ExamType), deref(e.Category), deref(e.SubCategory),
			e.FileName, truncate(deref(e.AISummary), 500), confidence, len(e.AbnormalValues))
		row++

		for _, v := range e.AbnormalValues {
			writeRow(f, abnormalSheet, abnormalRow, date, deref(e.ExamType), v.Parameter, v.Value, v.Reference, v.Status)
			abnormalRow++
		}
	}

	_ = f.SetColWidth(examsSheet, "A", "A", 14)
	_ = f.SetColWidth(examsSheet, "B", "E", 24)
	_ = f.SetColWidth(examsSheet, "F", "F", 80)
	_ = f.SetColWidth(abnormalSheet, "A", "A", 14)
	_ = f.SetColWidth(abnormalSheet, "B", "F", 24)
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func examDateCell(e *Exam) string {
	if e.ExamDate != nil {
		return e.ExamDate.Format("2006-01-02")
	}
	return e.CreatedAt.Format("2006-01-02")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
