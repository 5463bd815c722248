package patient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/filestore"
)

type mockPatientRepo struct {
	patients      map[uuid.UUID]*Patient
	exams         map[uuid.UUID][]ExamSummary
	consultations map[uuid.UUID][]ConsultationSummary
	deleteErr     error
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{
		patients:      make(map[uuid.UUID]*Patient),
		exams:         make(map[uuid.UUID][]ExamSummary),
		consultations: make(map[uuid.UUID][]ConsultationSummary),
	}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("not found")
	}
	return p, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return apperr.NotFound("not found")
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.patients, id)
	delete(m.exams, id)
	return nil
}

func (m *mockPatientRepo) Search(_ context.Context, _ string, _, _ int) ([]*ListItem, int, error) {
	var result []*ListItem
	for _, p := range m.patients {
		result = append(result, &ListItem{Patient: p, Count: Counts{Exams: len(m.exams[p.ID])}})
	}
	return result, len(result), nil
}

func (m *mockPatientRepo) IncrementConsultations(_ context.Context, id uuid.UUID) error {
	if p, ok := m.patients[id]; ok {
		p.TotalConsultations++
	}
	return nil
}

func (m *mockPatientRepo) RecentConsultations(_ context.Context, id uuid.UUID, n int) ([]ConsultationSummary, error) {
	items := m.consultations[id]
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

func (m *mockPatientRepo) RecentReports(_ context.Context, _ uuid.UUID, _ int) ([]ReportSummary, error) {
	return []ReportSummary{}, nil
}

func (m *mockPatientRepo) Exams(_ context.Context, id uuid.UUID) ([]ExamSummary, error) {
	return m.exams[id], nil
}

func newTestService() (*Service, *mockPatientRepo, *filestore.Memory) {
	repo := newMockPatientRepo()
	files := filestore.NewMemory()
	return NewService(repo, db.NoTx{}, files, zerolog.Nop()), repo, files
}

func strPtr(s string) *string { return &s }

func TestCreatePatient(t *testing.T) {
	svc, _, _ := newTestService()
	p := &Patient{FullName: "Ana Paula", Phone: "(61) 98765-4321", Email: strPtr(" ana@example.com "), ConsentGiven: true}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.ConsentDate == nil {
		t.Error("expected consent date to default when consent is given")
	}
	if *p.Email != "ana@example.com" {
		t.Errorf("expected trimmed email, got %q", *p.Email)
	}
}

func TestCreatePatient_RequiredFields(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.CreatePatient(context.Background(), &Patient{Phone: "123"})
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error for missing name, got %v", err)
	}
	err = svc.CreatePatient(context.Background(), &Patient{FullName: "Ana"})
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error for missing phone, got %v", err)
	}
	err = svc.CreatePatient(context.Background(), &Patient{FullName: "Ana", Phone: "1", Email: strPtr("nope")})
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error for bad email, got %v", err)
	}
}

func TestCreatePatient_BlankEmailCleared(t *testing.T) {
	svc, _, _ := newTestService()
	p := &Patient{FullName: "Ana", Phone: "1", Email: strPtr("  ")}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Email != nil {
		t.Errorf("expected blank email to be cleared, got %q", *p.Email)
	}
}

func TestGetDetail(t *testing.T) {
	svc, repo, _ := newTestService()
	p := &Patient{FullName: "Ana", Phone: "1"}
	svc.CreatePatient(context.Background(), p)
	for i := 0; i < 7; i++ {
		repo.consultations[p.ID] = append(repo.consultations[p.ID], ConsultationSummary{ID: uuid.New(), Status: "COMPLETED"})
	}
	repo.exams[p.ID] = []ExamSummary{{ID: uuid.New(), FileName: "hemograma.pdf"}}

	d, err := svc.GetDetail(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Consultations) != 5 {
		t.Errorf("expected 5 recent consultations, got %d", len(d.Consultations))
	}
	if len(d.Exams) != 1 {
		t.Errorf("expected 1 exam, got %d", len(d.Exams))
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GetPatient(context.Background(), uuid.New())
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeletePatient_RemovesExamFiles(t *testing.T) {
	svc, repo, files := newTestService()
	p := &Patient{FullName: "Ana", Phone: "1"}
	svc.CreatePatient(context.Background(), p)

	files.Put("exams/a.pdf", []byte("pdf"))
	repo.exams[p.ID] = []ExamSummary{
		{ID: uuid.New(), FileURL: filestore.URLFor("exams/a.pdf")},
		// Already gone from disk; deletion must still succeed.
		{ID: uuid.New(), FileURL: filestore.URLFor("exams/missing.pdf")},
	}

	if err := svc.DeletePatient(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files.Exists("exams/a.pdf") {
		t.Error("expected exam file to be removed")
	}
	if _, ok := repo.patients[p.ID]; ok {
		t.Error("expected patient to be deleted")
	}
}

func TestDeletePatient_BlockedKeepsFiles(t *testing.T) {
	svc, repo, files := newTestService()
	p := &Patient{FullName: "Ana", Phone: "1"}
	svc.CreatePatient(context.Background(), p)

	files.Put("exams/a.pdf", []byte("pdf"))
	repo.exams[p.ID] = []ExamSummary{{ID: uuid.New(), FileURL: filestore.URLFor("exams/a.pdf")}}
	repo.deleteErr = &apperr.AppError{Code: apperr.CodeForeignKey, Message: "cannot delete because this record is still referenced by a consultation"}

	err := svc.DeletePatient(context.Background(), p.ID)
	if !apperr.Is(err, apperr.CodeForeignKey) {
		t.Fatalf("expected foreign key error, got %v", err)
	}
	if !files.Exists("exams/a.pdf") {
		t.Error("expected exam file to survive a blocked delete")
	}
}

func TestDeletePatient_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if err := svc.DeletePatient(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRecordConsultation(t *testing.T) {
	svc, _, _ := newTestService()
	p := &Patient{FullName: "Ana", Phone: "1"}
	svc.CreatePatient(context.Background(), p)
	svc.RecordConsultation(context.Background(), p.ID)
	if p.TotalConsultations != 1 {
		t.Errorf("expected 1 consultation, got %d", p.TotalConsultations)
	}
}

func TestAge(t *testing.T) {
	p := &Patient{BirthDate: NewDate(1982, time.March, 15)}
	age, ok := p.Age(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if !ok || age != 44 {
		t.Errorf("expected age 44, got %d (%v)", age, ok)
	}
	if _, ok := (&Patient{}).Age(time.Now()); ok {
		t.Error("expected unknown age without birth date")
	}
}

func TestDate_JSON(t *testing.T) {
	var p Patient
	if err := json.Unmarshal([]byte(`{"birth_date":"1982-03-15"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.BirthDate.Year() != 1982 || p.BirthDate.Month() != time.March {
		t.Errorf("unexpected date %v", p.BirthDate)
	}
	if err := json.Unmarshal([]byte(`{"birth_date":"1982-03-15T10:00:00-03:00"}`), &p); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if p.BirthDate.Day() != 15 {
		t.Errorf("expected day 15, got %d", p.BirthDate.Day())
	}

	out, _ := json.Marshal(struct {
		D Date `json:"d"`
	}{})
	if string(out) != `{"d":null}` {
		t.Errorf("expected null for zero date, got %s", out)
	}
	if err := json.Unmarshal([]byte(`{"birth_date":"15/03/1982"}`), &p); err == nil {
		t.Error("expected error for unsupported date format")
	}
}
