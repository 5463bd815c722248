package report

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/consultation"
	"github.com/clinic/clinic/internal/domain/exam"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/anthropic"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/jobs"
)

// -- Mocks --

type mockReportRepo struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*Report
	seq     int
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{reports: make(map[uuid.UUID]*Report)}
}

func (m *mockReportRepo) Create(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	r.ID = uuid.New()
	r.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *mockReportRepo) GetByID(_ context.Context, id uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("not found")
	}
	cp := *r
	return &cp, nil
}

func (m *mockReportRepo) all() []*Report {
	out := []*Report{}
	for _, r := range m.reports {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockReportRepo) List(_ context.Context, limit, offset int) ([]*Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.all()
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *mockReportRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*Report{}
	for _, r := range m.all() {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReportRepo) update(id uuid.UUID, fn func(r *Report)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return apperr.NotFound("not found")
	}
	fn(r)
	return nil
}

func (m *mockReportRepo) Update(_ context.Context, r *Report) error {
	return m.update(r.ID, func(stored *Report) {
		stored.RedBloodCells, stored.WhiteBloodCells = r.RedBloodCells, r.WhiteBloodCells
		stored.Platelets, stored.Plasma = r.Platelets, r.Plasma
		stored.Supplementation, stored.Phytotherapy, stored.NutritionalGuidance = r.Supplementation, r.Phytotherapy, r.NutritionalGuidance
		stored.Status, stored.ReviewedAt = r.Status, r.ReviewedAt
	})
}

func (m *mockReportRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return apperr.NotFound("not found")
	}
	delete(m.reports, id)
	return nil
}

func (m *mockReportRepo) Reset(_ context.Context, id uuid.UUID) error {
	return m.update(id, clearGenerated)
}

func (m *mockReportRepo) Complete(_ context.Context, id uuid.UUID, g Generated) error {
	return m.update(id, func(r *Report) {
		clearGenerated(r)
		r.ProcessingStatus, r.Status, r.AIGenerated = jobs.StatusCompleted, StatusPendingReview, true
		r.FullReportContent, r.Summary, r.AIModel = &g.Content, &g.Summary, &g.Model
		r.MainFindings, r.Recommendations = g.MainFindings, g.Recommendations
		r.RedBloodCells = nullable(g.RedBloodCells)
		r.Supplementation = nullable(g.Supplementation)
	})
}

func (m *mockReportRepo) Fail(_ context.Context, id uuid.UUID, message string) error {
	return m.update(id, func(r *Report) {
		status := r.Status
		clearGenerated(r)
		r.Status = status
		r.ProcessingStatus = jobs.StatusFailed
		r.ProcessingError = &message
	})
}

type mockPatients struct {
	patients map[uuid.UUID]*patient.Patient
}

func (m *mockPatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

type mockUsers struct {
	users map[uuid.UUID]*staff.User
}

func (m *mockUsers) GetUser(_ context.Context, id uuid.UUID) (*staff.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

type mockConsultations struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*consultation.Consultation
	created []*consultation.Consultation
}

func (m *mockConsultations) GetConsultation(_ context.Context, id uuid.UUID) (*consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, apperr.NotFound("consultation not found")
	}
	return c, nil
}

func (m *mockConsultations) LatestForPatient(_ context.Context, patientID uuid.UUID) (*consultation.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *consultation.Consultation
	for _, c := range m.byID {
		if c.PatientID == patientID && (latest == nil || c.Date.After(latest.Date)) {
			latest = c
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("consultation not found")
	}
	return latest, nil
}

func (m *mockConsultations) CreateRecord(_ context.Context, c *consultation.Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	if c.Date.IsZero() {
		c.Date = time.Now()
	}
	m.byID[c.ID] = c
	m.created = append(m.created, c)
	return nil
}

type mockExams struct {
	exams []*exam.Exam
	err   error
}

func (m *mockExams) CompletedForReport(context.Context, uuid.UUID) ([]*exam.Exam, error) {
	return m.exams, m.err
}

type fakeMessenger struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []anthropic.Request
}

func (f *fakeMessenger) CreateMessage(_ context.Context, req anthropic.Request) (*anthropic.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.Response{
		Model:   req.Model,
		Content: []anthropic.ContentBlock{anthropic.TextBlock(f.text)},
	}, nil
}

func (f *fakeMessenger) set(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.err = text, err
}

func (f *fakeMessenger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeMessenger) lastPrompt(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("expected a model request")
	}
	return f.requests[len(f.requests)-1].Messages[0].Content[0].Text
}

type testEnv struct {
	svc           *Service
	reports       *mockReportRepo
	consultations *mockConsultations
	exams         *mockExams
	messenger     *fakeMessenger
	runner        *jobs.Runner
	patient       *patient.Patient
	user          *staff.User
}

func newTestEnv() *testEnv {
	p := &patient.Patient{ID: uuid.New(), FullName: "Carla Souza", Phone: "11999990000"}
	u := &staff.User{ID: uuid.New(), Name: "Dra. Ana", Email: "ana@example.com"}
	env := &testEnv{
		reports:       newMockReportRepo(),
		consultations: &mockConsultations{byID: make(map[uuid.UUID]*consultation.Consultation)},
		exams:         &mockExams{},
		messenger:     &fakeMessenger{text: sampleReport},
		runner:        jobs.NewRunner(context.Background(), zerolog.Nop()),
		patient:       p,
		user:          u,
	}
	env.svc = NewService(Deps{
		Reports:       env.reports,
		Patients:      &mockPatients{patients: map[uuid.UUID]*patient.Patient{p.ID: p}},
		Users:         &mockUsers{users: map[uuid.UUID]*staff.User{u.ID: u}},
		Consultations: env.consultations,
		Exams:         env.exams,
		Tx:            db.NoTx{},
		Messenger:     env.messenger,
		Model:         "claude-test",
		Runner:        env.runner,
		Logger:        zerolog.Nop(),
	})
	return env
}

func (env *testEnv) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.runner.Wait(ctx); err != nil {
		t.Fatalf("jobs did not finish: %v", err)
	}
}

func (env *testEnv) input() GenerateInput {
	return GenerateInput{PatientID: &env.patient.ID, ConductedBy: &env.user.ID}
}

func (env *testEnv) addConsultation(date time.Time, complaint string) *consultation.Consultation {
	c := &consultation.Consultation{
		ID:             uuid.New(),
		PatientID:      env.patient.ID,
		ConductedBy:    env.user.ID,
		Date:           date,
		ChiefComplaint: &complaint,
		Status:         consultation.StatusCompleted,
	}
	env.consultations.byID[c.ID] = c
	return c
}

// -- Tests --

func TestGenerate_CreatesConsultationAndCompletes(t *testing.T) {
	env := newTestEnv()
	r, err := env.svc.Generate(context.Background(), env.input(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ProcessingStatus != jobs.StatusProcessing || r.Status != StatusDraft {
		t.Errorf("expected PROCESSING/DRAFT on trigger, got %s/%s", r.ProcessingStatus, r.Status)
	}
	if len(env.consultations.created) != 1 {
		t.Fatalf("expected one automatic consultation, got %d", len(env.consultations.created))
	}
	auto := env.consultations.created[0]
	if auto.Status != consultation.StatusCompleted || *auto.ChiefComplaint != AutoChiefComplaint {
		t.Errorf("unexpected automatic consultation: %s %q", auto.Status, *auto.ChiefComplaint)
	}
	if r.ConsultationID != auto.ID {
		t.Error("expected the report to reference the automatic consultation")
	}
	env.wait(t)

	got, err := env.svc.GetReport(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.ProcessingStatus != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.ProcessingStatus)
	}
	if got.Status != StatusPendingReview || !got.AIGenerated {
		t.Errorf("expected PENDING_REVIEW and ai_generated, got %s %v", got.Status, got.AIGenerated)
	}
	if got.ProcessingError != nil {
		t.Errorf("expected no error, got %q", *got.ProcessingError)
	}
	if got.Summary == nil || !strings.HasPrefix(*got.Summary, "Paciente com sinais") {
		t.Errorf("unexpected summary: %v", got.Summary)
	}
	if len(got.MainFindings) != 2 || len(got.Recommendations) != 4 {
		t.Errorf("unexpected findings/recommendations: %v / %v", got.MainFindings, got.Recommendations)
	}
	if got.AIModel == nil || *got.AIModel != "claude-test" {
		t.Errorf("expected ai_model claude-test, got %v", got.AIModel)
	}

	req := env.messenger.requests[0]
	if req.MaxTokens != 4096 || req.Temperature != 0.3 {
		t.Errorf("unexpected request parameters: %d %v", req.MaxTokens, req.Temperature)
	}
}

func TestGenerate_UsesLatestConsultationForContext(t *testing.T) {
	env := newTestEnv()
	env.addConsultation(time.Now().Add(-48*time.Hour), "Antiga")
	env.addConsultation(time.Now().Add(-time.Hour), "Dor de cabeça")

	if _, err := env.svc.Generate(context.Background(), env.input(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.wait(t)

	prompt := env.messenger.lastPrompt(t)
	if !strings.Contains(prompt, "Dor de cabeça") {
		t.Error("expected the latest consultation in the prompt")
	}
	if strings.Contains(prompt, "Antiga") {
		t.Error("expected older consultations to be left out")
	}
}

func TestGenerate_WithConsultation(t *testing.T) {
	env := newTestEnv()
	c := env.addConsultation(time.Now(), "Retorno")
	in := env.input()
	in.ConsultationID = &c.ID

	r, err := env.svc.Generate(context.Background(), in, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.consultations.created) != 0 {
		t.Error("expected no consultation to be created")
	}
	if r.ConsultationID != c.ID {
		t.Error("expected the given consultation to be referenced")
	}
	if r.ProcessingStatus != jobs.StatusCompleted {
		t.Errorf("expected COMPLETED after a waited generation, got %s", r.ProcessingStatus)
	}
}

func TestGenerate_Validation(t *testing.T) {
	env := newTestEnv()
	missing := uuid.New()
	other := &consultation.Consultation{ID: uuid.New(), PatientID: uuid.New()}
	env.consultations.byID[other.ID] = other

	tests := []struct {
		name string
		in   GenerateInput
		code apperr.Code
	}{
		{"missing patient", GenerateInput{ConductedBy: &env.user.ID}, apperr.CodeValidation},
		{"missing conducted_by", GenerateInput{PatientID: &env.patient.ID}, apperr.CodeValidation},
		{"unknown patient", GenerateInput{PatientID: &missing, ConductedBy: &env.user.ID}, apperr.CodeNotFound},
		{"unknown user", GenerateInput{PatientID: &env.patient.ID, ConductedBy: &missing}, apperr.CodeNotFound},
		{"unknown consultation", GenerateInput{PatientID: &env.patient.ID, ConductedBy: &env.user.ID, ConsultationID: &missing}, apperr.CodeNotFound},
		{"consultation of another patient", GenerateInput{PatientID: &env.patient.ID, ConductedBy: &env.user.ID, ConsultationID: &other.ID}, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Generate(context.Background(), tt.in, false)
			if !apperr.Is(err, tt.code) {
				t.Errorf("expected %s error, got %v", tt.code, err)
			}
		})
	}
	if len(env.reports.reports) != 0 {
		t.Errorf("expected no reports to be created, got %d", len(env.reports.reports))
	}
}

func TestGenerate_CollaboratorFailure(t *testing.T) {
	env := newTestEnv()
	env.messenger.set("", &anthropic.APIError{StatusCode: 529, Type: "overloaded_error", Message: "Overloaded"})

	r, err := env.svc.Generate(context.Background(), env.input(), true)
	if err != nil {
		t.Fatalf("expected the failure on the record, got error %v", err)
	}
	if r.ProcessingStatus != jobs.StatusFailed {
		t.Fatalf("expected FAILED, got %s", r.ProcessingStatus)
	}
	if r.ProcessingError == nil || !strings.HasPrefix(*r.ProcessingError, "Erro ao gerar relatório: ") {
		t.Errorf("unexpected error message: %v", r.ProcessingError)
	}
	if r.FullReportContent != nil || r.Summary != nil {
		t.Error("expected no generated content on a failed report")
	}
}

func TestGenerate_ExamSourceFailureMarksRecord(t *testing.T) {
	env := newTestEnv()
	env.exams.err = errors.New("connection reset")

	r, err := env.svc.Generate(context.Background(), env.input(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ProcessingStatus != jobs.StatusFailed || r.ProcessingError == nil {
		t.Errorf("expected a FAILED record with an error, got %s %v", r.ProcessingStatus, r.ProcessingError)
	}
	all, _, _ := env.reports.List(context.Background(), 10, 0)
	if len(all) != 1 || all[0].ProcessingStatus != jobs.StatusFailed {
		t.Fatalf("expected the created report to be FAILED, got %+v", all)
	}
	if n := env.runner.InFlight(); n != 0 {
		t.Errorf("expected no generation job, got %d in flight", n)
	}
}

func TestGenerate_WaitExamSourceFailureReturnsRecord(t *testing.T) {
	env := newTestEnv()
	env.exams.err = errors.New("connection reset")

	r, err := env.svc.Generate(context.Background(), env.input(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ProcessingStatus != jobs.StatusFailed {
		t.Errorf("expected FAILED, got %s", r.ProcessingStatus)
	}
	if env.messenger.calls() != 0 {
		t.Errorf("expected no model call, got %d", env.messenger.calls())
	}
}

func TestRegenerate_ClearsAndRuns(t *testing.T) {
	env := newTestEnv()
	env.messenger.set("", errors.New("timeout"))
	r, _ := env.svc.Generate(context.Background(), env.input(), true)
	if r.ProcessingStatus != jobs.StatusFailed {
		t.Fatalf("expected FAILED first, got %s", r.ProcessingStatus)
	}

	env.messenger.set(sampleReport, nil)
	reset, err := env.svc.Regenerate(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reset.ProcessingStatus != jobs.StatusProcessing || reset.ProcessingError != nil || reset.Status != StatusDraft {
		t.Errorf("expected a cleared PROCESSING/DRAFT record, got %+v", reset)
	}
	env.wait(t)

	got, _ := env.svc.GetReport(context.Background(), r.ID)
	if got.ProcessingStatus != jobs.StatusCompleted || got.ProcessingError != nil {
		t.Errorf("expected COMPLETED without error, got %s %v", got.ProcessingStatus, got.ProcessingError)
	}
	if got.Supplementation == nil || !strings.Contains(*got.Supplementation, "Ferro quelato") {
		t.Errorf("unexpected supplementation: %v", got.Supplementation)
	}
}

func TestRegenerate_NotFound(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.Regenerate(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateReport_ApproveStampsReview(t *testing.T) {
	env := newTestEnv()
	r, _ := env.svc.Generate(context.Background(), env.input(), true)

	plasma := "Plasma revisado"
	approved := StatusApproved
	got, err := env.svc.UpdateReport(context.Background(), r.ID, UpdateInput{Plasma: &plasma, Status: &approved})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusApproved || got.ReviewedAt == nil {
		t.Errorf("expected APPROVED with reviewed_at, got %s %v", got.Status, got.ReviewedAt)
	}
	if got.Plasma == nil || *got.Plasma != plasma {
		t.Errorf("expected plasma updated, got %v", got.Plasma)
	}
	if got.RedBloodCells == nil || *got.RedBloodCells != "Rouleaux moderado" {
		t.Errorf("expected untouched fields kept, got %v", got.RedBloodCells)
	}
}

func TestUpdateReport_NonApprovalLeavesReview(t *testing.T) {
	env := newTestEnv()
	r, _ := env.svc.Generate(context.Background(), env.input(), true)

	delivered := StatusDelivered
	got, err := env.svc.UpdateReport(context.Background(), r.ID, UpdateInput{Status: &delivered})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ReviewedAt != nil {
		t.Error("expected reviewed_at to stay empty")
	}

	bogus := Status("PUBLISHED")
	if _, err := env.svc.UpdateReport(context.Background(), r.ID, UpdateInput{Status: &bogus}); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDeleteReport(t *testing.T) {
	env := newTestEnv()
	r, _ := env.svc.Generate(context.Background(), env.input(), true)

	if err := env.svc.DeleteReport(context.Background(), r.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.DeleteReport(context.Background(), r.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}
