package exam

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/anthropic"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/filestore"
	"github.com/clinic/clinic/internal/platform/jobs"
)

// -- Mocks --

type mockExamRepo struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*Exam
}

func newMockExamRepo() *mockExamRepo {
	return &mockExamRepo{exams: make(map[uuid.UUID]*Exam)}
}

func (m *mockExamRepo) Create(_ context.Context, e *Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.exams[e.ID] = &cp
	return nil
}

func (m *mockExamRepo) GetByID(_ context.Context, id uuid.UUID) (*Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, apperr.NotFound("not found")
	}
	cp := *e
	return &cp, nil
}

func (m *mockExamRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Exam
	for _, e := range m.exams {
		if e.PatientID == patientID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockExamRepo) Completed(ctx context.Context, patientID uuid.UUID, limit int) ([]*Exam, error) {
	all, _ := m.ListByPatient(ctx, patientID)
	var out []*Exam
	for _, e := range all {
		if e.ProcessingStatus == jobs.StatusCompleted && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockExamRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[id]; !ok {
		return apperr.NotFound("not found")
	}
	delete(m.exams, id)
	return nil
}

func (m *mockExamRepo) update(id uuid.UUID, fn func(e *Exam)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return apperr.NotFound("not found")
	}
	fn(e)
	return nil
}

func (m *mockExamRepo) Reset(_ context.Context, id uuid.UUID) error {
	return m.update(id, clearResult)
}

func (m *mockExamRepo) Complete(_ context.Context, id uuid.UUID, a Analysis) error {
	return m.update(id, func(e *Exam) {
		clearResult(e)
		e.ProcessingStatus = jobs.StatusCompleted
		e.Category, e.ExamType, e.AISummary, e.AIModel = &a.Category, &a.ExamType, &a.Summary, &a.Model
		e.ExamDate = a.ExamDate
		e.ExtractedData, e.KeyFindings, e.AbnormalValues, e.Recommendations = a.ExtractedData, a.KeyFindings, a.AbnormalValues, a.Recommendations
		e.Confidence = &a.Confidence
	})
}

func (m *mockExamRepo) Fail(_ context.Context, id uuid.UUID, message string) error {
	return m.update(id, func(e *Exam) {
		clearResult(e)
		e.ProcessingStatus = jobs.StatusFailed
		e.ProcessingError = &message
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

const hemogramaAnswer = "```json\n" +
	`{"category": "Hemograma", "examType": "Hemograma completo", "summary": "Anemia leve.",` +
	` "abnormalValues": [{"parameter":"Hemoglobina","value":"10","reference":"12-16","status":"LOW"}]}` +
	"\n```"

type testEnv struct {
	svc       *Service
	exams     *mockExamRepo
	files     *filestore.Memory
	messenger *fakeMessenger
	runner    *jobs.Runner
	patient   *patient.Patient
}

func newTestEnv() *testEnv {
	p := &patient.Patient{ID: uuid.New(), FullName: "Beatriz Lima", Phone: "1"}
	env := &testEnv{
		exams:     newMockExamRepo(),
		files:     filestore.NewMemory(),
		messenger: &fakeMessenger{text: hemogramaAnswer},
		runner:    jobs.NewRunner(context.Background(), zerolog.Nop()),
		patient:   p,
	}
	env.svc = NewService(Deps{
		Exams:       env.exams,
		Patients:    &mockPatients{patients: map[uuid.UUID]*patient.Patient{p.ID: p}},
		Files:       env.files,
		Messenger:   env.messenger,
		Model:       "claude-test",
		Runner:      env.runner,
		Logger:      zerolog.Nop(),
		MaxFileSize: 1024,
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

func (env *testEnv) upload(t *testing.T) *Exam {
	t.Helper()
	e, err := env.svc.Upload(context.Background(), env.patient.ID, "hemograma.pdf", "application/pdf", strings.NewReader("%PDF-1.4 exam"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return e
}

// -- Tests --

func TestUpload_AnalysisCompletes(t *testing.T) {
	env := newTestEnv()
	e := env.upload(t)

	if e.ProcessingStatus != jobs.StatusProcessing {
		t.Errorf("expected PROCESSING on upload, got %s", e.ProcessingStatus)
	}
	if e.FileType != FileTypePDF {
		t.Errorf("expected pdf file type, got %s", e.FileType)
	}
	env.wait(t)

	got, err := env.svc.GetExam(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if got.ProcessingStatus != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.ProcessingStatus)
	}
	if got.ProcessingError != nil {
		t.Errorf("expected no error, got %q", *got.ProcessingError)
	}
	if got.Category == nil || *got.Category != "Hemograma" {
		t.Errorf("unexpected category %v", got.Category)
	}
	if len(got.AbnormalValues) != 1 || got.AbnormalValues[0].Status != "LOW" {
		t.Errorf("unexpected abnormal values %+v", got.AbnormalValues)
	}

	req := env.messenger.requests[0]
	if req.MaxTokens != 4096 || req.Temperature != 0.2 || req.Model != "claude-test" {
		t.Errorf("unexpected request parameters %+v", req)
	}
	blocks := req.Messages[0].Content
	if len(blocks) != 2 || blocks[0].Type != "document" || blocks[0].Source.MediaType != "application/pdf" || blocks[1].Type != "text" {
		t.Errorf("expected document block followed by the prompt, got %+v", blocks)
	}
}

func TestUpload_ImageBlock(t *testing.T) {
	env := newTestEnv()
	e, err := env.svc.Upload(context.Background(), env.patient.ID, "exame.png", "image/png", strings.NewReader("\x89PNG"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	env.wait(t)
	if e.FileType != FileTypeImage {
		t.Errorf("expected image file type, got %s", e.FileType)
	}
	block := env.messenger.requests[0].Messages[0].Content[0]
	if block.Type != "image" || block.Source.MediaType != "image/png" {
		t.Errorf("expected png image block, got %+v", block)
	}
}

func TestUpload_UnparseableAnswerStillCompletes(t *testing.T) {
	env := newTestEnv()
	env.messenger.set("Desculpe, não consegui identificar os valores.", nil)
	e := env.upload(t)
	env.wait(t)

	got, _ := env.svc.GetExam(context.Background(), e.ID)
	if got.ProcessingStatus != jobs.StatusCompleted {
		t.Fatalf("expected degraded COMPLETED, got %s", got.ProcessingStatus)
	}
	if *got.Category != CategoryOther || *got.Confidence != 0.5 {
		t.Errorf("expected fallback result, got category %q confidence %v", *got.Category, *got.Confidence)
	}
}

func TestUpload_CollaboratorErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"billing",
			&anthropic.APIError{StatusCode: 400, Type: "invalid_request_error", Message: "Your credit balance is too low"},
			"Falha na análise: créditos insuficientes na Anthropic. Acesse o painel da Anthropic para recarregar antes de tentar novamente.",
		},
		{"network", errors.New("connection reset"), "Falha na análise: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.messenger.set("", tt.err)
			e := env.upload(t)
			env.wait(t)

			got, _ := env.svc.GetExam(context.Background(), e.ID)
			if got.ProcessingStatus != jobs.StatusFailed {
				t.Fatalf("expected FAILED, got %s", got.ProcessingStatus)
			}
			if got.ProcessingError == nil || *got.ProcessingError != tt.want {
				t.Errorf("expected error %q, got %v", tt.want, got.ProcessingError)
			}
			if got.Category != nil || got.AISummary != nil {
				t.Error("expected no result fields on failure")
			}
		})
	}
}

func TestUpload_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Upload(ctx, uuid.New(), "a.pdf", "application/pdf", strings.NewReader("%PDF")); !apperr.IsNotFound(err) {
		t.Errorf("expected not found for unknown patient, got %v", err)
	}
	if _, err := env.svc.Upload(ctx, env.patient.ID, "a.pdf", "application/pdf", strings.NewReader(strings.Repeat("x", 2048))); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error for oversized file, got %v", err)
	}
	if _, err := env.svc.Upload(ctx, env.patient.ID, "notes.txt", "text/plain", strings.NewReader("hi")); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error for text file, got %v", err)
	}
	if len(env.exams.exams) != 0 {
		t.Errorf("expected no exam records, got %d", len(env.exams.exams))
	}
}

func TestReprocess_FailedThenSucceeds(t *testing.T) {
	env := newTestEnv()
	env.messenger.set("", errors.New("overloaded"))
	e := env.upload(t)
	env.wait(t)

	env.messenger.set(hemogramaAnswer, nil)
	reset, err := env.svc.Reprocess(context.Background(), e.ID, false)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if reset.ProcessingStatus != jobs.StatusProcessing || reset.ProcessingError != nil {
		t.Errorf("expected reset record, got %+v", reset)
	}
	env.wait(t)

	got, _ := env.svc.GetExam(context.Background(), e.ID)
	if got.ProcessingStatus != jobs.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.ProcessingStatus)
	}
	if got.ProcessingError != nil {
		t.Errorf("expected prior error cleared, got %q", *got.ProcessingError)
	}
}

func TestReprocess_Wait(t *testing.T) {
	env := newTestEnv()
	env.messenger.set("", errors.New("overloaded"))
	e := env.upload(t)
	env.wait(t)

	env.messenger.set(hemogramaAnswer, nil)
	got, err := env.svc.Reprocess(context.Background(), e.ID, true)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if got.ProcessingStatus != jobs.StatusCompleted {
		t.Errorf("expected the final record, got %s", got.ProcessingStatus)
	}
}

func TestReprocess_Errors(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.Reprocess(context.Background(), uuid.New(), false); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	orphan := &Exam{PatientID: env.patient.ID, FileName: "x.pdf", ProcessingStatus: jobs.StatusFailed}
	env.exams.Create(context.Background(), orphan)
	if _, err := env.svc.Reprocess(context.Background(), orphan.ID, false); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("expected validation error without a file, got %v", err)
	}
}

// A reprocess started while the first analysis is still running is not
// serialized against it: both write the same record and the later write
// decides the final state.
func TestReprocess_RacingAnalysesLastWriteWins(t *testing.T) {
	env := newTestEnv()
	e := env.upload(t)
	env.wait(t)

	sink := env.svc.examSink()
	ctx := context.Background()
	if err := sink.Fail(ctx, e.ID.String(), "Falha na análise: timeout"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := sink.Complete(ctx, e.ID.String(), Normalize(hemogramaAnswer, "claude-test")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := env.svc.GetExam(ctx, e.ID)
	if got.ProcessingStatus != jobs.StatusCompleted || got.ProcessingError != nil || got.AISummary == nil {
		t.Errorf("expected a coherent COMPLETED record, got %+v", got)
	}

	if err := sink.Fail(ctx, e.ID.String(), "Falha na análise: timeout"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ = env.svc.GetExam(ctx, e.ID)
	if got.ProcessingStatus != jobs.StatusFailed || got.AISummary != nil || got.Category != nil {
		t.Errorf("expected a coherent FAILED record, got %+v", got)
	}
}

func TestDeleteExam(t *testing.T) {
	env := newTestEnv()
	e := env.upload(t)
	env.wait(t)

	if err := env.svc.DeleteExam(context.Background(), e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if env.files.Exists(filestore.PathFromURL(e.FileURL)) {
		t.Error("expected exam file removed")
	}
	if _, err := env.svc.GetExam(context.Background(), e.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected exam gone, got %v", err)
	}
}

func TestDeleteExam_FileAlreadyGone(t *testing.T) {
	env := newTestEnv()
	e := env.upload(t)
	env.wait(t)
	env.files.Remove(context.Background(), filestore.PathFromURL(e.FileURL))

	if err := env.svc.DeleteExam(context.Background(), e.ID); err != nil {
		t.Errorf("expected delete to succeed, got %v", err)
	}
}

func TestCompletedForReport(t *testing.T) {
	env := newTestEnv()
	env.upload(t)
	env.wait(t)
	env.messenger.set("", errors.New("boom"))
	env.upload(t)
	env.wait(t)

	items, err := env.svc.CompletedForReport(context.Background(), env.patient.ID)
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 completed exam, got %d", len(items))
	}
}
