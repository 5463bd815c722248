package exam

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/anthropic"
	"github.com/clinic/clinic/internal/platform/filestore"
	"github.com/clinic/clinic/internal/platform/jobs"
)

// Messenger sends one request to the document and vision model.
type Messenger interface {
	CreateMessage(ctx context.Context, req anthropic.Request) (*anthropic.Response, error)
}

const (
	analysisMaxTokens   = 4096
	analysisTemperature = 0.2
)

const analysisPrompt = `Você é um especialista em análise de exames laboratoriais e está ajudando uma farmacêutica especializada em Análise do Sangue Vivo.

Analise este exame laboratorial e extraia as seguintes informações:

1. **CATEGORIZAÇÃO:**
   - Tipo de exame (Hemograma, Lipidograma, Hormônios, etc.)
   - Subcategoria específica
   - Data do exame (se visível)

2. **DADOS EXTRAÍDOS:**
   - Todos os parâmetros e seus valores
   - Valores de referência
   - Unidades de medida

3. **ACHADOS PRINCIPAIS:**
   - Valores alterados (acima ou abaixo da referência)
   - Valores críticos (se houver)
   - Padrões importantes

4. **RESUMO CLÍNICO:**
   - Resumo geral do exame
   - Interpretação dos achados
   - Possíveis correlações clínicas

Retorne um JSON estruturado com todas essas informações.

**IMPORTANTE:**
- Seja preciso com números e unidades
- Identifique claramente valores alterados
- Use terminologia médica adequada
- Se não conseguir ler algo, indique "Não identificado"`

// FileTypeFor classifies an upload by its content type.
func FileTypeFor(contentType string) FileType {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return FileTypePDF
	}
	return FileTypeImage
}

// mediaTypeFor picks the media type sent with the file. Unknown image
// extensions are sent as JPEG.
func mediaTypeFor(fileName string, ft FileType) string {
	if ft == FileTypePDF {
		return "application/pdf"
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	}
	return "image/jpeg"
}

func fileBlock(fileName string, ft FileType, data []byte) anthropic.ContentBlock {
	if ft == FileTypePDF {
		return anthropic.DocumentBlock(data)
	}
	return anthropic.ImageBlock(mediaTypeFor(fileName, ft), data)
}

func analysisError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "credit balance") {
		return "Falha na análise: créditos insuficientes na Anthropic. Acesse o painel da Anthropic para recarregar antes de tentar novamente."
	}
	return "Falha na análise: " + msg
}

func (s *Service) startAnalysis(e *Exam) {
	jobs.Start(s.runner, jobs.KindExamAnalysis, e.ID.String(), s.examSink(), s.analyzeCall(e), analysisError)
}

func (s *Service) runAnalysis(e *Exam) error {
	return jobs.Run(s.runner, jobs.KindExamAnalysis, e.ID.String(), s.examSink(), s.analyzeCall(e), analysisError)
}

func (s *Service) examSink() jobs.Sink[Analysis] {
	return jobs.SinkFuncs[Analysis]{
		CompleteFn: func(ctx context.Context, id string, a Analysis) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			return s.exams.Complete(ctx, uid, a)
		},
		FailFn: func(ctx context.Context, id string, message string) error {
			uid, err := uuid.Parse(id)
			if err != nil {
				return err
			}
			return s.exams.Fail(ctx, uid, message)
		},
	}
}

// analyzeCall sends the stored file to the model and normalizes its answer.
// Only transport and API errors fail the job; an answer that cannot be
// parsed still completes with the fallback result.
func (s *Service) analyzeCall(e *Exam) jobs.Call[Analysis] {
	fileURL, fileName, ft := e.FileURL, e.FileName, e.FileType
	return func(ctx context.Context) (Analysis, error) {
		data, err := s.files.ReadAll(ctx, filestore.PathFromURL(fileURL))
		if err != nil {
			return Analysis{}, fmt.Errorf("read exam file: %w", err)
		}
		resp, err := s.messenger.CreateMessage(ctx, anthropic.Request{
			Model:       s.model,
			MaxTokens:   analysisMaxTokens,
			Temperature: analysisTemperature,
			Messages: []anthropic.Message{
				anthropic.UserMessage(fileBlock(fileName, ft, data), anthropic.TextBlock(analysisPrompt)),
			},
		})
		if err != nil {
			return Analysis{}, err
		}
		text, err := resp.Text()
		if err != nil {
			return Analysis{}, err
		}
		return Normalize(text, s.model), nil
	}
}
