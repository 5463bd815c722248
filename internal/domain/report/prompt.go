package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinic/clinic/internal/domain/consultation"
	"github.com/clinic/clinic/internal/domain/exam"
	"github.com/clinic/clinic/internal/domain/patient"
)

const ptBRDate = "02/01/2006"

// promptInput is everything a report prompt is built from. It is gathered
// when generation is requested, so the job itself only calls the model.
type promptInput struct {
	Patient      *patient.Patient
	Consultation *consultation.Consultation
	Exams        []*exam.Exam
	Now          time.Time
}

const reportInstructions = `

## INSTRUÇÕES PARA O RELATÓRIO

Gere um relatório médico profissional seguindo esta estrutura EXATA:

### RESUMO EXECUTIVO
[Resumo geral do estado de saúde do paciente em 2-3 parágrafos]

### ACHADOS PRINCIPAIS
- [Achado 1]
- [Achado 2]
- [Achado 3]
...

### ANÁLISE DETALHADA

#### Análise Microscópica - Campo Claro
- **Hemácias:** [descrição]
- **Leucócitos:** [descrição]
- **Plaquetas:** [descrição]
- **Plasma:** [descrição]

#### Análise Microscópica - Campo Escuro
- **Atividade Microbiana:** [descrição]
- **Cristalizações:** [descrição]
- **Debris Celulares:** [descrição]

### CORRELAÇÃO CLÍNICA
[Análise integrativa conectando os achados com sintomas e histórico]

### ORIENTAÇÕES TERAPÊUTICAS

#### Suplementação
- [Suplemento 1] - [dosagem] - [justificativa]
- [Suplemento 2] - [dosagem] - [justificativa]

#### Fitoterapia
- [Fitoterápico 1] - [forma de uso] - [benefícios]
- [Fitoterápico 2] - [forma de uso] - [benefícios]

#### Orientações Nutricionais
- [Orientação 1]
- [Orientação 2]

#### Estilo de Vida
- [Recomendação 1]
- [Recomendação 2]

### ACOMPANHAMENTO
- Retorno sugerido: [período]
- Exames complementares: [se necessário]

---

Responda APENAS com o relatório formatado em Markdown, sem nenhum texto adicional antes ou depois.`

func buildPrompt(in promptInput) string {
	var b strings.Builder
	p := in.Patient

	b.WriteString("Você é uma assistente especializada em análise de sangue vivo e medicina integrativa.\n\n")
	b.WriteString("Gere um relatório profissional completo com base nas seguintes informações:\n\n")
	b.WriteString("## INFORMAÇÕES DO PACIENTE\n")
	fmt.Fprintf(&b, "- Nome: %s\n", p.FullName)
	if age, ok := p.Age(in.Now); ok {
		fmt.Fprintf(&b, "- Idade: %d anos\n", age)
	} else {
		b.WriteString("- Idade: Não informada\n")
	}
	fmt.Fprintf(&b, "- Tipo Sanguíneo: %s\n", orDefault(p.BloodType, "Não informado"))
	contact := p.Phone
	if email := orDefault(p.Email, ""); email != "" {
		contact += " | " + email
	}
	fmt.Fprintf(&b, "- Contato: %s\n", contact)

	section(&b, "### Alergias", p.Allergies)
	section(&b, "### Medicações Atuais", p.CurrentMedications)
	section(&b, "### Histórico Médico", p.MedicalHistory)

	if c := in.Consultation; c != nil {
		fmt.Fprintf(&b, "\n## CONSULTA (%s)\n", c.Date.Format(ptBRDate))
		section(&b, "### Queixa Principal", c.ChiefComplaint)
		section(&b, "### Sintomas", c.Symptoms)
		section(&b, "### Transcrição da Consulta", c.Transcription)
	}

	if len(in.Exams) > 0 {
		b.WriteString("\n## EXAMES ANALISADOS\n")
		for i, e := range in.Exams {
			writeExam(&b, i+1, e)
		}
	}

	b.WriteString(reportInstructions)
	return b.String()
}

func writeExam(b *strings.Builder, n int, e *exam.Exam) {
	fmt.Fprintf(b, "\n### Exame %d: %s\n", n, orDefault(e.Category, exam.CategoryOther))
	if e.ExamDate != nil {
		fmt.Fprintf(b, "Data: %s\n", e.ExamDate.Format(ptBRDate))
	}
	if summary := orDefault(e.AISummary, ""); summary != "" {
		fmt.Fprintf(b, "\n%s\n", summary)
	}
	if len(e.KeyFindings) > 0 {
		b.WriteString("\n**Achados principais:**\n")
		for _, f := range e.KeyFindings {
			fmt.Fprintf(b, "- %s\n", findingLine(f))
		}
	}
	if len(e.AbnormalValues) > 0 {
		b.WriteString("\n**Valores alterados:**\n")
		for _, v := range e.AbnormalValues {
			line := fmt.Sprintf("%s: %s", v.Parameter, v.Value)
			if v.Reference != "" {
				line += fmt.Sprintf(" (ref: %s)", v.Reference)
			}
			if v.Status != "" {
				line += " - " + v.Status
			}
			fmt.Fprintf(b, "- %s\n", line)
		}
	}
}

func findingLine(f exam.Finding) string {
	var parts []string
	if f.Parameter != "" {
		head := f.Parameter
		if f.Value != "" {
			head += ": " + f.Value
		}
		parts = append(parts, head)
	}
	if f.Status != "" {
		parts = append(parts, f.Status)
	}
	if f.Description != "" {
		parts = append(parts, f.Description)
	}
	return strings.Join(parts, " - ")
}

func section(b *strings.Builder, title string, body *string) {
	if text := orDefault(body, ""); text != "" {
		fmt.Fprintf(b, "\n%s\n%s\n", title, text)
	}
}

func orDefault(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}
