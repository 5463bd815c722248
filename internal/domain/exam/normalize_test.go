package exam

import (
	"reflect"
	"testing"
)

const testModel = "claude-test"

func TestNormalize_NoObjectFallsBack(t *testing.T) {
	raw := "Não foi possível ler o exame enviado. A imagem está desfocada."
	a := Normalize(raw, testModel)

	if a.Category != CategoryOther {
		t.Errorf("expected category %q, got %q", CategoryOther, a.Category)
	}
	if a.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", a.Confidence)
	}
	if a.Summary != raw {
		t.Errorf("expected raw text as summary, got %q", a.Summary)
	}
	if a.ExamType != "Não identificado" {
		t.Errorf("expected unidentified exam type, got %q", a.ExamType)
	}
	if a.ExtractedData["rawText"] != raw {
		t.Errorf("expected rawText in extracted data, got %v", a.ExtractedData)
	}
	if a.Model != testModel {
		t.Errorf("expected model %q, got %q", testModel, a.Model)
	}
}

func TestNormalize_BrokenJSONFallsBack(t *testing.T) {
	raw := "```json\n{\"category\": \"Hemograma\",\n```\nResto do texto {sem json}"
	a := Normalize(raw, testModel)
	if a.Category != CategoryOther || a.Summary != raw || a.Confidence != 0.5 {
		t.Errorf("expected fallback result, got %+v", a)
	}
}

func TestNormalize_FencedCanonicalAbnormalValues(t *testing.T) {
	raw := "Segue a análise:\n```json\n" +
		`{"category": "Hemograma", "abnormalValues": [{"parameter":"Hemoglobina","value":"10","reference":"12-16","status":"LOW"}]}` +
		"\n```\nAtenciosamente."
	a := Normalize(raw, testModel)

	if a.Category != "Hemograma" {
		t.Errorf("expected Hemograma, got %q", a.Category)
	}
	if len(a.AbnormalValues) != 1 {
		t.Fatalf("expected 1 abnormal value, got %d", len(a.AbnormalValues))
	}
	v := a.AbnormalValues[0]
	if v.Parameter != "Hemoglobina" || v.Status != "LOW" || v.Value != "10" || v.Reference != "12-16" {
		t.Errorf("unexpected abnormal value %+v", v)
	}
	if a.Summary != "Análise não disponível" {
		t.Errorf("expected placeholder summary, got %q", a.Summary)
	}
}

func TestNormalize_PlainObjectInProse(t *testing.T) {
	raw := `Análise concluída. {"category": "Glicemia", "examType": "Glicemia de jejum", "summary": "Glicemia normal."} Fim.`
	a := Normalize(raw, testModel)
	if a.Category != "Glicemia" || a.ExamType != "Glicemia de jejum" || a.Summary != "Glicemia normal." {
		t.Errorf("unexpected result %+v", a)
	}
	if a.Confidence != 0.9 {
		t.Errorf("expected default confidence 0.9, got %v", a.Confidence)
	}
}

func TestNormalize_PortugueseShape(t *testing.T) {
	raw := "```json\n" + `{
		"categorizacao": {"tipo_exame": "Hemograma Completo", "subtipo": "Série vermelha", "data_coleta": "2025-03-14"},
		"achados_principais": {
			"valores_alterados": [
				{"parametro": "Ferritina", "valor": 8, "referencia": "15-150", "status": "baixo", "significado": "reserva de ferro reduzida"}
			],
			"valores_limites": {"nome": "Vitamina D", "valor": "30", "observacao": "no limite inferior"},
			"valores_normais_relevantes": [{"parametro": "Leucócitos", "valor": "6500", "descricao": "dentro da normalidade"}]
		},
		"resumo_clinico": {
			"correlacoes_clinicas": [{"achado": "Anemia ferropriva", "interpretacao": "compatível", "recomendacoes": ["Repor ferro"]}],
			"recomendacoes": "Repetir em 90 dias",
			"confianca": 0.8
		}
	}` + "\n```"
	a := Normalize(raw, testModel)

	if a.Category != "Hemograma Completo" || a.ExamType != "Hemograma Completo" {
		t.Errorf("expected category and exam type from categorizacao, got %q / %q", a.Category, a.ExamType)
	}
	if a.SubCategory != "Série vermelha" {
		t.Errorf("expected sub category, got %q", a.SubCategory)
	}
	if a.ExamDate == nil || a.ExamDate.Format("2006-01-02") != "2025-03-14" {
		t.Errorf("expected exam date 2025-03-14, got %v", a.ExamDate)
	}

	if len(a.AbnormalValues) != 1 {
		t.Fatalf("expected 1 abnormal value, got %d", len(a.AbnormalValues))
	}
	if got := a.AbnormalValues[0]; got.Parameter != "Ferritina" || got.Value != "8" || got.Status != "BAIXO" {
		t.Errorf("unexpected abnormal value %+v", got)
	}

	wantFindings := []Finding{
		{Parameter: "Ferritina", Value: "8", Reference: "15-150", Status: "baixo", Description: "reserva de ferro reduzida"},
		{Parameter: "Vitamina D", Value: "30", Status: "Limite", Description: "no limite inferior"},
		{Parameter: "Leucócitos", Value: "6500", Status: "Normal", Description: "dentro da normalidade"},
		{Parameter: "Anemia ferropriva", Description: "compatível"},
	}
	if !reflect.DeepEqual(a.KeyFindings, wantFindings) {
		t.Errorf("unexpected findings:\n got %+v\nwant %+v", a.KeyFindings, wantFindings)
	}

	wantSummary := "Principais achados: Ferritina: reserva de ferro reduzida; Vitamina D: no limite inferior"
	if a.Summary != wantSummary {
		t.Errorf("expected summary %q, got %q", wantSummary, a.Summary)
	}
	if !reflect.DeepEqual(a.Recommendations, []string{"Repor ferro", "Repetir em 90 dias"}) {
		t.Errorf("unexpected recommendations %v", a.Recommendations)
	}
	if a.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", a.Confidence)
	}
	if _, ok := a.ExtractedData["categorizacao"]; !ok {
		t.Error("expected the whole answer as extracted data")
	}
}

func TestNormalize_SummaryChain(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"explicit", `{"summary": "Resumo direto", "resumo_clinico": {"resumo_geral": "outro"}}`, "Resumo direto"},
		{"resumo geral", `{"summary": "  ", "resumo_clinico": {"resumo_geral": "Resumo geral"}}`, "Resumo geral"},
		{"conclusao", `{"resumo_clinico": {"conclusao": "Conclusão"}}`, "Conclusão"},
		{"interpretacao list", `{"resumo_clinico": {"interpretacao_achados": ["Ferro baixo.", "B12 normal."]}}`, "Ferro baixo. B12 normal."},
		{"interpretacao text", `{"resumo_clinico": {"interpretacao_achados": "Sem alterações."}}`, "Sem alterações."},
		{"interpretacao mixed", `{"resumo_clinico": {"interpretacao_achados": ["a", 1]}}`, "a 1"},
		{"series", `{"resumo_clinico": {"serie_vermelha": {"interpretacao": "Anemia leve."}, "serie_branca": {"interpretacao": "Normal."}}}`, "Anemia leve. Normal."},
		{"empty", `{"category": "Outros"}`, "Análise não disponível"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw, testModel).Summary; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_InvalidDateDropped(t *testing.T) {
	a := Normalize(`{"category": "Hemograma", "examDate": "ontem à tarde"}`, testModel)
	if a.ExamDate != nil {
		t.Errorf("expected unparseable date to be dropped, got %v", a.ExamDate)
	}
	a = Normalize(`{"categorizacao": {"data": "14/03/2025"}}`, testModel)
	if a.ExamDate == nil || a.ExamDate.Format("2006-01-02") != "2025-03-14" {
		t.Errorf("expected day-first date to parse, got %v", a.ExamDate)
	}
}

func TestNormalize_ExtractedData(t *testing.T) {
	a := Normalize(`{"category": "Lipidograma", "extractedData": "{\"LDL\": \"130 mg/dL\"}"}`, testModel)
	if a.ExtractedData["LDL"] != "130 mg/dL" {
		t.Errorf("expected decoded extracted data, got %v", a.ExtractedData)
	}

	a = Normalize(`{"category": "Lipidograma", "extractedData": "LDL 130"}`, testModel)
	if a.ExtractedData["category"] != "Lipidograma" {
		t.Errorf("expected whole answer when extracted data is not JSON, got %v", a.ExtractedData)
	}
}

func TestNormalize_ConfidenceClamped(t *testing.T) {
	if c := Normalize(`{"confidence": 85}`, testModel).Confidence; c != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", c)
	}
	if c := Normalize(`{"confidence": -2}`, testModel).Confidence; c != 0 {
		t.Errorf("expected confidence clamped to 0, got %v", c)
	}
	if c := Normalize(`{"confidence": "0,75"}`, testModel).Confidence; c != 0.75 {
		t.Errorf("expected textual confidence 0.75, got %v", c)
	}
}

func TestNormalize_ZeroConfidenceDefaults(t *testing.T) {
	doc, _ := decodeObject(`{"category": "Hemograma", "examType": "x", "summary": "y", "keyFindings": [], "abnormalValues": [], "confidence": 0}`)
	if !isCanonical(doc) {
		t.Fatal("expected document to satisfy the canonical schema")
	}
	if c := fromCanonical(doc).Confidence; c != 0.9 {
		t.Errorf("expected canonical confidence 0.9, got %v", c)
	}
	if c := fromAliases(doc).Confidence; c != 0.9 {
		t.Errorf("expected alias confidence 0.9, got %v", c)
	}
	if c := Normalize(`{"resumo_clinico": {"confianca": 0}}`, testModel).Confidence; c != 0.9 {
		t.Errorf("expected default confidence 0.9, got %v", c)
	}
}

func TestNormalize_KeyFindingStrings(t *testing.T) {
	a := Normalize(`{"keyFindings": ["Colesterol elevado", "", {"parametro": "HDL", "valor": "38"}, {"valor": "1"}]}`, testModel)
	want := []Finding{{Description: "Colesterol elevado"}, {Parameter: "HDL", Value: "38"}}
	if !reflect.DeepEqual(a.KeyFindings, want) {
		t.Errorf("expected %+v, got %+v", want, a.KeyFindings)
	}
}

func TestCanonicalFastPathMatchesAliases(t *testing.T) {
	doc, ok := decodeObject(`{
		"category": "Tireoide",
		"examType": "TSH e T4 livre",
		"examDate": "2025-01-20",
		"summary": "TSH discretamente elevado.",
		"keyFindings": [{"parameter": "TSH", "value": "5.1", "status": "HIGH", "description": "acima da referência"}],
		"abnormalValues": [{"parameter": "TSH", "value": "5.1", "reference": "0.4-4.5", "status": "HIGH"}],
		"recommendations": ["Repetir TSH"],
		"confidence": 0.95
	}`)
	if !ok {
		t.Fatal("expected document to decode")
	}
	if !isCanonical(doc) {
		t.Fatal("expected document to satisfy the canonical schema")
	}
	fast, slow := fromCanonical(doc), fromAliases(doc)
	if !reflect.DeepEqual(fast, slow) {
		t.Errorf("fast path differs from alias path:\nfast %+v\nslow %+v", fast, slow)
	}
}

func TestIsCanonical_RejectsAliasShapes(t *testing.T) {
	doc, _ := decodeObject(`{"category": "Hemograma", "examType": "x", "summary": "y", "keyFindings": [], "abnormalValues": [], "categorizacao": {}}`)
	if isCanonical(doc) {
		t.Error("expected extra keys to leave the canonical fast path")
	}
	doc, _ = decodeObject(`{"category": "Hemograma", "examType": "x", "summary": "y", "keyFindings": [], "abnormalValues": [{"parameter": "Hb", "value": 10, "status": "LOW"}]}`)
	if isCanonical(doc) {
		t.Error("expected numeric value to fail the canonical schema")
	}
}

func TestExtractorsCompile(t *testing.T) {
	for _, src := range findingSources {
		if src.list.name == "" || src.list.expr == nil {
			t.Errorf("finding source without expression: %+v", src.list)
		}
	}
	for _, e := range summaryAliases {
		if e.eval(map[string]any{}) != nil {
			t.Errorf("expected %s to yield nothing on an empty document", e.name)
		}
	}
}

func TestCompareWithReference(t *testing.T) {
	tests := []struct {
		value float64
		want  Reference
	}{
		{14, ReferenceNormal},
		{12, ReferenceNormal},
		{11, ReferenceLow},
		{8, ReferenceCriticalLow},
		{17, ReferenceHigh},
		{21, ReferenceCriticalHigh},
	}
	for _, tt := range tests {
		if got := CompareWithReference(tt.value, 12, 16); got != tt.want {
			t.Errorf("CompareWithReference(%v, 12, 16) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestMediaTypeFor(t *testing.T) {
	tests := map[string]string{
		"scan.PNG":  "image/png",
		"scan.webp": "image/webp",
		"scan.tif":  "image/tiff",
		"scan.jpeg": "image/jpeg",
		"scan.heic": "image/jpeg",
	}
	for name, want := range tests {
		if got := mediaTypeFor(name, FileTypeImage); got != want {
			t.Errorf("mediaTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
	if got := mediaTypeFor("scan.png", FileTypePDF); got != "application/pdf" {
		t.Errorf("expected pdf media type, got %q", got)
	}
	if FileTypeFor("application/pdf") != FileTypePDF || FileTypeFor("image/png") != FileTypeImage {
		t.Error("unexpected file type classification")
	}
}
