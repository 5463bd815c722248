package exam

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
)

const (
	unidentified       = "Não identificado"
	noSummary          = "Análise não disponível"
	unknownParameter   = "Parâmetro não identificado"
	fallbackConfidence = 0.5
	defaultConfidence  = 0.9
)

var fencedJSON = regexp.MustCompile("(?is)```json\\s*(.*?)```")

// Normalize turns the raw text of an analysis answer into the canonical
// result. It never fails: an answer without a parseable object degrades to
// a fallback that carries the raw text as its summary.
func Normalize(raw, model string) Analysis {
	doc, ok := extractObject(raw)
	if !ok {
		return fallback(raw, model)
	}
	var a Analysis
	if isCanonical(doc) {
		a = fromCanonical(doc)
	} else {
		a = fromAliases(doc)
	}
	a.Model = model
	return a
}

// extractObject looks for a fenced ```json block first, then for the span
// between the first "{" and the last "}".
func extractObject(raw string) (map[string]any, bool) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		if obj, ok := decodeObject(m[1]); ok {
			return obj, true
		}
	}
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if obj, ok := decodeObject(raw[start : end+1]); ok {
			return obj, true
		}
	}
	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func fallback(raw, model string) Analysis {
	return Analysis{
		Category:        CategoryOther,
		ExamType:        unidentified,
		ExtractedData:   map[string]any{"rawText": raw},
		KeyFindings:     []Finding{},
		AbnormalValues:  []AbnormalValue{},
		Summary:         raw,
		Recommendations: []string{},
		Confidence:      fallbackConfidence,
		Model:           model,
	}
}

// =========== Alias extractors ===========

// extractor is one named way of reading a value out of an answer.
type extractor struct {
	name string
	expr jmespath.JMESPath
}

func (e extractor) eval(doc any) any {
	v, err := e.expr.Search(doc)
	if err != nil {
		return nil
	}
	return v
}

func mustExtractor(expr string) extractor {
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		panic(fmt.Sprintf("exam: invalid extractor %q: %v", expr, err))
	}
	return extractor{name: expr, expr: compiled}
}

// aliasChain is an ordered list of extractors for one field; the first
// non-empty value wins.
type aliasChain []extractor

func chain(exprs ...string) aliasChain {
	c := make(aliasChain, len(exprs))
	for i, e := range exprs {
		c[i] = mustExtractor(e)
	}
	return c
}

// str returns the first non-blank string.
func (c aliasChain) str(doc any) string {
	for _, e := range c {
		if s, ok := e.eval(doc).(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// text is like str but also accepts numbers.
func (c aliasChain) text(doc any) string {
	for _, e := range c {
		if s := scalarText(e.eval(doc)); s != "" {
			return s
		}
	}
	return ""
}

// value returns the first truthy raw value.
func (c aliasChain) value(doc any) any {
	for _, e := range c {
		if v := e.eval(doc); truthy(v) {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// display renders any decoded JSON value as text.
func display(v any) string {
	if s := scalarText(v); s != "" {
		return s
	}
	switch v.(type) {
	case nil, string:
		return ""
	case map[string]any, []any:
		b, _ := json.Marshal(v)
		return string(b)
	}
	return fmt.Sprint(v)
}

// asList treats a single value as a one-element list.
func asList(v any) []any {
	if !truthy(v) {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

var (
	categoryAliases    = chain("category", "categorizacao.tipo_exame", "categorizacao.area", "categorizacao.grupo")
	subCategoryAliases = chain("subCategory", "categorizacao.subtipo")
	examTypeAliases    = chain("examType", "categorizacao.tipo_exame")
	examDateAliases    = chain("examDate", "categorizacao.data_coleta", "categorizacao.data", "categorizacao.data_liberacao")
	confidenceAliases  = chain("confidence", "resumo_clinico.confianca")
	summaryAliases     = chain(
		"summary",
		"resumo_clinico.resumo_geral",
		"resumo_clinico.status_geral",
		"resumo_clinico.interpretacao_geral",
		"resumo_clinico.conclusao",
		"resumo_clinico.resumo",
	)
	findingsNarrative     = mustExtractor("resumo_clinico.interpretacao_achados")
	seriesInterpretations = chain(
		"resumo_clinico.serie_vermelha.interpretacao",
		"resumo_clinico.serie_branca.interpretacao",
		"resumo_clinico.serie_plaquetaria.interpretacao",
		"resumo_clinico.serie_plaq.interpretacao",
		"resumo_clinico.serie_vermelha_plaquetas.interpretacao",
	)

	abnormalList = mustExtractor("abnormalValues")
	alteredList  = mustExtractor("achados_principais.valores_alterados")
	limitList    = mustExtractor("achados_principais.valores_limites")

	parametroAliases = chain("parametro", "nome")

	abnormalStatus    = chain("status", "severity", "classificacao")
	alteredParameter  = chain("parametro", "nome", "campo")
	alteredValue      = chain("valor", "valor_atual")
	alteredReference  = chain("referencia", "intervalo_referencia")
	alteredClassifier = chain("status", "classificacao")
)

// findingSource reads key findings out of one list in the answer.
type findingSource struct {
	list          extractor
	parameter     aliasChain
	value         aliasChain
	reference     aliasChain
	status        aliasChain
	description   aliasChain
	defaultStatus string
}

var findingSources = []findingSource{
	{
		list:        mustExtractor("keyFindings"),
		parameter:   chain("parameter", "parametro", "nome"),
		value:       chain("value", "valor", "valor_atual"),
		reference:   chain("reference", "referencia", "intervalo_referencia"),
		status:      chain("status", "classificacao"),
		description: chain("description", "descricao", "achado", "significado"),
	},
	{
		list:        alteredList,
		parameter:   parametroAliases,
		value:       chain("valor", "valor_atual"),
		reference:   chain("referencia"),
		status:      chain("status", "classificacao"),
		description: chain("significado", "observacao"),
	},
	{
		list:          limitList,
		parameter:     parametroAliases,
		value:         chain("valor"),
		reference:     chain("referencia"),
		status:        chain("status"),
		description:   chain("observacao"),
		defaultStatus: "Limite",
	},
	{
		list:          mustExtractor("achados_principais.valores_normais_relevantes"),
		parameter:     parametroAliases,
		value:         chain("valor"),
		reference:     chain("referencia"),
		status:        chain("status"),
		description:   chain("descricao", "significado"),
		defaultStatus: "Normal",
	},
	{
		list:        mustExtractor("resumo_clinico.correlacoes_clinicas"),
		parameter:   chain("achado", "descricao"),
		value:       chain("valor"),
		reference:   chain("referencia"),
		status:      chain("status"),
		description: chain("significado", "interpretacao", "achado"),
	},
}

func (src findingSource) read(doc any) []Finding {
	var out []Finding
	for _, item := range asList(src.list.eval(doc)) {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, Finding{Description: s})
			}
			continue
		}
		f := Finding{
			Parameter:   src.parameter.str(item),
			Value:       src.value.text(item),
			Reference:   src.reference.str(item),
			Status:      src.status.str(item),
			Description: src.description.str(item),
		}
		if f.Status == "" {
			f.Status = src.defaultStatus
		}
		if f.Parameter != "" || f.Description != "" {
			out = append(out, f)
		}
	}
	return out
}

// fromAliases maps an answer of unknown shape onto the canonical result.
func fromAliases(doc map[string]any) Analysis {
	a := Analysis{
		Category:    categoryAliases.str(doc),
		SubCategory: subCategoryAliases.str(doc),
		ExamType:    examTypeAliases.str(doc),
		ExamDate:    parseExamDate(examDateAliases.str(doc)),
		KeyFindings: []Finding{},
	}
	if a.Category == "" {
		a.Category = CategoryOther
	}
	if a.ExamType == "" {
		a.ExamType = unidentified
	}

	a.AbnormalValues = abnormalValues(doc)
	for _, src := range findingSources {
		a.KeyFindings = append(a.KeyFindings, src.read(doc)...)
	}
	a.Summary = summary(doc)
	a.Recommendations = recommendations(doc)
	a.ExtractedData = extractedData(doc)
	a.Confidence = confidence(confidenceAliases.value(doc))
	return a
}

func abnormalValues(doc map[string]any) []AbnormalValue {
	out := []AbnormalValue{}
	if list, ok := abnormalList.eval(doc).([]any); ok {
		canonical := findingSources[0]
		for _, item := range list {
			out = append(out, AbnormalValue{
				Parameter: canonical.parameter.str(item),
				Value:     canonical.value.text(item),
				Reference: canonical.reference.str(item),
				Status:    abnormalStatus.str(item),
			})
		}
		return out
	}

	for _, item := range asList(alteredList.eval(doc)) {
		v := AbnormalValue{
			Parameter: alteredParameter.str(item),
			Value:     alteredValue.text(item),
			Reference: alteredReference.str(item),
			Status:    strings.ToUpper(alteredClassifier.str(item)),
		}
		if v.Parameter == "" {
			v.Parameter = unknownParameter
		}
		if v.Status == "" {
			v.Status = "ALTERADO"
		}
		out = append(out, v)
	}
	return out
}

// summary walks the fallback chain: an explicit summary, the clinical
// narrative, the per-series interpretations plus the main altered findings,
// and finally a fixed placeholder.
func summary(doc map[string]any) string {
	if s := summaryAliases.str(doc); s != "" {
		return s
	}
	if s := narrative(findingsNarrative.eval(doc)); s != "" {
		return s
	}

	var parts []string
	for _, e := range seriesInterpretations {
		if s, ok := e.eval(doc).(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	if main := mainFindings(doc); len(main) > 0 {
		parts = append(parts, "Principais achados: "+strings.Join(main, "; "))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return noSummary
}

// narrative joins a list of interpretation lines, rendering non-text items
// as text.
func narrative(v any) string {
	list, ok := v.([]any)
	if !ok {
		s, _ := v.(string)
		return strings.TrimSpace(s)
	}
	lines := make([]string, 0, len(list))
	for _, item := range list {
		if s := display(item); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, " ")
}

var (
	alteredText = chain("significado", "observacao", "status", "classificacao")
	limitText   = chain("observacao", "significado", "status")
)

func mainFindings(doc map[string]any) []string {
	var out []string
	add := func(list any, texts aliasChain) {
		for _, item := range asList(list) {
			param, text := parametroAliases.str(item), texts.str(item)
			if param != "" && text != "" {
				out = append(out, param+": "+text)
			}
		}
	}
	add(alteredList.eval(doc), alteredText)
	add(limitList.eval(doc), limitText)
	return out
}

var (
	recommendationsExpr  = mustExtractor("recommendations")
	correlationAdvice    = mustExtractor("resumo_clinico.correlacoes_clinicas")
	clinicalAdvice       = mustExtractor("resumo_clinico.recomendacoes")
	recommendationsField = chain("recomendacoes")
)

func recommendations(doc map[string]any) []string {
	out := []string{}
	add := func(v any) {
		if s := display(v); s != "" {
			out = append(out, s)
		}
	}
	if v := recommendationsExpr.eval(doc); truthy(v) {
		for _, item := range asList(v) {
			add(item)
		}
		return out
	}
	for _, corr := range asList(correlationAdvice.eval(doc)) {
		for _, item := range asList(recommendationsField.value(corr)) {
			add(item)
		}
	}
	for _, item := range asList(clinicalAdvice.eval(doc)) {
		add(item)
	}
	return out
}

// extractedData prefers an explicit extractedData object, decoding it when
// it arrives as a JSON string, and falls back to the whole answer.
func extractedData(doc map[string]any) map[string]any {
	switch v := doc["extractedData"].(type) {
	case map[string]any:
		return v
	case string:
		if obj, ok := decodeObject(v); ok {
			return obj
		}
	}
	return doc
}

func confidence(v any) float64 {
	c := defaultConfidence
	switch t := v.(type) {
	case float64:
		if t != 0 {
			c = t
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(t, ",", ".")), 64); err == nil {
			c = f
		}
	}
	if math.IsNaN(c) {
		return defaultConfidence
	}
	return math.Max(0, math.Min(1, c))
}

var examDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// parseExamDate returns nil for anything that is not a recognizable date.
func parseExamDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range examDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
