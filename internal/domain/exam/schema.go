package exam

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// canonicalSchema describes an answer that already uses the canonical field
// names and nothing else. Such answers are decoded directly.
const canonicalSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["category", "examType", "summary", "keyFindings", "abnormalValues"],
	"properties": {
		"category":      {"type": "string", "minLength": 1},
		"subCategory":   {"type": "string"},
		"examType":      {"type": "string", "minLength": 1},
		"examDate":      {"type": "string"},
		"summary":       {"type": "string", "pattern": "\\S"},
		"extractedData": {"type": "object"},
		"keyFindings": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"parameter":   {"type": "string"},
					"value":       {"type": "string"},
					"reference":   {"type": "string"},
					"status":      {"type": "string"},
					"description": {"type": "string"}
				}
			}
		},
		"abnormalValues": {
			"type": "array",
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["parameter", "status"],
				"properties": {
					"parameter": {"type": "string"},
					"value":     {"type": "string"},
					"reference": {"type": "string"},
					"status":    {"type": "string"}
				}
			}
		},
		"recommendations": {"type": "array", "items": {"type": "string"}},
		"confidence":      {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

var canonical = mustCompileSchema("canonical-exam.json", canonicalSchema)

func mustCompileSchema(url, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("exam: add schema: %v", err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("exam: compile schema: %v", err))
	}
	return schema
}

func isCanonical(doc map[string]any) bool {
	return canonical.Validate(doc) == nil
}

type canonicalBody struct {
	Category        string          `json:"category"`
	SubCategory     string          `json:"subCategory"`
	ExamType        string          `json:"examType"`
	ExamDate        string          `json:"examDate"`
	Summary         string          `json:"summary"`
	ExtractedData   map[string]any  `json:"extractedData"`
	KeyFindings     []Finding       `json:"keyFindings"`
	AbnormalValues  []AbnormalValue `json:"abnormalValues"`
	Recommendations []string        `json:"recommendations"`
	Confidence      *float64        `json:"confidence"`
}

// fromCanonical decodes a document that passed the canonical schema.
func fromCanonical(doc map[string]any) Analysis {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fromAliases(doc)
	}
	var body canonicalBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return fromAliases(doc)
	}

	a := Analysis{
		Category:        strings.TrimSpace(body.Category),
		SubCategory:     strings.TrimSpace(body.SubCategory),
		ExamType:        strings.TrimSpace(body.ExamType),
		ExamDate:        parseExamDate(strings.TrimSpace(body.ExamDate)),
		Summary:         strings.TrimSpace(body.Summary),
		ExtractedData:   body.ExtractedData,
		KeyFindings:     []Finding{},
		AbnormalValues:  body.AbnormalValues,
		Recommendations: []string{},
		Confidence:      defaultConfidence,
	}
	for _, f := range body.KeyFindings {
		if f.Parameter != "" || f.Description != "" {
			a.KeyFindings = append(a.KeyFindings, f)
		}
	}
	for _, r := range body.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			a.Recommendations = append(a.Recommendations, r)
		}
	}
	if a.AbnormalValues == nil {
		a.AbnormalValues = []AbnormalValue{}
	}
	if a.ExtractedData == nil {
		a.ExtractedData = doc
	}
	if body.Confidence != nil {
		a.Confidence = confidence(*body.Confidence)
	}
	return a
}
