package profile

import (
	"strconv"

	"github.com/datastack-br/perfil-pipeline/internal/llm"
	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// companySchema is the structured-output schema passed to the model for
// one chunk's extraction call. It declares field types and required keys
// only; it carries no maxItems or uniqueItems limits. The caps reach the
// model through systemPrompt, and normalize.go enforces them
// unconditionally afterward.
func companySchema() llm.Schema {
	stringArray := llm.Schema{"type": "array", "items": llm.Schema{"type": "string"}}

	productCategory := llm.Schema{
		"type":     "object",
		"required": []any{"name", "items"},
		"properties": map[string]any{
			"name":  llm.Schema{"type": "string"},
			"items": stringArray,
		},
	}

	caseStudy := llm.Schema{
		"type":     "object",
		"required": []any{"title", "client_name"},
		"properties": map[string]any{
			"title":       llm.Schema{"type": "string"},
			"client_name": llm.Schema{"type": "string"},
			"description": llm.Schema{"type": "string"},
			"outcome":     llm.Schema{"type": "string"},
		},
	}

	return llm.Schema{
		"type":     "object",
		"required": []any{"company_name"},
		"properties": map[string]any{
			"company_name": llm.Schema{"type": "string"},
			"industry":     llm.Schema{"type": "string"},
			"description":  llm.Schema{"type": "string"},
			"offerings": llm.Schema{
				"type": "object",
				"properties": map[string]any{
					"product_categories": llm.Schema{"type": "array", "items": productCategory},
					"services":           stringArray,
				},
			},
			"clients":        stringArray,
			"partnerships":   stringArray,
			"certifications": stringArray,
			"case_studies":   llm.Schema{"type": "array", "items": caseStudy},
		},
	}
}

// systemPrompt is the stable instruction set for every chunk extraction
// call: language, product-vs-service distinction, numeric caps, the
// anti-template stopping rule, and the JSON-only directive.
func systemPrompt(caps model.Caps) string {
	return "You extract a structured company profile from one chunk of a company's " +
		"website text. Respond in the same language as the source text. Distinguish " +
		"products (discrete goods or named offerings) from services (ongoing work " +
		"performed for clients) — do not mix the two lists.\n\n" +
		"Hard caps: at most " + strconv.Itoa(caps.MaxItemsPerCategory) + " items per product category, " +
		strconv.Itoa(caps.MaxCategories) + " categories, " + strconv.Itoa(caps.MaxServices) + " services, " +
		strconv.Itoa(caps.MaxClients) + " clients, " + strconv.Itoa(caps.MaxPartnerships) + " partnerships, " +
		strconv.Itoa(caps.MaxCertifications) + " certifications, " + strconv.Itoa(caps.MaxCaseStudies) + " case studies.\n\n" +
		"If you notice 5 consecutive items in any list sharing a common prefix pattern " +
		"(a sign of a templated or fabricated list), stop that list there.\n\n" +
		"Return only the JSON object. No prose, no markdown fencing."
}
