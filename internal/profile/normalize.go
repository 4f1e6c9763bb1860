package profile

import (
	"strings"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// normalizeKey folds whitespace and case for dedup comparisons, so "Acme
// Corp" and "acme   corp" collapse to one entry.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// dedupStrings preserves first occurrence, dropping later duplicates under
// normalizeKey.
func dedupStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := normalizeKey(item)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// antiTemplatePrefixAdmits is the number of items sharing a 3-word prefix
// that may be admitted before the rest are treated as templated filler.
const antiTemplatePrefixAdmits = 5

// applyAntiTemplate walks items in order, tracking how many have been
// admitted under each 3-word prefix; once a prefix has admitted
// antiTemplatePrefixAdmits items, further items sharing that prefix are
// dropped. Items with fewer than 3 words never trigger the rule.
func applyAntiTemplate(items []string) []string {
	prefixCounts := make(map[string]int)
	out := make([]string, 0, len(items))
	for _, item := range items {
		words := strings.Fields(normalizeKey(item))
		if len(words) < 3 {
			out = append(out, item)
			continue
		}
		prefix := strings.Join(words[:3], " ")
		if prefixCounts[prefix] >= antiTemplatePrefixAdmits {
			continue
		}
		prefixCounts[prefix]++
		out = append(out, item)
	}
	return out
}

func truncate(items []string, cap int) []string {
	if cap <= 0 || len(items) <= cap {
		return items
	}
	return items[:cap]
}

// normalizeCategories applies dedup, anti-template, and caps to each
// product category's item list, then dedups and caps the category list
// itself.
func normalizeCategories(categories []model.ProductCategory, caps model.Caps) []model.ProductCategory {
	seen := make(map[string]bool, len(categories))
	out := make([]model.ProductCategory, 0, len(categories))
	for _, c := range categories {
		key := normalizeKey(c.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		items := dedupStrings(c.Items)
		items = applyAntiTemplate(items)
		items = truncate(items, caps.MaxItemsPerCategory)
		out = append(out, model.ProductCategory{Name: c.Name, Items: items})

		if len(out) >= caps.MaxCategories {
			break
		}
	}
	return out
}

// normalizeCaseStudies dedups case studies by title+client identity,
// preserving first occurrence, then caps the list.
func normalizeCaseStudies(studies []model.CaseStudy, cap int) []model.CaseStudy {
	seen := make(map[string]bool, len(studies))
	out := make([]model.CaseStudy, 0, len(studies))
	for _, cs := range studies {
		key := caseStudyKey(cs)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cs)
		if len(out) >= cap && cap > 0 {
			break
		}
	}
	return out
}

func caseStudyKey(cs model.CaseStudy) string {
	return normalizeKey(cs.Title) + "|" + normalizeKey(cs.ClientName)
}

// Normalize runs the unconditional post-parse pass over one chunk's raw
// parsed profile: dedup, anti-template filtering, and cap truncation. It
// never trusts the model's own adherence to the prompted caps.
func Normalize(p model.CompanyProfile, caps model.Caps) model.CompanyProfile {
	p.Offerings.ProductCategories = normalizeCategories(p.Offerings.ProductCategories, caps)
	p.Offerings.Services = truncate(dedupStrings(p.Offerings.Services), caps.MaxServices)
	p.Clients = truncate(dedupStrings(p.Clients), caps.MaxClients)
	p.Partnerships = truncate(dedupStrings(p.Partnerships), caps.MaxPartnerships)
	p.Certifications = truncate(dedupStrings(p.Certifications), caps.MaxCertifications)
	p.CaseStudies = normalizeCaseStudies(p.CaseStudies, caps.MaxCaseStudies)
	return p
}
