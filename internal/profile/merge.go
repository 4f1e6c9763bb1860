package profile

import (
	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// descriptionComparator decides whether candidate should replace current
// for a scalar field where a later chunk might carry a more specific
// value. Named and overridable per SPEC_FULL's decision to keep the
// longer-string-wins rule as a one-line swap rather than baked-in logic.
type descriptionComparator func(current, candidate string) bool

// longerWins is the default descriptionComparator: a strictly longer
// candidate replaces the current value.
func longerWins(current, candidate string) bool {
	return len(candidate) > len(current)
}

// Merge combines chunk-level profiles (already normalized) into one
// company profile. Scalar fields take the first non-null value, with
// description additionally open to replacement by a longer later value.
// List fields are unioned with the same dedup key and caps re-applied.
// Case studies are merged on title+client identity, conflicting fields
// resolved by longer-non-null-wins.
func Merge(key model.CompanyKey, chunks []model.CompanyProfile, caps model.Caps, cmp descriptionComparator) model.CompanyProfile {
	if cmp == nil {
		cmp = longerWins
	}

	result := model.CompanyProfile{Key: key}

	var services, clients, partnerships, certifications []string
	var categories []model.ProductCategory
	var caseStudies []model.CaseStudy

	for _, c := range chunks {
		if result.CompanyName == "" {
			result.CompanyName = c.CompanyName
		}
		if result.Industry == "" {
			result.Industry = c.Industry
		}
		if result.Description == "" {
			result.Description = c.Description
		} else if c.Description != "" && cmp(result.Description, c.Description) {
			result.Description = c.Description
		}

		categories = append(categories, c.Offerings.ProductCategories...)
		services = append(services, c.Offerings.Services...)
		clients = append(clients, c.Clients...)
		partnerships = append(partnerships, c.Partnerships...)
		certifications = append(certifications, c.Certifications...)
		caseStudies = append(caseStudies, c.CaseStudies...)
	}

	result.Offerings.ProductCategories = mergeCategories(categories, caps)
	result.Offerings.Services = truncate(dedupStrings(services), caps.MaxServices)
	result.Clients = truncate(dedupStrings(clients), caps.MaxClients)
	result.Partnerships = truncate(dedupStrings(partnerships), caps.MaxPartnerships)
	result.Certifications = truncate(dedupStrings(certifications), caps.MaxCertifications)
	result.CaseStudies = mergeCaseStudies(caseStudies, caps.MaxCaseStudies, cmp)

	return result
}

// mergeCategories unions categories of the same name across chunks,
// unioning their item lists, then re-applies caps.
func mergeCategories(categories []model.ProductCategory, caps model.Caps) []model.ProductCategory {
	order := make([]string, 0, len(categories))
	byKey := make(map[string]model.ProductCategory, len(categories))
	for _, c := range categories {
		key := normalizeKey(c.Name)
		if key == "" {
			continue
		}
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = model.ProductCategory{Name: c.Name, Items: append([]string(nil), c.Items...)}
			order = append(order, key)
			continue
		}
		existing.Items = append(existing.Items, c.Items...)
		byKey[key] = existing
	}

	merged := make([]model.ProductCategory, 0, len(order))
	for _, key := range order {
		c := byKey[key]
		c.Items = truncate(dedupStrings(c.Items), caps.MaxItemsPerCategory)
		merged = append(merged, c)
	}
	if len(merged) > caps.MaxCategories && caps.MaxCategories > 0 {
		merged = merged[:caps.MaxCategories]
	}
	return merged
}

// mergeCaseStudies unions case studies by title+client identity; on
// conflict, non-empty fields from the new entry replace empty fields in
// the existing one, and cmp decides between two non-empty descriptions.
func mergeCaseStudies(studies []model.CaseStudy, cap int, cmp descriptionComparator) []model.CaseStudy {
	order := make([]string, 0, len(studies))
	byKey := make(map[string]model.CaseStudy, len(studies))
	for _, cs := range studies {
		key := caseStudyKey(cs)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = cs
			order = append(order, key)
			continue
		}
		byKey[key] = mergeCaseStudyFields(existing, cs, cmp)
	}

	merged := make([]model.CaseStudy, 0, len(order))
	for _, key := range order {
		merged = append(merged, byKey[key])
		if len(merged) >= cap && cap > 0 {
			break
		}
	}
	return merged
}

func mergeCaseStudyFields(existing, candidate model.CaseStudy, cmp descriptionComparator) model.CaseStudy {
	if existing.Description == "" {
		existing.Description = candidate.Description
	} else if candidate.Description != "" && cmp(existing.Description, candidate.Description) {
		existing.Description = candidate.Description
	}
	if existing.Outcome == "" {
		existing.Outcome = candidate.Outcome
	} else if candidate.Outcome != "" && len(candidate.Outcome) > len(existing.Outcome) {
		existing.Outcome = candidate.Outcome
	}
	return existing
}

// StageStatus determines the overall stage status from how many of the
// chunks actually contributed a successful extraction.
func StageStatus(chunksTotal, chunksUsed int) model.StageStatus {
	switch {
	case chunksTotal == 0 || chunksUsed == 0:
		return model.StageError
	case chunksUsed < chunksTotal:
		return model.StagePartial
	default:
		return model.StageSuccess
	}
}
