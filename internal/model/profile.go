package model

import "time"

// CaseStudy is a nested object of known identity: keyed on title+client
// name for merge purposes.
type CaseStudy struct {
	Title       string `json:"title"`
	ClientName  string `json:"client_name"`
	Description string `json:"description"`
	Outcome     string `json:"outcome,omitempty"`
}

// ProductCategory groups product items under a named category, subject to
// the anti-template rule and item cap during normalization.
type ProductCategory struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// CompanyProfile is the structured document produced by the profile-build
// stage, one row per key, upserted. Flattened indexing columns (company
// name, industry) are derived from this document at the store layer, not
// carried as separate fields here — the store owns that projection.
type CompanyProfile struct {
	Key         CompanyKey `json:"key"`
	CompanyName string     `json:"company_name"`
	Industry    string     `json:"industry,omitempty"`
	Description string     `json:"description,omitempty"`

	Offerings struct {
		ProductCategories []ProductCategory `json:"product_categories"`
		Services          []string          `json:"services"`
	} `json:"offerings"`

	Clients        []string    `json:"clients"`
	Partnerships   []string    `json:"partnerships"`
	Certifications []string    `json:"certifications"`
	CaseStudies    []CaseStudy `json:"case_studies"`

	Status      StageStatus `json:"status"`
	ChunksTotal int         `json:"chunks_total"`
	ChunksUsed  int         `json:"chunks_used"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Caps holds the hard numeric caps enforced by the normalization pass.
// One Caps value is shared by extraction, the anti-template filter, and the
// merge step so the three stay in lockstep.
type Caps struct {
	MaxItemsPerCategory int
	MaxCategories       int
	MaxServices         int
	MaxClients          int
	MaxPartnerships     int
	MaxCertifications   int
	MaxCaseStudies      int
}

// DefaultCaps returns the default caps used in production.
func DefaultCaps() Caps {
	return Caps{
		MaxItemsPerCategory: 60,
		MaxCategories:       40,
		MaxServices:         50,
		MaxClients:          80,
		MaxPartnerships:     50,
		MaxCertifications:   50,
		MaxCaseStudies:      30,
	}
}
