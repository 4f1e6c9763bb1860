package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

func defaultTestCaps() model.Caps {
	return model.Caps{
		MaxItemsPerCategory: 60, MaxCategories: 40, MaxServices: 50,
		MaxClients: 80, MaxPartnerships: 50, MaxCertifications: 50, MaxCaseStudies: 30,
	}
}

func TestMerge_ScalarFirstNonNullWins(t *testing.T) {
	chunks := []model.CompanyProfile{
		{CompanyName: "", Industry: "Electronics"},
		{CompanyName: "Acme", Industry: "Consumer Electronics"},
	}
	got := Merge("acme-co", chunks, defaultTestCaps(), nil)
	assert.Equal(t, "Acme", got.CompanyName)
	assert.Equal(t, "Electronics", got.Industry)
}

func TestMerge_DescriptionPrefersLongerLater(t *testing.T) {
	chunks := []model.CompanyProfile{
		{CompanyName: "Acme", Description: "short"},
		{CompanyName: "Acme", Description: "a much more detailed description"},
	}
	got := Merge("acme-co", chunks, defaultTestCaps(), nil)
	assert.Equal(t, "a much more detailed description", got.Description)
}

func TestMerge_DescriptionKeepsLongerEarlier(t *testing.T) {
	chunks := []model.CompanyProfile{
		{CompanyName: "Acme", Description: "a fairly long first description"},
		{CompanyName: "Acme", Description: "short"},
	}
	got := Merge("acme-co", chunks, defaultTestCaps(), nil)
	assert.Equal(t, "a fairly long first description", got.Description)
}

func TestMerge_ListFieldsUnionAndDedup(t *testing.T) {
	chunks := []model.CompanyProfile{
		{CompanyName: "Acme", Clients: []string{"Client A", "Client B"}},
		{CompanyName: "Acme", Clients: []string{"client a", "Client C"}},
	}
	got := Merge("acme-co", chunks, defaultTestCaps(), nil)
	assert.Equal(t, []string{"Client A", "Client B", "Client C"}, got.Clients)
}

func TestMerge_ProductCategoriesUnionByName(t *testing.T) {
	c1 := model.CompanyProfile{CompanyName: "Acme"}
	c1.Offerings.ProductCategories = []model.ProductCategory{{Name: "Cables", Items: []string{"RCA"}}}
	c2 := model.CompanyProfile{CompanyName: "Acme"}
	c2.Offerings.ProductCategories = []model.ProductCategory{{Name: "cables", Items: []string{"XLR"}}}

	got := Merge("acme-co", []model.CompanyProfile{c1, c2}, defaultTestCaps(), nil)
	assert.Len(t, got.Offerings.ProductCategories, 1)
	assert.ElementsMatch(t, []string{"RCA", "XLR"}, got.Offerings.ProductCategories[0].Items)
}

func TestMerge_CaseStudiesMergeOnTitleAndClientLongerWins(t *testing.T) {
	chunks := []model.CompanyProfile{
		{CompanyName: "Acme", CaseStudies: []model.CaseStudy{
			{Title: "Rollout", ClientName: "Globex", Description: "short", Outcome: ""},
		}},
		{CompanyName: "Acme", CaseStudies: []model.CaseStudy{
			{Title: "rollout", ClientName: "globex", Description: "a longer and more detailed description", Outcome: "+20% revenue"},
		}},
	}
	got := Merge("acme-co", chunks, defaultTestCaps(), nil)
	assert.Len(t, got.CaseStudies, 1)
	assert.Equal(t, "a longer and more detailed description", got.CaseStudies[0].Description)
	assert.Equal(t, "+20% revenue", got.CaseStudies[0].Outcome)
}

func TestMerge_NoChunksReturnsEmptyProfile(t *testing.T) {
	got := Merge("acme-co", nil, defaultTestCaps(), nil)
	assert.Equal(t, model.CompanyKey("acme-co"), got.Key)
	assert.Equal(t, "", got.CompanyName)
}

func TestStageStatus(t *testing.T) {
	assert.Equal(t, model.StageSuccess, StageStatus(3, 3))
	assert.Equal(t, model.StagePartial, StageStatus(3, 2))
	assert.Equal(t, model.StageError, StageStatus(3, 0))
	assert.Equal(t, model.StageError, StageStatus(0, 0))
}
