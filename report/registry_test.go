package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		category Category
		path     string
	}{
		{Category{ProviderAWS, TypeCost}, "reports/aws/costs/"},
		{Category{ProviderAzure, TypeStorage}, "reports/azure/storage/"},
		{Category{ProviderAzure, TypeInstanceType}, "reports/azure/instance-types/"},
		{Category{ProviderGCP, TypeForecast}, "forecasts/gcp/costs/"},
		{Category{ProviderOCP, TypeCPU}, "reports/openshift/compute/"},
		{Category{ProviderOCPCloud, TypeDatabase}, "reports/openshift/infrastructures/all/costs/"},
		{Category{ProviderAWS, TypeOrg}, "organizations/aws/"},
	}

	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			e, err := r.Lookup(tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.path, e.Path)
			assert.Equal(t, tt.category, e.Category)
		})
	}
}

func TestRegistry_UnknownCategory(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup(Category{ProviderOCP, TypeDatabase})
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = r.Lookup(Category{Provider: "oracle", Type: TypeCost})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRegistry_CategoriesSorted(t *testing.T) {
	cats := NewRegistry().Categories()
	require.NotEmpty(t, cats)

	assert.Equal(t, Category{ProviderAWS, TypeCost}, cats[0])
	for i := 1; i < len(cats); i++ {
		prev, cur := cats[i-1], cats[i]
		assert.True(t, prev.Provider < cur.Provider || (prev.Provider == cur.Provider && prev.Type < cur.Type))
	}
}

func TestEndpoint_URL(t *testing.T) {
	e := Endpoint{Path: "reports/aws/costs/"}

	assert.Equal(t, "reports/aws/costs/", e.URL(""))
	assert.Equal(t, "reports/aws/costs/?limit=3", e.URL("limit=3"))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" AWS ", "Cost")
	require.NoError(t, err)
	assert.Equal(t, Category{ProviderAWS, TypeCost}, c)
	assert.Equal(t, "aws/cost", c.String())

	_, err = ParseCategory("", "cost")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestReport_Decode(t *testing.T) {
	raw := `{"meta":{"count":1,"total":{"cost":{"value":100,"units":"USD"}}},"data":[{"date":"2024-07"}]}`

	var r Report
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	require.NotNil(t, r.TotalCost())
	assert.Equal(t, 100.0, r.TotalCost().Value)
	assert.Equal(t, "USD", r.TotalCost().Units)
	assert.JSONEq(t, `[{"date":"2024-07"}]`, string(r.Data))

	var empty *Report
	assert.Nil(t, empty.TotalCost())
}
