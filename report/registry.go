package report

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCategory is returned for categories with no API endpoint
var ErrUnknownCategory = errors.New("unknown report category")

// Endpoint is the API path serving one category.
type Endpoint struct {
	Category Category
	Path     string
}

// URL joins the endpoint path and a canonical query string.
func (e Endpoint) URL(query string) string {
	if query == "" {
		return e.Path
	}
	return e.Path + "?" + query
}

// Registry resolves categories to endpoints. Build it once at startup with
// NewRegistry; it is read-only afterwards and safe for concurrent use.
type Registry struct {
	endpoints map[Category]Endpoint
}

// paths lists every category the cost-management API serves. Several report
// types share a path and differ only by the filter the caller sends.
var paths = map[Provider]map[Type]string{
	ProviderAWS: {
		TypeCost:         "reports/aws/costs/",
		TypeDatabase:     "reports/aws/costs/",
		TypeNetwork:      "reports/aws/costs/",
		TypeStorage:      "reports/aws/storage/",
		TypeInstanceType: "reports/aws/instance-types/",
		TypeForecast:     "forecasts/aws/costs/",
		TypeTag:          "tags/aws/",
		TypeOrg:          "organizations/aws/",
	},
	ProviderAzure: {
		TypeCost:         "reports/azure/costs/",
		TypeDatabase:     "reports/azure/costs/",
		TypeNetwork:      "reports/azure/costs/",
		TypeStorage:      "reports/azure/storage/",
		TypeInstanceType: "reports/azure/instance-types/",
		TypeForecast:     "forecasts/azure/costs/",
		TypeTag:          "tags/azure/",
	},
	ProviderGCP: {
		TypeCost:         "reports/gcp/costs/",
		TypeDatabase:     "reports/gcp/costs/",
		TypeNetwork:      "reports/gcp/costs/",
		TypeStorage:      "reports/gcp/storage/",
		TypeInstanceType: "reports/gcp/instance-types/",
		TypeForecast:     "forecasts/gcp/costs/",
		TypeTag:          "tags/gcp/",
	},
	ProviderIBM: {
		TypeCost:         "reports/ibm/costs/",
		TypeDatabase:     "reports/ibm/costs/",
		TypeNetwork:      "reports/ibm/costs/",
		TypeStorage:      "reports/ibm/storage/",
		TypeInstanceType: "reports/ibm/instance-types/",
		TypeForecast:     "forecasts/ibm/costs/",
		TypeTag:          "tags/ibm/",
	},
	ProviderOCP: {
		TypeCost:     "reports/openshift/costs/",
		TypeCPU:      "reports/openshift/compute/",
		TypeMemory:   "reports/openshift/memory/",
		TypeVolume:   "reports/openshift/volumes/",
		TypeForecast: "forecasts/openshift/costs/",
		TypeTag:      "tags/openshift/",
	},
	ProviderOCPCloud: {
		TypeCost:         "reports/openshift/infrastructures/all/costs/",
		TypeDatabase:     "reports/openshift/infrastructures/all/costs/",
		TypeNetwork:      "reports/openshift/infrastructures/all/costs/",
		TypeStorage:      "reports/openshift/infrastructures/all/storage/",
		TypeInstanceType: "reports/openshift/infrastructures/all/instance-types/",
		TypeForecast:     "forecasts/openshift/infrastructures/all/costs/",
		TypeTag:          "tags/openshift/infrastructures/all/",
	},
	ProviderOCPAWS: {
		TypeCost:         "reports/openshift/infrastructures/aws/costs/",
		TypeDatabase:     "reports/openshift/infrastructures/aws/costs/",
		TypeNetwork:      "reports/openshift/infrastructures/aws/costs/",
		TypeStorage:      "reports/openshift/infrastructures/aws/storage/",
		TypeInstanceType: "reports/openshift/infrastructures/aws/instance-types/",
		TypeForecast:     "forecasts/openshift/infrastructures/aws/costs/",
		TypeTag:          "tags/openshift/infrastructures/aws/",
	},
	ProviderOCPAzure: {
		TypeCost:         "reports/openshift/infrastructures/azure/costs/",
		TypeDatabase:     "reports/openshift/infrastructures/azure/costs/",
		TypeNetwork:      "reports/openshift/infrastructures/azure/costs/",
		TypeStorage:      "reports/openshift/infrastructures/azure/storage/",
		TypeInstanceType: "reports/openshift/infrastructures/azure/instance-types/",
		TypeForecast:     "forecasts/openshift/infrastructures/azure/costs/",
		TypeTag:          "tags/openshift/infrastructures/azure/",
	},
	ProviderOCPGCP: {
		TypeCost:         "reports/openshift/infrastructures/gcp/costs/",
		TypeDatabase:     "reports/openshift/infrastructures/gcp/costs/",
		TypeNetwork:      "reports/openshift/infrastructures/gcp/costs/",
		TypeStorage:      "reports/openshift/infrastructures/gcp/storage/",
		TypeInstanceType: "reports/openshift/infrastructures/gcp/instance-types/",
		TypeForecast:     "forecasts/openshift/infrastructures/gcp/costs/",
		TypeTag:          "tags/openshift/infrastructures/gcp/",
	},
}

// NewRegistry builds the endpoint table for every known category.
func NewRegistry() *Registry {
	r := &Registry{endpoints: make(map[Category]Endpoint)}
	for provider, types := range paths {
		for reportType, path := range types {
			c := Category{Provider: provider, Type: reportType}
			r.endpoints[c] = Endpoint{Category: c, Path: path}
		}
	}
	return r
}

// Lookup returns the endpoint for c.
func (r *Registry) Lookup(c Category) (Endpoint, error) {
	e, ok := r.endpoints[c]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownCategory, c)
	}
	return e, nil
}

// Categories returns every registered category sorted by provider then type.
func (r *Registry) Categories() []Category {
	out := make([]Category, 0, len(r.endpoints))
	for c := range r.endpoints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Type < out[j].Type
	})
	return out
}
