// Package report defines report categories, the endpoint registry that maps
// them to cost-management API paths, and the report payload types.
package report

import (
	"fmt"
	"strings"
)

// Provider identifies the source of a report.
type Provider string

const (
	ProviderAWS      Provider = "aws"
	ProviderAzure    Provider = "azure"
	ProviderGCP      Provider = "gcp"
	ProviderIBM      Provider = "ibm"
	ProviderOCP      Provider = "ocp"
	ProviderOCPCloud Provider = "ocp-cloud"
	ProviderOCPAWS   Provider = "ocp-aws"
	ProviderOCPAzure Provider = "ocp-azure"
	ProviderOCPGCP   Provider = "ocp-gcp"
)

// Type is the kind of report requested from a provider.
type Type string

const (
	TypeCost         Type = "cost"
	TypeDatabase     Type = "database"
	TypeNetwork      Type = "network"
	TypeStorage      Type = "storage"
	TypeInstanceType Type = "instance-type"
	TypeCPU          Type = "cpu"
	TypeMemory       Type = "memory"
	TypeVolume       Type = "volume"
	TypeForecast     Type = "forecast"
	TypeTag          Type = "tag"
	TypeOrg          Type = "org"
)

// Category is a provider and report type pair. It is comparable and used as
// half of a cache key.
type Category struct {
	Provider Provider `json:"provider"`
	Type     Type     `json:"type"`
}

// String returns "<provider>/<type>".
func (c Category) String() string {
	return string(c.Provider) + "/" + string(c.Type)
}

// ParseCategory builds a Category from its string parts. It only checks the
// syntax; use Registry.Lookup to check that an endpoint exists.
func ParseCategory(provider, reportType string) (Category, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	reportType = strings.ToLower(strings.TrimSpace(reportType))
	if provider == "" || reportType == "" {
		return Category{}, fmt.Errorf("%w: %q/%q", ErrUnknownCategory, provider, reportType)
	}
	return Category{Provider: Provider(provider), Type: Type(reportType)}, nil
}
