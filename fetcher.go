package reportsync

import (
	"context"

	"github.com/AnandSundar/go-reportsync/report"
)

//go:generate mockgen -source=fetcher.go -destination=mocks/fetcher.go -package=mocks

// Fetcher issues one backend request for an endpoint path and canonical query
// string. api.Client is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, path, query string) (*report.Report, error)
}
