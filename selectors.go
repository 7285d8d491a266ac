package reportsync

import (
	"context"
	"errors"

	"github.com/AnandSundar/go-reportsync/report"
)

// View is the consumer-facing projection of an Entry
type View struct {
	Status Status
	Report *report.Report
	Err    error
}

// Select reads the entry for key. A key that was never fetched yields an idle
// view and no error.
func Select(ctx context.Context, r Reader, key Key) (View, error) {
	entry, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return View{Status: StatusIdle}, nil
	}
	if err != nil {
		return View{Status: StatusIdle}, err
	}
	return View{Status: entry.Status, Report: entry.Data, Err: entry.Err}, nil
}

// SelectReport returns the last successfully fetched report for key, or nil
func SelectReport(ctx context.Context, r Reader, key Key) *report.Report {
	v, _ := Select(ctx, r, key)
	return v.Report
}

// SelectStatus returns the fetch status for key; StatusIdle if never fetched
func SelectStatus(ctx context.Context, r Reader, key Key) Status {
	v, _ := Select(ctx, r, key)
	return v.Status
}

// SelectError returns the error of the last failed fetch for key, or nil
func SelectError(ctx context.Context, r Reader, key Key) error {
	v, _ := Select(ctx, r, key)
	return v.Err
}
