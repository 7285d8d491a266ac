// Package reportsync keeps cost-management reports in sync with the backend API.
// It caches one entry per report category and canonical query, de-duplicates
// in-flight requests, serves the previous report while a refresh is running,
// and records failures in the cache instead of returning them.
package reportsync

import (
	"fmt"
	"time"

	"github.com/AnandSundar/go-reportsync/query"
	"github.com/AnandSundar/go-reportsync/report"
)

// Status is the fetch lifecycle state of an entry
type Status int

const (
	StatusIdle Status = iota
	StatusInProgress
	StatusComplete
	StatusError
)

var statusNames = map[Status]string{
	StatusIdle:       "idle",
	StatusInProgress: "inProgress",
	StatusComplete:   "complete",
	StatusError:      "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Key identifies one cached report: a category and its canonical query
type Key struct {
	Category report.Category
	Query    string
}

// NewKey canonicalizes q and returns the key for category.
func NewKey(category report.Category, q query.Query) (Key, error) {
	canonical, err := query.Canonicalize(q)
	if err != nil {
		return Key{}, err
	}
	return Key{Category: category, Query: canonical}, nil
}

// String returns "<provider>/<type>?<query>"
func (k Key) String() string {
	if k.Query == "" {
		return k.Category.String()
	}
	return k.Category.String() + "?" + k.Query
}

// Entry is the cached state of one key
type Entry struct {
	Status Status
	// Data is the last successfully fetched report; kept while a refresh
	// runs or after it fails
	Data        *report.Report
	Err         error
	RequestedAt time.Time
	SettledAt   time.Time
	// Token is the generation of the request that last moved the entry to
	// StatusInProgress; results from older generations are discarded
	Token uint64
}

// Clone returns a shallow copy. Data is shared: reports are immutable.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
