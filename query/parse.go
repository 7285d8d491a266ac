package query

import (
	"fmt"
	"net/url"
	"strings"
)

// Parse decodes a bracket-notation query string into a Query.
// Single values become strings and repeated keys become []any in the order
// they appear, so Canonicalize(Parse(s)) is stable for any canonical s.
func Parse(raw string) (Query, error) {
	out := Query{}
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return out, nil
	}

	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		path, err := splitKey(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrMalformedQuery, rawKey, err)
		}
		if err := insert(out, path, value); err != nil {
			return nil, fmt.Errorf("%w: %q", err, rawKey)
		}
	}
	return out, nil
}

// splitKey turns "filter[tag%3Aenv]" into ["filter", "tag:env"].
func splitKey(rawKey string) ([]string, error) {
	head, rest, _ := strings.Cut(rawKey, "[")
	if head == "" {
		return nil, fmt.Errorf("%w: empty key in %q", ErrMalformedQuery, rawKey)
	}
	segments := []string{head}
	if rest != "" {
		rest = "[" + rest
	}
	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("%w: unexpected %q in %q", ErrMalformedQuery, rest, rawKey)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrMalformedQuery, rawKey)
		}
		segments = append(segments, rest[1:end])
		rest = rest[end+1:]
	}

	for i, s := range segments {
		unescaped, err := url.QueryUnescape(s)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformedQuery, rawKey, err)
		}
		segments[i] = unescaped
	}
	return segments, nil
}

func insert(into Query, path []string, value string) error {
	key := path[0]
	if len(path) == 1 {
		switch existing := into[key].(type) {
		case nil:
			into[key] = value
		case string:
			into[key] = []any{existing, value}
		case []any:
			into[key] = append(existing, value)
		default:
			return fmt.Errorf("%w: key used as both map and value", ErrMalformedQuery)
		}
		return nil
	}

	child, ok := into[key].(Query)
	if !ok {
		if into[key] != nil {
			return fmt.Errorf("%w: key used as both map and value", ErrMalformedQuery)
		}
		child = Query{}
		into[key] = child
	}
	return insert(child, path[1:], value)
}
