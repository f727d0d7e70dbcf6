package storage

import (
	"sort"
	"strings"

	"github.com/nodeforge/fleetengine/pkg/apierror"
)

type sortSpec struct {
	key  string
	desc bool
}

func parseSort(raw string) []sortSpec {
	if raw == "" {
		return nil
	}
	var specs []sortSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, desc := part, false
		if idx := strings.LastIndex(part, ":"); idx >= 0 {
			suffix := part[idx+1:]
			if suffix == "asc" || suffix == "desc" {
				key = part[:idx]
				desc = suffix == "desc"
			}
		}
		specs = append(specs, sortSpec{key: key, desc: desc})
	}
	return specs
}

// filterProject drops rows outside opts.Project unless the caller is an
// admin, matching the engine's project-scoped read rules.
func filterProject[T any](items []T, opts ListOptions, projectOf func(T) string) []T {
	if opts.IsAdmin || opts.Project == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if projectOf(it) == opts.Project {
			out = append(out, it)
		}
	}
	return out
}

// filterExact applies opts.Filters as an exact-match AND over fieldOf.
func filterExact[T any](items []T, opts ListOptions, fieldOf func(T, string) (string, bool)) ([]T, error) {
	if len(opts.Filters) == 0 {
		return items, nil
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		match := true
		for k, v := range opts.Filters {
			got, ok := fieldOf(it, k)
			if !ok {
				return nil, &apierror.InvalidParameterError{Name: k, Reason: "unknown filter key"}
			}
			if got != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, it)
		}
	}
	return out, nil
}

// sortAndPaginate sorts by the requested keys (always breaking ties on id,
// appended automatically if absent) and then slices out the page following
// Marker/Limit, per the engine's stable-pagination scheme.
func sortAndPaginate[T any](items []T, opts ListOptions, idOf func(T) string, fieldOf func(T, string) (string, bool)) ([]T, error) {
	specs := parseSort(opts.Sort)
	hasID := false
	for _, s := range specs {
		if s.key == "id" {
			hasID = true
		}
	}
	if !hasID {
		specs = append(specs, sortSpec{key: "id"})
	}

	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		for _, s := range specs {
			var vi, vj string
			if s.key == "id" {
				vi, vj = idOf(items[i]), idOf(items[j])
			} else {
				var ok bool
				vi, ok = fieldOf(items[i], s.key)
				if !ok {
					sortErr = &apierror.InvalidParameterError{Name: "sort", Reason: "unknown sort key " + s.key}
					return false
				}
				vj, _ = fieldOf(items[j], s.key)
			}
			if vi == vj {
				continue
			}
			if s.desc {
				return vi > vj
			}
			return vi < vj
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}

	if opts.Marker != "" {
		idx := -1
		for i, it := range items {
			if idOf(it) == opts.Marker {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, &apierror.InvalidParameterError{Name: "marker", Reason: "no such item"}
		}
		items = items[idx+1:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}
