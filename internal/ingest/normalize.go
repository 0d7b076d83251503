package ingest

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// FoldHeader reduces a header to its comparison form: trimmed, case folded,
// with '_', '.', '-' and runs of whitespace collapsed to one space.
func FoldHeader(h string) string {
	h = folder.String(h)
	h = strings.Map(func(r rune) rune {
		switch r {
		case '_', '.', '-':
			return ' '
		}
		return r
	}, h)
	return strings.Join(strings.Fields(h), " ")
}

// Normalize renames recognised headers of row to canonical field names for
// the upload type. Unrecognised columns pass through unchanged and fields
// with no matching header are left absent. An unknown type returns row as is.
func Normalize(row map[string]string, kind UploadType) map[string]string {
	fields, ok := aliasTable[kind]
	if !ok {
		return row
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	folded := make(map[string]string, len(row))
	for _, k := range keys {
		f := FoldHeader(k)
		if _, seen := folded[f]; !seen {
			folded[f] = k
		}
	}

	out := make(map[string]string, len(row))
	used := make(map[string]bool, len(fields))
	for _, fa := range fields {
		if key, ok := lookup(row, folded, fa.aliases, used); ok {
			out[fa.canonical] = strings.TrimSpace(row[key])
			used[key] = true
		}
	}
	for _, k := range keys {
		if used[k] {
			continue
		}
		if _, taken := out[k]; taken {
			continue
		}
		out[k] = row[k]
	}
	return out
}

func lookup(row map[string]string, folded map[string]string, aliases []string, used map[string]bool) (string, bool) {
	for _, alias := range aliases {
		if _, ok := row[alias]; ok && !used[alias] {
			return alias, true
		}
		if key, ok := folded[FoldHeader(alias)]; ok && !used[key] {
			return key, true
		}
	}
	return "", false
}
