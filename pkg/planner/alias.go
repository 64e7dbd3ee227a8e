package planner

import (
	"fmt"
	"strings"
)

// Table name prefixes stripped before alias derivation.
var recognizedPrefixes = []string{"tbl_", "tb_", "vw_", "dim_", "fact_"}

// AliasAllocator derives deterministic table aliases and guarantees
// uniqueness within one planning request. Not safe for concurrent use; create
// one per request.
type AliasAllocator struct {
	byTable map[string]string
	used    map[string]bool
}

// NewAliasAllocator creates an empty allocator.
func NewAliasAllocator() *AliasAllocator {
	return &AliasAllocator{
		byTable: make(map[string]string),
		used:    make(map[string]bool),
	}
}

// Alias returns the alias for a table, deriving and reserving one on first
// use. Repeated calls with the same table name return the same alias.
func (a *AliasAllocator) Alias(table string) string {
	key := strings.ToLower(table)
	if alias, ok := a.byTable[key]; ok {
		return alias
	}

	base := deriveAlias(table)
	alias := base
	for suffix := 1; a.used[alias]; suffix++ {
		alias = fmt.Sprintf("%s%d", base, suffix)
	}

	a.byTable[key] = alias
	a.used[alias] = true
	return alias
}

// Aliases returns a copy of the table→alias map accumulated so far, keyed by
// the original table casing passed to Alias via the tables argument.
func (a *AliasAllocator) Aliases(tables []string) map[string]string {
	result := make(map[string]string, len(tables))
	for _, t := range tables {
		if alias, ok := a.byTable[strings.ToLower(t)]; ok {
			result[t] = alias
		}
	}
	return result
}

// deriveAlias builds the naive alias for a table name: strip a recognized
// prefix, take the first two characters of each of the first two
// underscore-delimited segments, lowercase.
func deriveAlias(table string) string {
	name := table
	lower := strings.ToLower(name)
	for _, prefix := range recognizedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	segments := strings.Split(name, "_")
	var b strings.Builder
	taken := 0
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if taken == 2 {
			break
		}
		n := 2
		if len(seg) < n {
			n = len(seg)
		}
		b.WriteString(strings.ToLower(seg[:n]))
		taken++
	}

	if b.Len() == 0 {
		return "t"
	}
	return b.String()
}
