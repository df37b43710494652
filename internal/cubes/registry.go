// Package cubes holds the static metadata for every warehouse table the
// copilot is allowed to query: physical name, partition kind, time column,
// and the DDL/doc text blocks that are stitched into generation prompts.
package cubes

import (
	"fmt"
	"sort"
	"strings"
)

// Kind says how a table is physically partitioned.
type Kind string

const (
	// KindSnapshot tables restate the full state in every partition.
	// Scanning a ds range multiplies rows instead of extending history.
	KindSnapshot Kind = "snapshot"

	// KindIncremental tables hold only that day's events per partition.
	// A history requires scanning a ds range.
	KindIncremental Kind = "incremental"
)

// PartitionColumn is the partition key column shared by all cubes,
// an 8-digit date string 'YYYYMMDD'.
const PartitionColumn = "ds"

// Cube describes one queryable warehouse table.
type Cube struct {
	Name        string // human-readable cube name
	Table       string // physical table name
	Kind        Kind
	TimeColumn  string // primary event-time column, empty if none
	Description string
	DDL         string
	Docs        string
}

// Registry is the process-wide table classification lookup. It is populated
// once at startup and read-only afterwards.
type Registry struct {
	byTable map[string]*Cube
	order   []string
}

// NewRegistry builds a registry from explicit cube definitions. Kind is
// required per cube; there is deliberately no suffix-based guessing.
func NewRegistry(defs []*Cube) (*Registry, error) {
	r := &Registry{byTable: make(map[string]*Cube, len(defs))}
	for _, c := range defs {
		if c.Table == "" {
			return nil, fmt.Errorf("cube %q has no table name", c.Name)
		}
		if c.Kind != KindSnapshot && c.Kind != KindIncremental {
			return nil, fmt.Errorf("cube %q: unknown kind %q", c.Name, c.Kind)
		}
		if _, dup := r.byTable[c.Table]; dup {
			return nil, fmt.Errorf("duplicate cube table %q", c.Table)
		}
		r.byTable[c.Table] = c
		r.order = append(r.order, c.Table)
	}
	return r, nil
}

// Builtin returns the registry for the exchange warehouse.
func Builtin() *Registry {
	r, err := NewRegistry(builtinCubes)
	if err != nil {
		// builtinCubes is compiled in; a bad definition is a programming error.
		panic(err)
	}
	return r
}

// Get returns the cube for a physical table name, or nil if unknown.
// Unknown tables get no partition-rule enforcement.
func (r *Registry) Get(table string) *Cube {
	return r.byTable[strings.ToLower(table)]
}

// Tables returns all registered physical table names, sorted.
func (r *Registry) Tables() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// SchemaContext renders the DDL and doc blocks of every cube into one text
// block for the generation prompt.
func (r *Registry) SchemaContext() string {
	var b strings.Builder
	for _, t := range r.order {
		c := r.byTable[t]
		fmt.Fprintf(&b, "-- %s: %s\n", c.Name, c.Description)
		b.WriteString(strings.TrimSpace(c.DDL))
		b.WriteString("\n")
		if c.Docs != "" {
			b.WriteString(strings.TrimSpace(c.Docs))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ClassificationRules renders the snapshot/incremental filtering rules as
// natural-language prompt instructions, listing each table with its kind and
// time column.
func (r *Registry) ClassificationRules() string {
	var snap, incr []string
	for _, t := range r.order {
		c := r.byTable[t]
		entry := c.Table
		if c.TimeColumn != "" {
			entry += " (time column: " + c.TimeColumn + ")"
		}
		switch c.Kind {
		case KindSnapshot:
			snap = append(snap, entry)
		case KindIncremental:
			incr = append(incr, entry)
		}
	}

	var b strings.Builder
	b.WriteString("SNAPSHOT tables (full state restated in every partition):\n")
	for _, s := range snap {
		b.WriteString("  - " + s + "\n")
	}
	b.WriteString("  Rule: ALWAYS filter ds = '{latest_ds}'. NEVER use ds BETWEEN or ds <=.\n")
	b.WriteString("  Apply any date range to the table's own time column instead.\n\n")
	b.WriteString("INCREMENTAL tables (one day's events per partition):\n")
	for _, s := range incr {
		b.WriteString("  - " + s + "\n")
	}
	b.WriteString("  Rule: ALWAYS include a ds filter. For history use ds BETWEEN '{start_7d}' AND '{latest_ds}' or similar.\n")
	return b.String()
}
