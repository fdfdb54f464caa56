// Package vocab loads entity/column vocabulary metadata and resolves the
// accepted input shapes into one canonical representation.
package vocab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phault/relscan/internal/model"
)

// flatRow is one row of the flat JSON shape: a list of
// {"object_name": ..., "column_name": ...} records, one per column.
type flatRow struct {
	ObjectName string `json:"object_name"`
	ColumnName string `json:"column_name"`
}

// nestedEntry is one value of the nested JSON shape:
// {"NAME": {"columns": [...]}}.
type nestedEntry struct {
	Columns []string `json:"columns"`
}

// yamlEntry is one element of the YAML shape: a list of {name, columns}.
type yamlEntry struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// Load reads the vocabulary file at path. YAML files (.yaml/.yml) use the
// list-of-entries shape; JSON files may be either the flat row list or the
// nested map, resolved by inspecting the top-level token. Entities with no
// column metadata are valid: they participate in proximity detection but
// not column linking.
func Load(path string) ([]model.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return parseJSON(data)
	}
}

func parseYAML(data []byte) ([]model.Entity, error) {
	var entries []yamlEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	var ents []model.Entity
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		ents = append(ents, canonical(e.Name, e.Columns))
	}
	return ents, nil
}

func parseJSON(data []byte) ([]model.Entity, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var rows []flatRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("parsing vocabulary: %w", err)
		}
		return fromFlatRows(rows), nil
	}

	var m map[string]nestedEntry
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	// Map order is not stable; sort names so loading is deterministic.
	names := make([]string, 0, len(m))
	for name := range m {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var ents []model.Entity
	for _, name := range names {
		ents = append(ents, canonical(name, m[name].Columns))
	}
	return ents, nil
}

// fromFlatRows groups rows by object name, keeping first-seen entity order
// and per-entity column order.
func fromFlatRows(rows []flatRow) []model.Entity {
	byName := make(map[string]int)
	var ents []model.Entity
	for _, row := range rows {
		if row.ObjectName == "" {
			continue
		}
		i, ok := byName[row.ObjectName]
		if !ok {
			i = len(ents)
			byName[row.ObjectName] = i
			ents = append(ents, model.Entity{Name: row.ObjectName})
		}
		if row.ColumnName != "" {
			ents[i].Columns = append(ents[i].Columns, row.ColumnName)
		}
	}
	for i := range ents {
		ents[i].Columns = dedupe(ents[i].Columns)
	}
	return ents
}

// canonical drops empty column names and case-insensitive duplicates,
// keeping the first ordinal of each column.
func canonical(name string, columns []string) model.Entity {
	return model.Entity{Name: name, Columns: dedupe(columns)}
}

func dedupe(columns []string) []string {
	seen := make(map[string]struct{}, len(columns))
	var out []string
	for _, c := range columns {
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
