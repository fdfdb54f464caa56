// Package report renders analysis results as a Markdown report and a JSON
// export. Presentation ordering is applied here, on top of detection.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/phault/relscan/internal/model"
	"github.com/phault/relscan/internal/pass"
)

// Sorted returns the graph's relationships in presentation order:
// occurrence count descending, then canonical pair key ascending. Each
// relationship's instances are copied and sorted by distance ascending,
// then earliest line ascending.
func Sorted(g *model.Graph) []*model.Relationship {
	rels := g.Relationships()
	sort.SliceStable(rels, func(i, j int) bool {
		return rels[i].Count > rels[j].Count
	})

	out := make([]*model.Relationship, len(rels))
	for i, r := range rels {
		cp := *r
		cp.Instances = make([]model.ProximityInstance, len(r.Instances))
		copy(cp.Instances, r.Instances)
		sort.SliceStable(cp.Instances, func(a, b int) bool {
			ia, ib := cp.Instances[a], cp.Instances[b]
			if ia.Distance != ib.Distance {
				return ia.Distance < ib.Distance
			}
			return minLine(ia) < minLine(ib)
		})
		out[i] = &cp
	}
	return out
}

func minLine(in model.ProximityInstance) int {
	if in.LineA < in.LineB {
		return in.LineA
	}
	return in.LineB
}

// Top truncates a sorted relationship list to n entries. Non-positive n
// keeps everything.
func Top(rels []*model.Relationship, n int) []*model.Relationship {
	if n <= 0 || n >= len(rels) {
		return rels
	}
	return rels[:n]
}

// Markdown writes the human-readable report for a completed pass.
func Markdown(w io.Writer, p *pass.Pass, maxRels int) error {
	rels := Top(Sorted(p.Graph), maxRels)
	links := p.Links.Links()

	var b strings.Builder
	b.WriteString("# Entity Relationship Analysis\n\n")
	fmt.Fprintf(&b, "- Pass: %s\n", p.ID)
	fmt.Fprintf(&b, "- Entities: %d\n", len(p.Entities))
	fmt.Fprintf(&b, "- Occurrences: %d\n", p.Index.Len())
	fmt.Fprintf(&b, "- Proximity threshold: %d lines\n", p.Threshold())
	fmt.Fprintf(&b, "- Relationships: %d\n", p.Graph.Len())
	fmt.Fprintf(&b, "- Occurrences in a relationship: %d\n", len(p.References()))
	fmt.Fprintf(&b, "- Column links: %d\n", p.Links.Len())
	b.WriteString("\nTruncation guards may omit evidence in very dense files; counts are lower bounds there.\n")

	b.WriteString("\n## Relationships\n")
	if len(rels) == 0 {
		b.WriteString("\nNo relationships detected.\n")
	}
	for i, r := range rels {
		fmt.Fprintf(&b, "\n### %d. %s <-> %s\n\n", i+1, r.Entities.A, r.Entities.B)
		fmt.Fprintf(&b, "- Occurrences: %d\n", r.Count)
		fmt.Fprintf(&b, "- Files: %s\n", strings.Join(r.SortedFiles(), ", "))
		for _, in := range r.Instances {
			fmt.Fprintf(&b, "  - %s: lines %d/%d (distance %d)\n", in.File, in.LineA, in.LineB, in.Distance)
		}
	}

	b.WriteString("\n## Column links\n")
	if len(links) == 0 {
		b.WriteString("\nNo column links resolved.\n")
	}
	for _, l := range links {
		src, tgt := l.Source(), l.Target()
		arrow := "->"
		if l.Direction == model.Bidirectional {
			arrow = "<->"
		}
		fmt.Fprintf(&b, "\n- `%s.%s` %s `%s.%s` (%d occurrences, %d files)\n",
			src.Entity, src.Column, arrow, tgt.Entity, tgt.Column, l.Count, len(l.Files))
		for _, c := range l.Contexts {
			fmt.Fprintf(&b, "  - %s:%d: %s\n", c.File, c.Line, c.Text)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Export is the JSON file shape. The format is a plain sink for
// downstream tooling, not a designed wire protocol.
type Export struct {
	PassID        string                        `json:"pass_id"`
	GeneratedAt   time.Time                     `json:"generated_at"`
	Threshold     int                           `json:"threshold"`
	Entities      int                           `json:"entities"`
	Occurrences   int                           `json:"occurrences"`
	Referenced    int                           `json:"referenced_occurrences"`
	Relationships []ExportRelationship          `json:"relationships"`
	ColumnLinks   []ExportLink                  `json:"column_links"`
	MatchesByFile map[string][]ExportOccurrence `json:"matches_by_file"`
}

type ExportRelationship struct {
	EntityA   string                    `json:"entity_a"`
	EntityB   string                    `json:"entity_b"`
	Count     int                       `json:"count"`
	Files     []string                  `json:"files"`
	Instances []model.ProximityInstance `json:"instances"`
}

// ExportOccurrence is one vocabulary match within a file. Referenced marks
// occurrences that participate in at least one relationship.
type ExportOccurrence struct {
	Entity     string `json:"entity"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Snippet    string `json:"snippet"`
	Referenced bool   `json:"referenced"`
}

type ExportLink struct {
	SourceEntity string              `json:"source_entity"`
	SourceColumn string              `json:"source_column"`
	TargetEntity string              `json:"target_entity"`
	TargetColumn string              `json:"target_column"`
	Direction    string              `json:"direction"`
	Count        int                 `json:"count"`
	Files        []string            `json:"files"`
	Contexts     []model.LinkContext `json:"contexts"`
}

// JSON renders the export document for a completed pass.
func JSON(p *pass.Pass) ([]byte, error) {
	refs := p.References()

	out := Export{
		PassID:        p.ID.String(),
		GeneratedAt:   time.Now().UTC(),
		Threshold:     p.Threshold(),
		Entities:      len(p.Entities),
		Occurrences:   p.Index.Len(),
		Referenced:    len(refs),
		MatchesByFile: make(map[string][]ExportOccurrence),
	}

	for _, file := range p.Index.Files() {
		for _, o := range p.Index.Occurrences(file) {
			_, ref := refs[o.Key()]
			out.MatchesByFile[file] = append(out.MatchesByFile[file], ExportOccurrence{
				Entity:     o.Entity,
				Line:       o.Line,
				Column:     o.Column,
				Snippet:    o.Snippet,
				Referenced: ref,
			})
		}
	}

	for _, r := range Sorted(p.Graph) {
		out.Relationships = append(out.Relationships, ExportRelationship{
			EntityA:   r.Entities.A,
			EntityB:   r.Entities.B,
			Count:     r.Count,
			Files:     r.SortedFiles(),
			Instances: r.Instances,
		})
	}

	for _, l := range p.Links.Links() {
		src, tgt := l.Source(), l.Target()
		out.ColumnLinks = append(out.ColumnLinks, ExportLink{
			SourceEntity: src.Entity,
			SourceColumn: src.Column,
			TargetEntity: tgt.Entity,
			TargetColumn: tgt.Column,
			Direction:    string(l.Direction),
			Count:        l.Count,
			Files:        l.SortedFiles(),
			Contexts:     l.Contexts,
		})
	}

	return json.MarshalIndent(out, "", "  ")
}
