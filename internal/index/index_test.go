package index

import (
	"testing"

	"github.com/phault/relscan/internal/model"
)

func TestAddGroupsByFileThenEntity(t *testing.T) {
	t.Parallel()

	x := New()
	x.AddAll([]model.Occurrence{
		{Entity: "A", File: "one.sql", Line: 3},
		{Entity: "B", File: "one.sql", Line: 5},
		{Entity: "A", File: "one.sql", Line: 9},
		{Entity: "A", File: "two.sql", Line: 1},
	})

	if x.Len() != 4 {
		t.Fatalf("Len = %d, want 4", x.Len())
	}

	files := x.Files()
	if len(files) != 2 || files[0] != "one.sql" || files[1] != "two.sql" {
		t.Errorf("Files = %v", files)
	}

	lines := x.Lines("one.sql", "A")
	if len(lines) != 2 || lines[0] != 3 || lines[1] != 9 {
		t.Errorf("Lines(one.sql, A) = %v", lines)
	}
}

func TestEntitiesDiscoveryOrder(t *testing.T) {
	t.Parallel()

	x := New()
	x.AddAll([]model.Occurrence{
		{Entity: "C", File: "f.sql", Line: 1},
		{Entity: "A", File: "f.sql", Line: 2},
		{Entity: "C", File: "f.sql", Line: 3},
		{Entity: "B", File: "f.sql", Line: 4},
	})

	ents := x.Entities("f.sql")
	want := []string{"C", "A", "B"}
	if len(ents) != len(want) {
		t.Fatalf("Entities = %v, want %v", ents, want)
	}
	for i := range want {
		if ents[i] != want[i] {
			t.Errorf("Entities[%d] = %q, want %q", i, ents[i], want[i])
		}
	}
}

func TestMalformedRecordsIgnored(t *testing.T) {
	t.Parallel()

	x := New()
	x.Add(model.Occurrence{Entity: "", File: "f.sql", Line: 1})
	x.Add(model.Occurrence{Entity: "A", File: "", Line: 1})

	if x.Len() != 0 {
		t.Errorf("Len = %d, want 0", x.Len())
	}
}

func TestUnknownFileQueries(t *testing.T) {
	t.Parallel()

	x := New()
	if x.Entities("nope.sql") != nil {
		t.Error("Entities for unknown file should be nil")
	}
	if x.Lines("nope.sql", "A") != nil {
		t.Error("Lines for unknown file should be nil")
	}
	if x.Occurrences("nope.sql") != nil {
		t.Error("Occurrences for unknown file should be nil")
	}
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	t.Parallel()

	x := New()
	x.Add(model.Occurrence{Entity: "A", File: "f.sql", Line: 1})

	lines := x.Lines("f.sql", "A")
	lines[0] = 999

	if got := x.Lines("f.sql", "A"); got[0] != 1 {
		t.Errorf("internal state mutated through returned slice: %v", got)
	}
}
