package pass

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phault/relscan/internal/model"
)

func testEntities() []model.Entity {
	return []model.Entity{
		{Name: "CUSTOMER", Columns: []string{"cust_id", "cust_name"}},
		{Name: "ORDERS", Columns: []string{"order_id", "cust_id"}},
	}
}

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	content := `SELECT *
FROM customer
JOIN orders ON customer.cust_id = orders.cust_id
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "report.sql"), []byte(content), 0o644))
	return root
}

func TestPassEndToEnd(t *testing.T) {
	t.Parallel()

	root := writeTree(t)
	p := New(testEntities(), Options{Threshold: 10})

	require.NoError(t, p.Collect(root))
	// Matching is lexical: the join line matches ORDERS twice (the table
	// reference and the column qualifier) and CUSTOMER once, plus CUSTOMER
	// on the FROM line.
	assert.Equal(t, 4, p.Index.Len())

	p.Detect()
	rel := p.Graph.Get(model.NewPairKey("CUSTOMER", "ORDERS"))
	require.NotNil(t, rel)
	// CUSTOMER lines [2,3] against ORDERS lines [3,3]: two line pairs with
	// 0 < distance <= threshold.
	assert.Equal(t, 2, rel.Count)

	refs := p.References()
	assert.NotEmpty(t, refs)

	p.ResolveLinks(root)
	link := p.Links.Get(
		model.ColumnRef{Entity: "CUSTOMER", Column: "cust_id"},
		model.ColumnRef{Entity: "ORDERS", Column: "cust_id"})
	require.NotNil(t, link)
	assert.Equal(t, "CUSTOMER", link.Source().Entity)
}

func TestReferencesBuildOnce(t *testing.T) {
	t.Parallel()

	root := writeTree(t)
	p := New(testEntities(), Options{Threshold: 10})
	require.NoError(t, p.Collect(root))
	p.Detect()

	first := p.References()
	second := p.References()
	assert.Equal(t, len(first), len(second))
	assert.Equal(t, 1, p.Cache.Builds())
}

func TestDetectWithNothingCollected(t *testing.T) {
	t.Parallel()

	p := New(testEntities(), Options{Threshold: 10})
	p.Detect()
	assert.Equal(t, 0, p.Graph.Len())
	assert.Empty(t, p.References())
}

func TestFreshPassState(t *testing.T) {
	t.Parallel()

	a := New(testEntities(), Options{Threshold: 10})
	b := New(testEntities(), Options{Threshold: 10})

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 0, a.Index.Len())
	assert.Equal(t, 0, a.Graph.Len())
	assert.False(t, a.Cache.Built())
	assert.Equal(t, 0, a.Links.Len())
}

func TestProgressWiring(t *testing.T) {
	t.Parallel()

	root := writeTree(t)

	var msgs []string
	p := New(testEntities(), Options{
		Threshold: 10,
		Progress:  func(msg string) { msgs = append(msgs, msg) },
	})
	require.NoError(t, p.Collect(root))
	assert.NotEmpty(t, msgs)
}

func TestCollectMissingRoot(t *testing.T) {
	t.Parallel()

	p := New(testEntities(), Options{Threshold: 10})
	err := p.Collect(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
