package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/clinsearch/chartsearch/internal/categories"
	"github.com/clinsearch/chartsearch/internal/models"
	"github.com/clinsearch/chartsearch/internal/storage"
	"github.com/clinsearch/chartsearch/internal/synonyms"
)

func newTestLoader(t *testing.T) (*Loader, *synonyms.Store, *categories.Registry) {
	t.Helper()
	ctx := context.Background()

	sqlStore, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "chartsearch.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlStore.Close() })

	syn, err := synonyms.NewStore(ctx, sqlStore, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	cats, err := categories.NewRegistry(ctx, sqlStore, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return NewLoader(syn, cats, zap.NewNop()), syn, cats
}

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const basicSeed = `
synonym_groups:
  - name: fever
    synonyms: [fever, pyrexia, febrile]
  - name: pain
    is_category: true
    synonyms: [pain, ache]
category_filters:
  - name: Diagnoses
    fields: [concept_name, value_text]
  - name: Archive
    fields: [concept_name]
    enabled: false
`

func TestLoadSeedsGroupsAndFilters(t *testing.T) {
	loader, syn, cats := newTestLoader(t)
	ctx := context.Background()

	if err := loader.Load(ctx, writeSeed(t, basicSeed)); err != nil {
		t.Fatal(err)
	}

	group, err := syn.GetGroupByName(ctx, "fever")
	if err != nil {
		t.Fatal(err)
	}
	if len(group.Synonyms) != 3 {
		t.Errorf("fever group synonyms: got %d, want 3", len(group.Synonyms))
	}
	pain, err := syn.GetGroupByName(ctx, "pain")
	if err != nil {
		t.Fatal(err)
	}
	if !pain.IsCategory {
		t.Error("is_category flag lost")
	}

	got := syn.Expand("fever")
	if len(got) != 2 {
		t.Errorf("seeded expansion: %v", got)
	}

	filters, err := cats.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(filters) != 2 {
		t.Fatalf("filters: got %d, want 2", len(filters))
	}
	if fields := cats.Resolve([]string{"Diagnoses"}); len(fields) != 2 {
		t.Errorf("seeded filter not resolvable: %v", fields)
	}
	if fields := cats.Resolve([]string{"Archive"}); len(fields) != 0 {
		t.Errorf("disabled seed filter should not resolve: %v", fields)
	}
}

func TestLoadIsAdditive(t *testing.T) {
	loader, syn, cats := newTestLoader(t)
	ctx := context.Background()

	if err := loader.Load(ctx, writeSeed(t, basicSeed)); err != nil {
		t.Fatal(err)
	}

	// An admin edit between loads must survive the reload.
	group, err := syn.GetGroupByName(ctx, "fever")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := syn.SaveSynonym(ctx, &models.Synonym{GroupID: group.ID, Term: "hyperthermia"}); err != nil {
		t.Fatal(err)
	}

	if err := loader.Load(ctx, writeSeed(t, basicSeed)); err != nil {
		t.Fatal(err)
	}

	group, err = syn.GetGroupByName(ctx, "fever")
	if err != nil {
		t.Fatal(err)
	}
	if len(group.Synonyms) != 4 {
		t.Errorf("reload should not duplicate or drop synonyms, got %d", len(group.Synonyms))
	}
	filters, err := cats.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(filters) != 2 {
		t.Errorf("reload duplicated filters: %d", len(filters))
	}
}

func TestLoadSkipsInvalidEntries(t *testing.T) {
	loader, syn, cats := newTestLoader(t)
	ctx := context.Background()

	seed := `
synonym_groups:
  - name: ""
    synonyms: [orphan]
  - name: fever
    synonyms: [fever, "", pyrexia]
category_filters:
  - name: Broken
    fields: [no_such_field]
  - name: Diagnoses
    fields: [concept_name]
`
	if err := loader.Load(ctx, writeSeed(t, seed)); err != nil {
		t.Fatal(err)
	}

	group, err := syn.GetGroupByName(ctx, "fever")
	if err != nil {
		t.Fatal(err)
	}
	if len(group.Synonyms) != 2 {
		t.Errorf("blank term should be skipped, got %d synonyms", len(group.Synonyms))
	}

	filters, err := cats.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(filters) != 1 || filters[0].Name != "Diagnoses" {
		t.Errorf("invalid filter should be skipped: %+v", filters)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	if err := loader.Load(context.Background(), writeSeed(t, "synonym_groups: [broken\n")); err == nil {
		t.Error("malformed seed file should fail")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	if err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing seed file should fail")
	}
}
