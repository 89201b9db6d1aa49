package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Page
	}{
		{
			name: "single page",
			text: "Diamonds are graded by cut.",
			want: []Page{{Source: "d.md", Number: 1, Text: "Diamonds are graded by cut."}},
		},
		{
			name: "form feed and rule",
			text: "one\fTwo\n---\nthree",
			want: []Page{
				{Source: "d.md", Number: 1, Text: "one"},
				{Source: "d.md", Number: 2, Text: "Two"},
				{Source: "d.md", Number: 3, Text: "three"},
			},
		},
		{
			name: "blank page keeps numbering",
			text: "one\f  \fthree",
			want: []Page{
				{Source: "d.md", Number: 1, Text: "one"},
				{Source: "d.md", Number: 3, Text: "three"},
			},
		},
		{name: "empty", text: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitPages("d.md", tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SplitPages() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if ref := (Page{Source: "guide.md", Number: 2}).Ref(); ref != "guide.md#2" {
		t.Errorf("Ref() = %q", ref)
	}
}

func TestIndexReplaceAndRetrieve(t *testing.T) {
	ctx := context.Background()
	ix, err := OpenIndex("", nil)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	defer ix.Close()

	pages := SplitPages("gems.md", "Sapphires are a variety of corundum.\fPearls form inside oysters.")
	if err := ix.ReplaceSource(ctx, "gems.md", pages); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := ix.ReplaceSource(ctx, "metals.md", SplitPages("metals.md", "Platinum is dense and hypoallergenic.")); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}

	refs, err := ix.Retrieve(ctx, "pearls oysters", 1)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(refs) != 1 || refs[0].Ref != "gems.md#2" || refs[0].Page != 2 || refs[0].Source != "gems.md" {
		t.Fatalf("Retrieve() = %+v, want gems.md#2", refs)
	}
	if refs[0].Text != "Pearls form inside oysters." {
		t.Errorf("Text = %q", refs[0].Text)
	}

	// Replacing drops pages that disappeared.
	if err := ix.ReplaceSource(ctx, "gems.md", SplitPages("gems.md", "Emeralds are beryl.")); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if n, _ := ix.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	refs, err = ix.Retrieve(ctx, "oysters", 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("stale page still retrievable: %+v", refs)
	}

	sources, err := ix.Sources(ctx)
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("Sources() = %v", sources)
	}

	if err := ix.DeleteSource(ctx, "metals.md"); err != nil {
		t.Fatalf("DeleteSource() error = %v", err)
	}
	if n, _ := ix.Count(); n != 1 {
		t.Errorf("Count() after delete = %d, want 1", n)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	ix, err := OpenIndex("", nil)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	defer ix.Close()

	refs, err := ix.Retrieve(context.Background(), "", 3)
	if err != nil || refs != nil {
		t.Errorf("Retrieve(\"\") = %v, %v", refs, err)
	}
}

func TestWalkerIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "gems.md", "gems")
	writeFile(t, root, "care/cleaning.txt", "cleaning")
	writeFile(t, root, "notes.pdf", "binary")
	writeFile(t, root, "archive/old.md", "old")
	writeFile(t, root, "drafts/wip.md", "wip")
	writeFile(t, root, IgnoreFile, "# retired docs\narchive/\n")

	w, err := NewWalker(root)
	if err != nil {
		t.Fatalf("NewWalker() error = %v", err)
	}
	docs, err := w.Walk(context.Background())
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{"care/cleaning.txt", "gems.md"}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("Walk() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderRebuildAndReindex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "gems.md", "Rubies are red corundum.\fOpals diffract light.")
	writeFile(t, root, "metals.md", "Rose gold contains copper.")

	ix, err := OpenIndex(filepath.Join(t.TempDir(), "kb.bleve"), nil)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	defer ix.Close()

	w, err := NewWalker(root)
	if err != nil {
		t.Fatalf("NewWalker() error = %v", err)
	}
	b := NewBuilder(w, ix, nil)

	stats, err := b.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.Documents != 2 || stats.Pages != 3 || stats.Removed != 0 {
		t.Errorf("Rebuild() stats = %+v", stats)
	}

	// A deleted file disappears on the next rebuild.
	if err := os.Remove(filepath.Join(root, "metals.md")); err != nil {
		t.Fatal(err)
	}
	stats, err = b.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if stats.Removed != 1 {
		t.Errorf("Removed = %d, want 1", stats.Removed)
	}

	writeFile(t, root, "gems.md", "Tanzanite is found only in Tanzania.")
	if err := b.Reindex(ctx, []string{"gems.md", "missing.md", "image.png"}); err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	refs, err := ix.Retrieve(ctx, "tanzanite", 1)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(refs) != 1 || refs[0].Ref != "gems.md#1" {
		t.Errorf("Retrieve() = %+v", refs)
	}
	if n, _ := ix.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}
