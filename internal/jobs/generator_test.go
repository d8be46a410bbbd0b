package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autoguard/autoguard/internal/model"
)

func readPage(t *testing.T, root, subdomain string, variant model.Variant) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(root, subdomain, string(variant), "index.html"))
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	return string(raw)
}

func TestGenerateRendersSafePage(t *testing.T) {
	root := t.TempDir()
	g := NewFilePageGenerator(root)

	err := g.Generate(context.Background(), model.PageGenerationJob{
		PageID:        1,
		Variant:       model.VariantSafe,
		Action:        model.ActionAIGenerate,
		Subdomain:     "abc123",
		SafePageStyle: "Garden Supplies",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	body := readPage(t, root, "abc123", model.VariantSafe)
	if !strings.Contains(body, "<title>Garden Supplies</title>") {
		t.Fatalf("body missing styled title: %q", body)
	}

	// No leftover temp files after the rename.
	entries, _ := os.ReadDir(filepath.Join(root, "abc123", "b"))
	if len(entries) != 1 {
		t.Fatalf("variant dir has %d entries, want index.html only", len(entries))
	}
}

func TestGenerateScrapeMirrorsSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>offer landing</html>"))
	}))
	defer srv.Close()

	root := t.TempDir()
	g := NewFilePageGenerator(root)
	err := g.Generate(context.Background(), model.PageGenerationJob{
		PageID:    2,
		Variant:   model.VariantMoney,
		Action:    model.ActionScrape,
		SourceURL: srv.URL,
		Subdomain: "abc123",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if body := readPage(t, root, "abc123", model.VariantMoney); body != "<html>offer landing</html>" {
		t.Fatalf("body = %q", body)
	}
}

func TestGenerateScrapeRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewFilePageGenerator(t.TempDir())
	err := g.Generate(context.Background(), model.PageGenerationJob{
		PageID:    3,
		Variant:   model.VariantMoney,
		Action:    model.ActionScrape,
		SourceURL: srv.URL,
		Subdomain: "abc123",
	})
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestGenerateValidatesJob(t *testing.T) {
	g := NewFilePageGenerator(t.TempDir())

	err := g.Generate(context.Background(), model.PageGenerationJob{
		Variant: model.VariantSafe, Action: model.ActionAIGenerate,
	})
	if err == nil {
		t.Fatal("empty subdomain must error")
	}

	err = g.Generate(context.Background(), model.PageGenerationJob{
		Variant: model.VariantSafe, Action: "mystery", Subdomain: "abc123",
	})
	if err == nil {
		t.Fatal("unknown action must error")
	}

	err = g.Generate(context.Background(), model.PageGenerationJob{
		Variant: model.VariantMoney, Action: model.ActionScrape, Subdomain: "abc123",
	})
	if err == nil {
		t.Fatal("scrape without source url must error")
	}
}
