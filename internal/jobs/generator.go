package jobs

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autoguard/autoguard/internal/model"
)

const maxScrapeBytes = 4 << 20

// FilePageGenerator materializes page variants under the shared page root,
// at <root>/<subdomain>/<variant>/index.html. Scrape jobs mirror the source
// URL body; ai_generate jobs render a neutral templated page.
type FilePageGenerator struct {
	Root   string
	Client *http.Client
}

// NewFilePageGenerator creates a generator writing under root.
func NewFilePageGenerator(root string) *FilePageGenerator {
	return &FilePageGenerator{
		Root:   root,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

var safePageTmpl = template.Must(template.New("safe").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>Thanks for stopping by. Content for this page is being prepared.</p>
</main>
</body>
</html>
`))

// Generate produces the variant file for one job.
func (g *FilePageGenerator) Generate(ctx context.Context, job model.PageGenerationJob) error {
	if job.Subdomain == "" {
		return fmt.Errorf("jobs: generate: empty subdomain")
	}
	var body []byte
	var err error
	switch job.Action {
	case model.ActionScrape:
		body, err = g.scrape(ctx, job.SourceURL)
	case model.ActionAIGenerate:
		body, err = g.render(job)
	default:
		return fmt.Errorf("jobs: generate: unknown action %q", job.Action)
	}
	if err != nil {
		return err
	}
	return g.write(job, body)
}

func (g *FilePageGenerator) scrape(ctx context.Context, sourceURL string) ([]byte, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("jobs: scrape: empty source url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("jobs: scrape %s: %w", sourceURL, err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jobs: scrape %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jobs: scrape %s: status %d", sourceURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return nil, fmt.Errorf("jobs: scrape %s: read body: %w", sourceURL, err)
	}
	return body, nil
}

func (g *FilePageGenerator) render(job model.PageGenerationJob) ([]byte, error) {
	title := job.SafePageStyle
	if title == "" {
		title = "Welcome"
	}
	var sb strings.Builder
	if err := safePageTmpl.Execute(&sb, struct{ Title string }{Title: title}); err != nil {
		return nil, fmt.Errorf("jobs: render page %d: %w", job.PageID, err)
	}
	return []byte(sb.String()), nil
}

// write lands the file atomically: temp file in the target directory, then
// rename. A visitor concurrently served the old file never sees a partial
// write.
func (g *FilePageGenerator) write(job model.PageGenerationJob, body []byte) error {
	dir := filepath.Join(g.Root, job.Subdomain, string(job.Variant))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jobs: page dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.html")
	if err != nil {
		return fmt.Errorf("jobs: temp file in %s: %w", dir, err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("jobs: write page: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("jobs: close page: %w", err)
	}
	target := filepath.Join(dir, "index.html")
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("jobs: publish %s: %w", target, err)
	}
	return nil
}
