package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"

	"github.com/seanblong/geoscore/internal/rag"
	"github.com/seanblong/geoscore/internal/scoring"
	"github.com/seanblong/geoscore/internal/search"
	"github.com/seanblong/geoscore/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockScorer records every scan input.
type MockScorer struct {
	mu            sync.Mutex
	Inputs        []scoring.ScanInput
	ScorePageFunc func(ctx context.Context, in scoring.ScanInput) (scoring.ScoreResult, error)
}

func (m *MockScorer) ScorePage(ctx context.Context, in scoring.ScanInput) (scoring.ScoreResult, error) {
	m.mu.Lock()
	m.Inputs = append(m.Inputs, in)
	m.mu.Unlock()
	if m.ScorePageFunc != nil {
		return m.ScorePageFunc(ctx, in)
	}
	return scoring.ScoreResult{Percentage: 60, Grade: "C+"}, nil
}

func (m *MockScorer) input(url string) (scoring.ScanInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.Inputs {
		if in.URL == url {
			return in, true
		}
	}
	return scoring.ScanInput{}, false
}

type MockSink struct {
	mu                    sync.Mutex
	Tenants               []string
	IndexAfterScoringFunc func(ctx context.Context, tenant string, in scoring.ScanInput, res scoring.ScoreResult) ([]models.Document, error)
}

func (m *MockSink) IndexAfterScoring(ctx context.Context, tenant string, in scoring.ScanInput, res scoring.ScoreResult) ([]models.Document, error) {
	m.mu.Lock()
	m.Tenants = append(m.Tenants, tenant)
	m.mu.Unlock()
	if m.IndexAfterScoringFunc != nil {
		return m.IndexAfterScoringFunc(ctx, tenant, in, res)
	}
	return make([]models.Document, 3), nil
}

type MockSimilarity struct {
	SiteSimilarityFunc func(ctx context.Context, tenant, text string, sample int) (float64, bool, error)
}

func (m *MockSimilarity) SiteSimilarity(ctx context.Context, tenant, text string, sample int) (float64, bool, error) {
	if m.SiteSimilarityFunc != nil {
		return m.SiteSimilarityFunc(ctx, tenant, text, sample)
	}
	return 0.8, true, nil
}

// MockFileSystemWalker implements FileSystemWalker for testing
type MockFileSystemWalker struct {
	FilesToProcess []string // List of file paths to process
	WalkError      error    // Error to return from Walk
}

func (m *MockFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	if m.WalkError != nil {
		return m.WalkError
	}
	// A nil Dirent stands for a regular file.
	for _, filePath := range m.FilesToProcess {
		if err := options.Callback(filePath, nil); err != nil {
			return err
		}
	}
	return nil
}

// MockFileReader implements FileReader for testing
type MockFileReader struct {
	ReadFileFunc func(filename string) ([]byte, error)
	Files        map[string]string // path -> content
}

func (m *MockFileReader) ReadFile(filename string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(filename)
	}
	if content, exists := m.Files[filename]; exists {
		return []byte(content), nil
	}
	return nil, errors.New("file not found")
}

const page = `<html><head><title>Apples</title></head><body><h1>Apples</h1><p>An apple is a fruit.</p></body></html>`

func TestIndexer_Run(t *testing.T) {
	files := map[string]string{
		"/site/index.html":          page,
		"/site/guides/apples.html":  page,
		"/site/guides/index.htm":    page,
		"/site/robots.txt":          "User-agent: *\nAllow: /",
		"/site/llms.txt":            "# Site",
		"/site/styles.css":          "body{}",
		"/site/node_modules/x.html": page,
	}
	walker := &MockFileSystemWalker{FilesToProcess: []string{
		"/site/index.html",
		"/site/guides/apples.html",
		"/site/guides/index.htm",
		"/site/styles.css",
		"/site/node_modules/x.html",
		"/site/missing.html",
	}}
	scorer := &MockScorer{}
	sink := &MockSink{}
	fetched := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	ix := NewWithDependencies(scorer, sink, &MockSimilarity{}, "/site", "https://example.com/docs/", "acme",
		walker, &MockFileReader{Files: files})
	ix.FetchedAt = fetched
	ix.Workers = 2

	report, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var paths []string
	for _, p := range report.Pages {
		paths = append(paths, p.Path)
		if p.Documents != 3 || p.Grade != "C+" || p.ContentHash != hashContent(page) {
			t.Errorf("page %s = %+v", p.Path, p)
		}
	}
	if want := []string{"guides/apples.html", "guides/index.htm", "index.html"}; !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if report.Failed != 0 || report.AverageScore != 60 {
		t.Errorf("report = %+v", report)
	}

	in, ok := scorer.input("https://example.com/docs/guides/")
	if !ok {
		t.Fatalf("guides/index.htm not mapped to its directory URL; inputs %d", len(scorer.Inputs))
	}
	if in.RobotsTxt == "" || in.LlmsTxt != "# Site" || !in.FetchedAt.Equal(fetched) {
		t.Errorf("site files not passed through: %+v", in)
	}
	if in.SiteSimilarity == nil || *in.SiteSimilarity != 0.8 {
		t.Errorf("site similarity = %v", in.SiteSimilarity)
	}
	for _, tenant := range sink.Tenants {
		if tenant != "acme" {
			t.Errorf("sink called for tenant %q", tenant)
		}
	}
}

func TestIndexer_RunFailures(t *testing.T) {
	files := map[string]string{"/s/a.html": page, "/s/b.html": page, "/s/c.html": page}
	walker := &MockFileSystemWalker{FilesToProcess: []string{"/s/a.html", "/s/b.html", "/s/c.html"}}
	scorer := &MockScorer{ScorePageFunc: func(ctx context.Context, in scoring.ScanInput) (scoring.ScoreResult, error) {
		if in.URL == "https://x/a.html" {
			return scoring.ScoreResult{}, errors.New("canceled")
		}
		return scoring.ScoreResult{Percentage: 80, Grade: "A-"}, nil
	}}
	sink := &MockSink{IndexAfterScoringFunc: func(ctx context.Context, tenant string, in scoring.ScanInput, res scoring.ScoreResult) ([]models.Document, error) {
		if in.URL == "https://x/b.html" {
			return nil, errors.New("rate limited")
		}
		return nil, nil
	}}
	sim := &MockSimilarity{SiteSimilarityFunc: func(ctx context.Context, tenant, text string, sample int) (float64, bool, error) {
		return 0, false, errors.New("provider down")
	}}

	ix := NewWithDependencies(scorer, sink, sim, "/s", "https://x", "t", walker, &MockFileReader{Files: files})
	report, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("per-page failures should not fail the run: %v", err)
	}
	if report.Failed != 2 || report.AverageScore != 80 {
		t.Errorf("report = %+v", report)
	}
	if report.Pages[0].Error != "canceled" || report.Pages[1].Error != "rate limited" || report.Pages[2].Error != "" {
		t.Errorf("pages = %+v", report.Pages)
	}
	in, _ := scorer.input("https://x/c.html")
	if in.SiteSimilarity != nil {
		t.Error("failed similarity should leave the signal unknown")
	}
}

func TestIndexer_RunWithoutTenant(t *testing.T) {
	walker := &MockFileSystemWalker{FilesToProcess: []string{"/s/a.html"}}
	sink := &MockSink{}
	ix := NewWithDependencies(&MockScorer{}, sink, &MockSimilarity{}, "/s", "", "", walker,
		&MockFileReader{Files: map[string]string{"/s/a.html": page}})
	report, err := ix.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sink.Tenants) != 0 {
		t.Error("pages should only be scored without a tenant")
	}
	if len(report.Pages) != 1 || report.Pages[0].URL != "" {
		t.Errorf("report = %+v", report)
	}
}

func TestIndexer_RunWalkError(t *testing.T) {
	walkErr := errors.New("permission denied")
	ix := NewWithDependencies(&MockScorer{}, nil, nil, "/s", "", "", &MockFileSystemWalker{WalkError: walkErr}, &MockFileReader{})
	if _, err := ix.Run(context.Background()); !errors.Is(err, walkErr) {
		t.Errorf("err = %v, want walk error", err)
	}
}

func TestIndexer_RunCancelled(t *testing.T) {
	files := map[string]string{}
	var list []string
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		p := "/s/" + n + ".html"
		files[p] = page
		list = append(list, p)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ix := NewWithDependencies(&MockScorer{}, nil, nil, "/s", "", "", &MockFileSystemWalker{FilesToProcess: list}, &MockFileReader{Files: files})
	ix.Workers = 1
	if _, err := ix.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// TestIndexer_RealDirectory walks a temporary site with godirwalk.
func TestIndexer_RealDirectory(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("index.html", page)
	write("blog/post.html", page)
	write(".git/HEAD.html", page)
	write("static/logo.svg", "<svg/>")

	engine, err := scoring.NewEngine(scoring.Options{})
	if err != nil {
		t.Fatal(err)
	}
	report, err := New(engine, nil, nil, root, "https://example.com", "").Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Pages) != 2 || report.Pages[0].Path != "blog/post.html" || report.Pages[1].URL != "https://example.com/" {
		t.Errorf("pages = %+v", report.Pages)
	}
	for _, p := range report.Pages {
		if p.Grade == "" || p.Percentage <= 0 {
			t.Errorf("page not scored: %+v", p)
		}
	}
}

func TestIndexer_UtilityFunctions(t *testing.T) {
	t.Run("pageURL", func(t *testing.T) {
		tests := []struct {
			base, rel, want string
		}{
			{"https://example.com", "index.html", "https://example.com/"},
			{"https://example.com/", "a/b.html", "https://example.com/a/b.html"},
			{"https://example.com/docs", "guide/index.html", "https://example.com/docs/guide/"},
			{"", "a.html", ""},
		}
		for _, tt := range tests {
			if got := pageURL(tt.base, tt.rel); got != tt.want {
				t.Errorf("pageURL(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
			}
		}
	})

	t.Run("isPage", func(t *testing.T) {
		tests := map[string]bool{
			"index.html":          true,
			"a/B.HTM":             true,
			"doc.xhtml":           true,
			"styles.css":          false,
			"node_modules/x.html": false,
			"site/.git/x.html":    false,
			"assets/embed.html":   false,
			"readme.md":           false,
		}
		for p, want := range tests {
			if got := isPage(p); got != want {
				t.Errorf("isPage(%q) = %v, want %v", p, got, want)
			}
		}
	})

	t.Run("skipDir", func(t *testing.T) {
		if !skipDir("/site/.git") || !skipDir("/site/node_modules") || skipDir("/site/blog") {
			t.Error("unexpected skipDir result")
		}
	})

	t.Run("hashContent", func(t *testing.T) {
		if hashContent("a") == hashContent("b") || len(hashContent("a")) != 40 {
			t.Error("unexpected hash")
		}
	})

	t.Run("summarize", func(t *testing.T) {
		r := summarize([]PageResult{
			{Path: "b", Percentage: 50},
			{Path: "a", Percentage: 70},
			{Path: "c", Error: "x"},
		})
		if r.Pages[0].Path != "a" || r.Failed != 1 || r.AverageScore != 60 {
			t.Errorf("summarize = %+v", r)
		}
	})
}

func TestInterfaceCompliance(t *testing.T) {
	var _ FileSystemWalker = &DefaultFileSystemWalker{}
	var _ FileReader = &DefaultFileReader{}
	var _ Scorer = &scoring.Engine{}
	var _ Sink = &rag.Enhancer{}
	var _ Similarity = &search.Service{}
}
