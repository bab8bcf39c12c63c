package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/scoring"
	"github.com/seanblong/geoscore/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Scorer computes a page's heuristic score.
type Scorer interface {
	ScorePage(ctx context.Context, in scoring.ScanInput) (scoring.ScoreResult, error)
}

// Sink stores a scored page for later comparison; rag.Enhancer implements it.
type Sink interface {
	IndexAfterScoring(ctx context.Context, tenant string, in scoring.ScanInput, res scoring.ScoreResult) ([]models.Document, error)
}

// Similarity measures a page against the tenant's indexed pages;
// search.Service implements it.
type Similarity interface {
	SiteSimilarity(ctx context.Context, tenant, text string, sample int) (float64, bool, error)
}

// SimilaritySample is how many neighbours form the site centroid.
const SimilaritySample = 10

// Indexer scores every HTML page under a directory (a static site export)
// and stores the results for the tenant.
type Indexer struct {
	Scorer     Scorer
	Sink       Sink
	Similarity Similarity
	Root       string
	BaseURL    string
	Tenant     string
	FetchedAt  time.Time
	Workers    int
	Walker     FileSystemWalker
	FileReader FileReader
}

// PageResult is the outcome for one file.
type PageResult struct {
	Path        string  `json:"path"`
	URL         string  `json:"url"`
	ContentHash string  `json:"content_hash"`
	Percentage  float64 `json:"percentage"`
	Grade       string  `json:"grade"`
	Documents   int     `json:"documents"`
	Error       string  `json:"error,omitempty"`
}

// Report summarises a run. Pages are sorted by path.
type Report struct {
	Pages        []PageResult `json:"pages"`
	Failed       int          `json:"failed"`
	AverageScore float64      `json:"average_score"`
}

// hashContent returns the SHA-1 hash of the given content as a hex string.
func hashContent(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// New creates an Indexer over root. sink and sim may be nil: without a sink
// pages are only scored.
func New(scorer Scorer, sink Sink, sim Similarity, root, baseURL, tenant string) *Indexer {
	return NewWithDependencies(scorer, sink, sim, root, baseURL, tenant, &DefaultFileSystemWalker{}, &DefaultFileReader{})
}

// NewWithDependencies creates a new Indexer instance with custom dependencies for testing
func NewWithDependencies(scorer Scorer, sink Sink, sim Similarity, root, baseURL, tenant string, walker FileSystemWalker, fileReader FileReader) *Indexer {
	return &Indexer{
		Scorer:     scorer,
		Sink:       sink,
		Similarity: sim,
		Root:       root,
		BaseURL:    baseURL,
		Tenant:     tenant,
		Walker:     walker,
		FileReader: fileReader,
	}
}

// workItem represents a page to be processed
type workItem struct {
	path    string
	content string
}

type siteFiles struct {
	robots string
	llms   string
}

func (ix *Indexer) readSiteFiles() siteFiles {
	var sf siteFiles
	if b, err := ix.FileReader.ReadFile(filepath.Join(ix.Root, "robots.txt")); err == nil {
		sf.robots = string(b)
	}
	if b, err := ix.FileReader.ReadFile(filepath.Join(ix.Root, "llms.txt")); err == nil {
		sf.llms = string(b)
	}
	return sf
}

// processWorkItem scores and stores a single page
func (ix *Indexer) processWorkItem(ctx context.Context, item workItem, sf siteFiles) PageResult {
	relPath := rel(ix.Root, item.path)
	pr := PageResult{
		Path:        relPath,
		URL:         pageURL(ix.BaseURL, relPath),
		ContentHash: hashContent(item.content),
	}
	in := scoring.ScanInput{
		HTML:      item.content,
		URL:       pr.URL,
		FetchedAt: ix.FetchedAt,
		RobotsTxt: sf.robots,
		LlmsTxt:   sf.llms,
	}

	if ix.Similarity != nil && ix.Tenant != "" {
		if text := preprocess.StripHTML(item.content); strings.TrimSpace(text) != "" {
			sim, ok, err := ix.Similarity.SiteSimilarity(ctx, ix.Tenant, text, SimilaritySample)
			switch {
			case err != nil:
				log.Warn().Err(err).Str("path", relPath).Msg("site similarity failed")
			case ok:
				in.SiteSimilarity = &sim
			}
		}
	}

	res, err := ix.Scorer.ScorePage(ctx, in)
	if err != nil {
		pr.Error = err.Error()
		return pr
	}
	pr.Percentage = res.Percentage
	pr.Grade = res.Grade

	if ix.Sink != nil && ix.Tenant != "" {
		docs, err := ix.Sink.IndexAfterScoring(ctx, ix.Tenant, in, res)
		if err != nil {
			log.Error().Err(err).Str("path", relPath).Msg("store failed")
			pr.Error = err.Error()
			return pr
		}
		pr.Documents = len(docs)
	}

	log.Info().Str("path", relPath).
		Float64("percentage", pr.Percentage).
		Str("grade", pr.Grade).
		Int("documents", pr.Documents).
		Msg("indexed page")
	return pr
}

func (ix *Indexer) workers() int {
	if ix.Workers > 0 {
		return ix.Workers
	}
	// Cap at 8 to avoid overwhelming the AI API
	return min(runtime.NumCPU(), 8)
}

// Run walks Root and processes every page. Per-page failures are recorded
// in the report; the error is non-nil only when the walk itself fails or
// ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) (Report, error) {
	numWorkers := ix.workers()
	sf := ix.readSiteFiles()

	log.Info().Int("workers", numWorkers).Str("root", ix.Root).Msg("starting concurrent indexing")

	workChan := make(chan workItem, numWorkers*2)
	var (
		mu      sync.Mutex
		results []PageResult
		wg      sync.WaitGroup
	)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")
			for item := range workChan {
				pr := ix.processWorkItem(ctx, item, sf)
				mu.Lock()
				results = append(results, pr)
				mu.Unlock()
			}
			log.Debug().Int("worker", workerID).Msg("worker finished")
		}(i)
	}

	walkErr := ix.Walker.Walk(ix.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if path != ix.Root && skipDir(path) {
					return godirwalk.SkipThis
				}
				return nil
			}
			if !isPage(rel(ix.Root, path)) {
				return nil
			}

			b, err := ix.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}

			select {
			case workChan <- workItem{path: path, content: string(b)}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})

	close(workChan)
	wg.Wait()

	report := summarize(results)
	log.Info().Int("pages", len(report.Pages)).
		Int("failed", report.Failed).
		Float64("average", report.AverageScore).
		Msg("indexing finished")
	if walkErr != nil {
		return report, walkErr
	}
	return report, ctx.Err()
}

func summarize(results []PageResult) Report {
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	r := Report{Pages: results}
	var sum float64
	scored := 0
	for _, p := range results {
		if p.Error != "" {
			r.Failed++
			continue
		}
		sum += p.Percentage
		scored++
	}
	if scored > 0 {
		r.AverageScore = sum / float64(scored)
	}
	return r
}

// skipDir reports directories that never hold site pages.
func skipDir(p string) bool {
	switch strings.ToLower(filepath.Base(p)) {
	case ".git", "node_modules", ".cache", "vendor", "_next", "assets", "static", "__pycache__":
		return true
	}
	return false
}

// isPage returns true for HTML files outside skipped directories. p is
// relative to the site root.
func isPage(p string) bool {
	lower := "/" + strings.ToLower(filepath.ToSlash(p))
	for _, dir := range []string{"/.git/", "/node_modules/", "/.cache/", "/vendor/", "/_next/", "/assets/", "/static/", "/__pycache__/"} {
		if strings.Contains(lower, dir) {
			return false
		}
	}
	switch filepath.Ext(lower) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

// pageURL maps a site-relative file path to its public URL; index.html
// files map to their directory.
func pageURL(base, relPath string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	p := relPath
	if path.Base(p) == "index.html" || path.Base(p) == "index.htm" {
		p = path.Dir(p) + "/"
		if p == "./" {
			p = ""
		}
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + p
	return u.String()
}
