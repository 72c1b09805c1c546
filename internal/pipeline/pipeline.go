package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	lspcoreerrors "github.com/lspcore/mediator/internal/errors"
	"github.com/lspcore/mediator/internal/security"
)

// Config mirrors the pipeline.* configuration keys.
type Config struct {
	MaxFileSizeBytes int64
	ExcludePatterns  []string
	Timeout          time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = 5 * 1024 * 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// extensionLanguage maps a file extension to the language tag used to
// look up a registered sub-pipeline.
var extensionLanguage = map[string]string{
	".go": "go", ".rs": "rust", ".py": "python",
	".ts": "typescript", ".tsx": "typescript", ".js": "javascript", ".jsx": "javascript",
	".java": "java", ".cs": "csharp", ".cpp": "cpp", ".cc": "cpp", ".c": "cpp", ".h": "cpp", ".hpp": "cpp",
	".php": "php", ".zig": "zig",
}

// Pipeline dispatches files to language sub-pipelines, enforcing the
// shared size/exclude/timeout policy that applies regardless of
// language.
type Pipeline struct {
	cfg       Config
	mu        sync.RWMutex
	subs      map[string]SubPipeline
	validator *security.FileValidator
}

// New constructs a Pipeline with the given shared policy. Register
// language sub-pipelines with Register before calling ProcessFile.
func New(cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:  cfg,
		subs: make(map[string]SubPipeline),
		// Files over 256KB get their header sniffed for magic bytes and
		// binary content before the full read, so a renamed image or
		// executable never reaches a language sub-pipeline.
		validator: security.NewFileValidator(256),
	}
}

// ProcessPath reads path from disk and runs it through ProcessFile. For
// files above the validator's threshold, only a header is read first to
// reject disguised binaries before the full file is loaded into memory.
func (p *Pipeline) ProcessPath(ctx context.Context, path string) (PipelineResult, error) {
	if err := p.validator.ValidateLargeFile(path); err != nil {
		return PipelineResult{}, &lspcoreerrors.Configuration{
			Message: fmt.Sprintf("pipeline: %s failed validation: %v", path, err),
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return PipelineResult{}, &lspcoreerrors.NotFound{Path: path}
	}
	return p.ProcessFile(ctx, path, content)
}

// Register installs a sub-pipeline for a language tag.
func (p *Pipeline) Register(sp SubPipeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[sp.Language] = sp
}

// DetectLanguage returns the language tag for path's extension, or ""
// if unrecognized.
func DetectLanguage(path string) string {
	return extensionLanguage[strings.ToLower(filepath.Ext(path))]
}

// ProcessFile runs path+content through its language's sub-pipeline,
// enforcing max file size, exclude patterns, and a per-file timeout.
// A timeout cancellation returns a Timeout error; the pipeline itself
// remains usable for subsequent calls.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, content []byte) (PipelineResult, error) {
	if int64(len(content)) > p.cfg.MaxFileSizeBytes {
		return PipelineResult{}, &lspcoreerrors.Configuration{
			Message: fmt.Sprintf("pipeline: %s (%d bytes) exceeds max file size %d", path, len(content), p.cfg.MaxFileSizeBytes),
		}
	}
	for _, pattern := range p.cfg.ExcludePatterns {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return PipelineResult{FilePath: path, Warnings: []string{"excluded by pattern " + pattern}}, nil
		}
	}

	language := DetectLanguage(path)
	p.mu.RLock()
	sp, ok := p.subs[language]
	p.mu.RUnlock()
	if !ok {
		return PipelineResult{}, &lspcoreerrors.UnsupportedLanguage{Language: language}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	type outcome struct {
		result PipelineResult
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := sp.process(callCtx, path, content)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return PipelineResult{}, o.err
		}
		o.result.ProcessingTimeMs = time.Since(start).Milliseconds()
		return o.result, nil
	case <-callCtx.Done():
		return PipelineResult{}, &lspcoreerrors.Timeout{What: "pipeline:" + path, After: p.cfg.Timeout}
	}
}
