package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// GitignoreParser reads a project's .gitignore and converts its entries
// into the doublestar exclusion patterns the pipeline enforces.
type GitignoreParser struct {
	patterns []GitignorePattern
}

// GitignorePattern is one parsed .gitignore line.
type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool
	Absolute  bool
}

// NewGitignoreParser returns an empty parser.
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{}
}

// LoadGitignore loads patterns from rootPath/.gitignore. A missing file
// is not an error.
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	file, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gp.AddPattern(line)
	}
	return scanner.Err()
}

// AddPattern parses a single .gitignore line into the pattern list.
func (gp *GitignoreParser) AddPattern(line string) {
	p := GitignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.Directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.Absolute = true
		line = line[1:]
	}
	p.Pattern = line
	gp.patterns = append(gp.patterns, p)
}

// ExclusionPatterns converts the parsed patterns into doublestar globs.
// Negated patterns are skipped: a flat exclusion list cannot express
// re-inclusion, and excluding less is the safe direction.
func (gp *GitignoreParser) ExclusionPatterns() []string {
	out := make([]string, 0, len(gp.patterns))
	for _, p := range gp.patterns {
		if p.Negate || p.Pattern == "" {
			continue
		}
		g := p.Pattern
		if !p.Absolute && !strings.HasPrefix(g, "**/") {
			g = "**/" + g
		}
		if p.Directory || !strings.ContainsAny(filepath.Base(g), ".*?[") {
			// A directory entry (or a bare name with no extension or
			// metacharacter) excludes everything beneath it.
			g += "/**"
		}
		out = append(out, g)
	}
	return out
}
