package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// BuildArtifactDetector inspects a project's build configuration files
// (package.json, tsconfig.json, Cargo.toml, pyproject.toml) for output
// directories that should never be indexed or analyzed.
type BuildArtifactDetector struct {
	projectRoot string
}

// NewBuildArtifactDetector creates a detector rooted at projectRoot.
func NewBuildArtifactDetector(projectRoot string) *BuildArtifactDetector {
	return &BuildArtifactDetector{projectRoot: projectRoot}
}

// DetectOutputDirectories returns doublestar exclusion globs for every
// build-output directory the project's configuration declares.
func (d *BuildArtifactDetector) DetectOutputDirectories() []string {
	var patterns []string
	patterns = append(patterns, d.typescriptOutDir()...)
	patterns = append(patterns, d.cargoTargetDir()...)
	patterns = append(patterns, d.pyprojectTargetDir()...)
	return patterns
}

// typescriptOutDir reads compilerOptions.outDir from tsconfig.json and
// any --outDir flag in package.json build scripts.
func (d *BuildArtifactDetector) typescriptOutDir() []string {
	var patterns []string

	if data, err := os.ReadFile(filepath.Join(d.projectRoot, "tsconfig.json")); err == nil {
		var tsconfig struct {
			CompilerOptions struct {
				OutDir string `json:"outDir"`
			} `json:"compilerOptions"`
		}
		if json.Unmarshal(data, &tsconfig) == nil && tsconfig.CompilerOptions.OutDir != "" {
			patterns = append(patterns, dirGlob(tsconfig.CompilerOptions.OutDir))
		}
	}

	if data, err := os.ReadFile(filepath.Join(d.projectRoot, "package.json")); err == nil {
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			for _, script := range pkg.Scripts {
				parts := strings.Fields(script)
				for i, part := range parts {
					if (part == "--outDir" || part == "-outDir") && i+1 < len(parts) {
						patterns = append(patterns, dirGlob(strings.Trim(parts[i+1], `"'`)))
					}
				}
			}
		}
	}
	return patterns
}

// cargoTargetDir reads a custom target-dir from Cargo.toml. The default
// target/ directory is covered by the stock exclusions.
func (d *BuildArtifactDetector) cargoTargetDir() []string {
	data, err := os.ReadFile(filepath.Join(d.projectRoot, "Cargo.toml"))
	if err != nil {
		return nil
	}
	var cargo struct {
		Build struct {
			TargetDir string `toml:"target-dir"`
		} `toml:"build"`
	}
	if toml.Unmarshal(data, &cargo) != nil || cargo.Build.TargetDir == "" {
		return nil
	}
	return []string{dirGlob(cargo.Build.TargetDir)}
}

// pyprojectTargetDir reads a poetry build target from pyproject.toml.
func (d *BuildArtifactDetector) pyprojectTargetDir() []string {
	data, err := os.ReadFile(filepath.Join(d.projectRoot, "pyproject.toml"))
	if err != nil {
		return nil
	}
	var pyproject struct {
		Tool struct {
			Poetry struct {
				Build struct {
					TargetDir string `toml:"target-dir"`
				} `toml:"build"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if toml.Unmarshal(data, &pyproject) != nil || pyproject.Tool.Poetry.Build.TargetDir == "" {
		return nil
	}
	return []string{dirGlob(pyproject.Tool.Poetry.Build.TargetDir)}
}

func dirGlob(dir string) string {
	return "**/" + strings.Trim(dir, "/") + "/**"
}

// DeduplicatePatterns removes duplicate exclusion patterns, preserving
// first-seen order.
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}
