package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGitignoreParsesModifiers(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("!keep.log")
	gp.AddPattern("build/")
	gp.AddPattern("/root-only.txt")

	require.True(t, gp.patterns[0].Negate)
	require.True(t, gp.patterns[1].Directory)
	require.True(t, gp.patterns[2].Absolute)
}

func TestExclusionPatternsConversion(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("*.log")
	gp.AddPattern("node_modules/")
	gp.AddPattern("!important.log")
	gp.AddPattern("/dist")

	got := gp.ExclusionPatterns()
	require.Contains(t, got, "**/*.log")
	require.Contains(t, got, "**/node_modules/**")
	require.Contains(t, got, "dist/**")
	// negations are dropped, not inverted
	for _, g := range got {
		require.NotContains(t, g, "important")
	}
}

func TestLoadGitignoreMissingFileIsFine(t *testing.T) {
	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(t.TempDir()))
	require.Empty(t, gp.ExclusionPatterns())
}

func TestLoadGitignoreSkipsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	content := "# build output\n\ntarget/\n*.tmp\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(content), 0o644))

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(dir))
	got := gp.ExclusionPatterns()
	require.Len(t, got, 2)
	require.Contains(t, got, "**/target/**")
	require.Contains(t, got, "**/*.tmp")
}

func TestBuildArtifactDetectorReadsTsconfigAndCargo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tsconfig.json"),
		[]byte(`{"compilerOptions":{"outDir":"out"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"),
		[]byte("[build]\ntarget-dir = \"custom-target\"\n"), 0o644))

	got := NewBuildArtifactDetector(dir).DetectOutputDirectories()
	require.Contains(t, got, "**/out/**")
	require.Contains(t, got, "**/custom-target/**")
}

func TestDeduplicatePatterns(t *testing.T) {
	got := DeduplicatePatterns([]string{"a", "b", "a", "c", "b"})
	require.Equal(t, []string{"a", "b", "c"}, got)
}
