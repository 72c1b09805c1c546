package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lspcore/mediator/internal/fingerprint"
	"github.com/lspcore/mediator/internal/hybrid"
	"github.com/lspcore/mediator/internal/ucache"
	"github.com/lspcore/mediator/internal/workspace"
)

type fixedStructural struct{}

func (fixedStructural) Analyze(ctx context.Context, path string, content []byte, language string) (hybrid.AnalysisResult, error) {
	return hybrid.AnalysisResult{Symbols: []hybrid.ExtractedSymbol{
		{Name: "Alpha", Kind: "function", Location: hybrid.Location{File: path, Line: 1}},
		{Name: "Beta", Kind: "struct", Location: hybrid.Location{File: path, Line: 5}},
	}}, nil
}

func TestWarmupWorkspacePopulatesDocumentSymbolCache(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module warm\n"), 0o644))
	fileA := filepath.Join(root, "a.go")
	fileB := filepath.Join(root, "b.go")
	require.NoError(t, os.WriteFile(fileA, []byte("package warm\n"), 0o644))
	require.NoError(t, os.WriteFile(fileB, []byte("package warm\n"), 0o644))
	// not a source file, must be skipped silently
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# notes\n"), 0o644))

	router := workspace.New(workspace.Options{DisablePersistence: true})
	t.Cleanup(func() { router.Close() })
	cache := ucache.New(router, ucache.DefaultRegistry(), fingerprint.XXHash)

	pipe := New(Config{})
	pipe.Register(SubPipeline{Language: "go", Flags: DefaultFeatureFlags(), Structural: fixedStructural{}})

	w := NewWarmer(pipe, cache, 2)
	result, err := w.WarmupWorkspace(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, 2, result.FilesProcessed)
	require.Equal(t, 4, result.SymbolsCached)

	var warmed struct {
		Symbols []WarmSymbol `json:"symbols"`
	}
	hit, err := cache.Get(ucache.MethodDocumentSymbols, fileA, nil, &warmed)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, warmed.Symbols, 2)
}

func TestReindexWorkspaceSatisfiesCoordinatorContract(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module warm\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "m.go"), []byte("package warm\n"), 0o644))

	router := workspace.New(workspace.Options{DisablePersistence: true})
	t.Cleanup(func() { router.Close() })
	cache := ucache.New(router, ucache.DefaultRegistry(), fingerprint.XXHash)

	pipe := New(Config{})
	pipe.Register(SubPipeline{Language: "go", Flags: DefaultFeatureFlags(), Structural: fixedStructural{}})

	w := NewWarmer(pipe, cache, 1)
	require.NoError(t, w.ReindexWorkspace(root))

	var warmed struct {
		Symbols []WarmSymbol `json:"symbols"`
	}
	hit, err := cache.Get(ucache.MethodDocumentSymbols, filepath.Join(root, "m.go"), nil, &warmed)
	require.NoError(t, err)
	require.True(t, hit)
}
