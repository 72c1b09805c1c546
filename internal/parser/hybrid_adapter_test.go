package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lspcore/mediator/internal/hybrid"
)

func TestStructuralAdapterProducesSymbolsAndRelationships(t *testing.T) {
	src := []byte(`package demo

import "fmt"

func caller() {
	callee()
	fmt.Println("done")
}

func callee() {}
`)
	a := NewStructuralAdapter()
	res, err := a.Analyze(context.Background(), "demo.go", src, "go")
	require.NoError(t, err)

	names := make([]string, 0, len(res.Symbols))
	for _, s := range res.Symbols {
		names = append(names, s.Name)
	}
	require.Contains(t, names, "caller")
	require.Contains(t, names, "callee")

	var sawLocalCall, sawImportCall, sawImport bool
	for _, rel := range res.Relationships {
		if rel.Type == hybrid.RelCalls {
			switch {
			case strings.HasSuffix(rel.TargetUID, ":callee"):
				sawLocalCall = true
				require.Equal(t, 1.0, rel.Confidence)
			case strings.HasPrefix(rel.TargetUID, "import:fmt#"):
				sawImportCall = true
				require.Less(t, rel.Confidence, 1.0)
			}
		}
		if rel.Type == hybrid.RelImports {
			sawImport = true
			require.Equal(t, "import:fmt", rel.TargetUID)
		}
	}
	require.True(t, sawLocalCall, "expected a call relationship resolved to a local symbol")
	require.True(t, sawImportCall, "expected an import-qualified call with graded confidence")
	require.True(t, sawImport)
}

func TestStructuralAdapterParseFailureIsFatal(t *testing.T) {
	a := NewStructuralAdapter()
	_, err := a.Analyze(context.Background(), "notes.txt", []byte("not code"), "")
	require.Error(t, err)
}
