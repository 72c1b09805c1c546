package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestChangesWithContent(t *testing.T) {
	a := Digest(XXHash, []byte("package main"))
	b := Digest(XXHash, []byte("package main\n// edited"))
	require.NotEqual(t, a, b)
	require.Equal(t, a, Digest(XXHash, []byte("package main")))
}

func TestDigestAlgorithmsDiffer(t *testing.T) {
	content := []byte("fn main() {}")
	require.NotEqual(t, Digest(XXHash, content), Digest(SHA256, content))
	require.Len(t, Digest(XXHash, content), 16)
	require.Len(t, Digest(SHA256, content), 64)
}

func TestUnknownAlgorithmFallsBackToXXHash(t *testing.T) {
	content := []byte("data")
	require.Equal(t, Digest(XXHash, content), Digest("whirlpool", content))
}

func TestParamsStableAcrossKeyOrder(t *testing.T) {
	// Go's JSON marshaler sorts map keys, so logically equal params
	// fingerprint identically regardless of construction order.
	a, err := Params(XXHash, map[string]int{"line": 1, "char": 7})
	require.NoError(t, err)
	b, err := Params(XXHash, map[string]int{"char": 7, "line": 1})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestParamsNilIsCacheable(t *testing.T) {
	a, err := Params(XXHash, nil)
	require.NoError(t, err)
	require.NotEmpty(t, a)
}

func TestParamsNonDeterministicFailsClosed(t *testing.T) {
	_, err := Params(XXHash, make(chan int))
	require.Error(t, err)
}

func TestParamsDistinguishValues(t *testing.T) {
	a, err := Params(XXHash, map[string]int{"line": 1})
	require.NoError(t, err)
	b, err := Params(XXHash, map[string]int{"line": 2})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
