package security

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSmallFilesSkipValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.go")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4E, 0x47}, 0o644))

	fv := NewFileValidator(256)
	require.NoError(t, fv.ValidateLargeFile(path))
}

func TestDisguisedPNGRejected(t *testing.T) {
	header := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	fv := NewFileValidator(0)
	err := fv.ValidateHeader("image.go", header)
	require.Error(t, err)
}

func TestRealPNGExtensionAccepted(t *testing.T) {
	header := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	fv := NewFileValidator(0)
	require.NoError(t, fv.ValidateHeader("image.png", header))
}

func TestWrongMagicForDeclaredExtension(t *testing.T) {
	fv := NewFileValidator(0)
	err := fv.ValidateHeader("archive.zip", []byte("definitely not a zip"))
	require.Error(t, err)
}

func TestBinaryContentRejected(t *testing.T) {
	header := bytes.Repeat([]byte{0x00, 0x01, 0x02, 'a'}, 64)
	fv := NewFileValidator(0)
	err := fv.ValidateHeader("data.go", header)
	require.Error(t, err)
}

func TestPlainSourceAccepted(t *testing.T) {
	fv := NewFileValidator(0)
	require.NoError(t, fv.ValidateHeader("main.go", []byte("package main\n\nfunc main() {}\n")))
}

func TestLargeFileValidatedOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.rs")
	content := append([]byte{0x7F, 0x45, 0x4C, 0x46}, make([]byte, 8*1024)...)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	fv := NewFileValidator(1) // 1KB threshold
	require.Error(t, fv.ValidateLargeFile(path))
}
