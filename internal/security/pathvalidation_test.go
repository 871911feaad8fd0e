package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	outsideDir := filepath.Join(tmpDir, "outside")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(outsideDir, 0o755))

	secret := filepath.Join(outsideDir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o644))

	// A symlink inside the safe directory pointing out of it.
	escapeLink := filepath.Join(safeDir, "escape")
	require.NoError(t, os.Symlink(outsideDir, escapeLink))

	tests := []struct {
		name     string
		filePath string
		safeDir  string
		wantErr  bool
	}{
		{"path inside", filepath.Join(safeDir, "K0.txt"), safeDir, false},
		{"nested path not yet created", filepath.Join(safeDir, "history", "K0.txt"), safeDir, false},
		{"dotdot traversal", filepath.Join(safeDir, "..", "outside", "x"), safeDir, true},
		{"relative traversal", "../../../etc/passwd", safeDir, true},
		{"absolute outside", "/etc/passwd", safeDir, true},
		{"through escape symlink", filepath.Join(escapeLink, "secret.txt"), safeDir, true},
		{"the symlink itself", escapeLink, safeDir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	assert.NoError(t, ValidatePathWithinAllowedDirs(filepath.Join(dirA, "f"), []string{dirA, dirB}))
	assert.NoError(t, ValidatePathWithinAllowedDirs(filepath.Join(dirB, "f"), []string{dirA, dirB}))
	assert.Error(t, ValidatePathWithinAllowedDirs("/etc/passwd", []string{dirA, dirB}))
	assert.Error(t, ValidatePathWithinAllowedDirs(filepath.Join(dirA, "f"), nil),
		"empty allow list rejects everything")
}

func TestValidateExportPath(t *testing.T) {
	assert.NoError(t, ValidateExportPath(filepath.Join(os.TempDir(), "scope-history")))
	assert.Error(t, ValidateExportPath("/etc/passwd"))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.NoError(t, ValidateExportPath(filepath.Join(cwd, "timings.txt")))
	assert.NoError(t, ValidateExportPath("timings.txt"), "relative paths resolve against the working directory")
}
