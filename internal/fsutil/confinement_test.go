// SPDX-License-Identifier: MIT

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineRelPath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"plain file", "topology.gns3", false},
		{"nested file", "project-files/vpcs/startup", false},
		{"dot segments collapsing inside", "project-files/../topology.gns3", false},
		{"parent escape", "../outside.txt", true},
		{"deep parent escape", "a/../../outside.txt", true},
		{"absolute path", "/etc/passwd", true},
		{"backslash", `a\b`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(root, tt.target)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			rel, err := filepath.Rel(root, got)
			require.NoError(t, err)
			assert.False(t, filepath.IsAbs(rel))
		})
	}
}

func TestConfineRelPathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "exit")))

	_, err := ConfineRelPath(root, "exit/payload.txt")
	require.Error(t, err)
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	require.NoError(t, IsRegularFile(file))
	require.Error(t, IsRegularFile(dir))
	require.Error(t, IsRegularFile(filepath.Join(dir, "missing")))
}
