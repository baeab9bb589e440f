// SPDX-License-Identifier: MIT

package controller

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateNodeName(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "naming")

	tests := []struct {
		name string
		base string
		want string
	}{
		{"plain name", "Router", "Router"},
		{"template expands to lowest free", "PC{0}", "PC1"},
		{"template counts up", "PC{0}", "PC2"},
		{"id token works like zero token", "SW{id}", "SW1"},
		{"spaces are stripped", "My Router", "MyRouter"},
		{"taken plain name gets a suffix", "Router", "Router1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.allocateNodeName(tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocateNodeNameTakenNumericSuffixContinues(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "naming")

	first, err := p.allocateNodeName("PC1")
	require.NoError(t, err)
	assert.Equal(t, "PC1", first)

	// "PC1" again becomes the template "PC{0}"; 1 is taken so 2 is next.
	second, err := p.allocateNodeName("PC1")
	require.NoError(t, err)
	assert.Equal(t, "PC2", second)
}

func TestAllocateNodeNameInvalidTemplate(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "naming")

	_, err := p.allocateNodeName("PC{name}")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestAllocateNodeNameEmpty(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "naming")

	_, err := p.allocateNodeName("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestReleaseNodeNameMakesNameReusable(t *testing.T) {
	c := newTestController(t)
	p := newOpenProject(t, c, "naming")

	name, err := p.allocateNodeName("R1")
	require.NoError(t, err)
	p.releaseNodeName(name)

	again, err := p.allocateNodeName("R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", again)
}
