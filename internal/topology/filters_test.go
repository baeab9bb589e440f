// SPDX-License-Identifier: MIT

package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		wantErr string
	}{
		{
			name:    "empty is valid",
			filters: Filters{},
		},
		{
			name:    "frequency drop",
			filters: Filters{"frequency_drop": {50}},
		},
		{
			name:    "frequency drop disabled sentinel",
			filters: Filters{"frequency_drop": {-1}},
		},
		{
			name:    "latency with jitter",
			filters: Filters{"latency": {10, 5}},
		},
		{
			name:    "latency without jitter",
			filters: Filters{"latency": {10}},
		},
		{
			name:    "bpf expression",
			filters: Filters{"bpf": {"icmp[icmptype] == 8"}},
		},
		{
			name:    "combined",
			filters: Filters{"frequency_drop": {5}, "packet_loss": {80}},
		},
		{
			name:    "unknown filter",
			filters: Filters{"teleport": {1}},
			wantErr: `unknown filter "teleport"`,
		},
		{
			name:    "packet loss above 100",
			filters: Filters{"packet_loss": {150}},
			wantErr: "out of range",
		},
		{
			name:    "latency too many parameters",
			filters: Filters{"latency": {1, 2, 3}},
			wantErr: "expects 1 to 2 parameters",
		},
		{
			name:    "missing parameter",
			filters: Filters{"corrupt": {}},
			wantErr: "expects 1 to 1 parameters",
		},
		{
			name:    "string where int expected",
			filters: Filters{"packet_loss": {"many"}},
			wantErr: "expected an integer",
		},
		{
			name:    "int where string expected",
			filters: Filters{"bpf": {42}},
			wantErr: "must be a string",
		},
		{
			name:    "fractional number",
			filters: Filters{"packet_loss": {12.5}},
			wantErr: "expected an integer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilters(tt.filters)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAvailableFiltersSorted(t *testing.T) {
	specs := AvailableFilters()
	require.NotEmpty(t, specs)
	for i := 1; i < len(specs); i++ {
		assert.Less(t, specs[i-1].Name, specs[i].Name)
	}
}

func TestFiltersClone(t *testing.T) {
	orig := Filters{"latency": {10, 5}}
	clone := orig.Clone()
	clone["latency"][0] = 99
	assert.Equal(t, 10, orig["latency"][0], "clone must not alias the original")
}
