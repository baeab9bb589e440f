// SPDX-License-Identifier: MIT

package topology

import (
	"fmt"
	"sort"
)

// FilterSpec describes one traffic-shaping filter a link can carry.
type FilterSpec struct {
	Name        string
	Description string
	// Parameters lists the expected parameter kinds in order. Trailing
	// parameters beyond Required may be omitted by the caller.
	Parameters []FilterParam
	Required   int
}

// FilterParam is one parameter slot of a filter.
type FilterParam struct {
	Name    string
	Kind    ParamKind
	Minimum int
	Maximum int
}

// ParamKind discriminates numeric and string filter parameters.
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamString
)

// filterCatalog enumerates the filters understood by the link layer. The
// frequency_drop sentinel -1 disables the filter without removing it.
var filterCatalog = map[string]FilterSpec{
	"frequency_drop": {
		Name:        "frequency_drop",
		Description: "Drop every Nth packet",
		Parameters:  []FilterParam{{Name: "frequency", Kind: ParamInt, Minimum: -1, Maximum: 1 << 30}},
		Required:    1,
	},
	"packet_loss": {
		Name:        "packet_loss",
		Description: "Drop packets with the given probability",
		Parameters:  []FilterParam{{Name: "chance", Kind: ParamInt, Minimum: 0, Maximum: 100}},
		Required:    1,
	},
	"latency": {
		Name:        "latency",
		Description: "Delay packets, optionally with jitter",
		Parameters: []FilterParam{
			{Name: "latency", Kind: ParamInt, Minimum: 0, Maximum: 1 << 30},
			{Name: "jitter", Kind: ParamInt, Minimum: 0, Maximum: 1 << 30},
		},
		Required: 1,
	},
	"corrupt": {
		Name:        "corrupt",
		Description: "Corrupt packets with the given probability",
		Parameters:  []FilterParam{{Name: "chance", Kind: ParamInt, Minimum: 0, Maximum: 100}},
		Required:    1,
	},
	"bpf": {
		Name:        "bpf",
		Description: "Drop packets matching a BPF expression",
		Parameters:  []FilterParam{{Name: "expression", Kind: ParamString}},
		Required:    1,
	},
}

// AvailableFilters returns the filter specs sorted by name.
func AvailableFilters() []FilterSpec {
	out := make([]FilterSpec, 0, len(filterCatalog))
	for _, spec := range filterCatalog {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateFilters checks every entry against the catalog.
func ValidateFilters(f Filters) error {
	for name, vals := range f {
		spec, ok := filterCatalog[name]
		if !ok {
			return fmt.Errorf("unknown filter %q", name)
		}
		if len(vals) < spec.Required || len(vals) > len(spec.Parameters) {
			return fmt.Errorf("filter %q expects %d to %d parameters, got %d",
				name, spec.Required, len(spec.Parameters), len(vals))
		}
		for i, v := range vals {
			param := spec.Parameters[i]
			switch param.Kind {
			case ParamInt:
				n, err := asInt(v)
				if err != nil {
					return fmt.Errorf("filter %q parameter %q: %w", name, param.Name, err)
				}
				if n < param.Minimum || n > param.Maximum {
					return fmt.Errorf("filter %q parameter %q out of range [%d, %d]: %d",
						name, param.Name, param.Minimum, param.Maximum, n)
				}
			case ParamString:
				if _, ok := v.(string); !ok {
					return fmt.Errorf("filter %q parameter %q must be a string", name, param.Name)
				}
			}
		}
	}
	return nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
