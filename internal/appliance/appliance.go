// SPDX-License-Identifier: MIT

// Package appliance loads and serves .gns3a appliance descriptors: JSON
// documents telling the controller how to provision a pre-built VM image
// as a topology node.
package appliance

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Image is one disk image the appliance requires, with the checksum and
// size used to verify a local copy.
type Image struct {
	Filename    string `json:"filename"`
	Version     string `json:"version,omitempty"`
	MD5Sum      string `json:"md5sum"`
	Filesize    int64  `json:"filesize"`
	DownloadURL string `json:"download_url,omitempty"`
	DirectURL   string `json:"direct_download_url,omitempty"`
}

// Version maps a named release to the image slots it uses, e.g.
// {"hda_disk_image": "FreeNAS-11.3.iso"}.
type Version struct {
	Name   string            `json:"name"`
	Images map[string]string `json:"images"`
}

// Appliance is a parsed .gns3a descriptor.
type Appliance struct {
	ApplianceID      string `json:"appliance_id"`
	Name             string `json:"name"`
	Category         string `json:"category,omitempty"`
	Description      string `json:"description,omitempty"`
	VendorName       string `json:"vendor_name,omitempty"`
	VendorURL        string `json:"vendor_url,omitempty"`
	DocumentationURL string `json:"documentation_url,omitempty"`
	ProductName      string `json:"product_name,omitempty"`
	ProductURL       string `json:"product_url,omitempty"`
	RegistryVersion  int    `json:"registry_version,omitempty"`
	Status           string `json:"status,omitempty"`
	Maintainer       string `json:"maintainer,omitempty"`
	MaintainerEmail  string `json:"maintainer_email,omitempty"`
	Usage            string `json:"usage,omitempty"`
	Symbol           string `json:"symbol,omitempty"`
	FirstPortName    string `json:"first_port_name,omitempty"`
	PortNameFormat   string `json:"port_name_format,omitempty"`

	// Emulator sections. At most one is expected; its presence decides
	// the node type of provisioned nodes.
	Qemu     map[string]any `json:"qemu,omitempty"`
	Docker   map[string]any `json:"docker,omitempty"`
	Dynamips map[string]any `json:"dynamips,omitempty"`
	IOU      map[string]any `json:"iou,omitempty"`

	Images   []Image   `json:"images,omitempty"`
	Versions []Version `json:"versions,omitempty"`
}

// ParseFile reads and validates one descriptor.
func ParseFile(path string) (*Appliance, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Appliance
	if err := json.Unmarshal(buf, &a); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &a, nil
}

// Validate checks the descriptor for internal consistency.
func (a *Appliance) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("appliance has no name")
	}
	if a.NodeType() == "" {
		return fmt.Errorf("appliance %q declares no emulator section", a.Name)
	}
	byFilename := make(map[string]Image, len(a.Images))
	for _, img := range a.Images {
		if img.Filename == "" {
			return fmt.Errorf("appliance %q has an image without a filename", a.Name)
		}
		if img.MD5Sum == "" {
			return fmt.Errorf("image %q has no md5sum", img.Filename)
		}
		if img.Filesize <= 0 {
			return fmt.Errorf("image %q has no filesize", img.Filename)
		}
		byFilename[img.Filename] = img
	}
	for _, v := range a.Versions {
		if v.Name == "" {
			return fmt.Errorf("appliance %q has a version without a name", a.Name)
		}
		for slot, filename := range v.Images {
			if _, ok := byFilename[filename]; !ok {
				return fmt.Errorf("version %q slot %q references unknown image %q", v.Name, slot, filename)
			}
		}
	}
	return nil
}

// NodeType returns the emulator the appliance targets, derived from
// whichever emulator section is present.
func (a *Appliance) NodeType() string {
	switch {
	case a.Qemu != nil:
		return "qemu"
	case a.Docker != nil:
		return "docker"
	case a.Dynamips != nil:
		return "dynamips"
	case a.IOU != nil:
		return "iou"
	}
	return ""
}

func (a *Appliance) emulatorSection() map[string]any {
	switch a.NodeType() {
	case "qemu":
		return a.Qemu
	case "docker":
		return a.Docker
	case "dynamips":
		return a.Dynamips
	case "iou":
		return a.IOU
	}
	return nil
}

// SortedVersions returns the declared versions newest first. Release
// names that do not parse as versions ("11.3-U1" does, "beta" does not)
// sort after the parseable ones, lexically.
func (a *Appliance) SortedVersions() []Version {
	out := make([]Version, len(a.Versions))
	copy(out, a.Versions)
	sort.SliceStable(out, func(i, j int) bool {
		vi, errI := goversion.NewVersion(normalizeRelease(out[i].Name))
		vj, errJ := goversion.NewVersion(normalizeRelease(out[j].Name))
		switch {
		case errI == nil && errJ == nil:
			return vi.GreaterThan(vj)
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return out[i].Name > out[j].Name
		}
	})
	return out
}

// normalizeRelease strips vendor suffixes like "-U1" or "-RELEASE" that
// go-version refuses.
func normalizeRelease(name string) string {
	if i := strings.IndexAny(name, "-_ "); i > 0 {
		return name[:i]
	}
	return name
}

// ResolveVersion returns the image set of a named version, or the newest
// version when name is empty.
func (a *Appliance) ResolveVersion(name string) (Version, []Image, error) {
	var chosen *Version
	if name == "" {
		versions := a.SortedVersions()
		if len(versions) == 0 {
			return Version{}, nil, fmt.Errorf("appliance %q has no versions", a.Name)
		}
		chosen = &versions[0]
	} else {
		for i := range a.Versions {
			if a.Versions[i].Name == name {
				chosen = &a.Versions[i]
				break
			}
		}
		if chosen == nil {
			return Version{}, nil, fmt.Errorf("appliance %q has no version %q", a.Name, name)
		}
	}

	byFilename := make(map[string]Image, len(a.Images))
	for _, img := range a.Images {
		byFilename[img.Filename] = img
	}
	images := make([]Image, 0, len(chosen.Images))
	for _, slot := range sortedKeys(chosen.Images) {
		images = append(images, byFilename[chosen.Images[slot]])
	}
	return *chosen, images, nil
}

// NodeTemplate returns the settings a node provisioned from this
// appliance starts with. The image slots of the resolved version are
// merged into the emulator properties.
func (a *Appliance) NodeTemplate(versionName string) (nodeType string, name string, symbol string, properties map[string]any, err error) {
	version, _, err := a.ResolveVersion(versionName)
	if err != nil {
		return "", "", "", nil, err
	}
	properties = make(map[string]any)
	for k, v := range a.emulatorSection() {
		properties[k] = v
	}
	for slot, filename := range version.Images {
		properties[slot] = filename
	}
	if a.FirstPortName != "" {
		properties["first_port_name"] = a.FirstPortName
	}
	if a.PortNameFormat != "" {
		properties["port_name_format"] = a.PortNameFormat
	}
	return a.NodeType(), a.Name, a.Symbol, properties, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
