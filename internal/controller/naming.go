// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxNameAttempts bounds the search for a free numeric suffix.
const maxNameAttempts = 1000000

// validateFileName rejects names that would resolve outside the directory
// they are joined into. Project and snapshot names become file names, so
// path separators and parent references are never legal in them.
func validateFileName(kind, name string) error {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %s name %q must not contain path separators or '..'", ErrInvalid, kind, name)
	}
	return nil
}

var (
	trailingDigits = regexp.MustCompile(`[0-9]+$`)
	templateToken  = regexp.MustCompile(`\{[^{}]*\}`)
)

// allocateNodeName reserves a unique node name derived from baseName.
// Supported template tokens are {0} and {id}, both replaced by the lowest
// free number. A base name without a template that is already taken gets a
// numeric suffix appended. Names are NFC-normalized so visually identical
// names collide instead of coexisting.
func (p *Project) allocateNodeName(baseName string) (string, error) {
	if baseName == "" {
		return "", fmt.Errorf("%w: node name must not be empty", ErrInvalid)
	}
	baseName = norm.NFC.String(strings.ReplaceAll(baseName, " ", ""))

	if _, taken := p.allocatedNames[baseName]; taken && !templateToken.MatchString(baseName) {
		// Turn "PC1" into the template "PC{0}" so the numbering continues.
		if trailingDigits.MatchString(baseName) {
			baseName = trailingDigits.ReplaceAllString(baseName, "{0}")
		}
	}

	if templateToken.MatchString(baseName) {
		for _, token := range templateToken.FindAllString(baseName, -1) {
			if token != "{0}" && token != "{id}" {
				return "", fmt.Errorf("%w: %s is not a valid replacement string in the node name", ErrConflict, token)
			}
		}
		for number := 1; number < maxNameAttempts; number++ {
			name := strings.ReplaceAll(baseName, "{0}", strconv.Itoa(number))
			name = strings.ReplaceAll(name, "{id}", strconv.Itoa(number))
			if _, taken := p.allocatedNames[name]; !taken {
				p.allocatedNames[name] = struct{}{}
				return name, nil
			}
		}
		return "", fmt.Errorf("%w: a node name could not be allocated (node limit reached?)", ErrConflict)
	}

	if _, taken := p.allocatedNames[baseName]; !taken {
		p.allocatedNames[baseName] = struct{}{}
		return baseName, nil
	}
	for number := 1; number < maxNameAttempts; number++ {
		name := baseName + strconv.Itoa(number)
		if _, taken := p.allocatedNames[name]; !taken {
			p.allocatedNames[name] = struct{}{}
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: a node name could not be allocated (node limit reached?)", ErrConflict)
}

// releaseNodeName frees a previously allocated name.
func (p *Project) releaseNodeName(name string) {
	delete(p.allocatedNames, name)
}
