// SPDX-License-Identifier: MIT

package appliance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xlog "github.com/netlabio/netlabd/internal/log"
)

// Registry holds the appliance descriptors found in a directory and keeps
// them current while the directory changes.
type Registry struct {
	mu         sync.RWMutex
	appliances map[string]*Appliance

	dir       string
	imagesDir string
	checksums *ChecksumCache
	watcher   *fsnotify.Watcher
	logger    zerolog.Logger
}

// NewRegistry creates a registry over dir. The checksum cache is optional;
// without it image availability checks hash files on every call.
func NewRegistry(dir, imagesDir string, checksums *ChecksumCache) *Registry {
	return &Registry{
		appliances: make(map[string]*Appliance),
		dir:        dir,
		imagesDir:  imagesDir,
		checksums:  checksums,
		logger:     xlog.WithComponent("appliance"),
	}
}

// Load scans the appliance directory. Descriptors that fail to parse are
// logged and skipped so one broken file cannot empty the registry.
func (r *Registry) Load() error {
	if r.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	loaded := make(map[string]*Appliance)
	for _, e := range entries {
		if e.IsDir() || !isDescriptor(e.Name()) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		a, err := ParseFile(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("skipping appliance descriptor")
			continue
		}
		if a.ApplianceID == "" {
			// Stable id per file so clients can re-reference across
			// reloads.
			a.ApplianceID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
		}
		loaded[a.ApplianceID] = a
	}

	r.mu.Lock()
	r.appliances = loaded
	r.mu.Unlock()
	appliancesLoaded.Set(float64(len(loaded)))

	r.logger.Info().Int("count", len(loaded)).Str("dir", r.dir).Msg("appliances loaded")
	return nil
}

func isDescriptor(name string) bool {
	return strings.HasSuffix(name, ".gns3a") || strings.HasSuffix(name, ".gns3appliance")
}

// Watch reloads the registry when the appliance directory changes. It is
// a no-op without a configured directory.
func (r *Registry) Watch(ctx context.Context) error {
	if r.dir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch appliance dir: %w", err)
	}
	r.watcher = watcher
	go r.watchLoop(ctx)

	r.logger.Info().Str("dir", r.dir).Msg("watching appliance directory")
	return nil
}

func (r *Registry) watchLoop(ctx context.Context) {
	// Debounce so an editor save burst triggers a single reload.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = r.watcher.Close()
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isDescriptor(filepath.Base(event.Name)) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := r.Load(); err != nil {
					r.logger.Error().Err(err).Msg("appliance reload failed")
				}
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn().Err(err).Msg("appliance watcher error")
		}
	}
}

// Stop closes the directory watcher if one is running.
func (r *Registry) Stop() {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
}

// Appliances returns all loaded descriptors ordered by name.
func (r *Registry) Appliances() []*Appliance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appliance, 0, len(r.appliances))
	for _, a := range r.appliances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the descriptor with the given id.
func (r *Registry) Get(applianceID string) (*Appliance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appliances[applianceID]
	if !ok {
		return nil, fmt.Errorf("appliance ID %s doesn't exist", applianceID)
	}
	return a, nil
}

// ImagesAvailable reports, per image of the resolved version, whether a
// verified local copy exists.
func (r *Registry) ImagesAvailable(applianceID, versionName string) (map[string]bool, error) {
	a, err := r.Get(applianceID)
	if err != nil {
		return nil, err
	}
	_, images, err := a.ResolveVersion(versionName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(images))
	for _, img := range images {
		if r.checksums == nil || r.imagesDir == "" {
			out[img.Filename] = false
			continue
		}
		ok, err := r.checksums.VerifyImage(r.imagesDir, img)
		if err != nil {
			r.logger.Warn().Err(err).Str("image", img.Filename).Msg("image verification failed")
			ok = false
		}
		out[img.Filename] = ok
	}
	return out, nil
}
