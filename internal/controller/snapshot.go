// SPDX-License-Identifier: MIT

package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/netlabio/netlabd/internal/archive"
	xlog "github.com/netlabio/netlabd/internal/log"
)

// snapshotTimeFormat is embedded in snapshot filenames.
const snapshotTimeFormat = "020106_150405"

// Snapshot is a point-in-time .gns3project archive of a project.
type Snapshot struct {
	SnapshotID string `json:"snapshot_id"`
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"created_at"`

	path string
}

// snapshotFromFilename rebuilds the snapshot descriptor for an archive
// found on disk. The id is derived from the path so rescans keep ids
// stable across restarts.
func snapshotFromFilename(projectID, dir, filename string) *Snapshot {
	path := filepath.Join(dir, filename)
	name := strings.TrimSuffix(filename, ".gns3project")
	createdAt := time.Now().Unix()
	if idx := strings.LastIndex(name, "_"); idx > 0 {
		// Strip the "<ddmmyy>_<hhmmss>" suffix appended at creation.
		if idx2 := strings.LastIndex(name[:idx], "_"); idx2 > 0 {
			if ts, err := time.ParseInLocation(snapshotTimeFormat, name[idx2+1:], time.Local); err == nil {
				name = name[:idx2]
				createdAt = ts.Unix()
			}
		}
	}
	if info, err := os.Stat(path); err == nil {
		createdAt = info.ModTime().Unix()
	}
	return &Snapshot{
		SnapshotID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String(),
		ProjectID:  projectID,
		Name:       name,
		CreatedAt:  createdAt,
		path:       path,
	}
}

func (p *Project) snapshotsDirectory() string {
	return filepath.Join(p.Path, "snapshots")
}

// scanSnapshots lists archives already present on disk. Callers hold p.mu
// (or run during construction).
func (p *Project) scanSnapshots() {
	dir := p.snapshotsDirectory()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gns3project") {
			continue
		}
		snap := snapshotFromFilename(p.ID, dir, e.Name())
		p.snapshots[snap.SnapshotID] = snap
	}
}

// Snapshots returns all snapshots ordered by id.
func (p *Project) Snapshots() ([]*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.openRequired(); err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(p.snapshots))
	for _, s := range sortedValues(p.snapshots) {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// GetSnapshot returns a copy of the snapshot or ErrNotFound.
func (p *Project) GetSnapshot(snapshotID string) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getSnapshotLocked(snapshotID)
}

func (p *Project) getSnapshotLocked(snapshotID string) (*Snapshot, error) {
	if err := p.openRequired(); err != nil {
		return nil, err
	}
	snap, ok := p.snapshots[snapshotID]
	if !ok {
		return nil, fmt.Errorf("%w: snapshot ID %s doesn't exist", ErrNotFound, snapshotID)
	}
	cp := *snap
	return &cp, nil
}

// CreateSnapshot archives the current project state under the given name.
func (p *Project) CreateSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: snapshot name is required", ErrInvalid)
	}
	if err := validateFileName("snapshot", name); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if err := p.openRequired(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	for _, snap := range p.snapshots {
		if snap.Name == name {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: the snapshot %s already exists", ErrConflict, name)
		}
	}
	// Make sure the archive captures the latest document.
	if err := p.dump(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	dir := p.snapshotsDirectory()
	filename := fmt.Sprintf("%s_%s.gns3project", name, time.Now().Format(snapshotTimeFormat))
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: the snapshot %s already exists", ErrConflict, name)
	}
	projectDir := p.Path
	p.mu.Unlock()

	// Exporting can take a while on large projects; run it outside the
	// project lock. The export itself reads a consistent document because
	// dump above is atomic.
	if err := archive.ExportToFile(ctx, projectDir, path); err != nil {
		return nil, err
	}

	p.mu.Lock()
	snap := snapshotFromFilename(p.ID, dir, filename)
	snap.Name = name
	p.snapshots[snap.SnapshotID] = snap
	cp := *snap
	p.mu.Unlock()

	snapshotsCreated.Inc()
	p.controller.notifications.EmitProject(p.ID, "snapshot.created", &cp)
	return &cp, nil
}

// RestoreSnapshot closes the project, replaces its contents with the
// archived state and reopens it.
func (p *Project) RestoreSnapshot(ctx context.Context, snapshotID string) error {
	p.mu.Lock()
	snap, err := p.getSnapshotLocked(snapshotID)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	if err := p.Close(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	// Clear everything except the snapshots directory, then extract the
	// archive in its place.
	entries, err := os.ReadDir(p.Path)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	for _, e := range entries {
		if e.Name() == "snapshots" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(p.Path, e.Name())); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	topologyName, err := archive.ImportFile(ctx, snap.path, p.Path)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.Filename = topologyName
	p.mu.Unlock()

	if err := p.Open(ctx); err != nil {
		return err
	}
	p.controller.notifications.EmitProject(p.ID, "snapshot.restored", snap)
	return nil
}

// DeleteSnapshot removes a snapshot and its archive.
func (p *Project) DeleteSnapshot(snapshotID string) error {
	p.mu.Lock()
	snap, ok := p.snapshots[snapshotID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: snapshot ID %s doesn't exist", ErrNotFound, snapshotID)
	}
	delete(p.snapshots, snapshotID)
	p.mu.Unlock()

	if err := os.Remove(snap.path); err != nil && !os.IsNotExist(err) {
		logger := xlog.WithComponent("controller")
		logger.Warn().Err(err).Msg("could not remove snapshot archive")
	}
	p.controller.notifications.EmitProject(p.ID, "snapshot.deleted", snap)
	return nil
}
