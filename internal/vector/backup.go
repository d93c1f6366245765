package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// One backup slot per index. The slot is a sibling directory holding a
// full snapshot copy, addressed by a descriptor file next to the index
// directory. Taking a new backup replaces the slot; rolling back
// consumes it.

const backupTimeFormat = "20060102-150405"

func (h *HybridIndex) descriptorPath() string {
	return h.opts.Path + ".backup.json"
}

// Backup snapshots the current on-disk state into a fresh backup
// directory and points the descriptor at it. Any previous backup
// directory is removed once the new one is in place.
func (h *HybridIndex) Backup(ctx context.Context) (*BackupInfo, error) {
	if h.opts.Path == "" {
		return nil, fmt.Errorf("%w: backup requires a persistence path", ErrValidation)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.save(); err != nil {
		return nil, fmt.Errorf("%w: snapshot before backup: %v", ErrStorage, err)
	}

	prev := h.backup
	now := time.Now()
	dst := fmt.Sprintf("%s.backup-%s", h.opts.Path, now.Format(backupTimeFormat))
	if err := copyDir(h.opts.Path, dst); err != nil {
		os.RemoveAll(dst)
		return nil, fmt.Errorf("%w: copy snapshot: %v", ErrStorage, err)
	}

	info := BackupInfo{Location: dst, CreatedAt: now, Valid: true}
	if err := h.writeDescriptor(info); err != nil {
		os.RemoveAll(dst)
		return nil, fmt.Errorf("%w: write backup descriptor: %v", ErrStorage, err)
	}
	h.backup = &info

	if prev != nil && prev.Location != dst {
		if err := os.RemoveAll(prev.Location); err != nil {
			h.logger.Warn("remove superseded backup", zap.Error(err))
		}
	}
	h.logger.Info("backup created", zap.String("location", dst))
	out := info
	return &out, nil
}

// Rollback restores the index from the backup slot and consumes it.
// A second rollback without a fresh backup fails with
// ErrBackupUnavailable.
func (h *HybridIndex) Rollback(ctx context.Context) error {
	if h.opts.Path == "" {
		return fmt.Errorf("%w: rollback requires a persistence path", ErrValidation)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	info := h.backup
	if info == nil || !info.Valid {
		return ErrBackupUnavailable
	}
	if _, err := os.Stat(info.Location); err != nil {
		return fmt.Errorf("%w: backup directory missing: %v", ErrBackupUnavailable, err)
	}

	// Stage the restore next to the live directory so a failed copy
	// leaves the live index untouched on disk.
	staging := h.opts.Path + ".restore-tmp"
	os.RemoveAll(staging)
	if err := copyDir(info.Location, staging); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("%w: stage snapshot restore: %v", ErrStorage, err)
	}
	if err := os.RemoveAll(h.opts.Path); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("%w: clear index dir: %v", ErrStorage, err)
	}
	if err := os.Rename(staging, h.opts.Path); err != nil {
		return fmt.Errorf("%w: swap restored snapshot: %v", ErrStorage, err)
	}

	h.records = nil
	h.vectors = nil
	h.byID = make(map[string]int)
	if h.opts.Hybrid {
		h.graph = h.newGraph()
	}
	if err := h.load(); err != nil {
		return fmt.Errorf("reload after rollback: %w", err)
	}

	used := *info
	used.Valid = false
	if err := h.writeDescriptor(used); err != nil {
		return fmt.Errorf("%w: invalidate backup descriptor: %v", ErrStorage, err)
	}
	h.backup = &used
	h.logger.Info("rolled back to backup", zap.String("location", info.Location))
	return nil
}

func (h *HybridIndex) writeDescriptor(info BackupInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(h.descriptorPath(), data)
}

// loadDescriptor restores the backup slot state at open time. A
// missing or unreadable descriptor means no backup.
func (h *HybridIndex) loadDescriptor() {
	data, err := os.ReadFile(h.descriptorPath())
	if err != nil {
		return
	}
	var info BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		h.logger.Warn("unreadable backup descriptor", zap.Error(err))
		return
	}
	h.backup = &info
}

// copyDir copies the regular files directly under src into dst,
// creating dst. Snapshot directories are flat.
func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0644); err != nil {
			return err
		}
	}
	return nil
}
