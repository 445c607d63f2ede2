package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cookbooksync/backend/store"
	"cookbooksync/internal/utils"
)

// MigrationFlagKey marks a completed migration pass
const MigrationFlagKey = "sync_migration_v1_done"

// LegacyKeys are the flat keys written by app versions that predate sync
var LegacyKeys = []string{
	"cookbooks",
	"recipes",
	"userPreferences",
	"userDietary",
	"userAvoid",
	"userAvoidOther",
	"userMeasurement",
	"themeMode",
	"userLanguage",
}

// LegacyKeyReport is what one migration pass observed for one key
type LegacyKeyReport struct {
	Key       string `json:"key" yaml:"key"`
	Present   bool   `json:"present" yaml:"present"`
	Bytes     int    `json:"bytes" yaml:"bytes"`
	ValidJSON bool   `json:"validJson" yaml:"validJson"`
}

// MigrationRunner inspects legacy keys once. It only reads: the entity
// modules absorb legacy snapshots on load.
type MigrationRunner struct {
	store store.Store
	keys  []string
	now   func() time.Time
}

func NewMigrationRunner(st store.Store) *MigrationRunner {
	return &MigrationRunner{store: st, keys: LegacyKeys, now: time.Now}
}

// Done reports whether a previous pass completed
func (r *MigrationRunner) Done(ctx context.Context) (bool, error) {
	v, ok, err := r.store.Get(ctx, MigrationFlagKey)
	if err != nil {
		return false, fmt.Errorf("failed to read migration flag: %w", err)
	}
	return ok && v == "true", nil
}

// Run performs one pass unless the flag is already set. The flag is only
// written after a pass without any read error, so a failed pass retries on
// the next run.
func (r *MigrationRunner) Run(ctx context.Context) ([]LegacyKeyReport, error) {
	done, err := r.Done(ctx)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	start := r.now()
	reports := make([]LegacyKeyReport, 0, len(r.keys))
	for _, key := range r.keys {
		report, err := r.inspect(ctx, key)
		if err != nil {
			return reports, fmt.Errorf("migration: %w", err)
		}
		utils.Debugf("Migration: key %s present=%t bytes=%d valid=%t", key, report.Present, report.Bytes, report.ValidJSON)
		reports = append(reports, report)
	}

	if err := r.store.Set(ctx, MigrationFlagKey, "true"); err != nil {
		return reports, fmt.Errorf("migration: failed to set completion flag: %w", err)
	}
	utils.Infof("Migration pass completed in %v (%d legacy keys checked)", r.now().Sub(start), len(reports))
	return reports, nil
}

// Reset clears the completion flag so the next run inspects legacy keys again
func (r *MigrationRunner) Reset(ctx context.Context) error {
	return r.store.Set(ctx, MigrationFlagKey, "false")
}

// Report reads every legacy key without touching the flag
func (r *MigrationRunner) Report(ctx context.Context) ([]LegacyKeyReport, error) {
	reports := make([]LegacyKeyReport, 0, len(r.keys))
	for _, key := range r.keys {
		report, err := r.inspect(ctx, key)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *MigrationRunner) inspect(ctx context.Context, key string) (LegacyKeyReport, error) {
	value, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return LegacyKeyReport{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	report := LegacyKeyReport{Key: key, Present: ok, Bytes: len(value)}
	if ok {
		report.ValidJSON = json.Valid([]byte(value))
	}
	return report, nil
}
