// Package store persists envelopes and their items in an embedded SQLite
// database. The active and archived collections share one struct shape and
// live in separately named tables; archiving moves a record wholesale
// between them.
//
// SQLite tolerates a single concurrent writer, so every mutation (insert,
// acknowledge, soft delete, archive) funnels through one mutex-guarded
// write path. The ingestion worker is the only insert caller; the admin
// lifecycle handlers share the same mutex rather than bypassing it.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"reportsink/internal/admin"
	"reportsink/internal/models"
)

var (
	// ErrNotFound means the envelope does not exist in the queried collection.
	ErrNotFound = errors.New("envelope not found")
	// ErrArchived means a lifecycle mutation targeted an archived envelope.
	ErrArchived = errors.New("envelope is archived")
)

const (
	activeEnvelopes   = "envelopes"
	activeItems       = "items"
	archivedEnvelopes = "archived_envelopes"
	archivedItems     = "archived_items"
)

// Store is the envelope/item persistence layer.
type Store struct {
	db *gorm.DB

	// writeMu serializes all mutations: the embedded store's single-writer
	// constraint, made explicit.
	writeMu sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path and migrates
// both the active and the archived tables.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&models.Envelope{}, &models.Item{}); err != nil {
		return nil, fmt.Errorf("migrate active tables: %w", err)
	}
	if err := db.Table(archivedEnvelopes).AutoMigrate(&models.Envelope{}); err != nil {
		return nil, fmt.Errorf("migrate archived envelopes: %w", err)
	}
	if err := db.Table(archivedItems).AutoMigrate(&models.Item{}); err != nil {
		return nil, fmt.Errorf("migrate archived items: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) lockWrites() func() {
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

// Insert persists one envelope and all its items as a single atomic write.
// The item-count invariant is enforced at the moment of persistence.
func (s *Store) Insert(env *models.Envelope) error {
	if env.ItemCount != len(env.Items) {
		return models.ErrItemCountMismatch
	}
	defer s.lockWrites()()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(activeEnvelopes).Create(env).Error; err != nil {
			return fmt.Errorf("insert envelope: %w", err)
		}
		if len(env.Items) > 0 {
			if err := tx.Table(activeItems).CreateInBatches(env.Items, 200).Error; err != nil {
				return fmt.Errorf("insert items: %w", err)
			}
		}
		return nil
	})
}

// Acknowledge sets the acknowledged-at timestamp on an active envelope. It
// is a pure metadata update; no data moves.
func (s *Store) Acknowledge(id string, at time.Time) error {
	defer s.lockWrites()()

	res := s.db.Table(activeEnvelopes).
		Where("id = ?", id).
		Update("acknowledged_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missingReason(id)
	}
	return nil
}

// SoftDelete marks an active envelope deleted. Soft-deleted envelopes are
// excluded from default queries but keep all their items.
func (s *Store) SoftDelete(id string, at time.Time) error {
	defer s.lockWrites()()

	res := s.db.Table(activeEnvelopes).
		Where("id = ?", id).
		Update("deleted_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missingReason(id)
	}
	return nil
}

// Archive moves an envelope and all its items from the active collection to
// the archived collection in one transaction. The move is wholesale: an
// envelope's items are never split across the two collections.
func (s *Store) Archive(id string, at time.Time) error {
	defer s.lockWrites()()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var env models.Envelope
		err := tx.Table(activeEnvelopes).Where("id = ?", id).First(&env).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.missingReason(id)
		}
		if err != nil {
			return err
		}

		var items []models.Item
		if err := tx.Table(activeItems).
			Where("envelope_id = ?", id).
			Order("seq asc").
			Find(&items).Error; err != nil {
			return err
		}

		if env.DeletedAt == nil {
			archivedAt := at.UTC()
			env.DeletedAt = &archivedAt
		}

		if err := tx.Table(archivedEnvelopes).Create(&env).Error; err != nil {
			return fmt.Errorf("archive envelope: %w", err)
		}
		if len(items) > 0 {
			if err := tx.Table(archivedItems).CreateInBatches(items, 200).Error; err != nil {
				return fmt.Errorf("archive items: %w", err)
			}
		}

		if err := tx.Table(activeItems).Where("envelope_id = ?", id).Delete(&models.Item{}).Error; err != nil {
			return err
		}
		return tx.Table(activeEnvelopes).Where("id = ?", id).Delete(&models.Envelope{}).Error
	})
}

// missingReason distinguishes a genuinely unknown id from one that has
// already been archived.
func (s *Store) missingReason(id string) error {
	var n int64
	if err := s.db.Table(archivedEnvelopes).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrArchived
	}
	return ErrNotFound
}

// Get loads one envelope with its items in original order. It checks the
// active collection first, then the archived one; the returned flag reports
// which collection held it.
func (s *Store) Get(id string) (*models.Envelope, bool, error) {
	env, err := s.getFrom(id, activeEnvelopes, activeItems)
	if err == nil {
		return env, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	env, err = s.getFrom(id, archivedEnvelopes, archivedItems)
	if err != nil {
		return nil, false, err
	}
	return env, true, nil
}

func (s *Store) getFrom(id, envTable, itemTable string) (*models.Envelope, error) {
	var env models.Envelope
	err := s.db.Table(envTable).Where("id = ?", id).First(&env).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.Table(itemTable).
		Where("envelope_id = ?", id).
		Order("seq asc").
		Find(&env.Items).Error; err != nil {
		return nil, err
	}
	return &env, nil
}

// List returns the total matching count and the requested page of envelopes
// (without items), newest first.
func (s *Store) List(q admin.Query) (int64, []models.Envelope, error) {
	envTable, _ := tablesFor(q.Archived)

	var total int64
	if err := s.filtered(q).Count(&total).Error; err != nil {
		return 0, nil, fmt.Errorf("count %s: %w", envTable, err)
	}

	var envs []models.Envelope
	if err := s.filtered(q).
		Order("received_at DESC, id DESC").
		Limit(q.PageSize).
		Offset(q.Skip).
		Find(&envs).Error; err != nil {
		return 0, nil, fmt.Errorf("list %s: %w", envTable, err)
	}
	return total, envs, nil
}

// ListDetails returns up to limit fully loaded envelopes matching the
// filters, newest first, for export. The boolean reports whether the result
// was truncated at the limit. Truncation happens at an envelope boundary
// only; a returned envelope always carries every one of its items.
func (s *Store) ListDetails(q admin.Query, limit int) ([]models.Envelope, bool, error) {
	_, itemTable := tablesFor(q.Archived)

	db := s.filtered(q).Order("received_at DESC, id DESC")
	if limit > 0 {
		db = db.Limit(limit + 1)
	}

	var envs []models.Envelope
	if err := db.Find(&envs).Error; err != nil {
		return nil, false, err
	}

	truncated := false
	if limit > 0 && len(envs) > limit {
		envs = envs[:limit]
		truncated = true
	}

	for i := range envs {
		if err := s.db.Table(itemTable).
			Where("envelope_id = ?", envs[i].ID).
			Order("seq asc").
			Find(&envs[i].Items).Error; err != nil {
			return nil, false, err
		}
	}
	return envs, truncated, nil
}

func tablesFor(archived bool) (string, string) {
	if archived {
		return archivedEnvelopes, archivedItems
	}
	return activeEnvelopes, activeItems
}

// filtered builds the WHERE clause shared by List and ListDetails.
func (s *Store) filtered(q admin.Query) *gorm.DB {
	envTable, itemTable := tablesFor(q.Archived)
	db := s.db.Table(envTable)

	if q.Host != "" {
		db = db.Where("host = ?", q.Host)
	}
	if q.Service != "" {
		db = db.Where("service = ?", q.Service)
	}
	if q.Environment != "" {
		db = db.Where("environment = ?", q.Environment)
	}
	if q.SeverityThreshold != "" {
		db = db.Where("severity_threshold = ?", q.SeverityThreshold)
	}
	if q.FromUTC != nil {
		db = db.Where("received_at >= ?", q.FromUTC.UTC())
	}
	if q.ToUTC != nil {
		db = db.Where("received_at <= ?", q.ToUTC.UTC())
	}

	switch {
	case q.Acknowledged != nil && *q.Acknowledged:
		db = db.Where("acknowledged_at IS NOT NULL")
	case q.Acknowledged != nil:
		db = db.Where("acknowledged_at IS NULL")
	case !q.IncludeAcknowledged:
		db = db.Where("acknowledged_at IS NULL")
	}

	switch {
	case q.Deleted != nil && *q.Deleted:
		db = db.Where("deleted_at IS NOT NULL")
	case q.Deleted != nil:
		db = db.Where("deleted_at IS NULL")
	case !q.IncludeDeleted:
		db = db.Where("deleted_at IS NULL")
	}

	if q.Search != "" {
		like := "%" + q.Search + "%"
		db = db.Where(
			"(service LIKE ? OR host LIKE ? OR environment LIKE ?"+
				" OR id IN (SELECT envelope_id FROM "+itemTable+" WHERE message LIKE ?))",
			like, like, like, like,
		)
	}

	return db
}
