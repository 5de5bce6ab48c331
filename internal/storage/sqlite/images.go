package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/co-atis/pkg/logger"
)

// ImageStorage keeps the registry of generated illustrations
type ImageStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewImageStorage creates a new SQLite image registry
func NewImageStorage(db *sql.DB, logger *logger.Logger) (*ImageStorage, error) {
	storage := &ImageStorage{
		db:     db,
		logger: logger.Named("sqlite-images"),
	}

	if err := storage.initDB(); err != nil {
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *ImageStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			airport TEXT NOT NULL,
			file_name TEXT NOT NULL UNIQUE,
			size_bytes INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create images table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_images_airport ON images(airport, id)`)
	if err != nil {
		return fmt.Errorf("failed to create images index: %w", err)
	}

	return nil
}

// StoreImage registers a generated image and returns its row ID
func (s *ImageStorage) StoreImage(record *ImageRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO images (airport, file_name, size_bytes, created_at)
		VALUES (?, ?, ?, ?)`,
		record.Airport,
		record.FileName,
		record.SizeBytes,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert image: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// GetRecentImages returns the newest images of an airport, newest first
func (s *ImageStorage) GetRecentImages(airport string, limit int) ([]*ImageRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, airport, file_name, size_bytes, created_at
		FROM images
		WHERE airport = ?
		ORDER BY id DESC
		LIMIT ?`,
		airport, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query images by airport: %w", err)
	}
	defer rows.Close()

	return s.scanImageRows(rows)
}

// PruneImages deletes all but the newest keep rows of an airport and
// returns the deleted records so the caller can remove their files
func (s *ImageStorage) PruneImages(airport string, keep int) ([]*ImageRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin prune transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, airport, file_name, size_bytes, created_at
		FROM images
		WHERE airport = ?
		ORDER BY id DESC
		LIMIT -1 OFFSET ?`,
		airport, keep,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale images: %w", err)
	}
	stale, err := s.scanImageRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, record := range stale {
		if _, err := tx.Exec(`DELETE FROM images WHERE id = ?`, record.ID); err != nil {
			return nil, fmt.Errorf("failed to delete image %d: %w", record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit prune: %w", err)
	}

	if len(stale) > 0 {
		s.logger.Debug("Pruned image records",
			logger.Airport(airport),
			logger.Int("deleted", len(stale)),
			logger.Int("kept", keep))
	}

	return stale, nil
}

// CountImages returns how many images are registered for an airport
func (s *ImageStorage) CountImages(airport string) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM images WHERE airport = ?`, airport).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

// scanImageRows scans database rows into ImageRecord structs
func (s *ImageStorage) scanImageRows(rows *sql.Rows) ([]*ImageRecord, error) {
	var records []*ImageRecord
	for rows.Next() {
		var record ImageRecord
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.Airport,
			&record.FileName,
			&record.SizeBytes,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}

		var err error
		record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate images: %w", err)
	}

	return records, nil
}
