// Package sqlite stores historical flights and scored flights in a SQLite
// database through GORM. The flights table feeds training and flight lookups;
// flight_scores keeps the latest score per flight.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const insertBatchSize = 200

// ErrFlightNotFound is returned when no row matches a flight number.
var ErrFlightNotFound = domain.ErrFlightNotFound

// Repository reads and writes flights and scores.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the SQLite file at path and migrates the schema.
func Open(path string, logger *slog.Logger) (*Repository, error) {
	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	return NewRepository(db, logger)
}

// NewRepository wraps an open GORM handle and migrates the schema.
func NewRepository(db *gorm.DB, logger *slog.Logger) (*Repository, error) {
	if err := db.AutoMigrate(&FlightRow{}, &ScoreRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Repository{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveFlights inserts records into the flights table.
func (r *Repository) SaveFlights(ctx context.Context, recs []domain.FlightRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]FlightRow, len(recs))
	for i, rec := range recs {
		rows[i] = newFlightRow(rec)
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert flights: %w", err)
	}
	r.logger.Debug("flights saved", "count", len(rows))
	return nil
}

// Flights returns stored flights in insertion order. A limit of 0 returns all.
func (r *Repository) Flights(ctx context.Context, limit int) ([]domain.FlightRecord, error) {
	var rows []FlightRow
	q := r.db.WithContext(ctx).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query flights: %w", err)
	}
	out := make([]domain.FlightRecord, len(rows))
	for i, row := range rows {
		out[i] = row.Record()
	}
	return out, nil
}

// CountFlights returns the number of stored flights.
func (r *Repository) CountFlights(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&FlightRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return n, nil
}

// FindFlight returns the most recently scheduled flight with the given number.
func (r *Repository) FindFlight(ctx context.Context, flightNumber string) (domain.FlightRecord, error) {
	var row FlightRow
	err := r.db.WithContext(ctx).
		Where("flight_number = ?", flightNumber).
		Order("scheduled_departure DESC").
		Order("id DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.FlightRecord{}, fmt.Errorf("%s: %w", flightNumber, ErrFlightNotFound)
	}
	if err != nil {
		return domain.FlightRecord{}, fmt.Errorf("query flight %s: %w", flightNumber, err)
	}
	return row.Record(), nil
}

// SaveScores upserts scored flights keyed by flight number and date.
func (r *Repository) SaveScores(ctx context.Context, scored []domain.ScoredFlight) error {
	if len(scored) == 0 {
		return nil
	}
	rows := make([]ScoreRow, 0, len(scored))
	index := make(map[string]int, len(scored))
	for _, s := range scored {
		row := newScoreRow(s)
		// A batch may score the same flight twice; the later score wins.
		if i, dup := index[row.FlightKey]; dup {
			rows[i] = row
			continue
		}
		index[row.FlightKey] = len(rows)
		rows = append(rows, row)
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "flight_key"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upsert scores: %w", err)
	}
	return nil
}

// LoadBatch implements pipeline.BatchLoader by storing the scores.
func (r *Repository) LoadBatch(ctx context.Context, scored []domain.ScoredFlight) error {
	return r.SaveScores(ctx, scored)
}

// LatestScore returns the most recently processed score for a flight number.
func (r *Repository) LatestScore(ctx context.Context, flightNumber string) (ScoreRow, error) {
	var row ScoreRow
	err := r.db.WithContext(ctx).
		Where("flight_number = ?", flightNumber).
		Order("processed_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ScoreRow{}, fmt.Errorf("%s: %w", flightNumber, ErrFlightNotFound)
	}
	if err != nil {
		return ScoreRow{}, fmt.Errorf("query score %s: %w", flightNumber, err)
	}
	return row, nil
}
