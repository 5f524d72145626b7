package formula

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTableName is the weight table row used by the sleep-support
// engine.
const DefaultTableName = "sleep_support"

// Querier defines the database operations the weight table store
// needs. Defined on the consumer side so tests can substitute a mock.
type Querier interface {
	// LatestWeightTable returns the highest-version weights JSON for
	// the named table. Must return pgx.ErrNoRows when absent.
	LatestWeightTable(ctx context.Context, name string) ([]byte, int, error)

	// InsertWeightTable appends a new version row.
	InsertWeightTable(ctx context.Context, name string, version int, weights []byte) error
}

// Store persists weight tables as versioned JSONB rows.
type Store struct {
	queries Querier
	name    string
	logger  *slog.Logger
}

// NewStore creates a Store for the named weight table.
// A nil logger falls back to slog.Default().
func NewStore(querier Querier, name string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = DefaultTableName
	}
	return &Store{queries: querier, name: name, logger: logger}
}

// Load returns the highest persisted version of the weight table.
// On first use (no row yet) it installs the documented defaults as
// version 1, persists them, and returns that table.
func (s *Store) Load(ctx context.Context) (*WeightTable, error) {
	data, version, err := s.queries.LatestWeightTable(ctx, s.name)
	if errors.Is(err, pgx.ErrNoRows) {
		table := DefaultWeightTable()
		table.Version = 1
		payload, marshalErr := json.Marshal(table)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling default weight table: %w", marshalErr)
		}
		if insertErr := s.queries.InsertWeightTable(ctx, s.name, table.Version, payload); insertErr != nil {
			return nil, fmt.Errorf("persisting default weight table: %w", insertErr)
		}
		s.logger.Info("installed default weight table", "name", s.name, "version", table.Version)
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading weight table %q: %w", s.name, err)
	}

	var table WeightTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing weight table %q: %w", s.name, err)
	}
	table.Version = version

	s.logger.Debug("loaded weight table", "name", s.name, "version", version)
	return &table, nil
}

// Save persists the table as the next version. The table's Version
// field is advanced before writing so callers observe the persisted
// version.
func (s *Store) Save(ctx context.Context, table *WeightTable) error {
	if table == nil {
		return errors.New("weight table is nil")
	}

	table.Version++
	payload, err := json.Marshal(table)
	if err != nil {
		table.Version--
		return fmt.Errorf("marshaling weight table: %w", err)
	}
	if err := s.queries.InsertWeightTable(ctx, s.name, table.Version, payload); err != nil {
		table.Version--
		return fmt.Errorf("saving weight table %q version %d: %w", s.name, table.Version+1, err)
	}

	s.logger.Info("saved weight table", "name", s.name, "version", table.Version)
	return nil
}

// PGQuerier implements Querier against a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier wraps a pgx pool as a Querier.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

// LatestWeightTable returns the newest weights row for name.
func (q *PGQuerier) LatestWeightTable(ctx context.Context, name string) ([]byte, int, error) {
	var (
		weights []byte
		version int
	)
	err := q.pool.QueryRow(ctx,
		`SELECT weights, version FROM weight_tables WHERE name = $1 ORDER BY version DESC LIMIT 1`,
		name,
	).Scan(&weights, &version)
	if err != nil {
		return nil, 0, err
	}
	return weights, version, nil
}

// InsertWeightTable appends a version row for name.
func (q *PGQuerier) InsertWeightTable(ctx context.Context, name string, version int, weights []byte) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO weight_tables (name, version, weights) VALUES ($1, $2, $3)`,
		name, version, weights,
	)
	return err
}
