package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/model"
)

// PostgresStore implements TerritoryStore against the territories table.
// Rings are stored as GeoJSON Polygon jsonb alongside denormalized bounding
// box columns, so region queries stay index-friendly without PostGIS.
type PostgresStore struct {
	db  *sql.DB
	log logging.Logger
}

// OpenPostgres opens a connection pool against the given DSN.
func OpenPostgres(dsn string, log logging.Logger) (*PostgresStore, error) {
	if log == nil {
		log = logging.Noop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	return &PostgresStore{db: db, log: log}, nil
}

// AttachDB wraps an existing handle, for tests and manual injection.
func AttachDB(db *sql.DB, log logging.Logger) *PostgresStore {
	if log == nil {
		log = logging.Noop()
	}
	return &PostgresStore{db: db, log: log}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// TerritoriesInRegion returns every territory whose bounding box overlaps
// the region. Rejected territories are filtered at the source.
func (s *PostgresStore) TerritoriesInRegion(ctx context.Context, region geo.BBox) ([]*model.Territory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, status, ring
		FROM territories
		WHERE status <> 'rejected'
		  AND max_lat >= $1 AND min_lat <= $2
		  AND max_lon >= $3 AND min_lon <= $4`,
		region.MinLat, region.MaxLat, region.MinLon, region.MaxLon,
	)
	if err != nil {
		return nil, fmt.Errorf("query territories: %w", err)
	}
	defer rows.Close()

	var out []*model.Territory
	for rows.Next() {
		var t model.Territory
		var rawRing []byte
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Status, &rawRing); err != nil {
			return nil, fmt.Errorf("scan territory: %w", err)
		}
		ring, err := UnmarshalRing(rawRing)
		if err != nil {
			// A malformed row is a storage defect; skip it rather than
			// failing the whole snapshot.
			s.log.Warn(ctx, "skipping territory with malformed ring",
				logging.String("territory_id", t.ID), logging.Err(err))
			continue
		}
		t.Ring = ring
		out = append(out, &t)
	}
	return out, rows.Err()
}

// SubmitClaim inserts the draft as a pending territory. The database
// assigns the identity.
func (s *PostgresStore) SubmitClaim(ctx context.Context, draft *model.TerritoryDraft) (string, error) {
	rawRing, err := MarshalRing(draft.Ring)
	if err != nil {
		return "", fmt.Errorf("encode claim ring: %w", err)
	}
	b := geo.RingBBox(draft.Ring)

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO territories
			(owner_id, status, ring, area_m2, min_lat, max_lat, min_lon, max_lon)
		VALUES ($1, 'pending', $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		draft.OwnerID, rawRing, draft.AreaSquareMeters,
		b.MinLat, b.MaxLat, b.MinLon, b.MaxLon,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert claim: %w", err)
	}
	return id, nil
}
