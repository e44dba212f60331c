package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

const sqlSchema = `CREATE TABLE IF NOT EXISTS catalog_regions (
	service  TEXT    NOT NULL,
	region   TEXT    NOT NULL,
	addr     TEXT    NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (service, region)
)`

// SQLCatalog reads region endpoints from the catalog_regions table of a SQL database.
// Any database/sql driver understanding "?" placeholders works; the probe binary
// and the tests use modernc.org/sqlite.
type SQLCatalog struct {
	db     *sql.DB
	dialer Dialer
}

// NewSQLCatalog wraps an open database.
func NewSQLCatalog(db *sql.DB, dialer Dialer) *SQLCatalog {
	return &SQLCatalog{db: db, dialer: dialer}
}

// EnsureSchema creates the catalog_regions table when missing.
func (c *SQLCatalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, sqlSchema); err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	return nil
}

// Register inserts or updates one region endpoint.
func (c *SQLCatalog) Register(ctx context.Context, service string, ep Endpoint) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO catalog_regions (service, region, addr, position) VALUES (?, ?, ?, ?)
		 ON CONFLICT (service, region) DO UPDATE SET addr = excluded.addr, position = excluded.position`,
		service, ep.Region, ep.Addr, ep.Order)
	if err != nil {
		return fmt.Errorf("register %s/%s: %w", service, ep.Region, err)
	}
	return nil
}

// Deregister deletes one region endpoint.
func (c *SQLCatalog) Deregister(ctx context.Context, service, region string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM catalog_regions WHERE service = ? AND region = ?`, service, region)
	if err != nil {
		return fmt.Errorf("deregister %s/%s: %w", service, region, err)
	}
	return nil
}

// Discover returns the endpoints of a service in canonical order.
func (c *SQLCatalog) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT region, addr, position FROM catalog_regions WHERE service = ? ORDER BY position, region`, service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	defer rows.Close()

	var eps []Endpoint
	for rows.Next() {
		var ep Endpoint
		if err := rows.Scan(&ep.Region, &ep.Addr, &ep.Order); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		eps = append(eps, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	return eps, nil
}

// Lookup implements Catalog.
func (c *SQLCatalog) Lookup(ctx context.Context, name string) (Service, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_regions WHERE service = ?`, name).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}
	if count == 0 {
		return nil, unknownService(name)
	}

	return &endpointService{
		name:   name,
		dialer: c.dialer,
		refresh: func(ctx context.Context) ([]Endpoint, error) {
			return c.Discover(ctx, name)
		},
	}, nil
}
