package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Map is a saved occupancy map and the waypoint file built on it
type Map struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	MapPath      string `json:"map_path"`
	WaypointPath string `json:"waypoint_path"`
}

const mapSelectCols = `id, name, map_path, waypoint_path`

func scanMap(row scanner) (*Map, error) {
	var m Map
	if err := row.Scan(&m.ID, &m.Name, &m.MapPath, &m.WaypointPath); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMap inserts m and sets its ID. Names are unique.
func (db *DB) CreateMap(ctx context.Context, m *Map) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: map name is required", ErrInvalidRecord)
	}
	res, err := db.ExecContext(ctx, `INSERT INTO maps (name, map_path, waypoint_path) VALUES (?, ?, ?)`,
		m.Name, m.MapPath, m.WaypointPath)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("map %q: %w", m.Name, ErrDuplicateName)
		}
		return fmt.Errorf("create map: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create map: %w", err)
	}
	m.ID = id
	return nil
}

// GetMap returns the map with id
func (db *DB) GetMap(ctx context.Context, id int64) (*Map, error) {
	row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM maps WHERE id = ?`, mapSelectCols), id)
	m, err := scanMap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("map %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get map: %w", err)
	}
	return m, nil
}

// ListMaps returns all maps ordered by id
func (db *DB) ListMaps(ctx context.Context) ([]*Map, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM maps ORDER BY id`, mapSelectCols))
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	defer rows.Close()

	maps := []*Map{}
	for rows.Next() {
		m, err := scanMap(rows)
		if err != nil {
			return nil, fmt.Errorf("list maps: %w", err)
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

// UpdateMap overwrites the map with m.ID
func (db *DB) UpdateMap(ctx context.Context, m *Map) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: map name is required", ErrInvalidRecord)
	}
	res, err := db.ExecContext(ctx, `UPDATE maps SET name=?, map_path=?, waypoint_path=? WHERE id=?`,
		m.Name, m.MapPath, m.WaypointPath, m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("map %q: %w", m.Name, ErrDuplicateName)
		}
		return fmt.Errorf("update map: %w", err)
	}
	return rowsAffected(res, "map", m.ID)
}

// DeleteMap removes the map with id
func (db *DB) DeleteMap(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM maps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete map: %w", err)
	}
	return rowsAffected(res, "map", id)
}
