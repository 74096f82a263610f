package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/medirover/controller/pkg/pose"
)

// Waypoint is a named pose on the current map. TableHeight is the height of
// the bedside table at that point, used for deliveries.
type Waypoint struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	PosX        float64 `json:"pos_x"`
	PosY        float64 `json:"pos_y"`
	PosZ        float64 `json:"pos_z"`
	OriX        float64 `json:"ori_x"`
	OriY        float64 `json:"ori_y"`
	OriZ        float64 `json:"ori_z"`
	OriW        float64 `json:"ori_w"`
	TableHeight float64 `json:"table_height"`
}

// Pose converts the waypoint to a pose in frame
func (w *Waypoint) Pose(frame string) pose.Pose {
	return pose.NewFull(frame, w.PosX, w.PosY, w.PosZ, w.OriX, w.OriY, w.OriZ, w.OriW)
}

const waypointSelectCols = `id, name, pos_x, pos_y, pos_z, ori_x, ori_y, ori_z, ori_w, table_height`

func scanWaypoint(row scanner) (*Waypoint, error) {
	var w Waypoint
	err := row.Scan(&w.ID, &w.Name, &w.PosX, &w.PosY, &w.PosZ,
		&w.OriX, &w.OriY, &w.OriZ, &w.OriW, &w.TableHeight)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func validateWaypoint(w *Waypoint) error {
	w.Name = strings.TrimSpace(w.Name)
	if w.Name == "" {
		return fmt.Errorf("%w: waypoint name is required", ErrInvalidRecord)
	}
	return nil
}

// CreateWaypoint inserts w and sets its ID
func (db *DB) CreateWaypoint(ctx context.Context, w *Waypoint) error {
	if err := validateWaypoint(w); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `INSERT INTO waypoints (name, pos_x, pos_y, pos_z, ori_x, ori_y, ori_z, ori_w, table_height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.Name, w.PosX, w.PosY, w.PosZ, w.OriX, w.OriY, w.OriZ, w.OriW, w.TableHeight)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("waypoint %q: %w", w.Name, ErrDuplicateName)
		}
		return fmt.Errorf("create waypoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create waypoint: %w", err)
	}
	w.ID = id
	return nil
}

// GetWaypoint returns the waypoint with id
func (db *DB) GetWaypoint(ctx context.Context, id int64) (*Waypoint, error) {
	row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM waypoints WHERE id = ?`, waypointSelectCols), id)
	w, err := scanWaypoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("waypoint %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get waypoint: %w", err)
	}
	return w, nil
}

// GetWaypointByName returns the waypoint called name, or ErrNotFound
func (db *DB) GetWaypointByName(ctx context.Context, name string) (*Waypoint, error) {
	row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM waypoints WHERE name = ?`, waypointSelectCols), name)
	w, err := scanWaypoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("waypoint %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get waypoint: %w", err)
	}
	return w, nil
}

// ListWaypoints returns all waypoints ordered by id
func (db *DB) ListWaypoints(ctx context.Context) ([]*Waypoint, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM waypoints ORDER BY id`, waypointSelectCols))
	if err != nil {
		return nil, fmt.Errorf("list waypoints: %w", err)
	}
	defer rows.Close()

	waypoints := []*Waypoint{}
	for rows.Next() {
		w, err := scanWaypoint(rows)
		if err != nil {
			return nil, fmt.Errorf("list waypoints: %w", err)
		}
		waypoints = append(waypoints, w)
	}
	return waypoints, rows.Err()
}

// UpdateWaypoint overwrites the waypoint with w.ID
func (db *DB) UpdateWaypoint(ctx context.Context, w *Waypoint) error {
	if err := validateWaypoint(w); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE waypoints SET name=?, pos_x=?, pos_y=?, pos_z=?, ori_x=?, ori_y=?, ori_z=?, ori_w=?, table_height=?, updated_at=datetime('now')
		WHERE id=?`,
		w.Name, w.PosX, w.PosY, w.PosZ, w.OriX, w.OriY, w.OriZ, w.OriW, w.TableHeight, w.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("waypoint %q: %w", w.Name, ErrDuplicateName)
		}
		return fmt.Errorf("update waypoint: %w", err)
	}
	return rowsAffected(res, "waypoint", w.ID)
}

// DeleteWaypoint removes the waypoint with id
func (db *DB) DeleteWaypoint(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM waypoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete waypoint: %w", err)
	}
	return rowsAffected(res, "waypoint", id)
}
