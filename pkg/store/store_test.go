package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWaypointCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	w := &Waypoint{Name: "pharmacy", PosX: 0.12, PosY: 1.73, OriW: 1, TableHeight: 0.7}
	if err := db.CreateWaypoint(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.ID == 0 {
		t.Fatal("ID should be assigned")
	}

	got, err := db.GetWaypoint(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "pharmacy" || got.PosY != 1.73 || got.TableHeight != 0.7 {
		t.Errorf("Unexpected waypoint %+v", got)
	}

	byName, err := db.GetWaypointByName(ctx, "pharmacy")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.ID != w.ID {
		t.Errorf("ID = %d, want %d", byName.ID, w.ID)
	}

	w.PosX = 2.5
	w.Name = "pharmacy-2"
	if err := db.UpdateWaypoint(ctx, w); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = db.GetWaypoint(ctx, w.ID)
	if got.PosX != 2.5 || got.Name != "pharmacy-2" {
		t.Errorf("Update not applied: %+v", got)
	}

	if err := db.DeleteWaypoint(ctx, w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetWaypoint(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := db.DeleteWaypoint(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestWaypointByNameMissing(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetWaypointByName(context.Background(), "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWaypointDuplicateName(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateWaypoint(ctx, &Waypoint{Name: "bed-1", OriW: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.CreateWaypoint(ctx, &Waypoint{Name: "bed-1", OriW: 1}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}
	if err := db.CreateWaypoint(ctx, &Waypoint{Name: "  "}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for blank name, got %v", err)
	}
}

func TestWaypointPose(t *testing.T) {
	w := &Waypoint{PosX: 1, PosY: 2, PosZ: 3, OriX: 0.1, OriY: 0.2, OriZ: 0.3, OriW: 0.9}
	p := w.Pose("map")
	if p.Frame != "map" || p.Position.Z != 3 || p.Orientation.Y != 0.2 || p.Orientation.W != 0.9 {
		t.Errorf("Unexpected pose %+v", p)
	}
}

func TestListWaypointsOrdered(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	empty, err := db.ListWaypoints(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil list, got %v", empty)
	}

	for _, name := range []string{"a", "b", "c"} {
		if err := db.CreateWaypoint(ctx, &Waypoint{Name: name, OriW: 1}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	list, err := db.ListWaypoints(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Name != "a" || list[2].Name != "c" {
		t.Errorf("Unexpected list %v", list)
	}
}

func TestMapCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	m := &Map{Name: "ward-3", MapPath: "/maps/ward3.pgm", WaypointPath: "/maps/ward3.yaml"}
	if err := db.CreateMap(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.CreateMap(ctx, &Map{Name: "ward-3"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}

	got, err := db.GetMap(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MapPath != "/maps/ward3.pgm" {
		t.Errorf("MapPath = %q", got.MapPath)
	}

	m.WaypointPath = "/maps/ward3-v2.yaml"
	if err := db.UpdateMap(ctx, m); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, err := db.ListMaps(ctx)
	if err != nil || len(list) != 1 || list[0].WaypointPath != "/maps/ward3-v2.yaml" {
		t.Errorf("Unexpected list %v (err %v)", list, err)
	}

	if err := db.DeleteMap(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetMap(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
