package presence

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"neargo/config"
	"neargo/internal/domain"
	"neargo/internal/index"
	"neargo/internal/models"
)

func testConfig() config.PresenceConfig {
	return config.PresenceConfig{
		TTL:           30 * time.Second,
		GracePeriod:   60 * time.Second,
		SweepInterval: 15 * time.Second,
	}
}

func newTestRegistry() (*Registry, *index.Grid, *time.Time) {
	grid := index.NewGrid(500)
	reg := NewRegistry(testConfig(), grid)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	reg.Now = func() time.Time { return now }
	return reg, grid, &now
}

func snap(id string) models.ProfileSnapshot {
	return models.ProfileSnapshot{UserID: id, DisplayName: "User " + id, Age: 30, Gender: domain.GenderFemale}
}

func TestRegisterValidation(t *testing.T) {
	reg, _, _ := newTestRegistry()
	cases := []models.ProfileSnapshot{
		{UserID: "u1", DisplayName: "ok", Age: 17, Gender: domain.GenderMale},
		{UserID: "u1", DisplayName: "ok", Age: 121, Gender: domain.GenderMale},
		{UserID: "u1", DisplayName: "", Age: 25, Gender: domain.GenderMale},
		{UserID: "u1", DisplayName: "this display name is way past the thirty character cap", Age: 25, Gender: domain.GenderMale},
		{UserID: "u1", DisplayName: "ok", Age: 25, Gender: "robot"},
		{UserID: "", DisplayName: "ok", Age: 25, Gender: domain.GenderMale},
	}
	for i, s := range cases {
		if err := reg.Register(s); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
	if err := reg.Register(snap("u2")); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}
	entry, err := reg.GetSnapshot("u2")
	if err != nil || entry.State != domain.StatePending {
		t.Fatalf("expected PENDING entry, got %+v err %v", entry, err)
	}
}

func TestReportLifecycle(t *testing.T) {
	reg, grid, _ := newTestRegistry()
	if err := reg.ReportLocation("ghost", 0, 0, time.Now(), 0); !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if err := reg.Register(snap("u1")); err != nil {
		t.Fatal(err)
	}
	if grid.Contains("u1") {
		t.Fatal("PENDING entry must not be indexed")
	}
	if err := reg.ReportLocation("u1", 51.5, -0.12, time.UnixMilli(1000), 10); err != nil {
		t.Fatal(err)
	}
	entry, _ := reg.GetSnapshot("u1")
	if entry.State != domain.StateActive || entry.Position.Latitude != 51.5 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !grid.Contains("u1") {
		t.Fatal("active entry missing from index")
	}
}

func TestStaleReportDropped(t *testing.T) {
	reg, _, _ := newTestRegistry()
	reg.Register(snap("u1"))
	if err := reg.ReportLocation("u1", 10, 10, time.UnixMilli(2000), 0); err != nil {
		t.Fatal(err)
	}
	err := reg.ReportLocation("u1", 20, 20, time.UnixMilli(1000), 0)
	if !errors.Is(err, domain.ErrStaleReport) {
		t.Fatalf("expected ErrStaleReport, got %v", err)
	}
	entry, _ := reg.GetSnapshot("u1")
	if entry.Position.Latitude != 10 || entry.Position.Longitude != 10 {
		t.Fatalf("stale report changed stored position: %+v", entry.Position)
	}
}

func TestExpiryAndPurge(t *testing.T) {
	reg, grid, now := newTestRegistry()
	reg.Register(snap("u1"))
	reg.ReportLocation("u1", 51.5, -0.12, time.UnixMilli(1000), 0)

	// inside TTL: still active
	*now = now.Add(20 * time.Second)
	reg.ExpireStale()
	if _, ok := reg.GetActive("u1"); !ok {
		t.Fatal("expired before TTL")
	}

	// past TTL: expired, dropped from index, kept in registry
	*now = now.Add(15 * time.Second)
	expired, purged := reg.ExpireStale()
	if expired != 1 || purged != 0 {
		t.Fatalf("expected 1 expired, got expired=%d purged=%d", expired, purged)
	}
	if grid.Contains("u1") {
		t.Fatal("expired entry still indexed")
	}
	if _, ok := reg.GetActive("u1"); ok {
		t.Fatal("expired entry still reported active")
	}
	entry, err := reg.GetSnapshot("u1")
	if err != nil || entry.State != domain.StateExpired {
		t.Fatalf("expected EXPIRED entry, got %+v err %v", entry, err)
	}

	// inside grace: still present
	*now = now.Add(30 * time.Second)
	reg.ExpireStale()
	if _, err := reg.GetSnapshot("u1"); err != nil {
		t.Fatal("purged before grace period")
	}

	// past grace: purged
	*now = now.Add(45 * time.Second)
	_, purged = reg.ExpireStale()
	if purged != 1 {
		t.Fatalf("expected purge, got %d", purged)
	}
	if _, err := reg.GetSnapshot("u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestReviveDuringGrace(t *testing.T) {
	reg, grid, now := newTestRegistry()
	reg.Register(snap("u1"))
	reg.ReportLocation("u1", 51.5, -0.12, time.UnixMilli(1000), 0)
	*now = now.Add(45 * time.Second)
	reg.ExpireStale()
	if grid.Contains("u1") {
		t.Fatal("expired entry still indexed")
	}
	if err := reg.ReportLocation("u1", 51.6, -0.12, time.UnixMilli(2000), 0); err != nil {
		t.Fatalf("report during grace should revive: %v", err)
	}
	if entry, ok := reg.GetActive("u1"); !ok || entry.Position.Latitude != 51.6 {
		t.Fatalf("revived entry wrong: %+v ok=%v", entry, ok)
	}
	if !grid.Contains("u1") {
		t.Fatal("revived entry missing from index")
	}
}

func TestIndexRegistryInvariant(t *testing.T) {
	reg, grid, now := newTestRegistry()
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("u%02d", i)
		reg.Register(snap(id))
		reg.ReportLocation(id, float64(i)*0.01, float64(i)*0.01, time.UnixMilli(int64(i+1)), 0)
	}
	// age half of them out
	*now = now.Add(40 * time.Second)
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("u%02d", i)
		reg.ReportLocation(id, float64(i)*0.01, float64(i)*0.01+0.001, time.UnixMilli(int64(i+100)), 0)
	}
	reg.ExpireStale()

	for _, id := range grid.UserIDs() {
		if _, ok := reg.GetActive(id); !ok {
			t.Errorf("indexed user %s has no ACTIVE entry", id)
		}
	}
	active := 0
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("u%02d", i)
		if _, ok := reg.GetActive(id); ok {
			active++
			if !grid.Contains(id) {
				t.Errorf("ACTIVE user %s missing from index", id)
			}
		}
	}
	if active != 25 {
		t.Fatalf("expected 25 active users, got %d", active)
	}
}

func TestReconcile(t *testing.T) {
	reg, grid, _ := newTestRegistry()
	reg.Register(snap("u1"))
	reg.ReportLocation("u1", 10, 10, time.UnixMilli(1000), 0)

	// index lost the user somehow
	grid.Remove("u1")
	reg.Reconcile()
	if !grid.Contains("u1") {
		t.Fatal("reconcile did not re-index active entry")
	}

	// index has an orphan the registry never saw
	grid.InsertOrUpdate("orphan", 10, 10)
	reg.Reconcile()
	if grid.Contains("orphan") {
		t.Fatal("reconcile did not drop orphan index entry")
	}
}
