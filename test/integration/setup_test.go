package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsched/medsched/internal/domain/scheduling"
	"github.com/medsched/medsched/internal/domain/staff"
	"github.com/medsched/medsched/internal/platform/auth"
	"github.com/medsched/medsched/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, connStr, 8, 2)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{Pool: pool, ConnStr: connStr}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this test
// file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> repo root
	root := filepath.Join(dir, "..", "..")
	return filepath.Join(root, "migrations")
}

// resetTables clears all event and staff rows so each test starts from an
// empty schedule.
func resetTables(t *testing.T, ctx context.Context) {
	t.Helper()
	_, err := globalDB.Pool.Exec(ctx, "TRUNCATE medical_event, staff CASCADE")
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}

// newServices wires the staff and scheduling services against the shared
// pool, the same way the server does.
func newServices() (*staff.Service, *scheduling.Service) {
	issuer := auth.NewTokenIssuer([]byte("integration-signing-key-0123456789"), time.Hour)
	staffSvc := staff.NewService(staff.NewStaffRepoPG(globalDB.Pool), issuer)
	schedSvc := scheduling.NewService(
		scheduling.NewEventRepoPG(globalDB.Pool),
		staffSvc,
		db.NewTxRunner(globalDB.Pool),
	)
	return staffSvc, schedSvc
}

// shortID returns an 8-character suffix for unique emails and licenses.
func shortID() string {
	return strings.ReplaceAll(uuid.New().String()[:8], "-", "")
}

// createClinician registers a staff member through the service so the row
// carries a real password hash.
func createClinician(t *testing.T, ctx context.Context, svc *staff.Service, role staff.Role, firstName, lastName, specialty string) *staff.Staff {
	t.Helper()
	suffix := shortID()
	member, err := svc.Create(ctx, staff.CreateInput{
		Email:         fmt.Sprintf("%s.%s.%s@hospital.example", strings.ToLower(firstName), strings.ToLower(lastName), suffix),
		FirstName:     firstName,
		LastName:      lastName,
		Role:          role,
		Specialty:     specialty,
		LicenseNumber: fmt.Sprintf("LIC-%s", suffix),
		Password:      "correct horse battery",
	})
	if err != nil {
		t.Fatalf("create %s %s %s: %v", role, firstName, lastName, err)
	}
	return member
}

// shiftOn builds a morning shift input on the given date and window.
func shiftOn(date time.Time, start, end scheduling.TimeOfDay) scheduling.ShiftInput {
	return scheduling.ShiftInput{
		Title:     "Ward coverage",
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Slot:      scheduling.SlotMorning,
	}
}

// monday is a fixed weekday anchor so weekend derivation and weekly cap
// windows are deterministic.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
