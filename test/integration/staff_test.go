package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/medsched/medsched/internal/domain/staff"
)

func TestStaffAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	staffSvc, _ := newServices()

	nurse := createClinician(t, ctx, staffSvc, staff.RoleNurse, "Rita", "Gomes", "Pediatrics")

	t.Run("Login", func(t *testing.T) {
		result, err := staffSvc.Login(ctx, nurse.Email, "correct horse battery")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if result.Token == "" {
			t.Error("expected a signed token")
		}
		if result.Staff.ID != nurse.ID {
			t.Errorf("logged-in staff = %s, want %s", result.Staff.ID, nurse.ID)
		}

		repo := staff.NewStaffRepoPG(globalDB.Pool)
		stored, err := repo.GetByID(ctx, nurse.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if stored.LastLoginAt == nil {
			t.Error("expected last_login_at to be recorded")
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, err := staffSvc.Create(ctx, staff.CreateInput{
			Email:         nurse.Email,
			FirstName:     "Rui",
			LastName:      "Alves",
			Role:          staff.RoleNurse,
			LicenseNumber: "LIC-" + shortID(),
			Password:      "another password",
		})
		if !errors.Is(err, staff.ErrEmailTaken) {
			t.Errorf("duplicate email = %v, want ErrEmailTaken", err)
		}
	})

	t.Run("DuplicateLicense", func(t *testing.T) {
		_, err := staffSvc.Create(ctx, staff.CreateInput{
			Email:         "rui.alves." + shortID() + "@hospital.example",
			FirstName:     "Rui",
			LastName:      "Alves",
			Role:          staff.RoleNurse,
			LicenseNumber: nurse.LicenseNumber,
			Password:      "another password",
		})
		if !errors.Is(err, staff.ErrLicenseTaken) {
			t.Errorf("duplicate license = %v, want ErrLicenseTaken", err)
		}
	})

	t.Run("ChangePassword", func(t *testing.T) {
		if err := staffSvc.ChangePassword(ctx, nurse.ID, "correct horse battery", "staple battery horse"); err != nil {
			t.Fatalf("ChangePassword: %v", err)
		}
		if _, err := staffSvc.Login(ctx, nurse.Email, "correct horse battery"); !errors.Is(err, staff.ErrInvalidCredentials) {
			t.Errorf("login with old password = %v, want ErrInvalidCredentials", err)
		}
		if _, err := staffSvc.Login(ctx, nurse.Email, "staple battery horse"); err != nil {
			t.Errorf("login with new password: %v", err)
		}
	})

	t.Run("UpdatePersists", func(t *testing.T) {
		updated, err := staffSvc.Update(ctx, nurse.ID, staff.UpdateInput{Specialty: strPtr("Neonatal")})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if updated.Specialty == nil || *updated.Specialty != "Neonatal" {
			t.Errorf("Specialty = %v, want Neonatal", updated.Specialty)
		}

		repo := staff.NewStaffRepoPG(globalDB.Pool)
		stored, err := repo.GetByID(ctx, nurse.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if stored.Specialty == nil || *stored.Specialty != "Neonatal" {
			t.Errorf("stored specialty = %v, want Neonatal", stored.Specialty)
		}
	})

	t.Run("Deactivate", func(t *testing.T) {
		if err := staffSvc.Deactivate(ctx, nurse.ID); err != nil {
			t.Fatalf("Deactivate: %v", err)
		}
		if _, err := staffSvc.Login(ctx, nurse.Email, "staple battery horse"); !errors.Is(err, staff.ErrInactive) {
			t.Errorf("login while deactivated = %v, want ErrInactive", err)
		}
	})
}

func TestStaffDirectoryFilters(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	staffSvc, _ := newServices()

	createClinician(t, ctx, staffSvc, staff.RolePhysician, "Ana", "Silva", "Cardiology")
	createClinician(t, ctx, staffSvc, staff.RolePhysician, "Bia", "Melo", "Oncology")
	rita := createClinician(t, ctx, staffSvc, staff.RoleNurse, "Rita", "Gomes", "Pediatrics")

	all, total, err := staffSvc.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(all) != 2 {
		t.Errorf("List = %d rows, total %d, want 2 rows of 3", len(all), total)
	}

	nurses, err := staffSvc.ListByRole(ctx, staff.RoleNurse)
	if err != nil {
		t.Fatalf("ListByRole: %v", err)
	}
	if len(nurses) != 1 || nurses[0].FirstName != "Rita" {
		t.Errorf("nurses = %d, want just Rita", len(nurses))
	}

	cardio, err := staffSvc.ListBySpecialty(ctx, "Cardiology")
	if err != nil {
		t.Fatalf("ListBySpecialty: %v", err)
	}
	if len(cardio) != 1 || cardio[0].FirstName != "Ana" {
		t.Errorf("cardiology staff = %d, want just Ana", len(cardio))
	}

	if err := staffSvc.Deactivate(ctx, rita.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	repo := staff.NewStaffRepoPG(globalDB.Pool)
	active, err := repo.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if active != 2 {
		t.Errorf("active staff = %d, want 2 after deactivation", active)
	}
}

func strPtr(s string) *string { return &s }
