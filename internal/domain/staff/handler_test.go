package staff

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsched/medsched/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *mockRepo) {
	svc, repo := newTestService()
	return NewHandler(svc), svc, repo
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestLoginHandler(t *testing.T) {
	h, svc, _ := newTestHandler()
	if _, err := svc.Create(context.Background(), physicianInput()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := `{"email": "ana.silva@hospital.example", "password": "correct horse battery"}`
	c, rec := newContext(http.MethodPost, "/auth/login", body)
	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var result LoginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Token == "" {
		t.Error("token missing from response")
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Error("response leaks the password hash")
	}
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	h, svc, _ := newTestHandler()
	if _, err := svc.Create(context.Background(), physicianInput()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	body := `{"email": "ana.silva@hospital.example", "password": "wrong"}`
	c, _ := newContext(http.MethodPost, "/auth/login", body)
	err := h.Login(c)
	if code := statusOf(t, err); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestCreateHandler(t *testing.T) {
	h, _, _ := newTestHandler()

	body := `{
		"email": "bea.costa@hospital.example",
		"first_name": "Bea",
		"last_name": "Costa",
		"role": "nurse",
		"license_number": "RN-100",
		"password": "a decent password"
	}`
	c, rec := newContext(http.MethodPost, "/staff", body)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}

	// Same email again conflicts.
	c, _ = newContext(http.MethodPost, "/staff", strings.Replace(body, "RN-100", "RN-200", 1))
	err := h.Create(c)
	if code := statusOf(t, err); code != http.StatusConflict {
		t.Errorf("status = %d, want 409", code)
	}
}

func TestCreateHandler_Invalid(t *testing.T) {
	h, _, _ := newTestHandler()
	c, _ := newContext(http.MethodPost, "/staff", `{"email": "x@y.example", "role": "janitor"}`)
	err := h.Create(c)
	if code := statusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestGetHandler(t *testing.T) {
	h, svc, _ := newTestHandler()
	member, err := svc.Create(context.Background(), physicianInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newContext(http.MethodGet, "/staff/"+member.ID.String(), "")
	c.SetParamNames("id")
	c.SetParamValues(member.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	c, _ = newContext(http.MethodGet, "/staff/"+uuid.NewString(), "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	err = h.Get(c)
	if code := statusOf(t, err); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}

	c, _ = newContext(http.MethodGet, "/staff/nope", "")
	c.SetParamNames("id")
	c.SetParamValues("nope")
	err = h.Get(c)
	if code := statusOf(t, err); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestListHandler(t *testing.T) {
	h, svc, _ := newTestHandler()
	if _, err := svc.Create(context.Background(), physicianInput()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	nurse := physicianInput()
	nurse.Email = "sam.lee@hospital.example"
	nurse.Role = RoleNurse
	nurse.Specialty = ""
	nurse.LicenseNumber = "RN-100"
	nurse.FirstName = "Sam"
	nurse.LastName = "Lee"
	if _, err := svc.Create(context.Background(), nurse); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newContext(http.MethodGet, "/staff", "")
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data  []*Staff `json:"data"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if page.Total != 2 || len(page.Data) != 2 {
		t.Errorf("got %d/%d members, want 2", len(page.Data), page.Total)
	}

	c, rec = newContext(http.MethodGet, "/staff?role=nurse", "")
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var members []*Staff
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(members) != 1 || members[0].Role != RoleNurse {
		t.Errorf("role filter = %v, want the single nurse", members)
	}

	c, rec = newContext(http.MethodGet, "/staff?specialty=Cardiology", "")
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	members = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(members) != 1 || members[0].Role != RolePhysician {
		t.Errorf("specialty filter = %v, want the single cardiologist", members)
	}
}

func TestUpdateHandler(t *testing.T) {
	h, svc, _ := newTestHandler()
	member, err := svc.Create(context.Background(), physicianInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newContext(http.MethodPut, "/staff/"+member.ID.String(), `{"specialty": "Oncology"}`)
	c.SetParamNames("id")
	c.SetParamValues(member.ID.String())
	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var updated Staff
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if updated.Specialty == nil || *updated.Specialty != "Oncology" {
		t.Errorf("specialty = %v, want Oncology", updated.Specialty)
	}
}

func passwordContext(method, target, body, callerID, callerRole string) (echo.Context, *httptest.ResponseRecorder) {
	c, rec := newContext(method, target, body)
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, auth.StaffIDKey, callerID)
	ctx = context.WithValue(ctx, auth.RoleKey, callerRole)
	c.SetRequest(c.Request().WithContext(ctx))
	return c, rec
}

func TestChangePasswordHandler(t *testing.T) {
	h, svc, _ := newTestHandler()
	member, err := svc.Create(context.Background(), physicianInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	body := `{"current_password": "correct horse battery", "new_password": "a new passphrase"}`
	target := "/staff/" + member.ID.String() + "/password"

	c, rec := passwordContext(http.MethodPost, target, body, member.ID.String(), "physician")
	c.SetParamNames("id")
	c.SetParamValues(member.ID.String())
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestChangePasswordHandler_OtherStaff(t *testing.T) {
	h, svc, _ := newTestHandler()
	member, err := svc.Create(context.Background(), physicianInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	body := `{"current_password": "correct horse battery", "new_password": "a new passphrase"}`
	target := "/staff/" + member.ID.String() + "/password"

	// Another non-administrator may not touch this account.
	c, _ := passwordContext(http.MethodPost, target, body, uuid.NewString(), "nurse")
	c.SetParamNames("id")
	c.SetParamValues(member.ID.String())
	err = h.ChangePassword(c)
	if code := statusOf(t, err); code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", code)
	}

	// Administrators may.
	c, rec := passwordContext(http.MethodPost, target, body, uuid.NewString(), "administrator")
	c.SetParamNames("id")
	c.SetParamValues(member.ID.String())
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestDeactivateHandler(t *testing.T) {
	h, svc, repo := newTestHandler()
	member, err := svc.Create(context.Background(), physicianInput())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, rec := newContext(http.MethodDelete, "/staff/"+member.ID.String(), "")
	c.SetParamNames("id")
	c.SetParamValues(member.ID.String())
	if err := h.Deactivate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	stored, _ := repo.GetByID(context.Background(), member.ID)
	if stored.Active {
		t.Error("member still active")
	}
}
