package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lanos_go/config"
	"lanos_go/middleware"
	"lanos_go/models"
	"lanos_go/services/audit"
	"lanos_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/go-cmp/cmp"
)

type fakeSource struct {
	records  []models.RegistrationRecord
	stats    *models.RegistrationStatistics
	listErr  error
	codes    []models.ReferralCode
	validate map[string]models.ReferralValidation
}

func (f *fakeSource) Registrations(ctx context.Context) ([]models.RegistrationRecord, error) {
	return f.records, f.listErr
}

func (f *fakeSource) Statistics(ctx context.Context) (models.RegistrationStatistics, error) {
	if f.stats == nil {
		return models.RegistrationStatistics{}, errors.New("statistics unavailable")
	}
	return *f.stats, nil
}

func (f *fakeSource) ReferralCodes(ctx context.Context) ([]models.ReferralCode, error) {
	return f.codes, nil
}

func (f *fakeSource) ValidateReferral(ctx context.Context, code string) (models.ReferralValidation, error) {
	return f.validate[code], nil
}

type fakeArchiver struct {
	fileName string
	records  int
	by       string
}

func (a *fakeArchiver) Upload(ctx context.Context, fileName string, data []byte, records int, requestedBy string) (*models.ExportArchive, error) {
	a.fileName, a.records, a.by = fileName, records, requestedBy
	return &models.ExportArchive{FileName: fileName, S3Key: "exports/" + fileName, RecordCount: records, Status: "completed"}, nil
}

func (a *fakeArchiver) URL(key string) string { return "https://bucket/" + key }

type fakeLister struct {
	got audit.Query
}

func (l *fakeLister) List(ctx context.Context, q audit.Query) ([]models.SubmissionLog, int64, error) {
	l.got = q
	return []models.SubmissionLog{{FormID: "scholarship-exam", Outcome: "success"}}, 1, nil
}

var sampleRecords = []models.RegistrationRecord{
	{ID: "1", FullName: "Asha Verma", EmailAddress: "asha@example.com", CityTown: "Bhopal", HearAboutExam: "POSTER", ReferralCode: "22610003"},
	{ID: "2", FullName: "Rohan Das", EmailAddress: "rohan@example.com", CityTown: "Indore", HearAboutExam: "WHATSAPP"},
	{ID: "3", FullName: "Meera Iyer", EmailAddress: "meera@example.com", CollegeName: "Bhopal Engineering", HearAboutExam: "POSTER"},
}

func newAdminApp(t *testing.T, source RegistrationSource, lister SubmissionLister, archive Archiver) (*fiber.App, string) {
	t.Helper()
	hash, err := utils.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	config.AppConfig = &config.Config{
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "0123456789abcdef-test",
		JWTExpiresIn:      time.Hour,
	}
	ac := NewAdminController(source, lister, archive)
	ac.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }

	app := fiber.New()
	app.Post("/api/admin/login", ac.Login)
	admin := app.Group("/api/admin", middleware.JWTMiddleware(), middleware.RequireRole("admin"))
	admin.Get("/statistics", ac.GetStatistics)
	admin.Get("/registrations", ac.GetRegistrations)
	admin.Get("/registrations/export", ac.ExportRegistrations)
	admin.Get("/referral-codes", ac.GetReferralCodes)
	admin.Get("/referral-codes/validate/:code", ac.ValidateReferralCode)
	admin.Get("/submissions", ac.GetSubmissions)

	token, err := middleware.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatal(err)
	}
	return app, token
}

type response struct {
	Code   int
	Header http.Header
	Body   string
}

func authGet(t *testing.T, app *fiber.App, token, path string) response {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return response{Code: resp.StatusCode, Header: resp.Header, Body: string(raw)}
}

func TestAdminLogin(t *testing.T) {
	app, _ := newAdminApp(t, &fakeSource{}, nil, nil)
	tests := []struct {
		name string
		body LoginRequest
		want int
	}{
		{"ok", LoginRequest{Username: "admin", Password: "s3cret-pass"}, fiber.StatusOK},
		{"wrong password", LoginRequest{Username: "admin", Password: "nope"}, fiber.StatusUnauthorized},
		{"wrong user", LoginRequest{Username: "root", Password: "s3cret-pass"}, fiber.StatusUnauthorized},
		{"missing password", LoginRequest{Username: "admin"}, fiber.StatusBadRequest},
	}
	for _, tc := range tests {
		status, body := doJSON(t, app, "POST", "/api/admin/login", tc.body)
		if status != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, status, tc.want)
		}
		if tc.want == fiber.StatusOK {
			token, _ := body["token"].(string)
			claims, err := middleware.ParseToken(token)
			if err != nil || claims.Username != "admin" || claims.Role != "admin" {
				t.Fatalf("%s: bad token %v %v", tc.name, claims, err)
			}
		}
	}
}

func TestStatisticsFallsBackToLocalCount(t *testing.T) {
	app, token := newAdminApp(t, &fakeSource{records: sampleRecords}, nil, nil)
	rec := authGet(t, app, token, "/api/admin/statistics")
	if rec.Code != fiber.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	want := `{"totalRegistrations":3,"registrationsWithReferralCode":1}`
	if got := strings.TrimSpace(rec.Body); got != want {
		t.Fatalf("body %s, want %s", got, want)
	}
}

func TestStatisticsUpstreamFailure(t *testing.T) {
	app, token := newAdminApp(t, &fakeSource{listErr: errors.New("down")}, nil, nil)
	if rec := authGet(t, app, token, "/api/admin/statistics"); rec.Code != fiber.StatusBadGateway {
		t.Fatalf("status %d, want 502", rec.Code)
	}
}

func TestRegistrationsFilterAndPaginate(t *testing.T) {
	app, token := newAdminApp(t, &fakeSource{records: sampleRecords}, nil, nil)
	tests := []struct {
		path string
		want []string
	}{
		{"/api/admin/registrations", []string{"1", "2", "3"}},
		{"/api/admin/registrations?search=bhopal", []string{"1", "3"}},
		{"/api/admin/registrations?source=poster&has_referral=true", []string{"1"}},
		{"/api/admin/registrations?limit=2&page=2", []string{"3"}},
	}
	for _, tc := range tests {
		_, body := getJSON(t, app, token, tc.path)
		list, _ := body["registrations"].([]any)
		var ids []string
		for _, r := range list {
			ids = append(ids, r.(map[string]any)["id"].(string))
		}
		if diff := cmp.Diff(tc.want, ids); diff != "" {
			t.Fatalf("%s: ids mismatch (-want +got):\n%s", tc.path, diff)
		}
	}
}

func getJSON(t *testing.T, app *fiber.App, token, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestExportDownloadAndArchive(t *testing.T) {
	archiver := &fakeArchiver{}
	app, token := newAdminApp(t, &fakeSource{records: sampleRecords}, nil, archiver)

	rec := authGet(t, app, token, "/api/admin/registrations/export?search=bhopal")
	if rec.Code != fiber.StatusOK {
		t.Fatalf("download status %d", rec.Code)
	}
	if cd := rec.Header.Get(fiber.HeaderContentDisposition); !strings.Contains(cd, "registrations-2024-06-01.xlsx") {
		t.Fatalf("content disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body, "PK") {
		t.Fatalf("expected a zip (xlsx) body")
	}

	status, body := getJSON(t, app, token, "/api/admin/registrations/export?archive=true&search=bhopal")
	if status != fiber.StatusCreated {
		t.Fatalf("archive status %d %v", status, body)
	}
	if archiver.records != 2 || archiver.by != "admin" || body["url"] != "https://bucket/exports/registrations-2024-06-01.xlsx" {
		t.Fatalf("unexpected archive call %+v %v", archiver, body)
	}
}

func TestArchiveNotConfigured(t *testing.T) {
	app, token := newAdminApp(t, &fakeSource{records: sampleRecords}, nil, nil)
	if rec := authGet(t, app, token, "/api/admin/registrations/export?archive=true"); rec.Code != fiber.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
}

func TestReferralEndpoints(t *testing.T) {
	source := &fakeSource{
		codes: []models.ReferralCode{{Code: "22610003", OwnerName: "Kiran", IsActive: true}},
		validate: map[string]models.ReferralValidation{
			"22610003": {Valid: true, OwnerName: "Kiran"},
		},
	}
	app, token := newAdminApp(t, source, nil, nil)

	_, body := getJSON(t, app, token, "/api/admin/referral-codes")
	if codes, _ := body["referral_codes"].([]any); len(codes) != 1 {
		t.Fatalf("unexpected codes %v", body)
	}
	_, body = getJSON(t, app, token, "/api/admin/referral-codes/validate/22610003")
	if body["valid"] != true || body["ownerName"] != "Kiran" {
		t.Fatalf("unexpected validation %v", body)
	}
	_, body = getJSON(t, app, token, "/api/admin/referral-codes/validate/99999999")
	if body["valid"] != false {
		t.Fatalf("unknown code should be invalid, got %v", body)
	}
}

func TestSubmissions(t *testing.T) {
	app, token := newAdminApp(t, &fakeSource{}, nil, nil)
	if rec := authGet(t, app, token, "/api/admin/submissions"); rec.Code != fiber.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503 without audit", rec.Code)
	}

	lister := &fakeLister{}
	app, token = newAdminApp(t, &fakeSource{}, lister, nil)
	status, body := getJSON(t, app, token, "/api/admin/submissions?form=scholarship-exam&outcome=success&limit=10&offset=20")
	if status != fiber.StatusOK || body["total"] != float64(1) {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	want := audit.Query{FormID: "scholarship-exam", Outcome: "success", Limit: 10, Offset: 20}
	if diff := cmp.Diff(want, lister.got); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	app, _ := newAdminApp(t, &fakeSource{}, nil, nil)
	resp, err := app.Test(httptest.NewRequest("GET", "/api/admin/statistics", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}
