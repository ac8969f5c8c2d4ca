package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dental/clinic/internal/config"
	"github.com/dental/clinic/internal/domain/scheduling"
	"github.com/dental/clinic/internal/platform/metrics"
	"github.com/dental/clinic/internal/platform/websocket"
)

const exportedRecords = `[
  {"_id": "a1", "doctorId": "11111111-1111-1111-1111-111111111111", "doctorName": "Dr. Rao",
   "date": "2025-06-20", "status": "Approved", "isActive": true,
   "timeSlots": [{"start": "11:00", "end": "12:00", "maxOccupancy": 2}, {"start": "09:00", "end": "10:00", "maxOccupancy": 2}]},
  {"_id": "a2", "doctorId": "22222222-2222-2222-2222-222222222222", "doctorName": "Dr. Avni",
   "date": "2025-06-20", "status": "Pending", "isActive": true,
   "timeSlots": [{"start": "14:00", "end": "15:00", "maxOccupancy": 1}]},
  {"_id": "a3", "doctorId": "22222222-2222-2222-2222-222222222222", "doctorName": "Dr. Avni",
   "date": "2025-06-21", "status": "Approved", "isActive": true,
   "timeSlots": [{"start": "08:00", "end": "09:00", "maxPatientsPerSlot": 3}]},
  {"doctorName": "Nobody", "date": "2025-06-20"}
]`

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "availability": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s subcommand", name)
		}
	}
}

func TestWriteAvailability_Calendar(t *testing.T) {
	var buf bytes.Buffer
	if err := writeAvailability(&buf, []byte(exportedRecords), "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report availabilityReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("invalid output: %v", err)
	}
	if len(report.Calendar) != 2 {
		t.Fatalf("expected 2 calendar days, got %d", len(report.Calendar))
	}
	if report.Calendar[0].Date != "2025-06-20" || report.Calendar[0].Doctors != 1 || report.Calendar[0].Slots != 2 {
		t.Errorf("unexpected first day %+v", report.Calendar[0])
	}
	if len(report.Rejected) != 1 || report.Rejected[0].Index != 3 {
		t.Errorf("expected record 3 rejected, got %+v", report.Rejected)
	}
}

func TestWriteAvailability_Date(t *testing.T) {
	var buf bytes.Buffer
	err := writeAvailability(&buf, []byte(exportedRecords), "2025-06-20", "22222222-2222-2222-2222-222222222222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report availabilityReport
	json.Unmarshal(buf.Bytes(), &report)
	if len(report.Doctors) != 1 || report.Doctors[0].Name != "Dr. Rao" {
		t.Errorf("expected only Dr. Rao bookable, got %+v", report.Doctors)
	}
	if len(report.Slots) != 0 {
		t.Errorf("expected no bookable slots for Dr. Avni, got %v", report.Slots)
	}
	if len(report.Records) != 1 || report.Records[0].Status != scheduling.StatusPending {
		t.Errorf("expected Dr. Avni's pending record in search, got %+v", report.Records)
	}
}

func TestWriteAvailability_Errors(t *testing.T) {
	var buf bytes.Buffer
	if err := writeAvailability(&buf, []byte(`{"not":"an array"}`), "", ""); err == nil {
		t.Error("expected error for non-array input")
	}
	if err := writeAvailability(&buf, []byte(exportedRecords), "20/06/2025", ""); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestAvailabilityCmd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte(exportedRecords), 0o600); err != nil {
		t.Fatal(err)
	}
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"availability", "--file", path, "--date", "2025-06-21"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report availabilityReport
	json.Unmarshal(out.Bytes(), &report)
	if len(report.Slots) != 1 || report.Slots[0] != "08:00 - 09:00" {
		t.Errorf("unexpected slots %v", report.Slots)
	}

	root = rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"availability"})
	if err := root.Execute(); err == nil {
		t.Error("expected error without --file")
	}
}

func newTestServer(t *testing.T, env string) *httptestServer {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)

	reg := prometheus.NewRegistry()
	m := metrics.NewScheduleMetrics(reg)
	logger := zerolog.Nop()
	hub := websocket.NewHub(logger)
	svc := scheduling.NewService(scheduling.NewRepoPG(mock), hub, m, logger)
	sessions := scheduling.NewSessionManager(scheduling.NewMemorySessionStore(time.Hour), svc, m, logger)

	cfg := &config.Config{
		Env:            env,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   50,
		RateLimitBurst: 100,
		AuthSigningKey: "test-secret",
	}
	e := newServer(serverDeps{
		cfg:      cfg,
		logger:   logger,
		handler:  scheduling.NewHandler(svc, sessions, time.UTC),
		hub:      hub,
		gatherer: reg,
	})
	return &httptestServer{t: t, serve: e.ServeHTTP}
}

type httptestServer struct {
	t     *testing.T
	serve func(http.ResponseWriter, *http.Request)
}

func (s *httptestServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.serve(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, "production")
	rec := srv.get("/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if code := srv.get("/metrics").Code; code != http.StatusOK {
		t.Errorf("expected metrics 200, got %d", code)
	}
}

func TestServer_APIRequiresTokenOutsideDevelopment(t *testing.T) {
	srv := newTestServer(t, "production")
	if code := srv.get("/api/v1/schedules/not-a-uuid").Code; code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}

func TestServer_DevelopmentAuth(t *testing.T) {
	srv := newTestServer(t, "development")
	rec := srv.get("/api/v1/schedules/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("expected rate limit headers on API routes")
	}
}
