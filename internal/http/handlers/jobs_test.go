package handlers_test

import (
	stdzip "archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/imissapixel/ai-media-gen/internal/http/handlers"
	"github.com/imissapixel/ai-media-gen/internal/jobs"
)

func authedRequest(app *handlers.App, method, target string, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(authCookie(app))
	return req
}

func waitTerminal(t *testing.T, app *handlers.App, id string) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := app.Queue.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Terminal() {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobAPIRequiresAuth(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "Authentication required" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestJobSubmitAndResult(t *testing.T) {
	app, router := newTestRouter(t)

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer webhook.Close()

	payload := `{"type":"video","webhook_url":"` + webhook.URL + `","payload":{"prompt":"sunset"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(app, http.MethodPost, "/api/jobs", payload))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	var submitted jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.ID == "" || submitted.Status != jobs.StatusPending {
		t.Fatalf("unexpected record: %+v", submitted)
	}

	final := waitTerminal(t, app, submitted.ID)
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("job did not complete: %+v", final)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(app, http.MethodGet, "/api/jobs/"+submitted.ID+"/result", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("result status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Fatalf("result content type = %q", ct)
	}
	if rec.Body.String() != "mp4-bytes" {
		t.Fatalf("result body = %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(app, http.MethodGet, "/api/jobs", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listing struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Jobs) != 1 || listing.Jobs[0].ID != submitted.ID {
		t.Fatalf("unexpected listing: %+v", listing.Jobs)
	}
}

func TestJobSubmitValidation(t *testing.T) {
	app, router := newTestRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"unknown type", `{"type":"audio","webhook_url":"https://example.com"}`},
		{"bad url", `{"type":"video","webhook_url":"not a url"}`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(app, http.MethodPost, "/api/jobs", tc.body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestJobGetUnknown(t *testing.T) {
	app, router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(app, http.MethodGet, "/api/jobs/nope", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "Job not found" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestJobResultUnavailableForFailed(t *testing.T) {
	app, router := newTestRouter(t)

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer webhook.Close()

	job, err := app.Queue.Submit(context.Background(), jobs.Submission{
		Type:       jobs.TypeVideo,
		WebhookURL: webhook.URL,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, app, job.ID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(app, http.MethodGet, "/api/jobs/"+job.ID+"/result", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestJobArchiveContainsCompletedResults(t *testing.T) {
	app, router := newTestRouter(t)

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer webhook.Close()

	job, err := app.Queue.Submit(context.Background(), jobs.Submission{
		Type:       jobs.TypeImage,
		WebhookURL: webhook.URL,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, app, job.ID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(app, http.MethodGet, "/api/jobs/archive", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("archive content type = %q", ct)
	}

	zr, err := stdzip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("archive holds %d entries, want 1", len(zr.File))
	}
	if !strings.HasPrefix(zr.File[0].Name, job.ID) {
		t.Fatalf("entry name %q not keyed by job id", zr.File[0].Name)
	}
}

func TestJobResumeEndpoint(t *testing.T) {
	app, router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(app, http.MethodPost, "/api/jobs/resume", ""))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["resumed"] != float64(0) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestJobEventsOutliveServerWriteTimeout(t *testing.T) {
	app, router := newTestRouter(t)

	server := httptest.NewUnstartedServer(router)
	server.Config.WriteTimeout = 250 * time.Millisecond
	server.Start()
	defer server.Close()

	// Finishes well after the server's write timeout has elapsed.
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(600 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer webhook.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/jobs/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.AddCookie(authCookie(app))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	job, err := app.Queue.Submit(context.Background(), jobs.Submission{
		Type:       jobs.TypeImage,
		WebhookURL: webhook.URL,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	deadline := time.AfterFunc(5*time.Second, func() { resp.Body.Close() })
	defer deadline.Stop()
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var update jobs.Update
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		if update.JobID != job.ID || update.Status != jobs.StatusCompleted {
			t.Fatalf("unexpected event: %+v", update)
		}
		return
	}
	t.Fatal("stream died before the write timeout elapsed")
}

func TestJobEventsStream(t *testing.T) {
	app, router := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer webhook.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/jobs/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.AddCookie(authCookie(app))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("stream content type = %q", ct)
	}

	job, err := app.Queue.Submit(context.Background(), jobs.Submission{
		Type:       jobs.TypeImage,
		WebhookURL: webhook.URL,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	deadline := time.AfterFunc(5*time.Second, func() { resp.Body.Close() })
	defer deadline.Stop()
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var update jobs.Update
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		if update.JobID != job.ID || update.Status != jobs.StatusCompleted {
			t.Fatalf("unexpected event: %+v", update)
		}
		return
	}
	t.Fatal("stream closed before an event arrived")
}
