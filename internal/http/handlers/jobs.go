package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/imissapixel/ai-media-gen/internal/jobs"
	"github.com/imissapixel/ai-media-gen/pkg/zip"
)

type submitJobRequest struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	WebhookURL string            `json:"webhook_url"`
	Payload    json.RawMessage   `json:"payload"`
	FormFields map[string]string `json:"form_fields"`
	Headers    map[string]string `json:"headers"`
	Image      *jobImageDTO      `json:"image"`
}

type jobImageDTO struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// JobsSubmit queues one generation job and returns the persisted record. The
// 202 means accepted for processing, not processed; outcomes arrive through
// the event stream or polling.
func (a *App) JobsSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub := jobs.Submission{
		ID:         req.ID,
		Type:       jobs.Type(req.Type),
		WebhookURL: req.WebhookURL,
		Payload:    req.Payload,
		FormFields: req.FormFields,
		Headers:    req.Headers,
	}
	if !sub.Type.Valid() {
		a.fail(w, http.StatusBadRequest, fmt.Sprintf("Unsupported job type: %s", req.Type))
		return
	}
	if req.Image != nil {
		sub.Image = &jobs.ImageAttachment{
			FileName: req.Image.FileName,
			MIME:     req.Image.ContentType,
			Data:     req.Image.Data,
		}
	}

	job, err := a.Queue.Submit(r.Context(), sub)
	if err != nil {
		a.Logger.Error().Err(err).Msg("job submit rejected")
		a.fail(w, http.StatusBadRequest, "Could not queue job")
		return
	}
	a.json(w, http.StatusAccepted, job)
}

// JobsActive lists jobs still pending plus completed ones. Failed jobs never
// appear here; their outcome is pushed at failure time.
func (a *App) JobsActive(w http.ResponseWriter, r *http.Request) {
	list, err := a.Queue.Active(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("list active jobs failed")
		a.fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": list})
}

// JobsGet returns one record by id, including failed ones.
func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.Queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.jobError(w, err)
		return
	}
	a.json(w, http.StatusOK, job)
}

// JobsResult streams the stored media blob of a completed job.
func (a *App) JobsResult(w http.ResponseWriter, r *http.Request) {
	job, err := a.Queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.jobError(w, err)
		return
	}
	if job.Status != jobs.StatusCompleted || job.ResultKey == "" {
		a.fail(w, http.StatusNotFound, "Result not available")
		return
	}
	data, err := a.Store.Read(r.Context(), job.ResultKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("read result blob failed")
		a.fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	contentType := job.ResultMIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// JobsArchive bundles every completed result into one zip download.
func (a *App) JobsArchive(w http.ResponseWriter, r *http.Request) {
	list, err := a.Queue.Active(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("list jobs for archive failed")
		a.fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var entries []zip.Entry
	for _, job := range list {
		if job.Status != jobs.StatusCompleted || job.ResultKey == "" {
			continue
		}
		data, err := a.Store.Read(r.Context(), job.ResultKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("skipping unreadable result")
			continue
		}
		entries = append(entries, zip.Entry{
			Name: fmt.Sprintf("%s-%s", job.ID, path.Base(job.ResultKey)),
			Data: data,
		})
	}

	archive, err := zip.Archive(entries)
	if err != nil {
		a.Logger.Error().Err(err).Msg("build archive failed")
		a.fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="results.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// JobsResume re-dispatches every record still pending. Idempotent: a job that
// races a direct submit still reaches exactly one terminal state.
func (a *App) JobsResume(w http.ResponseWriter, r *http.Request) {
	count, err := a.Queue.Resume(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("resume sweep failed")
		a.fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"success": true,
		"resumed": count,
	})
}

// JobsEvents streams job status updates as server-sent events until the
// client disconnects.
func (a *App) JobsEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.fail(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	id, updates := a.Queue.Notifier().Subscribe()
	defer a.Queue.Notifier().Unsubscribe(id)

	// The stream must outlive the server's write timeout: failed jobs are
	// pushed exactly once, and a job may run for the full webhook budget.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		a.Logger.Debug().Err(err).Msg("could not clear write deadline for event stream")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (a *App) jobError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		a.fail(w, http.StatusNotFound, "Job not found")
		return
	}
	a.Logger.Error().Err(err).Msg("job lookup failed")
	a.fail(w, http.StatusInternalServerError, "Internal server error")
}
