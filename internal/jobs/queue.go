package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imissapixel/ai-media-gen/internal/infra"
	"github.com/imissapixel/ai-media-gen/internal/storage"
)

const (
	maxErrorBody = 1 << 20

	// statusWriteTimeout bounds terminal status writes independently of the
	// webhook deadline, so a dispatch that consumed its whole budget can
	// still record its outcome.
	statusWriteTimeout = 10 * time.Second
)

// ImageAttachment carries an uploaded reference image as raw bytes so the
// multipart part can be rebuilt at dispatch time.
type ImageAttachment struct {
	FileName string
	MIME     string
	Data     []byte
}

// Submission describes a job handed off by the foreground.
type Submission struct {
	ID         string
	Type       Type
	WebhookURL string
	Payload    json.RawMessage
	FormFields map[string]string
	Headers    map[string]string
	Image      *ImageAttachment
}

// Options configures the queue.
type Options struct {
	Repo           *Repo
	Store          *storage.FileStore
	Logger         infra.Logger
	HTTPClient     *http.Client
	WebhookTimeout time.Duration
}

// Queue persists job records and processes them in the background: one
// outbound webhook call per job, a guarded terminal status write, and a
// best-effort push to active foreground consumers. Processing is not
// cancellable mid-flight; a dispatched call runs to completion or network
// failure.
type Queue struct {
	repo     *Repo
	store    *storage.FileStore
	notifier *Notifier
	client   *http.Client
	logger   infra.Logger
	timeout  time.Duration
}

// NewQueue constructs a queue with sane defaults and injected dependencies.
func NewQueue(opts Options) (*Queue, error) {
	if opts.Repo == nil {
		return nil, errors.New("jobs: repo is required")
	}
	if opts.Store == nil {
		return nil, errors.New("jobs: store is required")
	}
	timeout := opts.WebhookTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Queue{
		repo:     opts.Repo,
		store:    opts.Store,
		notifier: NewNotifier(),
		client:   client,
		logger:   opts.Logger,
		timeout:  timeout,
	}, nil
}

// Notifier exposes the update registry for foreground consumers.
func (q *Queue) Notifier() *Notifier {
	return q.notifier
}

// Submit accepts or assigns an id, persists the record as pending and begins
// processing immediately in a background goroutine.
func (q *Queue) Submit(ctx context.Context, sub Submission) (*Job, error) {
	if !sub.Type.Valid() {
		return nil, fmt.Errorf("jobs: unsupported job type %q", sub.Type)
	}
	parsed, err := url.Parse(sub.WebhookURL)
	if err != nil || parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("jobs: invalid webhook url %q", sub.WebhookURL)
	}

	id := strings.TrimSpace(sub.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	job := &Job{
		ID:         id,
		Type:       sub.Type,
		Status:     StatusPending,
		WebhookURL: sub.WebhookURL,
		Payload:    sub.Payload,
		FormFields: encodeStringMap(sub.FormFields),
		Headers:    encodeStringMap(sub.Headers),
		CreatedAt:  now,
		StartedAt:  now,
	}
	if sub.Image != nil {
		job.ImageName = sub.Image.FileName
		job.ImageMIME = sub.Image.MIME
		job.ImageData = sub.Image.Data
	}
	if err := q.repo.Create(ctx, job); err != nil {
		return nil, err
	}
	q.logger.Info().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("queue: job submitted")

	go q.process(job)
	return job, nil
}

// Resume re-dispatches every job still pending. Invoked on a recovery signal
// so jobs interrupted by a foreground disconnect or restart complete. A job
// racing a direct submit may be dispatched twice; the guarded terminal write
// keeps exactly one outcome.
func (q *Queue) Resume(ctx context.Context) (int, error) {
	pending, err := q.repo.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for i := range pending {
		job := pending[i]
		go q.process(&job)
	}
	if len(pending) > 0 {
		q.logger.Info().Int("count", len(pending)).Msg("queue: resuming pending jobs")
	}
	return len(pending), nil
}

// Active returns pending and completed jobs for polling consumers.
func (q *Queue) Active(ctx context.Context) ([]Job, error) {
	return q.repo.Active(ctx)
}

// Get returns a single record, including failed ones.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.repo.Get(ctx, id)
}

// process performs one webhook dispatch and persists the terminal outcome
// exactly once. It runs detached from any request context. Only the outbound
// call runs under the webhook deadline; the terminal write happens on a
// fresh context, so a timed-out dispatch still ends as a recorded failure
// instead of a stuck pending record.
func (q *Queue) process(job *Job) {
	dispatchCtx, cancelDispatch := context.WithTimeout(context.Background(), q.timeout)
	defer cancelDispatch()

	data, mediaType, err := q.dispatch(dispatchCtx, job)
	if err != nil {
		q.fail(job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	key, err := q.store.Write(ctx, resultKey(job.ID, mediaType), data)
	if err != nil {
		q.fail(job, fmt.Errorf("persist result: %w", err))
		return
	}

	if err := q.repo.MarkCompleted(ctx, job.ID, key, mediaType, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrAlreadyFinal) {
			q.logger.Debug().Str("job_id", job.ID).Msg("queue: job finalized by concurrent processor")
			return
		}
		q.logger.Error().Err(err).Str("job_id", job.ID).Msg("queue: completed status write failed")
		return
	}
	q.logger.Info().Str("job_id", job.ID).Str("result_key", key).Msg("queue: job completed")
	q.notifier.Publish(Update{JobID: job.ID, Status: StatusCompleted})
}

func (q *Queue) fail(job *Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	if err := q.repo.MarkFailed(ctx, job.ID, cause.Error(), time.Now().UTC()); err != nil {
		if !errors.Is(err, ErrAlreadyFinal) {
			q.logger.Error().Err(err).Str("job_id", job.ID).Msg("queue: failed status write failed")
		}
		return
	}
	q.logger.Warn().Str("job_id", job.ID).Str("error", cause.Error()).Msg("queue: job failed")
	q.notifier.Publish(Update{JobID: job.ID, Status: StatusFailed, Error: cause.Error()})
}

// dispatch sends the outbound request for the job's type and returns the
// result blob with its declared content type.
func (q *Queue) dispatch(ctx context.Context, job *Job) ([]byte, string, error) {
	var body io.Reader
	contentType := ""

	switch job.Type {
	case TypeVideo:
		payload := job.Payload
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case TypeImage:
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		for key, value := range job.FieldMap() {
			if err := mw.WriteField(key, value); err != nil {
				return nil, "", fmt.Errorf("encode form field %q: %w", key, err)
			}
		}
		if len(job.ImageData) > 0 {
			header := textproto.MIMEHeader{}
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, job.ImageName))
			mime := job.ImageMIME
			if mime == "" {
				mime = "application/octet-stream"
			}
			header.Set("Content-Type", mime)
			part, err := mw.CreatePart(header)
			if err != nil {
				return nil, "", fmt.Errorf("encode image part: %w", err)
			}
			if _, err := part.Write(job.ImageData); err != nil {
				return nil, "", fmt.Errorf("encode image part: %w", err)
			}
		}
		if err := mw.Close(); err != nil {
			return nil, "", fmt.Errorf("encode multipart body: %w", err)
		}
		body = buf
		contentType = mw.FormDataContentType()
	default:
		return nil, "", fmt.Errorf("unsupported job type %q", job.Type)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.WebhookURL, body)
	if err != nil {
		return nil, "", fmt.Errorf("build webhook request: %w", err)
	}
	for key, value := range job.HeaderMap() {
		req.Header.Set(key, value)
	}
	// Stored headers win for JSON dispatch; the multipart content type must
	// always be ours because it carries the generated boundary.
	if job.Type == TypeImage || req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, "", errors.New(detail.Message)
		}
		return nil, "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read webhook response: %w", err)
	}
	mediaType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mediaType, job.Type.MediaPrefix()) {
		return nil, "", fmt.Errorf("expected %s data, but received type: %s", job.Type.MediaPrefix(), mediaType)
	}
	return data, mediaType, nil
}

func encodeStringMap(m map[string]string) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}

func resultKey(jobID, mediaType string) string {
	name := "result"
	if strings.HasPrefix(mediaType, "video/") {
		name = "video"
	} else if strings.HasPrefix(mediaType, "image/") {
		name = "image"
	}
	return fmt.Sprintf("results/%s/%s%s", jobID, name, extensionForMIME(mediaType))
}

func extensionForMIME(mediaType string) string {
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
