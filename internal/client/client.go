// Package client provides a REST client for the transcription and minutes service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/minutes-go/internal/metrics"
)

// DefaultBaseURL is used when neither an explicit URL nor MINUTES_SERVER_URL is set.
const DefaultBaseURL = "http://localhost:8000"

// Client is a REST client for the minutes service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector

	mu    sync.RWMutex
	token string
}

// New creates a new REST client.
// If baseURL is empty, uses MINUTES_SERVER_URL env var or defaults to localhost:8000.
// Timeout can be configured via MINUTES_CLIENT_TIMEOUT env var (default 10m, uploads are large).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("MINUTES_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("MINUTES_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithMetrics records the duration and outcome of every call in m.
func (c *Client) WithMetrics(m *metrics.Collector) *Client {
	c.metrics = m
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the bearer credential sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// request describes one API call.
type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(op, method, path string, payload any) (request, error) {
	r := request{op: op, method: method, path: path}
	if payload == nil {
		return r, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return r, fmt.Errorf("marshal request: %w", err)
	}
	r.body = bytes.NewReader(data)
	r.contentType = "application/json"
	return r, nil
}

// do sends r and decodes a successful response into out. out may be nil, a
// *[]byte for raw bodies, or any JSON target.
func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordCall(r.op, time.Since(start), err)
	}()

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, body)
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*dst = body
		return nil
	default:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}
}

// =============================================================================
// TYPES
// =============================================================================

// LoginResponse carries the issued credentials. Servers answer with either
// token or access_token.
type LoginResponse struct {
	Token        string `json:"token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// BearerToken returns whichever token field the server filled in.
func (r LoginResponse) BearerToken() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// RegisterInput is the payload for account creation.
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
}

// RegisterResponse confirms account creation.
type RegisterResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// UploadResponse identifies an uploaded audio file.
type UploadResponse struct {
	FileID string `json:"file_id"`
}

// TranscribeInput starts a transcription job.
type TranscribeInput struct {
	FileID     string `json:"file_id"`
	Title      string `json:"title"`
	MaxWorkers int    `json:"max_workers"`
	ModelName  string `json:"model_name"`
	Language   string `json:"language"`
}

// TranscribeResponse identifies a started transcription job.
type TranscribeResponse struct {
	RequestID string `json:"request_id"`
}

// Progress is a job status report. Status is the raw wire value.
type Progress struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// Transcript is a finished transcription.
type Transcript struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// GenerateReportInput starts a report job.
type GenerateReportInput struct {
	TranscriptID string `json:"transcript_id"`
	Prompt       string `json:"prompt"`
	Title        string `json:"title"`
}

// GenerateReportResponse identifies a started report job.
type GenerateReportResponse struct {
	ReportID string `json:"report_id"`
}

// ReportSummary is one entry of the report listing.
type ReportSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Statistics holds service-wide counters.
type Statistics struct {
	TotalUsers       int `json:"total_users"`
	TotalAudioFiles  int `json:"total_audio_files"`
	TotalTranscripts int `json:"total_transcripts"`
	TotalReports     int `json:"total_reports"`
}

// UserActivity describes one account in the user statistics. LastLogin is
// kept as text because the service reports "Never" for accounts that have
// not logged in.
type UserActivity struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	CreatedAt string `json:"created_at"`
	LastLogin string `json:"last_login"`
}

// UserStatistics is the per-period user listing.
type UserStatistics struct {
	UserCount int            `json:"user_count"`
	Users     []UserActivity `json:"users"`
}

// =============================================================================
// SESSION
// =============================================================================

// Login exchanges credentials for a bearer token. On success the token is
// also installed on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	r, err := jsonRequest(metrics.OpLogin, http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var result LoginResponse
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	if result.BearerToken() == "" {
		return nil, fmt.Errorf("login: server returned no token")
	}
	c.SetToken(result.BearerToken())
	return &result, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*RegisterResponse, error) {
	r, err := jsonRequest(metrics.OpRegister, http.MethodPost, "/register", input)
	if err != nil {
		return nil, err
	}
	var result RegisterResponse
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// AUDIO & TRANSCRIPTION
// =============================================================================

// Upload sends an audio file as multipart form field "file".
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	r := request{
		op:          metrics.OpUpload,
		method:      http.MethodPost,
		path:        "/upload",
		body:        &buf,
		contentType: w.FormDataContentType(),
	}
	var result UploadResponse
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	if result.FileID == "" {
		return nil, fmt.Errorf("upload: server returned no file id")
	}
	return &result, nil
}

// Transcribe starts a transcription job for an uploaded file.
func (c *Client) Transcribe(ctx context.Context, input TranscribeInput) (*TranscribeResponse, error) {
	r, err := jsonRequest(metrics.OpTranscribe, http.MethodPost, "/transcribe", input)
	if err != nil {
		return nil, err
	}
	var result TranscribeResponse
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	if result.RequestID == "" {
		return nil, fmt.Errorf("transcribe: server returned no request id")
	}
	return &result, nil
}

// TranscriptionProgress returns the status of a transcription job.
func (c *Client) TranscriptionProgress(ctx context.Context, id string) (*Progress, error) {
	var result Progress
	r := request{op: metrics.OpTranscriptionStatus, method: http.MethodGet, path: "/progress/" + url.PathEscape(id)}
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

// GetTranscript returns the text of a finished transcription.
func (c *Client) GetTranscript(ctx context.Context, id string) (*Transcript, error) {
	var result Transcript
	r := request{op: metrics.OpTranscript, method: http.MethodGet, path: "/transcripts/" + url.PathEscape(id)}
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		result.ID = id
	}
	return &result, nil
}

// UpdateTranscript replaces the text of a transcript.
func (c *Client) UpdateTranscript(ctx context.Context, id, text string) error {
	r, err := jsonRequest(metrics.OpUpdateTranscript, http.MethodPut, "/transcripts/"+url.PathEscape(id), map[string]string{"text": text})
	if err != nil {
		return err
	}
	return c.do(ctx, r, nil)
}

// DeleteTranscript removes a transcript on the server.
func (c *Client) DeleteTranscript(ctx context.Context, id string) error {
	r := request{op: metrics.OpDeleteTranscript, method: http.MethodDelete, path: "/transcripts/" + url.PathEscape(id)}
	return c.do(ctx, r, nil)
}

// =============================================================================
// REPORTS
// =============================================================================

// GenerateReport starts a report job from a transcript and a prompt.
func (c *Client) GenerateReport(ctx context.Context, input GenerateReportInput) (*GenerateReportResponse, error) {
	r, err := jsonRequest(metrics.OpGenerateReport, http.MethodPost, "/generate-report", input)
	if err != nil {
		return nil, err
	}
	var result GenerateReportResponse
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	if result.ReportID == "" {
		return nil, fmt.Errorf("generate report: server returned no report id")
	}
	return &result, nil
}

// ReportProgress returns the status of a report job.
func (c *Client) ReportProgress(ctx context.Context, id string) (*Progress, error) {
	var result Progress
	r := request{op: metrics.OpReportStatus, method: http.MethodGet, path: "/reports/" + url.PathEscape(id) + "/progress"}
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReport downloads the rendered report document.
func (c *Client) GetReport(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	r := request{op: metrics.OpReport, method: http.MethodGet, path: "/reports/" + url.PathEscape(id)}
	if err := c.do(ctx, r, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// ListReports returns the reports the server knows about. Both a bare array
// and an object with a "reports" field are accepted.
func (c *Client) ListReports(ctx context.Context) ([]ReportSummary, error) {
	var raw []byte
	r := request{op: metrics.OpListReports, method: http.MethodGet, path: "/reports"}
	if err := c.do(ctx, r, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []ReportSummary
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("unmarshal reports: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Reports []ReportSummary `json:"reports"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unmarshal reports: %w", err)
	}
	return wrapped.Reports, nil
}

// DeleteReport removes a report on the server.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete report: empty id")
	}
	r := request{op: metrics.OpDeleteReport, method: http.MethodDelete, path: "/reports/" + url.PathEscape(id)}
	return c.do(ctx, r, nil)
}

// =============================================================================
// STATISTICS
// =============================================================================

// Statistics returns the service-wide overview counters.
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var result Statistics
	r := request{op: metrics.OpStatistics, method: http.MethodGet, path: "/statistics"}
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UserStatistics returns user activity for period ("all", "week" or "month").
func (c *Client) UserStatistics(ctx context.Context, period string) (*UserStatistics, error) {
	if period == "" {
		period = "all"
	}
	var result UserStatistics
	r := request{op: metrics.OpUserStatistics, method: http.MethodGet, path: "/statistics/users/" + url.PathEscape(period)}
	if err := c.do(ctx, r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
