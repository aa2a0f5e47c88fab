package sender

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/smartcare/schedd/internal/schedule"
)

// HTTPConfig holds transport-wide HTTP settings; per-request behavior
// (method, headers, timeout) comes from the job row.
type HTTPConfig struct {
	UserAgent string
	VerifyTLS bool
}

// HTTPSender posts job payloads to HTTP endpoints.
type HTTPSender struct {
	client *http.Client
	cfg    HTTPConfig
	logger *slog.Logger
}

// NewHTTP creates the HTTP transport. Timeouts are applied per request from
// each job's timeout_sec, so the client itself carries none.
func NewHTTP(cfg HTTPConfig, logger *slog.Logger) *HTTPSender {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "JJ-Scheduler/3.0"
	}
	return &HTTPSender{
		client: &http.Client{Transport: transport},
		cfg:    cfg,
		logger: logger,
	}
}

// Send performs one HTTP request. Any 2xx status is success; the first 500
// characters of the response body (or the transport error) become the detail.
func (h *HTTPSender) Send(ctx context.Context, job *schedule.Job) schedule.SendResult {
	url := strings.TrimSpace(deref(job.HTTPURL))
	if url == "" {
		return schedule.SendResult{Detail: "Missing http_url"}
	}

	ctx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	method := job.Method()
	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		payload := job.PayloadString()
		ct := job.ContentTypeOrDefault()
		// A declared JSON body that does not parse is still sent verbatim;
		// the receiver decides whether to reject it.
		if strings.Contains(strings.ToLower(ct), "json") && payload != "" && !json.Valid([]byte(payload)) {
			h.logger.Warn("payload declared as JSON is not valid JSON, sending raw",
				"job_id", job.ID, "name", job.Name)
		}
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return schedule.SendResult{Detail: truncateDetail(err.Error())}
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", job.ContentTypeOrDefault())
	}
	for k, v := range parseHeaders(deref(job.HTTPHeadersJSON), h.logger, job.ID) {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return schedule.SendResult{Detail: truncateDetail(err.Error())}
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	code := resp.StatusCode
	return schedule.SendResult{
		OK:     code >= 200 && code < 300,
		Code:   &code,
		Detail: truncateDetail(string(respBytes)),
	}
}

// parseHeaders decodes the per-job header map. Malformed JSON yields no
// headers rather than a failed dispatch.
func parseHeaders(raw string, logger *slog.Logger, jobID int64) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		logger.Warn("http_headers_json is not a string map, ignoring", "job_id", jobID, "error", err)
		return nil
	}
	return headers
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
