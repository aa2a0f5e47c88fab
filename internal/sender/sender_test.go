package sender

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcare/schedd/internal/schedule"
	"github.com/smartcare/schedd/internal/testutil"
)

func strptr(s string) *string { return &s }

func httpJob(url string) *schedule.Job {
	return &schedule.Job{
		ID:      1,
		Name:    "test-job",
		Channel: "HTTP",
		HTTPURL: &url,
	}
}

func TestHTTPSendSuccess(t *testing.T) {
	var gotMethod, gotUA, gotCT, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"status":"accepted"}`)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{UserAgent: "JJ-Scheduler/3.0", VerifyTLS: true}, testutil.DiscardLogger())
	job := httpJob(srv.URL)
	job.ContentType = strptr("application/json")
	job.Payload = strptr(`{"cmd":"reboot"}`)

	res := h.Send(context.Background(), job)
	require.True(t, res.OK)
	require.NotNil(t, res.Code)
	assert.Equal(t, 200, *res.Code)
	assert.Equal(t, `{"status":"accepted"}`, res.Detail)
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "JJ-Scheduler/3.0", gotUA)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, `{"cmd":"reboot"}`, gotBody)
}

func TestHTTPSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "backend exploded")
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	res := h.Send(context.Background(), httpJob(srv.URL))
	require.False(t, res.OK)
	require.NotNil(t, res.Code)
	assert.Equal(t, 500, *res.Code)
	assert.Equal(t, "backend exploded", res.Detail)
}

func TestHTTPDetailTruncatedTo500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 1000))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	res := h.Send(context.Background(), httpJob(srv.URL))
	require.True(t, res.OK)
	assert.Len(t, res.Detail, 500)
}

func TestHTTPMissingURL(t *testing.T) {
	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	res := h.Send(context.Background(), &schedule.Job{Channel: "HTTP"})
	require.False(t, res.OK)
	assert.Nil(t, res.Code)
	assert.Equal(t, "Missing http_url", res.Detail)
}

func TestHTTPGetSendsNoBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	job := httpJob(srv.URL)
	job.HTTPMethod = strptr("get")
	job.Payload = strptr("ignored for GET")

	res := h.Send(context.Background(), job)
	require.True(t, res.OK)
	assert.Empty(t, gotBody)
}

func TestHTTPCustomHeaders(t *testing.T) {
	var gotAuth, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotExtra = r.Header.Get("X-Device-Id")
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	job := httpJob(srv.URL)
	job.HTTPHeadersJSON = strptr(`{"Authorization":"Bearer tok","X-Device-Id":"dev-7"}`)

	res := h.Send(context.Background(), job)
	require.True(t, res.OK)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "dev-7", gotExtra)
}

func TestHTTPMalformedHeadersIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	job := httpJob(srv.URL)
	job.HTTPHeadersJSON = strptr(`["not","a","map"]`)

	res := h.Send(context.Background(), job)
	require.True(t, res.OK)
}

func TestHTTPInvalidJSONPayloadSentRaw(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	job := httpJob(srv.URL)
	job.ContentType = strptr("application/json")
	job.Payload = strptr("not actually json")

	res := h.Send(context.Background(), job)
	require.True(t, res.OK)
	assert.Equal(t, "not actually json", gotBody)
}

func TestHTTPConnectionRefused(t *testing.T) {
	h := NewHTTP(HTTPConfig{}, testutil.DiscardLogger())
	job := httpJob("http://127.0.0.1:1/hook")
	job.TimeoutSec = 1

	res := h.Send(context.Background(), job)
	require.False(t, res.OK)
	assert.Nil(t, res.Code)
	assert.NotEmpty(t, res.Detail)
}

func TestMultiUnsupportedChannel(t *testing.T) {
	m := NewMulti(NewHTTP(HTTPConfig{}, testutil.DiscardLogger()), nil, nil)
	res := m.Send(context.Background(), &schedule.Job{Channel: "PIGEON"})
	require.False(t, res.OK)
	assert.Equal(t, "Unsupported channel: PIGEON", res.Detail)
}

func TestMultiChannelNotConfigured(t *testing.T) {
	m := NewMulti(NewHTTP(HTTPConfig{}, testutil.DiscardLogger()), nil, nil)
	res := m.Send(context.Background(), &schedule.Job{Channel: "mqtt"})
	require.False(t, res.OK)
	assert.Equal(t, "Channel not configured: MQTT", res.Detail)
}

func TestMultiRoutesByChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	m := NewMulti(NewHTTP(HTTPConfig{}, testutil.DiscardLogger()), nil, nil)
	res := m.Send(context.Background(), httpJob(srv.URL))
	require.True(t, res.OK)
}

func TestEmailMissingRecipient(t *testing.T) {
	e := NewEmail(EmailConfig{Host: "smtp.example.com", From: "sched@example.com"}, testutil.DiscardLogger())
	res := e.Send(context.Background(), &schedule.Job{Channel: "EMAIL"})
	require.False(t, res.OK)
	assert.Equal(t, "Missing email_to", res.Detail)
}

func TestEmailInvalidFromAddress(t *testing.T) {
	e := NewEmail(EmailConfig{Host: "smtp.example.com", From: "not-an-address"}, testutil.DiscardLogger())
	job := &schedule.Job{Channel: "EMAIL", EmailTo: strptr("ops@example.com")}
	res := e.Send(context.Background(), job)
	require.False(t, res.OK)
	assert.Contains(t, res.Detail, "invalid from address")
}

func TestSplitRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, splitRecipients(" a@x.io ,, b@x.io "))
	assert.Nil(t, splitRecipients("  "))
}
