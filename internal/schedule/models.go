package schedule

import (
	"context"
	"strings"
	"time"
)

// ScheduleType discriminates how a job recurs.
type ScheduleType string

const (
	TypeOnce   ScheduleType = "ONCE"
	TypeDaily  ScheduleType = "DAILY"
	TypeWeekly ScheduleType = "WEEKLY"
	TypeCron   ScheduleType = "CRON"
)

// Channel discriminates how a job's message leaves the engine.
type Channel string

const (
	ChannelHTTP  Channel = "HTTP"
	ChannelMQTT  Channel = "MQTT"
	ChannelEmail Channel = "EMAIL"
)

// Job is one row of schedule_jobs as the engine sees it. Naive datetime
// columns (run_at, next_run_at, last_run_at) carry wall-clock values in the
// store's session time zone; pgx surfaces them as UTC-tagged times whose
// components are the literal stored wall clock.
type Job struct {
	ID              int64
	Name            string
	Enabled         bool
	ScheduleType    string
	RunAt           *time.Time
	TimesOfDay      *string // csv of HH:MM[:SS]
	TimeOfDay       *string // legacy single time
	DaysOfWeek      *string // csv of weekday tokens
	Timezone        *string
	CronExpr        *string
	Channel         string
	HTTPURL         *string
	HTTPMethod      *string
	HTTPHeadersJSON *string
	ContentType     *string
	Payload         *string
	MQTTTopic       *string
	QoS             int
	Retained        bool
	EmailTo         *string
	TimeoutSec      int
	MaxRetries      int
	RetryBackoffSec int
	NextRunAt       *time.Time
	LastRunAt       *time.Time
}

// Type returns the normalized schedule type.
func (j *Job) Type() ScheduleType {
	return ScheduleType(strings.ToUpper(strings.TrimSpace(j.ScheduleType)))
}

// ChannelType returns the normalized dispatch channel.
func (j *Job) ChannelType() Channel {
	return Channel(strings.ToUpper(strings.TrimSpace(j.Channel)))
}

// Method returns the HTTP method, defaulting to POST.
func (j *Job) Method() string {
	m := strings.ToUpper(strings.TrimSpace(deref(j.HTTPMethod)))
	if m == "" {
		return "POST"
	}
	return m
}

// ContentTypeOrDefault returns the body media type, defaulting to text/plain.
func (j *Job) ContentTypeOrDefault() string {
	ct := strings.TrimSpace(deref(j.ContentType))
	if ct == "" {
		return "text/plain"
	}
	return ct
}

// Timeout returns the per-dispatch timeout, defaulting to 10s.
func (j *Job) Timeout() time.Duration {
	if j.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(j.TimeoutSec) * time.Second
}

// Backoff returns the retry delay, defaulting to 60s.
func (j *Job) Backoff() time.Duration {
	if j.RetryBackoffSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(j.RetryBackoffSec) * time.Second
}

// PayloadString returns the message body, empty when NULL.
func (j *Job) PayloadString() string { return deref(j.Payload) }

// Target describes the dispatch destination for log lines.
func (j *Job) Target() string {
	switch j.ChannelType() {
	case ChannelMQTT:
		return "topic=" + deref(j.MQTTTopic)
	case ChannelEmail:
		return "to=" + deref(j.EmailTo)
	default:
		return "url=" + deref(j.HTTPURL)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SendResult is the outcome of one dispatch attempt. Code is the HTTP status
// or broker return code when one exists.
type SendResult struct {
	OK     bool
	Code   *int
	Detail string
}

// Sender delivers a job's message over its channel.
type Sender interface {
	Send(ctx context.Context, job *Job) SendResult
}

// JobStore is the persistence surface the poll loop drives. *Store satisfies
// this; tests substitute fakes.
type JobStore interface {
	FetchDue(ctx context.Context, batch int) ([]Job, error)
	FetchByID(ctx context.Context, id int64) (*Job, error)
	MarkSuccess(ctx context.Context, id int64, nextRunAt *time.Time, disable bool) error
	ScheduleRetry(ctx context.Context, id int64, backoff time.Duration) error
}
