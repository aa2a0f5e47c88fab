package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads and updates schedule_jobs rows. The engine never creates or
// migrates the table; an external admin application owns the schema.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Nullable config columns are coalesced to their zero values so the model
// carries plain ints and bools; Job's accessor methods apply the defaults.
const jobColumns = `id, name, COALESCE(enabled, false), COALESCE(schedule_type, ''),
	run_at, times_of_day, time_of_day, days_of_week, timezone, cron_expr,
	COALESCE(channel, ''), http_url, http_method, http_headers_json,
	content_type, payload, mqtt_topic, COALESCE(qos, 0), COALESCE(retained, false),
	email_to, COALESCE(timeout_sec, 0), COALESCE(max_retries, 0),
	COALESCE(retry_backoff_sec, 0), next_run_at, last_run_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.Name, &j.Enabled, &j.ScheduleType,
		&j.RunAt, &j.TimesOfDay, &j.TimeOfDay, &j.DaysOfWeek, &j.Timezone, &j.CronExpr,
		&j.Channel, &j.HTTPURL, &j.HTTPMethod, &j.HTTPHeadersJSON,
		&j.ContentType, &j.Payload, &j.MQTTTopic, &j.QoS, &j.Retained,
		&j.EmailTo, &j.TimeoutSec, &j.MaxRetries,
		&j.RetryBackoffSec, &j.NextRunAt, &j.LastRunAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// FetchDue returns enabled jobs whose next_run_at has arrived, oldest first.
func (s *Store) FetchDue(ctx context.Context, batch int) ([]Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM schedule_jobs
		 WHERE enabled = true AND next_run_at IS NOT NULL AND next_run_at <= NOW()
		 ORDER BY next_run_at
		 LIMIT $1`,
		batch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *j)
	}
	return result, rows.Err()
}

// FetchByID returns one job, or nil, nil when the row does not exist.
func (s *Store) FetchByID(ctx context.Context, id int64) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM schedule_jobs WHERE id = $1`, id,
	)
	j, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// MarkSuccess records a completed dispatch: last_run_at moves to now and
// next_run_at takes the resolved value. A nil nextRunAt always disables the
// row (spent one-shots and recurring jobs with no further occurrence both
// pause as enabled=false); the admin application re-enables after an edit.
func (s *Store) MarkSuccess(ctx context.Context, id int64, nextRunAt *time.Time, disable bool) error {
	if nextRunAt == nil {
		disable = true
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE schedule_jobs SET
			last_run_at = NOW(),
			next_run_at = $2,
			enabled = (enabled AND NOT $3)
		WHERE id = $1`,
		id, nextRunAt, disable,
	)
	return err
}

// ScheduleRetry records a failed attempt and points next_run_at at
// NOW()+backoff. The instant is computed by the database so it lands in the
// same session-zone frame that FetchDue compares against.
func (s *Store) ScheduleRetry(ctx context.Context, id int64, backoff time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE schedule_jobs SET
			last_run_at = NOW(),
			next_run_at = NOW() + $2::interval
		WHERE id = $1`,
		id, intervalSec(backoff),
	)
	return err
}

// intervalSec formats a duration as a Postgres interval string; Duration's
// own "2m0s" form is not parseable by Postgres.
func intervalSec(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}
