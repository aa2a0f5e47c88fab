// Package sender delivers scheduled messages over their configured channel.
package sender

import (
	"context"
	"fmt"

	"github.com/smartcare/schedd/internal/schedule"
)

// detailLimit caps the detail string recorded for a dispatch outcome.
const detailLimit = 500

// Multi routes a job to the transport matching its channel.
type Multi struct {
	http  schedule.Sender
	mqtt  schedule.Sender
	email schedule.Sender
}

// NewMulti builds the channel router. A nil transport marks its channel as
// unavailable; jobs routed to it fail without a send attempt.
func NewMulti(http, mqtt, email schedule.Sender) *Multi {
	return &Multi{http: http, mqtt: mqtt, email: email}
}

// Send dispatches over the job's channel. Unknown channels fail cleanly so
// the job enters its normal retry path.
func (m *Multi) Send(ctx context.Context, job *schedule.Job) schedule.SendResult {
	var s schedule.Sender
	switch job.ChannelType() {
	case schedule.ChannelHTTP:
		s = m.http
	case schedule.ChannelMQTT:
		s = m.mqtt
	case schedule.ChannelEmail:
		s = m.email
	default:
		return schedule.SendResult{Detail: fmt.Sprintf("Unsupported channel: %s", job.Channel)}
	}
	if s == nil {
		return schedule.SendResult{Detail: fmt.Sprintf("Channel not configured: %s", job.ChannelType())}
	}
	return s.Send(ctx, job)
}

func truncateDetail(s string) string {
	if len(s) <= detailLimit {
		return s
	}
	return s[:detailLimit]
}
