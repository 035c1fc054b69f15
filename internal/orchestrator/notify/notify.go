// Package notify delivers pipeline and stage completion events to a
// Slack-compatible incoming webhook. Delivery is best effort: a failed
// or suppressed notification never affects pipeline state.
package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/go-conveyor/conveyor/internal/orchestrator/state"
	"github.com/go-conveyor/conveyor/pkg/log"
	"github.com/go-conveyor/conveyor/pkg/retry"
)

// Conf configures the dispatcher.
type Conf struct {
	WebhookURL string
	Timeout    time.Duration
	// Attempts bounds webhook delivery retries, including the first try.
	Attempts int
}

// SetDefaults fills unset values.
func (c *Conf) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
}

// Dispatcher posts notifications gated by the per-stage and per-pipeline
// policy flags recorded in the snapshot.
type Dispatcher struct {
	conf   Conf
	client *resty.Client
}

// NewDispatcher creates a Dispatcher. An empty webhook URL disables
// delivery; events are still gated and logged.
func NewDispatcher(conf Conf) *Dispatcher {
	conf.SetDefaults()
	return &Dispatcher{
		conf:   conf,
		client: resty.New().SetTimeout(conf.Timeout),
	}
}

// NotifyStage reports one stage reaching success or failed. Stages that
// are still running or were skipped produce nothing.
func (d *Dispatcher) NotifyStage(snap state.Snapshot, stage string) {
	s, ok := snap.Stages[stage]
	if !ok {
		return
	}

	switch s.Status {
	case state.StageSuccess:
		if !s.NotifyOnSuccess {
			return
		}
	case state.StageFailed:
		if !s.NotifyOnFailure {
			return
		}
	default:
		return
	}

	d.post(stageMessage(snap.PipelineID, stage, s), nil)
}

// NotifyPipeline reports a run reaching a terminal status.
func (d *Dispatcher) NotifyPipeline(snap state.Snapshot) {
	switch snap.Status {
	case state.PipelineSuccess:
		if !snap.NotifyOnSuccess {
			return
		}
	case state.PipelineFailed:
		if !snap.NotifyOnFailure {
			return
		}
	default:
		return
	}

	text, blocks := pipelineMessage(snap)
	d.post(text, blocks)
}

// post delivers one payload to the webhook. Failures are logged and
// swallowed after the retry budget runs out.
func (d *Dispatcher) post(text string, blocks []block) {
	if d.conf.WebhookURL == "" {
		log.Debugf("no notification webhook configured, skipping: %s", text)
		return
	}

	payload := webhookPayload{Text: text, Blocks: blocks}
	err := retry.Do(context.Background(), func(ctx context.Context) error {
		return d.send(ctx, payload)
	},
		retry.WithMaxAttempts(d.conf.Attempts),
		retry.WithBackoff(retry.Fixed(time.Second)),
		retry.WithJitter(retry.FullJitter),
	)
	if err != nil {
		log.Errorf("failed to deliver notification: %v", err)
		return
	}
	log.Debugf("notification delivered: %s", text)
}

func (d *Dispatcher) send(ctx context.Context, payload webhookPayload) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(d.conf.WebhookURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return errorsStatus(resp.StatusCode())
	}
	return nil
}
