package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrQueueFull = errors.New("notification queue is full")

type Options struct {
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	return o
}

// Dispatcher queues mail and delivers it from background workers. Callers of
// Send never see delivery errors; they are logged here.
type Dispatcher struct {
	queue  Queue
	mailer Mailer
	opts   Options
}

func NewDispatcher(queue Queue, mailer Mailer, opts Options) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		mailer: mailer,
		opts:   opts.withDefaults(),
	}
}

func (d *Dispatcher) Send(ctx context.Context, to, subject, body string) {
	if to == "" {
		log.Warn().Str("subject", subject).Msg("notify: message without recipient dropped")
		return
	}

	id, err := uuid.NewV4()
	if err != nil {
		log.Error().Err(err).Msg("notify: failed to generate message id")
		return
	}

	msg := Message{ID: id.String(), To: to, Subject: subject, Body: body}
	if err := d.queue.Push(context.WithoutCancel(ctx), msg, 0); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Str("subject", subject).Msg("notify: failed to queue message")
		return
	}

	log.Debug().Str("message_id", msg.ID).Str("subject", subject).Msg("notify: message queued")
}

// Run starts the workers and blocks until ctx is done and every worker has
// finished its current delivery.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	log.Info().Int("workers", d.opts.Workers).Msg("notify: dispatcher started")

	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			d.work(ctx, workerID)
		}(i + 1)
	}

	wg.Wait()
	log.Info().Msg("notify: dispatcher stopped")
	return nil
}

func (d *Dispatcher) work(ctx context.Context, workerID int) {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything that is due before sleeping again.
		for ctx.Err() == nil {
			msg, err := d.queue.Pop(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Int("worker_id", workerID).Msg("notify: failed to read queue")
				}
				break
			}
			if msg == nil {
				break
			}
			d.deliver(ctx, workerID, *msg)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, workerID int, msg Message) {
	msg.Attempt++

	err := d.mailer.Deliver(ctx, msg.To, msg.Subject, msg.Body)
	if err == nil {
		log.Info().Str("message_id", msg.ID).Str("subject", msg.Subject).Int("attempt", msg.Attempt).Msg("notify: message delivered")
		return
	}

	if errors.Is(err, ErrInvalidAddress) {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("notify: undeliverable message dropped")
		return
	}

	if msg.Attempt >= d.opts.MaxAttempts {
		log.Error().Err(err).Str("message_id", msg.ID).Int("attempt", msg.Attempt).Msg("notify: giving up on message")
		return
	}

	delay := d.opts.RetryBackoff << (msg.Attempt - 1)
	log.Warn().Err(err).Str("message_id", msg.ID).Int("worker_id", workerID).Int("attempt", msg.Attempt).Dur("retry_in", delay).Msg("notify: delivery failed, rescheduling")

	if err := d.queue.Push(context.WithoutCancel(ctx), msg, delay); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("notify: failed to reschedule message")
	}
}
