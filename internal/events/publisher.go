package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const publishBatchSize = 100

// Publisher drains undispatched events to NATS. Events stay in the table as
// the durable audit log whether or not a broker is attached; the publisher is
// only started when one is configured.
type Publisher struct {
	db            *Database
	conn          *nats.Conn
	subjectPrefix string
	pollInterval  time.Duration
}

func NewPublisher(gormDB *gorm.DB, conn *nats.Conn, subjectPrefix string) *Publisher {
	return &Publisher{
		db:            NewDatabase(gormDB),
		conn:          conn,
		subjectPrefix: subjectPrefix,
		pollInterval:  2 * time.Second,
	}
}

// Start begins the publishing loop
func (p *Publisher) Start(ctx context.Context) {
	logger := log.With().Str("component", "event_publisher").Logger()
	logger.Info().Str("subject_prefix", p.subjectPrefix).Msg("starting event publisher")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down event publisher")
			return
		case <-ticker.C:
			if err := p.publishPending(); err != nil {
				logger.Error().Err(err).Msg("failed to publish pending events")
			}
		}
	}
}

func (p *Publisher) publishPending() error {
	logger := log.With().Str("component", "event_publisher").Logger()

	batch, err := p.db.GetUndispatched(publishBatchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	published := 0
	for _, event := range batch {
		subject := fmt.Sprintf("%s.%s", p.subjectPrefix, event.Type)
		if err := p.conn.Publish(subject, event.Payload); err != nil {
			logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Str("subject", subject).
				Msg("failed to publish event, will retry")
			continue
		}

		if err := p.db.MarkDispatched(event.ID); err != nil {
			logger.Error().
				Err(err).
				Str("event_id", event.EventID).
				Msg("published but failed to mark dispatched, may re-send")
			continue
		}
		published++
	}

	if published > 0 {
		logger.Info().
			Int("published", published).
			Int("attempted", len(batch)).
			Msg("published audit events")
	}

	return nil
}
