package infrastructure

import (
	"context"

	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/calculus-guy/paymentscore/pkg/mq"
)

const transactionEventsTopic = "payments.transactions"

// KafkaEventPublisher emits terminal transaction events keyed by subject
// so per-subject ordering survives partitioning.
type KafkaEventPublisher struct {
	producer *mq.KafkaProducer
}

func NewKafkaEventPublisher(producer *mq.KafkaProducer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	return p.producer.SendMessage(ctx, transactionEventsTopic, event.SubjectID, event)
}
