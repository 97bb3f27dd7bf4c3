package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
)

// Connection-level failures clear up once the client reconnects.
var reconnectable = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

func classifyPublishError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	for _, target := range reconnectable {
		if errors.Is(err, target) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	// Bad subjects and oversized payloads will fail the same way again.
	return resilience.ErrorClassification{RecordFailure: true}
}
