package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
)

const workerQueueGroup = "index-workers"

// IndexRequest is the message body published for asynchronous indexing.
type IndexRequest struct {
	ID         string    `json:"id"`
	Locator    string    `json:"locator"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

// New connects to url; zero Options fields take the defaults below.
func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("rag-chatbot"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIndexRequest(ctx context.Context, locator string) error {
	payload, err := encodeIndexRequest(locator, time.Now().UTC())
	if err != nil {
		return err
	}

	return q.executor.Call(ctx, "nats", resilience.OpPublish, func(context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyPublishError)
}

// SubscribeIndexRequests delivers each request to handler through a queue
// group, so several workers share the load. It blocks until ctx is done and
// then drains the subscription.
func (q *Queue) SubscribeIndexRequests(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		req, err := decodeIndexRequest(msg.Data)
		if err != nil {
			slog.Error("index_request_decode_failed", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(context.WithValue(ctx, requestKey{}, req))
		defer cancel()
		if err := handler(handlerCtx, req.Locator); err != nil {
			slog.Error("index_request_failed", "request_id", req.ID, "locator", req.Locator, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type requestKey struct{}

// RequestFromContext returns the queued request a subscription handler is
// currently processing.
func RequestFromContext(ctx context.Context) (IndexRequest, bool) {
	req, ok := ctx.Value(requestKey{}).(IndexRequest)
	return req, ok
}

func encodeIndexRequest(locator string, now time.Time) ([]byte, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, errors.New("index request: empty locator")
	}
	payload, err := json.Marshal(IndexRequest{ID: uuid.NewString(), Locator: locator, EnqueuedAt: now})
	if err != nil {
		return nil, fmt.Errorf("marshal index request: %w", err)
	}
	return payload, nil
}

// decodeIndexRequest also accepts a bare locator string.
func decodeIndexRequest(data []byte) (IndexRequest, error) {
	var req IndexRequest
	if err := json.Unmarshal(data, &req); err != nil {
		raw := strings.TrimSpace(string(data))
		if raw == "" || strings.HasPrefix(raw, "{") {
			return IndexRequest{}, fmt.Errorf("unmarshal index request: %w", err)
		}
		return IndexRequest{Locator: raw}, nil
	}
	if strings.TrimSpace(req.Locator) == "" {
		return IndexRequest{}, errors.New("index request: empty locator")
	}
	return req, nil
}
