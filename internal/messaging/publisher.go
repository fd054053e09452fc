// Package messaging publishes domain events to Kafka.
package messaging

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tifstore/topup-orders/internal/domain/notification"
)

// Writer is the subset of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a kafka writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
	}
}

// Publisher emits notifications as JSON messages keyed by user id, so all
// notifications of one user land on the same partition.
type Publisher struct {
	w          Writer
	topic      string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

var _ notification.Repository = (*Publisher)(nil)

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// NewPublisher wraps w.
func NewPublisher(w Writer, topic string, opts PublisherOptions) *Publisher {
	if opts.TracerProvider == nil {
		opts.TracerProvider = noop.NewTracerProvider()
	}
	if opts.Propagator == nil {
		opts.Propagator = otel.GetTextMapPropagator()
	}
	return &Publisher{
		w:          w,
		topic:      topic,
		tracer:     opts.TracerProvider.Tracer("topup/messaging"),
		propagator: opts.Propagator,
	}
}

// Create implements notification.Repository. Consumers deduplicate on the
// notification id carried in the payload.
func (p *Publisher) Create(ctx context.Context, n *notification.Notification) error {
	msg := kafka.Message{
		Key:   []byte(n.UserID),
		Value: EncodeNotification(n),
		Headers: []kafka.Header{
			{Key: "notification-id", Value: []byte(n.ID)},
		},
	}

	ctx, span := p.tracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(n.UserID),
		),
	)
	defer span.End()

	p.propagator.Inject(ctx, headerCarrier{msg: &msg})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// EncodeNotification renders n as the JSON message payload.
func EncodeNotification(n *notification.Notification) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(n.ID)
	e.FieldStart("userId")
	e.Str(n.UserID)
	e.FieldStart("type")
	e.Str(string(n.Type))
	e.FieldStart("title")
	e.Str(n.Title)
	e.FieldStart("message")
	e.Str(n.Message)
	e.FieldStart("isRead")
	e.Bool(n.IsRead)
	e.FieldStart("data")
	e.ObjStart()
	for k, v := range n.Data {
		e.FieldStart(k)
		e.Str(v)
	}
	e.ObjEnd()
	e.FieldStart("createdAt")
	e.Str(n.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}
