package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/soko-labs/soko-checkout/internal/observability"
)

// Producer writes checkout events asynchronously through a buffered inbox.
// Delivery is fire-and-forget; failures are logged, never surfaced to the
// checkout path.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     observability.Logger
}

func NewProducer(brokers []string, topic string, buf int, log observability.Logger) *Producer {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log.With(observability.F("component", "kafka_producer")),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				// Flush whatever is already queued before exiting.
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						_ = p.w.Close()
						return
					}
				}
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Warn("kafka_write_failed",
			observability.F("topic", p.w.Topic),
			observability.F("error", err.Error()),
		)
	}
}

// Publish enqueues a message keyed for per-order ordering. It drops the
// message when the inbox is full rather than blocking a checkout.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	msg := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- msg:
	default:
		p.log.Warn("kafka_inbox_full", observability.F("topic", p.w.Topic))
	}
}

// WaitClosed blocks until the dispatch goroutine has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
