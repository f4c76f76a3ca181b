package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"nft-rental-escrow/internal/logger"
)

// AMQPPublisher publishes to a durable topic exchange with the event type as
// routing key.
type AMQPPublisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	return &AMQPPublisher{url: url, exchange: exchange}
}

// channel returns an open channel, redialing after a broker disconnect.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, errors.Wrap(err, "dial broker")
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	logger.ExternalServiceCall("amqp", "Publish", "exchange", p.exchange, "type", string(ev.Type))
	ch, err := p.channel()
	if err == nil {
		err = ch.PublishWithContext(ctx,
			p.exchange,      // exchange
			string(ev.Type), // routing key
			false,           // mandatory
			false,           // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    ev.ID,
				Timestamp:    time.Now().UTC(),
				Body:         body,
			})
	}
	logger.ExternalServiceResult("amqp", "Publish", err, "exchange", p.exchange, "type", string(ev.Type))
	return errors.Wrap(err, "publish event")
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
