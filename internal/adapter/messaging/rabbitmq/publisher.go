package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/core/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RoutingKeyPosted is the routing key of applied posting groups.
const RoutingKeyPosted = "ledger.posted"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher implements ports.EventPublisher on a topic exchange.
type Publisher struct {
	channel  Channel
	exchange string
	log      zerolog.Logger
}

// NewPublisher creates a publisher over an open channel.
func NewPublisher(ch Channel, exchange string, log zerolog.Logger) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, log: log}
}

// postedEvent is the message body of ledger.posted.
type postedEvent struct {
	Key          string           `json:"key"`
	Kind         string           `json:"kind"`
	SourceRef    string           `json:"source_ref"`
	PostedAt     time.Time        `json:"posted_at"`
	Transactions []postedTxnEvent `json:"transactions"`
}

type postedTxnEvent struct {
	ID        string `json:"id"`
	WalletID  string `json:"wallet_id"`
	CompanyID int64  `json:"company_id"`
	Amount    string `json:"amount"`
	Type      string `json:"type"`
}

// PublishPosted announces an applied posting group.
func (p *Publisher) PublishPosted(ctx context.Context, result *domain.PostingResult) error {
	event := postedEvent{
		Key:          result.Key,
		Kind:         result.Kind,
		SourceRef:    result.SourceRef,
		PostedAt:     result.PostedAt,
		Transactions: make([]postedTxnEvent, 0, len(result.Transactions)),
	}
	for _, t := range result.Transactions {
		event.Transactions = append(event.Transactions, postedTxnEvent{
			ID:        t.ID.String(),
			WalletID:  t.WalletID.String(),
			CompanyID: t.CompanyID,
			Amount:    t.Amount.String(),
			Type:      string(t.Type),
		})
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal posted event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKeyPosted,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    result.Key,
			Timestamp:    result.PostedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish posted event: %w", err)
	}

	p.log.Debug().Str("routing_key", RoutingKeyPosted).Str("key", result.Key).Msg("posting event published")
	return nil
}

// Connect dials the broker, declares the durable topic exchange and returns a
// publisher plus a close function. It returns nil publisher and a no-op close
// when RabbitMQ is disabled.
func Connect(cfg config.RabbitMQConfig, log zerolog.Logger) (*Publisher, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Properties: amqp.Table{"connection_name": "wallet-ledger"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("opening rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declaring exchange %s: %w", cfg.Exchange, err)
	}

	log.Info().Str("exchange", cfg.Exchange).Msg("RabbitMQ publisher ready")

	closeFn := func() {
		_ = ch.Close()
		_ = conn.Close()
	}
	return NewPublisher(ch, cfg.Exchange, log), closeFn, nil
}
