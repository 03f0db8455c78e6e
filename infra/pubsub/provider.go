// Package pubsub builds watermill AMQP publishers and subscribers bound to
// topic exchanges on the platform broker.
package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/wangfenghuan/draw-backend/config"
)

type Provider struct {
	uri    string
	logger watermill.LoggerAdapter
}

func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) *Provider {
	return &Provider{uri: cfg.AMQP.URI, logger: logger}
}

// BuildPublisher returns a publisher bound to a durable topic exchange; the
// watermill topic becomes the AMQP routing key.
func (p *Provider) BuildPublisher(exchange string) (message.Publisher, error) {
	cfg := amqp.NewDurablePubSubConfig(p.uri, nil)
	cfg.Exchange.GenerateName = func(topic string) string { return exchange }
	cfg.Exchange.Type = "topic"
	cfg.Exchange.Durable = true
	cfg.Publish.GenerateRoutingKey = func(topic string) string { return topic }

	pub, err := amqp.NewPublisher(cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build publisher for %s: %w", exchange, err)
	}
	return pub, nil
}

// BuildSubscriber returns a subscriber consuming from a durable queue bound
// to the exchange with the given routing key pattern.
func (p *Provider) BuildSubscriber(queue, exchange, routingKey string) (message.Subscriber, error) {
	cfg := amqp.NewDurablePubSubConfig(p.uri, amqp.GenerateQueueNameConstant(queue))
	cfg.Exchange.GenerateName = func(topic string) string { return exchange }
	cfg.Exchange.Type = "topic"
	cfg.Exchange.Durable = true
	cfg.QueueBind.GenerateRoutingKey = func(topic string) string { return routingKey }

	sub, err := amqp.NewSubscriber(cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build subscriber %s on %s: %w", queue, exchange, err)
	}
	return sub, nil
}
