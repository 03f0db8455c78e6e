package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/wangfenghuan/draw-backend/infra/pubsub"
)

type SubscriberProvider struct {
	provider *infrapubsub.Provider
}

func NewSubscriberProvider(p *infrapubsub.Provider) *SubscriberProvider {
	return &SubscriberProvider{provider: p}
}

func (sp *SubscriberProvider) Build(queue, exchange, routingKey string) (message.Subscriber, error) {
	return sp.provider.BuildSubscriber(queue, exchange, routingKey)
}
