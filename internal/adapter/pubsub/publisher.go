package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/wangfenghuan/draw-backend/infra/pubsub"
)

type PublisherProvider struct {
	provider *infrapubsub.Provider
}

func NewPublisherProvider(p *infrapubsub.Provider) *PublisherProvider {
	return &PublisherProvider{provider: p}
}

func (pp *PublisherProvider) Build(exchange string) (message.Publisher, error) {
	return pp.provider.BuildPublisher(exchange)
}
