package changefeed

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const topicPrefix = "notifications.changed."

// GoChannelBus delivers change signals inside one process.
type GoChannelBus struct {
	pubSub *gochannel.GoChannel
}

func NewGoChannelBus(logger watermill.LoggerAdapter) *GoChannelBus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &GoChannelBus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{}, logger),
	}
}

func (b *GoChannelBus) Publish(ctx context.Context, recipientID string) error {
	msg := message.NewMessage(watermill.NewUUID(), nil)
	msg.SetContext(ctx)
	if err := b.pubSub.Publish(topicPrefix+recipientID, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrBusClosed, err)
	}
	return nil
}

func (b *GoChannelBus) Subscribe(ctx context.Context, recipientID string) (<-chan struct{}, error) {
	messages, err := b.pubSub.Subscribe(ctx, topicPrefix+recipientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusClosed, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		// gochannel closes messages on ctx cancellation and on Close.
		for msg := range messages {
			msg.Ack()
			signal(out)
		}
	}()
	return out, nil
}

func (b *GoChannelBus) Close() error {
	return b.pubSub.Close()
}
