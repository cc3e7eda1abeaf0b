package livefeed

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/common/messaging"
)

// Forwarder republishes envelopes from a subscription onto a message bus so
// observers outside this process can tail the feed.
type Forwarder struct {
	publisher messaging.Publisher
	prefix    string
	logger    *logging.Logger
}

func NewForwarder(publisher messaging.Publisher, subjectPrefix string, logger *logging.Logger) *Forwarder {
	return &Forwarder{
		publisher: publisher,
		prefix:    subjectPrefix,
		logger:    logging.OrDefault(logger),
	}
}

// Run forwards envelopes until ctx is cancelled or sub is closed. The
// subscription is closed on return.
func (f *Forwarder) Run(ctx context.Context, sub *Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if err := f.Forward(ctx, env); err != nil {
				f.logger.Warn("Failed to forward live feed envelope",
					logging.Topic(env.Topic),
					logging.Offset(env.Offset),
					logging.Error(err),
				)
			}
		}
	}
}

// Forward publishes a single envelope.
func (f *Forwarder) Forward(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return f.publisher.PublishMsg(ctx, &messaging.Message{
		Subject: messaging.LiveFeedSubject(f.prefix, env.RoutingType()),
		Data:    data,
		Metadata: map[string]string{
			messaging.HeaderSourceID:  env.SourceID,
			messaging.HeaderDataType:  env.DataType,
			messaging.HeaderTopic:     env.Topic,
			messaging.HeaderPartition: strconv.Itoa(env.Partition),
			messaging.HeaderOffset:    strconv.FormatInt(env.Offset, 10),
		},
		Timestamp: env.Timestamp,
	})
}
