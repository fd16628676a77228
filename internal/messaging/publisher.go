package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vertachain/vertad/pkg/errors"
)

// Publisher provides typed publish operations over the vertad topics.
type Publisher struct {
	client  *KafkaClient
	network string
}

// NewPublisher creates a publisher for a consensus network
func NewPublisher(client *KafkaClient, network string) *Publisher {
	return &Publisher{
		client:  client,
		network: network,
	}
}

// PublishTargetUpdate publishes the required target for the next block.
// Messages are keyed by tip hash so replays of the same tip coalesce.
func (p *Publisher) PublishTargetUpdate(ctx context.Context, msg *TargetUpdateMessage) error {
	msg.Network = p.network
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "marshal_target_update",
			"failed to marshal target update message").
			WithContext("height", msg.Height)
	}
	return p.client.PublishJSON(ctx, TopicTargets, msg.TipHash, data)
}

// PublishRetargetEvent publishes a difficulty adjustment event, keyed by
// the boundary height.
func (p *Publisher) PublishRetargetEvent(ctx context.Context, msg *RetargetEventMessage) error {
	msg.Network = p.network
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "marshal_retarget_event",
			"failed to marshal retarget event message").
			WithContext("height", msg.Height)
	}
	return p.client.PublishJSON(ctx, TopicRetargets, fmt.Sprintf("%d", msg.Height), data)
}

// PublishChainTip publishes a newly connected tip. The tip feed goes out
// as a protobuf well-known Struct so non-JSON consumers can decode it
// without a shared schema.
func (p *Publisher) PublishChainTip(ctx context.Context, msg *ChainTipMessage) error {
	pb, err := structpb.NewStruct(map[string]any{
		"network":      p.network,
		"height":       msg.Height,
		"hash":         msg.Hash,
		"prev_hash":    msg.PrevHash,
		"time":         msg.Time,
		"bits":         int64(msg.Bits),
		"difficulty":   msg.Difficulty,
		"connected_at": msg.ConnectedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "build_chain_tip_struct",
			"failed to build chain tip payload").
			WithContext("height", msg.Height)
	}
	return p.client.PublishProto(ctx, TopicChainTips, msg.Hash, pb)
}
