package redis

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Stream names for outbound instructions and inbound confirmations
const (
	ProtocolInstructionStream = "vault:instructions:protocol"
	PayoutInstructionStream   = "vault:instructions:payout"
	ConfirmationStream        = "vault:confirmations"
)

// Publish appends one message to a stream and returns its id
func Publish(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
}

// EnsureGroup creates a consumer group reading the stream from the start.
// An existing group is left as it is.
func EnsureGroup(ctx context.Context, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// ReadGroup returns up to count messages for a consumer without blocking.
// Pass ">" for new messages or "0" for the consumer's unacknowledged ones.
func ReadGroup(ctx context.Context, stream, group, consumer, id string, count int64) ([]redis.XMessage, error) {
	res, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, id},
		Count:    count,
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range res {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// Ack acknowledges processed messages
func Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return client.XAck(ctx, stream, group, ids...).Err()
}
