package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/metrics"
	"yield-vault.backend/pkg/logger"
	"yield-vault.backend/pkg/redis"
)

type instructionOutbox interface {
	ListPendingProtocolInstructions(ctx context.Context, limit int) ([]*entities.ProtocolInstruction, error)
	MarkProtocolInstructionsDispatched(ctx context.Context, ids []uuid.UUID) error
	ListPendingPayoutInstructions(ctx context.Context, limit int) ([]*entities.PayoutInstruction, error)
	MarkPayoutInstructionsDispatched(ctx context.Context, ids []uuid.UUID) error
}

// PublishFunc appends a message to a stream
type PublishFunc func(ctx context.Context, stream string, values map[string]interface{}) (string, error)

// InstructionRelayJob publishes pending outbox rows to redis streams.
// Rows are marked dispatched only after a successful publish, so a crash
// in between re-sends them and consumers must dedupe on the instruction id.
type InstructionRelayJob struct {
	runner
	outbox    instructionOutbox
	publish   PublishFunc
	batchSize int
}

func NewInstructionRelayJob(outbox instructionOutbox, interval time.Duration, batchSize int, m *metrics.EngineMetrics) *InstructionRelayJob {
	return &InstructionRelayJob{
		runner:    newRunner("instruction_relay", interval, m),
		outbox:    outbox,
		publish:   redis.Publish,
		batchSize: batchSize,
	}
}

// WithPublisher swaps the stream publisher
func (j *InstructionRelayJob) WithPublisher(p PublishFunc) *InstructionRelayJob {
	j.publish = p
	return j
}

func (j *InstructionRelayJob) Start(ctx context.Context) {
	j.loop(ctx, j.relay)
}

func (j *InstructionRelayJob) relay(ctx context.Context) error {
	return multierr.Append(j.relayProtocol(ctx), j.relayPayouts(ctx))
}

func (j *InstructionRelayJob) relayProtocol(ctx context.Context) error {
	pending, err := j.outbox.ListPendingProtocolInstructions(ctx, j.batchSize)
	if err != nil || len(pending) == 0 {
		return err
	}
	var errs error
	sent := make([]uuid.UUID, 0, len(pending))
	for _, in := range pending {
		if err := j.send(ctx, redis.ProtocolInstructionStream, in.ID, string(in.Direction), in); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sent = append(sent, in.ID)
	}
	if len(sent) > 0 {
		errs = multierr.Append(errs, j.outbox.MarkProtocolInstructionsDispatched(ctx, sent))
		logger.Info(ctx, "Relayed protocol instructions", zap.Int("count", len(sent)))
	}
	return errs
}

func (j *InstructionRelayJob) relayPayouts(ctx context.Context) error {
	pending, err := j.outbox.ListPendingPayoutInstructions(ctx, j.batchSize)
	if err != nil || len(pending) == 0 {
		return err
	}
	var errs error
	sent := make([]uuid.UUID, 0, len(pending))
	for _, p := range pending {
		if err := j.send(ctx, redis.PayoutInstructionStream, p.ID, "payout", p); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sent = append(sent, p.ID)
	}
	if len(sent) > 0 {
		errs = multierr.Append(errs, j.outbox.MarkPayoutInstructionsDispatched(ctx, sent))
		logger.Info(ctx, "Relayed payout instructions", zap.Int("count", len(sent)))
	}
	return errs
}

func (j *InstructionRelayJob) send(ctx context.Context, stream string, id uuid.UUID, kind string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = j.publish(ctx, stream, map[string]interface{}{
		"id":      id.String(),
		"kind":    kind,
		"payload": string(payload),
	})
	return err
}
