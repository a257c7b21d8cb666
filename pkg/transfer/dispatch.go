package transfer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Batch is the outcome of one dispatch. Results holds the legs that completed,
// in submission order.
type Batch struct {
	ID      uuid.UUID
	Results []Result
}

// Dispatch starts the legs one after another. Zero-amount legs are skipped and
// the first failure stops the batch; legs already included stay included.
func Dispatch(ctx context.Context, legs ...*Transfer) (Batch, error) {
	batch := Batch{ID: uuid.New()}
	logger := log.With().Str("operation", batch.ID.String()).Logger()

	for _, leg := range legs {
		if leg == nil || leg.amount.Sign() == 0 {
			continue
		}
		logger.Debug().Str("wallet", leg.Wallet()).Str("kind", leg.Kind().String()).Msg("starting leg")
		result, err := leg.Start(ctx)
		if err != nil {
			logger.Error().Err(err).Str("wallet", leg.Wallet()).Int("completed", len(batch.Results)).Msg("leg failed")
			return batch, err
		}
		batch.Results = append(batch.Results, result)
	}
	logger.Info().Int("legs", len(batch.Results)).Msg("dispatch complete")
	return batch, nil
}
