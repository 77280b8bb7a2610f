package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

// BuildInput turns a resolution into the ExecutionInput recorded for the
// node. Only the redacted snapshot is stored.
func BuildInput(execution *models.Execution, node *models.Node, res *params.Resolution) *models.ExecutionInput {
	values := make(models.JSON, len(res.Snapshot))
	for k, v := range res.Snapshot {
		values[k] = models.CloneValue(v)
	}
	refs := make(models.JSON, len(res.References))
	for k, v := range res.References {
		refs[k] = v
	}

	input := &models.ExecutionInput{
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		NodeName:    node.Name,
		Values:      values,
		References:  refs,
	}
	if len(res.Redacted) > 0 {
		input.Redacted = append(models.StringArray{}, res.Redacted...)
	}
	return input
}

// recordInput persists the input once. A duplicate means the node already ran
// in this execution (a redelivered task) and the first record stands.
func recordInput(ctx context.Context, store repositories.ExecutionInputStore, input *models.ExecutionInput) error {
	err := store.Create(ctx, input)
	if errors.Is(err, repositories.ErrDuplicate) {
		log.Warn().
			Str("execution_id", input.ExecutionID.String()).
			Str("node_id", input.NodeID.String()).
			Msg("Execution input already recorded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record execution input: %w", err)
	}
	return nil
}
