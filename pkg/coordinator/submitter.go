package coordinator

import (
	"context"

	"github.com/lightprotocol/forester/pkg/chainclient"
	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// chainSubmitter adapts chainclient.Client to pipeline.Submitter, binding
// it to the one tree this Coordinator drives. Stage 3 never needs to know
// which tree it is submitting for.
type chainSubmitter struct {
	client chainclient.Client
	tree   treetypes.TreeID
}

func (s *chainSubmitter) SubmitBatch(ctx context.Context, group []preparation.PreparedBatch) error {
	_, err := s.client.SubmitBatch(ctx, s.tree, group)
	return err
}
