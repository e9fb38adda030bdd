package cluster

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/aliasmig/internal/models"
)

// FetchLiveState reads settings, mappings and document count of one index
// concurrently.
func FetchLiveState(ctx context.Context, client ClientInterface, index string) (*models.LiveIndexState, error) {
	state := &models.LiveIndexState{Index: index}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		settings, err := client.GetSettings(gctx, index)
		if err != nil {
			return fmt.Errorf("get settings of %s: %w", index, err)
		}
		state.Settings = settings
		return nil
	})
	g.Go(func() error {
		mappings, err := client.GetMappings(gctx, index)
		if err != nil {
			return fmt.Errorf("get mappings of %s: %w", index, err)
		}
		state.Mappings = mappings
		return nil
	})
	g.Go(func() error {
		count, err := client.GetDocCount(gctx, index)
		if err != nil {
			return fmt.Errorf("count documents in %s: %w", index, err)
		}
		state.DocCount = count
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state, nil
}
