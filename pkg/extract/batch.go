package extract

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// EntityInput is one item of a batch entity extraction.
type EntityInput struct {
	Text    string
	Context common.ExtractionContext
}

// ExtractEntitiesBatch runs extractor over all inputs with at most parallel
// extractions in flight. Results keep the input order. An item that panics,
// or that was not started because ctx was cancelled, yields an empty
// degraded result without affecting the other items.
func ExtractEntitiesBatch(
	ctx context.Context,
	extractor EntityExtractor,
	inputs []EntityInput,
	parallel int,
) []EntityResult {
	if parallel <= 0 {
		parallel = 1
	}

	results := make([]EntityResult, len(inputs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for i, in := range inputs {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				results[i] = EntityResult{Degraded: true}
				return nil
			default:
				results[i] = extractSafely(gCtx, extractor, in)
				return nil
			}
		})
	}

	// goroutines never return an error
	_ = g.Wait()
	return results
}

func extractSafely(ctx context.Context, extractor EntityExtractor, in EntityInput) (res EntityResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Extract] Entity extraction panicked", "document", in.Context.DocumentID, "err", fmt.Sprint(r))
			res = EntityResult{Degraded: true}
		}
	}()
	return extractor.Extract(ctx, in.Text, in.Context)
}
