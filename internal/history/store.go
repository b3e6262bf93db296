package history

import "context"

// Store defines persistence operations for one or more evolutionary
// runs' history, keyed by an opaque run identifier the caller assigns
// (e.g. a UUID minted at the start of a driver invocation).
type Store interface {
	Init(ctx context.Context) error

	AppendGeneration(ctx context.Context, runID string, record GenerationRecord) error
	GenerationHistory(ctx context.Context, runID string) ([]GenerationRecord, bool, error)

	SaveTopEntities(ctx context.Context, runID string, top []TopEntityRecord) error
	TopEntities(ctx context.Context, runID string) ([]TopEntityRecord, bool, error)

	SaveRunSummary(ctx context.Context, summary RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (RunSummary, bool, error)
}
