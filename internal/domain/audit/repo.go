package audit

import "context"

// Repository stores audit entries. Implementations only append.
type Repository interface {
	Save(ctx context.Context, entry *LogData) error
	Search(ctx context.Context, criteria SearchCriteria) ([]*LogData, int, error)
}
