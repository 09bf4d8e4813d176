package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// Module provides InMemoryJobRepository as the repository.JobRepository, together
// with the no-op transaction manager whose commit applies the repository's deferred writes.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewInMemoryJobRepository,
			fx.As(new(repository.JobRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			tx.NewNoopTransactionManager,
			fx.As(new(tx.TransactionManager)),
			fx.ResultTags(`name:"metadata"`),
		),
	),
)
