package sql

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// JobRepositoryParams defines the dependencies of the SQL job repository.
type JobRepositoryParams struct {
	fx.In
	DBResolver database.DBConnectionResolver
	Cfg        *config.Config
}

// NewJobRepository creates the SQLJobRepository on the connection named by
// surfin.infrastructure.job_repository.db_ref.
func NewJobRepository(p JobRepositoryParams) *SQLJobRepository {
	return NewSQLJobRepository(p.DBResolver, p.Cfg.Surfin.Infrastructure.JobRepository.DBRef)
}

// NewMetadataTxManager creates the transaction manager of the metadata connection.
// Chunk transactions run on it so that a chunk's checkpoint commits with its write.
func NewMetadataTxManager(p JobRepositoryParams) *gormadapter.GormTransactionManager {
	return gormadapter.NewGormTransactionManager(p.DBResolver, p.Cfg.Surfin.Infrastructure.JobRepository.DBRef)
}

// migrateMetadata applies the metadata migrations before any job can run.
func migrateMetadata(p JobRepositoryParams) error {
	dbRef := p.Cfg.Surfin.Infrastructure.JobRepository.DBRef
	ctx := context.Background()
	conn, err := p.DBResolver.ResolveDBConnection(ctx, dbRef)
	if err != nil {
		return fmt.Errorf("failed to resolve job repository connection '%s': %w", dbRef, err)
	}
	if err := Migrate(ctx, conn); err != nil {
		return fmt.Errorf("failed to migrate job repository schema on '%s': %w", dbRef, err)
	}
	logger.Infof("Job repository schema on '%s' (%s) is up to date.", dbRef, conn.Type())
	return nil
}

// Module provides SQLJobRepository as the repository.JobRepository and the
// `name:"metadata"` transaction manager, and migrates the schema at startup.
var Module = fx.Options(
	fx.Provide(NewJobRepository),
	fx.Provide(fx.Annotate(
		func(r *SQLJobRepository) *SQLJobRepository { return r },
		fx.As(new(repository.JobRepository)),
	)),
	fx.Provide(fx.Annotate(
		NewMetadataTxManager,
		fx.As(new(tx.TransactionManager)),
		fx.ResultTags(`name:"metadata"`),
	)),
	fx.Invoke(migrateMetadata),
)
