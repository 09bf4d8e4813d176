package item_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itemcomp "github.com/tigerroll/chunkbatch/pkg/batch/component/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"
)

type exportRow struct {
	N int64 `parquet:"name=n, type=INT64"`
}

func exportRows(n int) []exportRow {
	rows := make([]exportRow, n)
	for i := range rows {
		rows[i] = exportRow{N: int64(i + 1)}
	}
	return rows
}

func exportStep(t *testing.T, repo *inmemory.InMemoryJobRepository, storage *test.FlakyStorageResolver) *item.ChunkStep[exportRow, exportRow] {
	t.Helper()
	w, err := writer.NewParquetItemWriter("export", map[string]interface{}{
		"storageRef":    "exports",
		"outputBaseDir": "rows",
	}, storage, &exportRow{}, nil)
	require.NoError(t, err)
	s, err := item.NewChunkStep(item.Params[exportRow, exportRow]{
		Name:           "exportStep",
		Reader:         test.NewSliceReader(exportRows(25)),
		Processor:      itemcomp.NewPassThroughItemProcessor[exportRow](),
		Writer:         w,
		CommitInterval: 10,
		JobRepository:  repo,
	})
	require.NoError(t, err)
	return s
}

func TestChunkStep_FailedParquetUploadKeepsCheckpointAndRestartExportsEveryRow(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	je, se := test.NewPersistedStepExecution(t, repo, "exportJob", "exportStep", model.NewJobParameters())
	local, root := test.NewLocalStorageResolver(t, "exports")
	storage := &test.FlakyStorageResolver{Resolver: local, FailUploads: map[int]bool{2: true}, UploadErr: errors.New("bucket unavailable")}

	err := exportStep(t, repo, storage).Execute(context.Background(), je, se)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrSinkWrite))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 10, se.WriteCount)
	data, err := repo.FindCheckpointData(context.Background(), se.ID)
	require.NoError(t, err)
	idx, _ := data.ExecutionContext.GetInt(test.SliceReaderIndexKey)
	assert.Equal(t, 10, idx, "the checkpoint stops at the last stored chunk")

	je2 := model.NewJobExecution(je.JobInstanceID, je.JobName, je.Parameters)
	je2.MarkAsValidating()
	je2.MarkAsRunning()
	require.NoError(t, repo.SaveJobExecution(context.Background(), je2))
	se2 := se.CopyForRestart(je2.ID)
	je2.AddStepExecution(se2)
	require.NoError(t, repo.SaveStepExecution(context.Background(), se2))

	require.NoError(t, exportStep(t, repo, storage).Execute(context.Background(), je2, se2))
	assert.Equal(t, model.BatchStatusCompleted, se2.Status)
	assert.Equal(t, 15, se2.WriteCount)

	files, err := os.ReadDir(filepath.Join(root, "rows"))
	require.NoError(t, err)
	want := []string{
		"part-" + se.ID + "-00001.parquet",
		"part-" + se.ID + "-00002.parquet",
		"part-" + se.ID + "-00003.parquet",
	}
	var names []string
	var rows int64
	for _, f := range files {
		names = append(names, f.Name())
		rows += test.CountParquetRows(t, filepath.Join(root, "rows", f.Name()), new(exportRow))
	}
	assert.Equal(t, want, names)
	assert.Equal(t, int64(25), rows)
}
