package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the settings of a ParquetItemWriter.
type ParquetWriterConfig struct {
	// StorageRef names the storage connection (adapter.storage.<name>).
	StorageRef string `mapstructure:"storageRef"`
	// Bucket overrides the connection's default bucket.
	Bucket string `mapstructure:"bucket"`
	// OutputBaseDir is the object prefix of the exported files, e.g. "customers/export".
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `mapstructure:"compressionType"`
	// UploadConcurrency bounds the partitions uploaded at once. Default 4.
	UploadConcurrency int `mapstructure:"uploadConcurrency"`
}

// Checkpoint key suffixes. Keys are prefixed with the writer name.
const (
	keyRunID  = "run.id"
	keyChunks = "chunks"
)

// ParquetItemWriter encodes every chunk as one Parquet file per partition and uploads it
// to object storage before the chunk commits.
//
// Files are named after the run and the chunk sequence, both kept in the checkpoint, so a
// chunk replayed after a failure or a restart overwrites the files of its first attempt.
type ParquetItemWriter[T any] struct {
	name         string
	cfg          ParquetWriterConfig
	codec        parquet.CompressionCodec
	resolver     storage.StorageConnectionResolver
	prototype    *T
	partitionKey func(T) (string, error)

	conn      storage.StorageConnection
	mu        sync.Mutex
	runID     string
	committed int
	pending   int
	uploaded  []string
}

var _ port.ItemWriter[any] = (*ParquetItemWriter[any])(nil)

// NewParquetItemWriter creates a ParquetItemWriter from properties decoded into ParquetWriterConfig.
// prototype is a pointer to a zero T whose parquet struct tags define the schema.
// A nil partitionKey writes a single partition.
func NewParquetItemWriter[T any](
	name string,
	properties map[string]interface{},
	resolver storage.StorageConnectionResolver,
	prototype *T,
	partitionKey func(T) (string, error),
) (*ParquetItemWriter[T], error) {
	var cfg ParquetWriterConfig
	if err := mapstructure.Decode(properties, &cfg); err != nil {
		return nil, exception.NewConfigurationError(name, "failed to decode ParquetItemWriter properties", err)
	}
	switch {
	case name == "":
		return nil, exception.NewConfigurationError("parquet_writer", "writer name is required", nil)
	case cfg.StorageRef == "":
		return nil, exception.NewConfigurationError(name, "property 'storageRef' is required", nil)
	case cfg.OutputBaseDir == "":
		return nil, exception.NewConfigurationError(name, "property 'outputBaseDir' is required", nil)
	case resolver == nil:
		return nil, exception.NewConfigurationError(name, "a StorageConnectionResolver is required", nil)
	case prototype == nil:
		return nil, exception.NewConfigurationError(name, "a schema prototype is required", nil)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	codec, err := compressionCodec(cfg.CompressionType)
	if err != nil {
		return nil, exception.NewConfigurationError(name, err.Error(), err)
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 4
	}
	if partitionKey == nil {
		partitionKey = func(T) (string, error) { return "", nil }
	}
	return &ParquetItemWriter[T]{
		name:         name,
		cfg:          cfg,
		codec:        codec,
		resolver:     resolver,
		prototype:    prototype,
		partitionKey: partitionKey,
	}, nil
}

func (w *ParquetItemWriter[T]) key(suffix string) string {
	return w.name + "." + suffix
}

// Open resolves the storage connection. A fresh run is named after the running step
// execution; a restarted one continues the run and chunk sequence of its checkpoint.
func (w *ParquetItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.cfg.StorageRef)
	if err != nil {
		return exception.NewSinkWriteError(w.name, fmt.Sprintf("failed to resolve storage connection '%s'", w.cfg.StorageRef), err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn = conn
	w.runID, w.committed, w.pending, w.uploaded = "", 0, 0, nil
	if v, ok := ec.GetString(w.key(keyRunID)); ok {
		w.runID = v
	}
	if v, ok := ec.GetInt(w.key(keyChunks)); ok {
		w.committed = v
	}
	if w.runID == "" {
		if se := port.GetStepExecutionFromContext(ctx); se != nil {
			w.runID = se.ID
		} else {
			w.runID = uuid.NewString()
		}
	}
	w.pending = w.committed
	if w.committed > 0 {
		logger.Infof("ParquetItemWriter '%s' resuming run %s after chunk %d.", w.name, w.runID, w.committed)
	}
	logger.Infof("ParquetItemWriter '%s' opened. Target: %s/%s", w.name, w.cfg.StorageRef, w.cfg.OutputBaseDir)
	return nil
}

// Write uploads the chunk, one file per partition, and returns once every file is
// stored. Partitions are uploaded concurrently; all failures are reported together.
func (w *ParquetItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if w.conn == nil {
		return exception.NewSinkWriteError(w.name, "writer was not opened", nil)
	}
	if len(items) == 0 {
		return nil
	}
	partitions := make(map[string][]T)
	for _, item := range items {
		key, err := w.partitionKey(item)
		if err != nil {
			return exception.NewSinkWriteError(w.name, "failed to compute partition key", err)
		}
		partitions[key] = append(partitions[key], item)
	}

	w.mu.Lock()
	chunk := w.committed + 1
	w.mu.Unlock()

	var (
		mu   sync.Mutex
		errs *multierror.Error
		done []string
	)
	g := new(errgroup.Group)
	g.SetLimit(w.cfg.UploadConcurrency)
	for key, part := range partitions {
		key, part := key, part
		g.Go(func() error {
			objectName, err := w.upload(ctx, key, chunk, part)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, err)
				return nil
			}
			done = append(done, objectName)
			return nil
		})
	}
	_ = g.Wait()
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	sort.Strings(done)
	w.mu.Lock()
	w.pending = chunk
	w.mu.Unlock()
	advance := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.committed = chunk
		w.uploaded = append(w.uploaded, done...)
	}
	if t == nil {
		advance()
	} else {
		t.AfterCommit(advance)
	}
	logger.Debugf("ParquetItemWriter '%s': chunk %d stored in %d partitions (%d records).", w.name, chunk, len(done), len(items))
	return nil
}

// Close releases nothing; every chunk is already stored.
func (w *ParquetItemWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	logger.Infof("ParquetItemWriter '%s': %d chunks stored in %d files.", w.name, w.committed, len(w.uploaded))
	return nil
}

// ObjectName returns the object the given chunk of a partition is uploaded to.
func (w *ParquetItemWriter[T]) ObjectName(partition string, chunk int) string {
	return path.Join(w.cfg.OutputBaseDir, partition, fmt.Sprintf("part-%s-%05d.parquet", w.runID, chunk))
}

// Uploaded returns the objects of the chunks committed since Open, sorted per chunk.
func (w *ParquetItemWriter[T]) Uploaded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.uploaded...)
}

func (w *ParquetItemWriter[T]) upload(ctx context.Context, partition string, chunk int, items []T) (string, error) {
	buf := new(bytes.Buffer)
	if err := w.encode(buf, items); err != nil {
		return "", exception.NewSinkWriteError(w.name, fmt.Sprintf("failed to encode partition '%s'", partition), err)
	}
	objectName := w.ObjectName(partition, chunk)
	if err := w.conn.Upload(ctx, w.cfg.Bucket, objectName, buf, "application/octet-stream"); err != nil {
		return "", exception.NewSinkWriteError(w.name, fmt.Sprintf("failed to upload '%s'", objectName), err)
	}
	logger.Debugf("ParquetItemWriter '%s': uploaded %d records to %s.", w.name, len(items), objectName)
	return objectName, nil
}

func (w *ParquetItemWriter[T]) encode(buf *bytes.Buffer, items []T) (err error) {
	// parquet-go panics on some schema mismatches.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, w.prototype, 1)
	if err != nil {
		return err
	}
	pw.CompressionType = w.codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return err
		}
	}
	return pw.WriteStop()
}

// GetExecutionContext implements port.ItemStream. It holds the run id and the number of
// chunks stored, including the chunk being committed.
func (w *ParquetItemWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ec := model.NewExecutionContext()
	ec.Put(w.key(keyRunID), w.runID)
	ec.Put(w.key(keyChunks), w.pending)
	return ec, nil
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
