// Package support provides the JobFactory, which turns job definitions and registered
// job builders into runnable jobs.
package support

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkbatch/pkg/batch/core/config/jsl"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	runner "github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	validator "github.com/tigerroll/chunkbatch/pkg/batch/core/support/validator"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const factoryModule = "job_factory"

// NoIncrementer is the incrementer ref that disables the run discriminator of a job.
const NoIncrementer = "none"

// JobBuildContext is everything a JobBuilder needs to assemble a job from its definition.
type JobBuildContext struct {
	Definition    jsl.Job
	Config        *config.Config
	JobRepository repository.JobRepository
	// TxManager is the transaction manager of chunk steps. It commits on the job
	// repository's store so a chunk and its checkpoint commit together.
	TxManager     tx.TransactionManager
	Validator     port.JobParametersValidator
	Incrementer   port.JobParametersIncrementer

	JobListeners   []port.JobExecutionListener
	StepListeners  map[string][]port.StepExecutionListener
	ChunkListeners map[string][]port.ChunkListener

	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// Step returns the definition of the step stepID.
func (bc JobBuildContext) Step(stepID string) (jsl.Step, error) {
	for _, s := range bc.Definition.Steps {
		if s.ID == stepID {
			return s, nil
		}
	}
	return jsl.Step{}, exception.NewConfigurationError(bc.Definition.ID, fmt.Sprintf("step '%s' is not defined", stepID), nil)
}

// CommitInterval returns the commit interval of stepID, falling back to surfin.batch.chunk_size.
func (bc JobBuildContext) CommitInterval(stepID string) int {
	s, err := bc.Step(stepID)
	if err != nil {
		return bc.Config.Surfin.Batch.ChunkSize
	}
	return s.CommitInterval(bc.Config.Surfin.Batch.ChunkSize)
}

// ReadListeners returns the chunk listeners of stepID that also observe read failures.
func (bc JobBuildContext) ReadListeners(stepID string) []port.ItemReadListener {
	var out []port.ItemReadListener
	for _, l := range bc.ChunkListeners[stepID] {
		if rl, ok := l.(port.ItemReadListener); ok {
			out = append(out, rl)
		}
	}
	return out
}

// WriteListeners returns the chunk listeners of stepID that also observe write failures.
func (bc JobBuildContext) WriteListeners(stepID string) []port.ItemWriteListener {
	var out []port.ItemWriteListener
	for _, l := range bc.ChunkListeners[stepID] {
		if wl, ok := l.(port.ItemWriteListener); ok {
			out = append(out, wl)
		}
	}
	return out
}

// NewSimpleJob assembles a runner.SimpleJob from the context. Builders are matched to
// the definition's steps by name and run in the definition's order.
func (bc JobBuildContext) NewSimpleJob(builders ...port.StepBuilder) (port.Job, error) {
	byName := make(map[string]port.StepBuilder, len(builders))
	for _, b := range builders {
		byName[b.StepName()] = b
	}
	ordered := make([]port.StepBuilder, 0, len(bc.Definition.Steps))
	for _, s := range bc.Definition.Steps {
		b, ok := byName[s.ID]
		if !ok {
			return nil, exception.NewConfigurationError(bc.Definition.ID, fmt.Sprintf("no step builder for step '%s'", s.ID), nil)
		}
		ordered = append(ordered, b)
		delete(byName, s.ID)
	}
	if len(byName) > 0 {
		extra := make([]string, 0, len(byName))
		for name := range byName {
			extra = append(extra, name)
		}
		sort.Strings(extra)
		return nil, exception.NewConfigurationError(bc.Definition.ID, fmt.Sprintf("step builders %v are not in the job definition", extra), nil)
	}
	return runner.NewSimpleJob(runner.SimpleJobParams{
		Name:           bc.Definition.ID,
		Validator:      bc.Validator,
		Incrementer:    bc.Incrementer,
		Steps:          ordered,
		JobRepository:  bc.JobRepository,
		Listeners:      bc.JobListeners,
		MetricRecorder: bc.MetricRecorder,
		Tracer:         bc.Tracer,
	})
}

// JobBuilder creates a job from its build context.
type JobBuilder func(bc JobBuildContext) (port.Job, error)

// JobBuilderRegistration binds a JobBuilder to a job definition ID. Applications
// contribute registrations to the "job_builders" value group.
type JobBuilderRegistration struct {
	JobID   string
	Builder JobBuilder
}

// JobBuilderGroup is the fx value group of JobBuilderRegistration.
const JobBuilderGroup = "job_builders"

// JobFactory creates jobs from job definitions and the builders registered for them.
type JobFactory struct {
	definitions    *jsl.Definitions
	config         *config.Config
	jobRepository  repository.JobRepository
	txManager      tx.TransactionManager
	incrementer    port.JobParametersIncrementer
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer

	mu                  sync.RWMutex
	jobBuilders         map[string]JobBuilder
	jobListeners        map[string]jsl.JobExecutionListenerBuilder
	stepListeners       map[string]jsl.StepExecutionListenerBuilder
	chunkListeners      map[string]jsl.ChunkListenerBuilder
	incrementerBuilders map[string]jsl.JobParametersIncrementerBuilder
}

// JobFactoryParams defines the dependencies of NewJobFactory.
type JobFactoryParams struct {
	fx.In
	Definitions    *jsl.Definitions
	Cfg            *config.Config
	Repo           repository.JobRepository
	TxManager      tx.TransactionManager         `name:"metadata" optional:"true"`
	Incrementer    port.JobParametersIncrementer `optional:"true"`
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	Builders       []JobBuilderRegistration `group:"job_builders"`
}

// NewJobFactory creates a JobFactory holding the registrations of p.Builders.
func NewJobFactory(p JobFactoryParams) *JobFactory {
	f := &JobFactory{
		definitions:         p.Definitions,
		config:              p.Cfg,
		jobRepository:       p.Repo,
		txManager:           p.TxManager,
		incrementer:         p.Incrementer,
		metricRecorder:      p.MetricRecorder,
		tracer:              p.Tracer,
		jobBuilders:         make(map[string]JobBuilder),
		jobListeners:        make(map[string]jsl.JobExecutionListenerBuilder),
		stepListeners:       make(map[string]jsl.StepExecutionListenerBuilder),
		chunkListeners:      make(map[string]jsl.ChunkListenerBuilder),
		incrementerBuilders: make(map[string]jsl.JobParametersIncrementerBuilder),
	}
	if f.txManager == nil {
		f.txManager = tx.NewNoopTransactionManager()
	}
	if f.metricRecorder == nil {
		f.metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if f.tracer == nil {
		f.tracer = metrics.NewNoOpTracer()
	}
	for _, r := range p.Builders {
		f.RegisterJobBuilder(r.JobID, r.Builder)
	}
	return f
}

// RegisterJobBuilder registers the builder of jobID.
func (f *JobFactory) RegisterJobBuilder(jobID string, builder JobBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.jobBuilders[jobID]; exists {
		logger.Warnf("JobBuilder for '%s' registered twice; the last registration wins.", jobID)
	}
	f.jobBuilders[jobID] = builder
	logger.Debugf("JobBuilder for '%s' registered with JobFactory.", jobID)
}

// RegisterJobListenerBuilder registers a JobExecutionListener builder under name.
func (f *JobFactory) RegisterJobListenerBuilder(name string, builder jsl.JobExecutionListenerBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobListeners[name] = builder
}

// RegisterStepExecutionListenerBuilder registers a StepExecutionListener builder under name.
func (f *JobFactory) RegisterStepExecutionListenerBuilder(name string, builder jsl.StepExecutionListenerBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepListeners[name] = builder
}

// RegisterChunkListenerBuilder registers a ChunkListener builder under name.
func (f *JobFactory) RegisterChunkListenerBuilder(name string, builder jsl.ChunkListenerBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkListeners[name] = builder
}

// RegisterJobParametersIncrementerBuilder registers an incrementer builder under name.
func (f *JobFactory) RegisterJobParametersIncrementerBuilder(name string, builder jsl.JobParametersIncrementerBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrementerBuilders[name] = builder
}

// JobNames returns the IDs of the jobs that have both a definition and a builder, sorted.
func (f *JobFactory) JobNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var names []string
	for _, id := range f.definitions.IDs() {
		if _, ok := f.jobBuilders[id]; ok {
			names = append(names, id)
		}
	}
	return names
}

// CreateJob builds the job jobName.
//
// Returns a ConfigurationError if the definition or builder is missing, a referenced
// listener or incrementer is not registered, or the builder fails.
func (f *JobFactory) CreateJob(jobName string) (port.Job, error) {
	def, ok := f.definitions.Get(jobName)
	if !ok {
		return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("job definition '%s' not found", jobName), nil)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	build, ok := f.jobBuilders[jobName]
	if !ok {
		return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("no JobBuilder registered for job '%s'", jobName), nil)
	}

	bc := JobBuildContext{
		Definition:     def,
		Config:         f.config,
		JobRepository:  f.jobRepository,
		TxManager:      f.txManager,
		StepListeners:  make(map[string][]port.StepExecutionListener),
		ChunkListeners: make(map[string][]port.ChunkListener),
		MetricRecorder: f.metricRecorder,
		Tracer:         f.tracer,
	}

	if def.Validator != nil {
		v, err := validator.NewDefaultJobParametersValidator(def.Validator.Required, def.Validator.Optional)
		if err != nil {
			return nil, err
		}
		bc.Validator = v
	}

	inc, err := f.resolveIncrementer(def)
	if err != nil {
		return nil, err
	}
	bc.Incrementer = inc

	for _, ref := range def.Listeners {
		b, ok := f.jobListeners[ref.Ref]
		if !ok {
			return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("job '%s': JobExecutionListener '%s' not registered", jobName, ref.Ref), nil)
		}
		l, err := b(f.config, ref.Properties)
		if err != nil {
			return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("job '%s': failed to build JobExecutionListener '%s'", jobName, ref.Ref), err)
		}
		bc.JobListeners = append(bc.JobListeners, l)
	}

	for _, s := range def.Steps {
		for _, ref := range s.Listeners {
			b, ok := f.stepListeners[ref.Ref]
			if !ok {
				return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("step '%s': StepExecutionListener '%s' not registered", s.ID, ref.Ref), nil)
			}
			l, err := b(f.config, ref.Properties)
			if err != nil {
				return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("step '%s': failed to build StepExecutionListener '%s'", s.ID, ref.Ref), err)
			}
			bc.StepListeners[s.ID] = append(bc.StepListeners[s.ID], l)
		}
		for _, ref := range s.ChunkListeners {
			b, ok := f.chunkListeners[ref.Ref]
			if !ok {
				return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("step '%s': ChunkListener '%s' not registered", s.ID, ref.Ref), nil)
			}
			l, err := b(f.config, ref.Properties)
			if err != nil {
				return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("step '%s': failed to build ChunkListener '%s'", s.ID, ref.Ref), err)
			}
			bc.ChunkListeners[s.ID] = append(bc.ChunkListeners[s.ID], l)
		}
	}

	job, err := build(bc)
	if err != nil {
		if exception.IsBatchError(err) {
			return nil, err
		}
		return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("failed to build job '%s'", jobName), err)
	}
	return job, nil
}

func (f *JobFactory) resolveIncrementer(def jsl.Job) (port.JobParametersIncrementer, error) {
	switch def.Incrementer.Ref {
	case "":
		return f.incrementer, nil
	case NoIncrementer:
		return nil, nil
	}
	b, ok := f.incrementerBuilders[def.Incrementer.Ref]
	if !ok {
		return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("job '%s': incrementer '%s' not registered", def.ID, def.Incrementer.Ref), nil)
	}
	inc, err := b(f.config, def.Incrementer.Properties)
	if err != nil {
		return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("job '%s': failed to build incrementer '%s'", def.ID, def.Incrementer.Ref), err)
	}
	return inc, nil
}
