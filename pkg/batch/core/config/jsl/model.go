// Package jsl defines the job definition documents: YAML descriptions of a job's
// parameter schema, run discriminator, listeners and ordered chunk steps.
package jsl

import (
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// JSLDefinitionBytes holds the content of a job definition file.
type JSLDefinitionBytes []byte

// Job is the top-level structure of a job definition.
type Job struct {
	// ID is the key under which the job is launched and its builder registered.
	ID string `yaml:"id"`
	// Name is a human-readable name.
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Validator declares the parameter schema checked before the first step.
	Validator *Validator `yaml:"validator,omitempty"`
	// Incrementer names the run discriminator. Empty selects the configured default; "none" disables it.
	Incrementer ComponentRef `yaml:"incrementer,omitempty"`
	// Listeners are job execution listeners, by registered name.
	Listeners []ComponentRef `yaml:"listeners,omitempty"`
	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// Validator is the required/optional key schema of a job's parameters.
type Validator struct {
	Required []string `yaml:"required,omitempty"`
	Optional []string `yaml:"optional,omitempty"`
}

// Step is a chunk step definition.
type Step struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	// Reader, Processor and Writer are passed to the job builder, which owns their construction.
	Reader    ComponentRef `yaml:"reader,omitempty"`
	Processor ComponentRef `yaml:"processor,omitempty"`
	Writer    ComponentRef `yaml:"writer,omitempty"`
	Chunk     *Chunk       `yaml:"chunk,omitempty"`
	// Listeners are step execution listeners, by registered name.
	Listeners      []ComponentRef `yaml:"listeners,omitempty"`
	ChunkListeners []ComponentRef `yaml:"chunk-listeners,omitempty"`
}

// ComponentRef references a registered component and carries its properties.
type ComponentRef struct {
	Ref        string            `yaml:"ref"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Property returns the named property, or def when it is not set.
func (c ComponentRef) Property(name, def string) string {
	if v, ok := c.Properties[name]; ok && v != "" {
		return v
	}
	return def
}

// Chunk holds the chunk settings of a step.
type Chunk struct {
	// CommitInterval is the number of items per transaction. Zero selects surfin.batch.chunk_size.
	CommitInterval int `yaml:"commit-interval"`
}

// CommitInterval returns the commit interval of the step, or def when the definition leaves it unset.
func (s Step) CommitInterval(def int) int {
	if s.Chunk == nil || s.Chunk.CommitInterval <= 0 {
		return def
	}
	return s.Chunk.CommitInterval
}

// JobExecutionListenerBuilder builds a JobExecutionListener from its properties.
type JobExecutionListenerBuilder func(cfg *config.Config, properties map[string]string) (port.JobExecutionListener, error)

// StepExecutionListenerBuilder builds a StepExecutionListener from its properties.
type StepExecutionListenerBuilder func(cfg *config.Config, properties map[string]string) (port.StepExecutionListener, error)

// ChunkListenerBuilder builds a ChunkListener from its properties.
type ChunkListenerBuilder func(cfg *config.Config, properties map[string]string) (port.ChunkListener, error)

// JobParametersIncrementerBuilder builds a JobParametersIncrementer from its properties.
type JobParametersIncrementerBuilder func(cfg *config.Config, properties map[string]string) (port.JobParametersIncrementer, error)
