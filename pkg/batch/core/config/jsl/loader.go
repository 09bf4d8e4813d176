package jsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const loaderModule = "jsl_loader"

// Definitions holds loaded job definitions by ID. It is safe for concurrent use.
type Definitions struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewDefinitions creates an empty Definitions.
func NewDefinitions() *Definitions {
	return &Definitions{jobs: make(map[string]Job)}
}

// LoadFromBytes parses a YAML stream of one or more job definition documents and adds them.
func (d *Definitions) LoadFromBytes(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	loaded := 0
	for {
		var job Job
		err := dec.Decode(&job)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return exception.NewConfigurationError(loaderModule, "failed to parse job definition", err)
		}
		if err := d.add(job); err != nil {
			return err
		}
		loaded++
	}
	if loaded == 0 {
		return exception.NewConfigurationError(loaderModule, "no job definition found", nil)
	}
	return nil
}

func (d *Definitions) add(job Job) error {
	if err := validate(job); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.jobs[job.ID]; exists {
		return exception.NewConfigurationError(loaderModule, fmt.Sprintf("job ID '%s' is duplicated", job.ID), nil)
	}
	d.jobs[job.ID] = job
	logger.Infof("Loaded job definition '%s' (%d steps).", job.ID, len(job.Steps))
	return nil
}

// Get returns the definition of jobID.
func (d *Definitions) Get(jobID string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[jobID]
	return job, ok
}

// IDs returns the loaded job IDs, sorted.
func (d *Definitions) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.jobs))
	for id := range d.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validate(job Job) error {
	if job.ID == "" {
		return exception.NewConfigurationError(loaderModule, "'id' is not defined", nil)
	}
	if job.Name == "" {
		return exception.NewConfigurationError(loaderModule, fmt.Sprintf("job '%s' does not define 'name'", job.ID), nil)
	}
	if len(job.Steps) == 0 {
		return exception.NewConfigurationError(loaderModule, fmt.Sprintf("job '%s' does not define any step", job.ID), nil)
	}
	seen := make(map[string]struct{}, len(job.Steps))
	for i, s := range job.Steps {
		if s.ID == "" {
			return exception.NewConfigurationError(loaderModule, fmt.Sprintf("job '%s': step #%d has no 'id'", job.ID, i+1), nil)
		}
		if _, dup := seen[s.ID]; dup {
			return exception.NewConfigurationError(loaderModule, fmt.Sprintf("job '%s': step ID '%s' is duplicated", job.ID, s.ID), nil)
		}
		seen[s.ID] = struct{}{}
		if s.Chunk != nil && s.Chunk.CommitInterval < 0 {
			return exception.NewConfigurationError(loaderModule, fmt.Sprintf("job '%s': step '%s' has a negative commit-interval", job.ID, s.ID), nil)
		}
	}
	return nil
}
