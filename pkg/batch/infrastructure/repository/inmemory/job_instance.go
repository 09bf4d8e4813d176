package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SaveJobInstance persists a new JobInstance.
func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, jobInstance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobInstances[jobInstance.ID]; exists {
		return fmt.Errorf("JobInstance with ID %s already exists", jobInstance.ID)
	}
	for _, ji := range r.jobInstances {
		if ji.JobName == jobInstance.JobName && ji.ParametersHash == jobInstance.ParametersHash {
			return fmt.Errorf("JobInstance for job '%s' with parameters hash %s already exists", ji.JobName, ji.ParametersHash)
		}
	}
	r.jobInstances[jobInstance.ID] = copyJobInstance(jobInstance)
	r.nextOrder(jobInstance.ID)
	return nil
}

// UpdateJobInstance updates an existing JobInstance.
func (r *InMemoryJobRepository) UpdateJobInstance(ctx context.Context, jobInstance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobInstances[jobInstance.ID]; !exists {
		return fmt.Errorf("JobInstance with ID %s not found for update: %w", jobInstance.ID, repository.ErrJobInstanceNotFound)
	}
	jobInstance.Version++
	r.jobInstances[jobInstance.ID] = copyJobInstance(jobInstance)
	return nil
}

// FindJobInstanceByID finds a JobInstance by its ID.
func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ji, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	return copyJobInstance(ji), nil
}

// FindJobInstanceByJobNameAndParameters matches instances on the identifying parameters hash.
func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.ParametersHash == hash {
			return copyJobInstance(ji), nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}

// FindJobInstancesByJobName returns the instances of jobName, newest first.
func (r *InMemoryJobRepository) FindJobInstancesByJobName(ctx context.Context, jobName string) ([]*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*model.JobInstance, 0)
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			instances = append(instances, copyJobInstance(ji))
		}
	}
	sort.Slice(instances, func(i, j int) bool {
		return r.order[instances[i].ID] > r.order[instances[j].ID]
	})
	return instances, nil
}

// GetJobInstanceCount returns the number of instances of jobName.
func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			count++
		}
	}
	return count, nil
}

// GetJobNames returns the distinct job names, sorted.
func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, ji := range r.jobInstances {
		if _, ok := seen[ji.JobName]; !ok {
			seen[ji.JobName] = struct{}{}
			names = append(names, ji.JobName)
		}
	}
	sort.Strings(names)
	return names, nil
}
