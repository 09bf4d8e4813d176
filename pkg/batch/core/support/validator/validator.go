// Package validator checks the parameters of a job launch against a key schema.
package validator

import (
	"fmt"
	"sort"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const module = "parameter_validator"

// DefaultJobParametersValidator requires a set of keys and accepts a set of optional keys.
// Keys outside both sets are accepted and logged.
type DefaultJobParametersValidator struct {
	requiredKeys []string
	optionalKeys map[string]struct{}
}

// NewDefaultJobParametersValidator creates a validator. A key listed as both required and
// optional is a ConfigurationError.
func NewDefaultJobParametersValidator(requiredKeys, optionalKeys []string) (*DefaultJobParametersValidator, error) {
	required := make(map[string]struct{}, len(requiredKeys))
	for _, k := range requiredKeys {
		required[k] = struct{}{}
	}
	optional := make(map[string]struct{}, len(optionalKeys))
	var overlap []string
	for _, k := range optionalKeys {
		if _, ok := required[k]; ok {
			overlap = append(overlap, k)
		}
		optional[k] = struct{}{}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("keys %v are both required and optional", overlap), nil)
	}

	keys := make([]string, 0, len(required))
	for k := range required {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &DefaultJobParametersValidator{requiredKeys: keys, optionalKeys: optional}, nil
}

// Validate returns a MissingParameterError naming every required key absent from params.
// A key holding nil counts as absent.
func (v *DefaultJobParametersValidator) Validate(params model.JobParameters) error {
	var missing []string
	for _, k := range v.requiredKeys {
		if val, ok := params.Get(k); !ok || val == nil {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return exception.NewMissingParameterError(module, missing)
	}

	for _, k := range params.Keys() {
		if v.isRequired(k) {
			continue
		}
		if _, ok := v.optionalKeys[k]; !ok {
			logger.Debugf("Job parameter '%s' is neither required nor optional; ignoring.", k)
		}
	}
	return nil
}

// RequiredKeys returns the sorted required keys.
func (v *DefaultJobParametersValidator) RequiredKeys() []string {
	return append([]string(nil), v.requiredKeys...)
}

func (v *DefaultJobParametersValidator) isRequired(key string) bool {
	i := sort.SearchStrings(v.requiredKeys, key)
	return i < len(v.requiredKeys) && v.requiredKeys[i] == key
}

var _ port.JobParametersValidator = (*DefaultJobParametersValidator)(nil)

// CompositeJobParametersValidator runs validators in order and returns the first failure.
type CompositeJobParametersValidator []port.JobParametersValidator

// Validate implements port.JobParametersValidator.
func (c CompositeJobParametersValidator) Validate(params model.JobParameters) error {
	for _, v := range c {
		if err := v.Validate(params); err != nil {
			return err
		}
	}
	return nil
}
