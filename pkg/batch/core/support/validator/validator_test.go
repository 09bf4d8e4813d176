package validator_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/validator"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

func TestValidate(t *testing.T) {
	v, err := validator.NewDefaultJobParametersValidator([]string{"city"}, []string{"run.id"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		params  model.JobParameters
		wantErr bool
	}{
		{"required only", model.NewJobParameters().With("city", "Springfield"), false},
		{"required and optional", model.NewJobParameters().With("city", "Springfield").With("run.id", int64(3)), false},
		{"unknown keys are ignored", model.NewJobParameters().With("city", "Springfield").WithNonIdentifying("trace", true), false},
		{"empty string is present", model.NewJobParameters().With("city", ""), false},
		{"missing city", model.NewJobParameters().With("run.id", int64(1)), true},
		{"nil city", model.NewJobParameters().With("city", nil), true},
		{"no parameters", model.NewJobParameters(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.params)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrMissingParameter))
			assert.Equal(t, exception.MissingParameterError, exception.Kind(err))
			assert.Contains(t, err.Error(), "city")
		})
	}
}

func TestValidate_ListsEveryMissingKey(t *testing.T) {
	v, err := validator.NewDefaultJobParametersValidator([]string{"state", "city"}, nil)
	require.NoError(t, err)

	err = v.Validate(model.NewJobParameters())
	require.Error(t, err)
	assert.Contains(t, exception.ExtractErrorMessage(err), "[city, state]")
	assert.Equal(t, []string{"city", "state"}, v.RequiredKeys())
}

func TestNewDefaultJobParametersValidator_Overlap(t *testing.T) {
	_, err := validator.NewDefaultJobParametersValidator([]string{"city"}, []string{"city"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestCompositeJobParametersValidator(t *testing.T) {
	first, _ := validator.NewDefaultJobParametersValidator([]string{"city"}, nil)
	second, _ := validator.NewDefaultJobParametersValidator([]string{"state"}, nil)
	composite := validator.CompositeJobParametersValidator{first, second}

	err := composite.Validate(model.NewJobParameters().With("city", "Springfield"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state")
	assert.NoError(t, composite.Validate(model.NewJobParameters().With("city", "Springfield").With("state", "IL")))
}
