// Package serialization converts job parameters, execution contexts and failure lists
// to and from the JSON stored by the job repositories.
package serialization

import (
	"bytes"
	"encoding/json"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "serialization"

// MaskedValue replaces the value of every masked parameter key.
const MaskedValue = "********"

// GetMaskedJobParametersMap returns a copy of params with the configured sensitive keys masked.
func GetMaskedJobParametersMap(params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return map[string]interface{}{}
	}

	masked := make(map[string]interface{}, len(params))
	for k, v := range params {
		masked[k] = v
	}
	for _, key := range config.GetMaskedParameterKeys() {
		if _, ok := masked[key]; ok {
			masked[key] = MaskedValue
		}
	}
	return masked
}

// MarshalExecutionContext serializes an ExecutionContext map into JSON.
func MarshalExecutionContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		logger.Errorf("Failed to serialize ExecutionContext: %v", err)
		return nil, exception.NewBatchError(moduleName, "failed to serialize ExecutionContext", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext replaces the content of ctx with the decoded JSON.
// Numbers are decoded as json.Number so integer counters survive a round trip.
func UnmarshalExecutionContext(data []byte, ctx *map[string]interface{}) error {
	if *ctx == nil {
		*ctx = make(map[string]interface{})
	} else {
		for k := range *ctx {
			delete(*ctx, k)
		}
	}

	if isEmptyDocument(data) {
		return nil
	}
	if err := decodeNumbers(data, ctx); err != nil {
		logger.Errorf("Failed to deserialize ExecutionContext: %v", err)
		return exception.NewBatchError(moduleName, "failed to deserialize ExecutionContext", err, false, false)
	}
	return nil
}

// MarshalJobParameters serializes a JobParameters map, masking the configured sensitive keys.
func MarshalJobParameters(params map[string]interface{}) ([]byte, error) {
	masked := GetMaskedJobParametersMap(params)
	if len(masked) == 0 {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(masked)
	if err != nil {
		logger.Errorf("Failed to serialize JobParameters: %v", err)
		return nil, exception.NewBatchError(moduleName, "failed to serialize JobParameters", err, false, false)
	}
	return data, nil
}

// UnmarshalJobParameters replaces the content of params with the decoded JSON.
func UnmarshalJobParameters(data []byte, params *map[string]interface{}) error {
	if *params == nil {
		*params = make(map[string]interface{})
	} else {
		for k := range *params {
			delete(*params, k)
		}
	}

	if isEmptyDocument(data) {
		return nil
	}
	if err := decodeNumbers(data, params); err != nil {
		logger.Errorf("Failed to deserialize JobParameters: %v", err)
		return exception.NewBatchError(moduleName, "failed to deserialize JobParameters", err, false, false)
	}
	return nil
}

// MarshalFailures serializes failure messages into a JSON array.
func MarshalFailures(failures []string) ([]byte, error) {
	if failures == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to serialize Failures", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures decodes a JSON array of failure messages.
func UnmarshalFailures(data []byte, msgs *[]string) error {
	if len(data) == 0 || string(data) == "null" {
		*msgs = []string{}
		return nil
	}
	if err := json.Unmarshal(data, msgs); err != nil {
		return exception.NewBatchError(moduleName, "failed to deserialize Failures", err, false, false)
	}
	return nil
}

func isEmptyDocument(data []byte) bool {
	s := string(bytes.TrimSpace(data))
	return s == "" || s == "null" || s == "{}"
}

func decodeNumbers(data []byte, target *map[string]interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}
