// Package expression resolves #{...} placeholders in step properties against the
// parameters of a run, so a job definition can say
//
//	city: "#{jobParameters['city']}"
package expression

import (
	"fmt"
	"regexp"
	"strings"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

const moduleName = "expression"

// placeholder captures the form #{...}.
var placeholder = regexp.MustCompile(`#\{(.+?)\}`)

// jobParameter captures jobParameters['key'].
var jobParameter = regexp.MustCompile(`^jobParameters\['(.+?)'\]$`)

// IsExpression reports whether s contains a placeholder.
func IsExpression(s string) bool {
	return placeholder.MatchString(s)
}

// Resolve replaces every placeholder of expr with its value in params. A string
// without placeholders is returned as is.
//
// A referenced parameter that is not set fails with a MissingParameterError; any other
// placeholder fails with a ConfigurationError.
func Resolve(expr string, params model.JobParameters) (string, error) {
	if !IsExpression(expr) {
		return expr, nil
	}
	var firstErr error
	resolved := placeholder.ReplaceAllStringFunc(expr, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := strings.TrimSpace(match[2 : len(match)-1])
		m := jobParameter.FindStringSubmatch(inner)
		if len(m) != 2 {
			firstErr = exception.NewConfigurationError(moduleName, fmt.Sprintf("unsupported expression '%s'", inner), nil)
			return match
		}
		v, ok := params.GetString(m[1])
		if !ok {
			firstErr = exception.NewMissingParameterError(moduleName, []string{m[1]})
			return match
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	logger.Debugf("ExpressionResolver: '%s' resolved to '%s'.", expr, resolved)
	return resolved, nil
}

// ResolveProperties returns a copy of props with every value resolved against params.
func ResolveProperties(props map[string]string, params model.JobParameters) (map[string]string, error) {
	out := make(map[string]string, len(props))
	for k, v := range props {
		r, err := Resolve(v, params)
		if err != nil {
			return nil, fmt.Errorf("property '%s': %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}
