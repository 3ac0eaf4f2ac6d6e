package validator_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftflow/pushkit/pkg/validator"
)

func TestApply_CollectsEveryViolation(t *testing.T) {
	t.Parallel()

	err := validator.Apply(
		validator.Required("token", ""),
		validator.InListString("platform", "windows", []string{"ios", "android"}),
		validator.Required("app_version", "1.2.3"),
	)

	require.Error(t, err)
	ve := validator.ExtractValidationErrors(err)
	require.NotNil(t, ve)
	assert.ElementsMatch(t, []string{"token", "platform"}, ve.Fields())
	assert.True(t, ve.Has("token"))
	assert.False(t, ve.Has("app_version"))
}

func TestApply_AllValid(t *testing.T) {
	t.Parallel()

	err := validator.Apply(
		validator.Required("token", "tok-1"),
		validator.InListString("platform", "ios", []string{"ios", "android"}),
	)
	assert.NoError(t, err)
}

func TestMatches_EmptyValuePasses(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)
	assert.NoError(t, validator.Apply(validator.Matches("token", "", re, "has invalid characters")))
	assert.NoError(t, validator.Apply(validator.Matches("token", "abc_DEF-123:x", re, "has invalid characters")))
	assert.Error(t, validator.Apply(validator.Matches("token", "bad token!", re, "has invalid characters")))
}

func TestIsValidationError(t *testing.T) {
	t.Parallel()

	err := validator.Apply(validator.Required("token", ""))
	assert.True(t, validator.IsValidationError(err))
	assert.False(t, validator.IsValidationError(nil))
}
