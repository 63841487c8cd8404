package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

func TestValidateTable(t *testing.T) {
	all := []model.Status{
		model.StatusPendingApproval,
		model.StatusScheduled,
		model.StatusConfirmed,
		model.StatusCompleted,
		model.StatusCanceled,
	}
	legal := map[[2]model.Status]bool{
		{model.StatusPendingApproval, model.StatusScheduled}: true,
		{model.StatusPendingApproval, model.StatusCanceled}:  true,
		{model.StatusScheduled, model.StatusConfirmed}:       true,
		{model.StatusScheduled, model.StatusCanceled}:        true,
		{model.StatusConfirmed, model.StatusCompleted}:       true,
		{model.StatusConfirmed, model.StatusCanceled}:        true,
	}

	for _, from := range all {
		for _, to := range all {
			err := Validate(from, to)
			if legal[[2]model.Status{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			assert.Error(t, err, "%s -> %s", from, to)
		}
	}
}

func TestValidateErrorKinds(t *testing.T) {
	err := Validate(model.StatusCompleted, model.StatusScheduled)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	var te *model.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.StatusCompleted, te.From)

	assert.ErrorIs(t, Validate(model.StatusCompleted, model.StatusCompleted), model.ErrAlreadyCompleted)
	assert.ErrorIs(t, Validate(model.StatusCanceled, model.StatusCanceled), model.ErrInvalidTransition)
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, IsTerminal(model.StatusCompleted))
	assert.True(t, IsTerminal(model.StatusCanceled))
	assert.False(t, IsTerminal(model.StatusConfirmed))
	assert.Empty(t, Allowed(model.StatusCanceled))
}

func TestParseAndInitialStatus(t *testing.T) {
	s, err := Parse(" confirmed ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, s)

	_, err = Parse("DONE")
	assert.ErrorIs(t, err, model.ErrValidation)

	s, err = InitialStatus("")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, s)

	_, err = InitialStatus("COMPLETED")
	assert.ErrorIs(t, err, model.ErrValidation)
}
