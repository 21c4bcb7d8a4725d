package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteAllStepsSucceed(t *testing.T) {
	var order []string
	result := Execute(context.Background(), []Step{
		{Name: "first", Run: func(context.Context) error { order = append(order, "first"); return nil }},
		{Name: "second", Run: func(context.Context) error { order = append(order, "second"); return nil }},
	})
	require.True(t, result.Ok())
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Empty(t, result.Error())
}

func TestExecuteCompensatesInReverseOrder(t *testing.T) {
	var undone []string
	result := Execute(context.Background(), []Step{
		{
			Name: "create-account",
			Run:  func(context.Context) error { return nil },
			Compensate: func(context.Context) error {
				undone = append(undone, "create-account")
				return nil
			},
		},
		{
			Name: "assign-role",
			Run:  func(context.Context) error { return nil },
			Compensate: func(context.Context) error {
				undone = append(undone, "assign-role")
				return nil
			},
		},
		{
			Name: "create-teacher",
			Run:  func(context.Context) error { return errors.New("boom") },
		},
	})

	require.False(t, result.Ok())
	assert.Equal(t, "create-teacher", result.FailedStep)
	assert.Equal(t, []string{"assign-role", "create-account"}, undone)
	assert.Empty(t, result.CompensationErrs)
}

func TestExecuteCollectsCompensationFailures(t *testing.T) {
	result := Execute(context.Background(), []Step{
		{
			Name:       "create-account",
			Run:        func(context.Context) error { return nil },
			Compensate: func(context.Context) error { return errors.New("delete failed") },
		},
		{
			Name: "assign-role",
			Run:  func(context.Context) error { return errors.New("role conflict") },
		},
	})

	require.False(t, result.Ok())
	require.Len(t, result.CompensationErrs, 1)
	assert.Contains(t, result.Error(), "role conflict")
	assert.Contains(t, result.Error(), "delete failed")
}

func TestExecuteSkipsNilCompensation(t *testing.T) {
	result := Execute(context.Background(), []Step{
		{Name: "no-undo", Run: func(context.Context) error { return nil }},
		{Name: "fails", Run: func(context.Context) error { return errors.New("nope") }},
	})
	require.False(t, result.Ok())
	assert.Empty(t, result.CompensationErrs)
}
