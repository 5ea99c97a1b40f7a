package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls  []string
	upErr  error
	schema int64
}

func (f *fakeMigrator) up(context.Context) error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) status(context.Context) error {
	f.calls = append(f.calls, "status")
	return nil
}

func (f *fakeMigrator) version(context.Context) (int64, error) {
	f.calls = append(f.calls, "version")
	return f.schema, nil
}

func TestDispatchUpReportsVersion(t *testing.T) {
	m := &fakeMigrator{schema: 2}
	require.NoError(t, dispatch(context.Background(), "up", m))
	assert.Equal(t, []string{"up", "version"}, m.calls)
}

func TestDispatchUpFailureSkipsVersion(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("locked")}
	require.Error(t, dispatch(context.Background(), "up", m))
	assert.Equal(t, []string{"up"}, m.calls)
}

func TestDispatchOtherCommands(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, dispatch(context.Background(), "status", m))
	require.NoError(t, dispatch(context.Background(), "version", m))
	assert.Equal(t, []string{"status", "version"}, m.calls)

	assert.Error(t, dispatch(context.Background(), "down", m))
}
