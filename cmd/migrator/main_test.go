package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMigrationRunner struct {
	upCalled, downCalled, statusCalled, versionCalled, dropCalled bool
	err                                                           error
}

func (f *fakeMigrationRunner) Up() error      { f.upCalled = true; return f.err }
func (f *fakeMigrationRunner) Down() error    { f.downCalled = true; return f.err }
func (f *fakeMigrationRunner) Status() error  { f.statusCalled = true; return f.err }
func (f *fakeMigrationRunner) Version() error { f.versionCalled = true; return f.err }
func (f *fakeMigrationRunner) Drop() error    { f.dropCalled = true; return f.err }
func (f *fakeMigrationRunner) Close() error   { return nil }

func TestExecuteCommandDispatchesToRunner(t *testing.T) {
	tests := []struct {
		command string
		check   func(*fakeMigrationRunner) bool
	}{
		{"up", func(f *fakeMigrationRunner) bool { return f.upCalled }},
		{"down", func(f *fakeMigrationRunner) bool { return f.downCalled }},
		{"status", func(f *fakeMigrationRunner) bool { return f.statusCalled }},
		{"version", func(f *fakeMigrationRunner) bool { return f.versionCalled }},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			runner := &fakeMigrationRunner{}
			require.NoError(t, executeCommand(tt.command, runner, false))
			require.True(t, tt.check(runner))
		})
	}
}

func TestExecuteCommandDropRequiresForce(t *testing.T) {
	runner := &fakeMigrationRunner{}

	err := executeCommand("drop", runner, false)
	require.ErrorIs(t, err, ErrDropRequiresForce)
	require.False(t, runner.dropCalled)
}

func TestExecuteCommandDropWithForce(t *testing.T) {
	runner := &fakeMigrationRunner{}

	require.NoError(t, executeCommand("drop", runner, true))
	require.True(t, runner.dropCalled)
}

func TestExecuteCommandUnknown(t *testing.T) {
	runner := &fakeMigrationRunner{}

	err := executeCommand("nonsense", runner, false)
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestExecuteCommandPropagatesRunnerError(t *testing.T) {
	runner := &fakeMigrationRunner{err: errors.New("boom")}

	err := executeCommand("up", runner, false)
	require.Error(t, err)
}

func TestGetMaxSchemaVersionMatchesEmbeddedMigrations(t *testing.T) {
	require.Equal(t, 6, getMaxSchemaVersion())
}
