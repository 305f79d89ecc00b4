// SPDX-License-Identifier: AGPL-3.0-or-later

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musergi/ospreid/internal/store"
	"github.com/musergi/ospreid/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ospreid.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqlstoreConformsToStore(t *testing.T) {
	storetest.Run(t, openTestStore(t))
}

// TestSqlstoreInit_ReapsOrphanedRunningExecutions simulates a process crash
// mid-execution: an execution left with status NULL across a restart must
// come back as Unknown with end_time set, not stay stuck Running forever.
func TestSqlstoreInit_ReapsOrphanedRunningExecutions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ospreid.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))

	jobID, err := s.CreateJob(ctx, "https://example.invalid/crash.git")
	require.NoError(t, err)
	execID, err := s.CreateExecution(ctx, jobID)
	require.NoError(t, err)

	status, err := s.ExecutionStatus(ctx, execID)
	require.NoError(t, err)
	assert.Nil(t, status, "execution is left Running, simulating a crash before completion")

	require.NoError(t, s.Close())

	restarted, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = restarted.Close() })
	require.NoError(t, restarted.Init(ctx))

	exec, err := restarted.Execution(ctx, execID)
	require.NoError(t, err)
	require.NotNil(t, exec.Status)
	assert.Equal(t, store.StatusUnknown, *exec.Status)
	require.NotNil(t, exec.EndTime, "reaped execution gets an end_time")
}
