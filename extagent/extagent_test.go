package extagent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/slogtest"

	"github.com/chronohq/chrono/chronod/chronodtest"
	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbgen"
	"github.com/chronohq/chrono/chronosdk"
	"github.com/chronohq/chrono/extagent"
	"github.com/chronohq/chrono/testutil"
)

func newWorker(t *testing.T, deployment *chronodtest.Deployment) *extagent.Worker {
	t.Helper()
	worker := extagent.New(extagent.Options{
		Client: chronosdk.New(deployment.Client.URL),
		Logger: slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug),
	})
	t.Cleanup(func() { _ = worker.Close() })
	return worker
}

func awaitState(ctx context.Context, t *testing.T, updates <-chan extagent.Snapshot, want extagent.State) extagent.Snapshot {
	t.Helper()
	for {
		snapshot := testutil.RequireReceive(ctx, t, updates)
		if snapshot.State == want {
			return snapshot
		}
	}
}

func TestSetCredential(t *testing.T) {
	t.Parallel()

	t.Run("Rejected", func(t *testing.T) {
		t.Parallel()
		deployment := chronodtest.New(t, nil)
		ctx := testutil.Context(t, testutil.WaitShort)
		worker := newWorker(t, deployment)

		err := worker.SetCredential(ctx, "not-a-real-token")
		require.Error(t, err)
		require.Equal(t, extagent.StateUnauthenticated, worker.Snapshot().State)
	})

	t.Run("Idle", func(t *testing.T) {
		t.Parallel()
		deployment := chronodtest.New(t, nil)
		ctx := testutil.Context(t, testutil.WaitShort)
		worker := newWorker(t, deployment)

		err := worker.SetCredential(ctx, deployment.Client.SessionToken())
		require.NoError(t, err)
		require.Equal(t, extagent.StateIdle, worker.Snapshot().State)
	})

	t.Run("TimerAlreadyRunning", func(t *testing.T) {
		t.Parallel()
		deployment := chronodtest.New(t, nil)
		ctx := testutil.Context(t, testutil.WaitShort)

		_, err := deployment.Client.StartTimer(ctx, "me", chronosdk.StartTimerRequest{})
		require.NoError(t, err)

		worker := newWorker(t, deployment)
		require.NoError(t, worker.SetCredential(ctx, deployment.Client.SessionToken()))

		snapshot := worker.Snapshot()
		require.Equal(t, extagent.StateRunning, snapshot.State)
		require.NotNil(t, snapshot.Timer)
	})
}

func TestFollowsTimerEvents(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)
	worker := newWorker(t, deployment)

	require.NoError(t, worker.SetCredential(ctx, deployment.Client.SessionToken()))
	updates, stop := worker.Updates()
	defer stop()
	awaitState(ctx, t, updates, extagent.StateIdle)

	// Another device starts a timer; the worker follows along.
	_, err := deployment.Client.StartTimer(ctx, "me", chronosdk.StartTimerRequest{})
	require.NoError(t, err)
	snapshot := awaitState(ctx, t, updates, extagent.StateRunning)
	require.NotNil(t, snapshot.Timer)

	_, err = deployment.Client.StopTimer(ctx, "me")
	require.NoError(t, err)
	snapshot = awaitState(ctx, t, updates, extagent.StateIdle)
	require.Nil(t, snapshot.Timer)
}

func TestExpiredSessionSignsOut(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitLong)

	token := deployment.IssueSession(deployment.UserID, false)
	worker := newWorker(t, deployment)
	require.NoError(t, worker.SetCredential(ctx, token))

	updates, stop := worker.Updates()
	defer stop()
	awaitState(ctx, t, updates, extagent.StateIdle)

	// Revoke the worker's session, then force it to talk to the server by
	// publishing a shortcut change it must re-fetch.
	deployment.RevokeSession(token)
	task := dbgen.Task(t, deployment.DB, database.Task{})
	_, err := deployment.Client.CreateShortcut(ctx, "me", chronosdk.CreateShortcutRequest{TaskID: task.ID})
	require.NoError(t, err)

	awaitState(ctx, t, updates, extagent.StateUnauthenticated)
}
