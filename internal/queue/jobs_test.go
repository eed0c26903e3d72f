package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func optionTypes(opts []asynq.Option) []asynq.OptionType {
	types := make([]asynq.OptionType, 0, len(opts))
	for _, o := range opts {
		types = append(types, o.Type())
	}
	return types
}

func TestEnqueueWarmUsesUniqueLock(t *testing.T) {
	fe := &fakeEnqueuer{}
	require.NoError(t, NewClient(fe).EnqueueWarm(context.Background(), "DEMO"))

	require.Len(t, fe.tasks, 1)
	assert.Equal(t, WarmArchiveTask, fe.tasks[0].Type())
	payload, err := DecodeFolderPayload(fe.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "DEMO", payload.FolderID)

	types := optionTypes(fe.opts[0])
	assert.Contains(t, types, asynq.UniqueOpt)
	assert.NotContains(t, types, asynq.TaskIDOpt)
}

func TestEnqueueWarmDuplicateIsAccepted(t *testing.T) {
	fe := &fakeEnqueuer{err: asynq.ErrDuplicateTask}
	assert.NoError(t, NewClient(fe).EnqueueWarm(context.Background(), "DEMO"))
}

func TestEnqueueReturnsConflictsAndFailures(t *testing.T) {
	fe := &fakeEnqueuer{err: asynq.ErrTaskIDConflict}
	err := NewClient(fe).EnqueueWarm(context.Background(), "DEMO")
	assert.ErrorIs(t, err, asynq.ErrTaskIDConflict)

	boom := errors.New("redis down")
	fe.err = boom
	err = NewClient(fe).EnqueuePurge(context.Background(), "DEMO")
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, PurgeFolderTask)
}

func TestDecodeFolderPayloadRequiresFolder(t *testing.T) {
	_, err := DecodeFolderPayload(asynq.NewTask(PurgeFolderTask, []byte(`{}`)))
	assert.ErrorContains(t, err, "missing folder_id")

	_, err = DecodeFolderPayload(asynq.NewTask(PurgeFolderTask, []byte(`not json`)))
	assert.Error(t, err)
}
