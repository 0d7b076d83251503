package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/serviceline/internal/advisors"
	"github.com/serviceline/serviceline/internal/users"
	"github.com/serviceline/serviceline/jobs"
)

type stubReconciler struct {
	applied []bool
	report  advisors.Report
}

func (s *stubReconciler) Reconcile(ctx context.Context, showroomID, actorID int64, apply bool) (*advisors.Report, error) {
	s.applied = append(s.applied, apply)
	r := s.report
	r.ShowroomID = showroomID
	r.Applied = apply
	if apply {
		for _, p := range r.Proposals {
			r.AssignedRows += p.Rows
		}
	}
	return &r, nil
}

func (s *stubReconciler) ReconcileAll(ctx context.Context, apply bool) ([]advisors.Report, error) {
	r, err := s.Reconcile(ctx, 1, 0, apply)
	if err != nil {
		return nil, err
	}
	return []advisors.Report{*r}, nil
}

func pendingReport() advisors.Report {
	return advisors.Report{Plan: advisors.Plan{
		Proposals: []advisors.Proposal{{Name: "ravi", Rows: 4, UserID: 2, UserName: "Ravi Kumar", Policy: advisors.PolicySubstring}},
		Ambiguous: []advisors.Ambiguous{{Name: "Neha", Rows: 1, Candidates: []advisors.Candidate{{UserID: 3, Name: "Neha J"}, {UserID: 4, Name: "Neha P"}}}},
	}}
}

func TestBackfillDryRunReportsPending(t *testing.T) {
	svc := &stubReconciler{report: pendingReport()}
	stdout := new(bytes.Buffer)
	code := NewAdvisorsCLI(svc).BackfillCommand(context.Background(), BackfillOptions{ShowroomID: 5, Stdout: stdout, Stderr: io.Discard})
	assert.Equal(t, ExitPending, code)
	assert.Equal(t, []bool{false}, svc.applied)
	assert.Contains(t, stdout.String(), "Ravi Kumar (#2)")
	assert.Contains(t, stdout.String(), "ambiguous: Neha J, Neha P")
}

func TestBackfillApplyAsksForConfirmation(t *testing.T) {
	svc := &stubReconciler{report: pendingReport()}
	stderr := new(bytes.Buffer)
	code := NewAdvisorsCLI(svc).BackfillCommand(context.Background(), BackfillOptions{
		Apply:  true,
		Stdout: io.Discard,
		Stderr: stderr,
		Stdin:  strings.NewReader("n\n"),
	})
	assert.Equal(t, 1, code)
	assert.Equal(t, []bool{false}, svc.applied)
	assert.Contains(t, stderr.String(), "cancelled")

	svc.applied = nil
	stdout := new(bytes.Buffer)
	code = NewAdvisorsCLI(svc).BackfillCommand(context.Background(), BackfillOptions{
		Apply:      true,
		Yes:        true,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     io.Discard,
	})
	require.Zero(t, code)
	assert.Equal(t, []bool{false, true}, svc.applied)
	var reports []advisors.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Applied)
	assert.Equal(t, int64(4), reports[0].AssignedRows)
}

func TestBackfillNothingToDo(t *testing.T) {
	svc := &stubReconciler{}
	code := NewAdvisorsCLI(svc).BackfillCommand(context.Background(), BackfillOptions{Apply: true, Stdout: io.Discard, Stderr: io.Discard})
	assert.Zero(t, code)
	assert.Equal(t, []bool{false}, svc.applied)
}

type stubUsers struct {
	got users.CreateInput
	err error
}

func (s *stubUsers) CreateUser(ctx context.Context, in users.CreateInput) (int64, error) {
	s.got = in
	return 11, s.err
}

type stubShowrooms struct{ code string }

func (s *stubShowrooms) EnsureShowroom(ctx context.Context, code, name, city string) (int64, error) {
	s.code = code
	return 3, nil
}

func TestSeedCommand(t *testing.T) {
	u := &stubUsers{}
	sr := &stubShowrooms{}
	stdout := new(bytes.Buffer)
	code := NewUsersCLI(u, sr).SeedCommand(context.Background(), SeedOptions{
		ShowroomCode: "PUN01",
		City:         "Pune",
		Email:        "Owner@Example.com",
		Name:         "Owner",
		Password:     "long-enough",
		Roles:        "Owner | GM",
		Stdout:       stdout,
		Stderr:       io.Discard,
	})
	require.Zero(t, code)
	assert.Equal(t, "PUN01", sr.code)
	assert.Equal(t, int64(3), u.got.ShowroomID)
	assert.Contains(t, stdout.String(), "created user 11 (owner@example.com)")

	stderr := new(bytes.Buffer)
	code = NewUsersCLI(u, sr).SeedCommand(context.Background(), SeedOptions{ShowroomCode: "PUN01", Email: "bad", Stderr: stderr, Stdout: io.Discard})
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr.String())

	u.err = errors.New("duplicate entry")
	code = NewUsersCLI(u, sr).SeedCommand(context.Background(), SeedOptions{
		ShowroomCode: "PUN01", Email: "a@b.co", Name: "A", Password: "long-enough", Roles: "sa",
		Stdout: io.Discard, Stderr: io.Discard,
	})
	assert.Equal(t, 1, code)
}

type stubQueue struct {
	tasks []*asynq.Task
	info  map[string]*asynq.QueueInfo
}

func (s *stubQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (s *stubQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s.info[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (s *stubQueue) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func TestJobsTrigger(t *testing.T) {
	q := &stubQueue{}
	c := NewJobsCLIWith(q, q)

	_, err := c.Trigger(context.Background(), jobs.TaskRematch, TriggerOptions{ShowroomID: 1, City: "Pune"})
	require.NoError(t, err)
	_, err = c.Trigger(context.Background(), jobs.TaskAdvisorBackfill, TriggerOptions{Apply: true})
	require.NoError(t, err)
	require.Len(t, q.tasks, 2)
	assert.Equal(t, jobs.TaskRematch, q.tasks[0].Type())
	assert.JSONEq(t, `{"apply":true}`, string(q.tasks[1].Payload()))

	_, err = c.Trigger(context.Background(), jobs.TaskRematch, TriggerOptions{})
	assert.Error(t, err)
	_, err = c.Trigger(context.Background(), "mail:send", TriggerOptions{})
	assert.Error(t, err)
}

func TestJobsTriggerProcessUpload(t *testing.T) {
	q := &stubQueue{}
	c := NewJobsCLIWith(q, q)

	_, err := c.Trigger(context.Background(), jobs.TaskProcessUpload, TriggerOptions{UploadID: "not-a-uuid"})
	assert.Error(t, err)

	id := "0b8f8a56-3a43-4c3f-9a59-1c2d6f3e4a10"
	_, err = c.Trigger(context.Background(), jobs.TaskProcessUpload, TriggerOptions{UploadID: id})
	require.NoError(t, err)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, jobs.TaskProcessUpload, q.tasks[0].Type())
	assert.JSONEq(t, `{"upload_id":"`+id+`"}`, string(q.tasks[0].Payload()))
}

func TestInspectQueues(t *testing.T) {
	q := &stubQueue{info: map[string]*asynq.QueueInfo{jobs.QueueDefault: {Pending: 2, Retry: 1}}}
	stats, err := NewJobsCLIWith(q, q).InspectQueues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []QueueStats{
		{Queue: jobs.QueueUploads},
		{Queue: jobs.QueueDefault, Pending: 2, Retry: 1},
	}, stats)
}
