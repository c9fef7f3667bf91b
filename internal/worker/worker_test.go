package worker

import (
	"bytes"
	"context"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/composite"
	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/db/memdb"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/queue"
	"ieap-grade-sync/internal/storage"
	"ieap-grade-sync/pkg/errors"
)

type ingestionEnv struct {
	store   *memdb.Store
	files   *storage.MemoryStorage
	worker  *IngestionWorker
	course  model.Course
	learner model.User
	items   map[string]int64
}

func newIngestionEnv(t *testing.T) *ingestionEnv {
	t.Helper()
	ctx := context.Background()
	store := memdb.New()
	course := store.AddCourse(model.Course{ShortName: "ENG-101", FullName: "Academic English"})
	learner := store.AddUser(model.User{Email: "l@example.edu", FirstName: "Lea", LastName: "Rner"})
	store.AddUser(model.User{Email: "outsider@example.edu"})
	_, err := store.Enroll(ctx, course.ID, learner.ID, model.RoleStudent)
	require.NoError(t, err)

	grades := composite.NewService(store, auth.Unrestricted(), nil)
	res, err := grades.CreateStructure(ctx, auth.SystemActor, model.CreateStructureRequest{
		CourseID: course.ID,
		Structure: &model.Structure{
			Name: "Custom",
			Components: []model.Component{
				{Name: "Grammar", Weight: 0.6, Items: []model.Item{{Name: "G1", MaxGrade: 100}}},
				{Name: "Writing", Weight: 0.4, Items: []model.Item{{Name: "W1", MaxGrade: 100}, {Name: "W2", MaxGrade: 50}}},
			},
		},
	})
	require.NoError(t, err)

	items := make(map[string]int64)
	for _, c := range res.Components {
		for _, it := range c.Items {
			items[it.Name] = it.ID
		}
	}

	files := storage.NewMemoryStorage()
	return &ingestionEnv{
		store: store,
		files: files,
		worker: &IngestionWorker{
			repo:    store,
			storage: files,
			grades:  grades,
			log:     logger.Nop(),
		},
		course:  course,
		learner: learner,
		items:   items,
	}
}

// upload stores a sheet with the given rows and registers its file row.
func (e *ingestionEnv) upload(t *testing.T, rows [][]interface{}) model.IngestionJob {
	t.Helper()
	data := sheetBytes(t, rows)
	key := storage.ImportKey(e.course.ID, "grades.xlsx")
	require.NoError(t, e.files.Upload(context.Background(), key, "", bytes.NewReader(data)))
	id, err := e.store.CreateFile(context.Background(), &model.ImportFile{
		CourseID: e.course.ID, S3Path: key, Status: model.FileStatusUploaded,
	})
	require.NoError(t, err)
	return model.IngestionJob{FileID: id, S3Path: key, CourseID: e.course.ID, ActorID: auth.SystemActor}
}

func (e *ingestionEnv) grade(t *testing.T, item string) *float64 {
	t.Helper()
	g, err := e.store.FindGrade(context.Background(), e.items[item], e.learner.ID)
	require.NoError(t, err)
	if g == nil {
		return nil
	}
	return g.FinalGrade
}

func TestProcessFile_ImportsGrades(t *testing.T) {
	e := newIngestionEnv(t)
	job := e.upload(t, [][]interface{}{
		{"Email", "First name", "G1", "W2"},
		{"l@example.edu", "Lea", 80, 45},
	})

	require.NoError(t, e.worker.ProcessFile(context.Background(), job))

	f, err := e.store.GetFile(context.Background(), job.FileID)
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusImported, f.Status)
	assert.Equal(t, 1, f.TotalRecords)
	assert.Equal(t, 1, f.ImportedCount)
	assert.Nil(t, f.ErrorMessage)

	require.NotNil(t, e.grade(t, "G1"))
	assert.Equal(t, 80.0, *e.grade(t, "G1"))
	assert.Equal(t, 45.0, *e.grade(t, "W2"))
	assert.Nil(t, e.grade(t, "W1"))
}

func TestProcessFile_CSV(t *testing.T) {
	e := newIngestionEnv(t)
	key := storage.ImportKey(e.course.ID, "grades.csv")
	csv := "\xef\xbb\xbfEmail,G1,W1\nl@example.edu,70,\n"
	require.NoError(t, e.files.Upload(context.Background(), key, "text/csv", bytes.NewReader([]byte(csv))))
	id, err := e.store.CreateFile(context.Background(), &model.ImportFile{CourseID: e.course.ID, S3Path: key, Status: model.FileStatusUploaded})
	require.NoError(t, err)

	require.NoError(t, e.worker.ProcessFile(context.Background(), model.IngestionJob{
		FileID: id, S3Path: key, CourseID: e.course.ID, ActorID: auth.SystemActor,
	}))
	assert.Equal(t, 70.0, *e.grade(t, "G1"))
	assert.Nil(t, e.grade(t, "W1"))
}

func TestProcessFile_UnsupportedFormat(t *testing.T) {
	e := newIngestionEnv(t)
	key := storage.ImportKey(e.course.ID, "grades.pdf")
	require.NoError(t, e.files.Upload(context.Background(), key, "", bytes.NewReader([]byte("%PDF"))))
	id, err := e.store.CreateFile(context.Background(), &model.ImportFile{CourseID: e.course.ID, S3Path: key, Status: model.FileStatusUploaded})
	require.NoError(t, err)

	err = e.worker.ProcessFile(context.Background(), model.IngestionJob{FileID: id, S3Path: key, CourseID: e.course.ID, ActorID: auth.SystemActor})
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)
	f, err := e.store.GetFile(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusFailed, f.Status)
}

func TestProcessFile_FailsWholeSheet(t *testing.T) {
	tests := []struct {
		name string
		rows [][]interface{}
		want error
	}{
		{"unknown item column", [][]interface{}{{"Email", "G1", "Nope"}, {"l@example.edu", 80, 1}}, errors.ErrInvalidGradeItem},
		{"unknown learner", [][]interface{}{{"Email", "G1"}, {"l@example.edu", 80}, {"ghost@example.edu", 70}}, errors.ErrNotFound},
		{"learner not enrolled", [][]interface{}{{"Email", "G1"}, {"l@example.edu", 80}, {"outsider@example.edu", 70}}, errors.ErrUserNotEnrolled},
		{"score above max", [][]interface{}{{"Email", "G1", "W2"}, {"l@example.edu", 80, 60}}, errors.ErrInvalidGradeValue},
		{"no email column", [][]interface{}{{"Student", "G1"}, {"l@example.edu", 80}}, errors.ErrInvalidFileFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newIngestionEnv(t)
			job := e.upload(t, tt.rows)

			err := e.worker.ProcessFile(context.Background(), job)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			f, err := e.store.GetFile(context.Background(), job.FileID)
			require.NoError(t, err)
			assert.Equal(t, model.FileStatusFailed, f.Status)
			assert.Equal(t, 0, f.ImportedCount)
			require.NotNil(t, f.ErrorMessage)
			assert.Nil(t, e.grade(t, "G1"))
		})
	}
}

func TestProcessFile_MissingObject(t *testing.T) {
	e := newIngestionEnv(t)
	id, err := e.store.CreateFile(context.Background(), &model.ImportFile{CourseID: e.course.ID, S3Path: "gone", Status: model.FileStatusUploaded})
	require.NoError(t, err)

	err = e.worker.ProcessFile(context.Background(), model.IngestionJob{FileID: id, S3Path: "gone", CourseID: e.course.ID})
	assert.True(t, errors.Is(err, errors.ErrFileNotFound))

	f, err := e.store.GetFile(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.FileStatusFailed, f.Status)
}

type fakeSyncer struct {
	mu    gosync.Mutex
	calls []model.SyncRequest
	actor []int64
	resp  *model.SyncResponse
	err   error
	done  chan struct{}
}

func (f *fakeSyncer) SyncData(_ context.Context, actorID int64, req model.SyncRequest) (*model.SyncResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.actor = append(f.actor, actorID)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.resp, f.err
}

func TestPullAll_UsersThenEnrollmentsForTerm(t *testing.T) {
	syncer := &fakeSyncer{resp: &model.SyncResponse{
		Success: true,
		Results: model.SyncResults{
			Users:       &model.SyncUsersResult{Created: 2},
			Enrollments: &model.PullEnrollmentsResult{Enrolled: 3},
		},
	}}
	w := NewPullWorker(config.PullWorkerConfig{Interval: time.Hour, Term: "2026FA"}, syncer)

	require.NoError(t, w.PullAll(context.Background()))
	require.Len(t, syncer.calls, 1)
	assert.Equal(t, model.SyncTypeAll, syncer.calls[0].SyncType)
	assert.Equal(t, model.DirectionPull, syncer.calls[0].Direction)
	assert.Equal(t, "2026FA", syncer.calls[0].Term)
	assert.Equal(t, auth.SystemActor, syncer.actor[0])
}

func TestPullAll_ReturnsSyncError(t *testing.T) {
	syncer := &fakeSyncer{err: errors.ErrSISDisabled}
	w := NewPullWorker(config.PullWorkerConfig{Interval: time.Hour}, syncer)
	assert.True(t, errors.Is(w.PullAll(context.Background()), errors.ErrSISDisabled))
}

func TestPullWorker_RunOnStartAndStops(t *testing.T) {
	syncer := &fakeSyncer{resp: &model.SyncResponse{Success: true}, done: make(chan struct{}, 4)}
	w := NewPullWorker(config.PullWorkerConfig{Interval: time.Hour, RunOnStart: true}, syncer)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	select {
	case <-syncer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("initial pull did not run")
	}
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	w.Stop()
}

func TestWorkerPool_RunsEveryJob(t *testing.T) {
	pool := NewWorkerPool("test", 3)
	ctx := context.Background()
	pool.Start(ctx)

	var n int64
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(ctx, func(context.Context) error {
			atomic.AddInt64(&n, 1)
			return nil
		}))
	}
	pool.Stop()
	assert.Equal(t, int64(20), atomic.LoadInt64(&n))
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool("idle", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// not started: the buffer holds two jobs, the third must wait
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error { return nil }))
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error { return nil }))
	assert.ErrorIs(t, pool.Submit(ctx, func(context.Context) error { return nil }), context.Canceled)
}

func TestSyncWorker_RunsQueuedJob(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := queue.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })

	cfg := &config.Config{
		Redis:   config.RedisConfig{IngestionQueue: "ingest", SyncQueue: "sync", DLQSuffix: ":dlq"},
		Workers: config.WorkersConfig{Sync: config.SyncWorkerConfig{Count: 1}},
	}
	syncer := &fakeSyncer{resp: &model.SyncResponse{Success: true}, done: make(chan struct{}, 1)}
	w := NewSyncWorker(cfg, syncer, rc)

	courseID := int64(7)
	job := model.SyncJob{
		RequestID: "req-1",
		ActorID:   42,
		Request:   model.SyncRequest{SyncType: model.SyncTypeGrades, Direction: model.DirectionPush, CourseID: &courseID},
	}
	require.NoError(t, queue.NewProducer(rc, cfg.Redis).EnqueueSyncJob(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	select {
	case <-syncer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued sync job was not run")
	}
	cancel()
	<-errCh
	w.Stop()

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	require.Len(t, syncer.calls, 1)
	assert.Equal(t, int64(42), syncer.actor[0])
	assert.Equal(t, &courseID, syncer.calls[0].CourseID)
}

func sheetBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	name := f.GetSheetName(0)
	for i, r := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := r
		require.NoError(t, f.SetSheetRow(name, axis, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}
