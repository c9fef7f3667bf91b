package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/composite"
	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/db/memdb"
	"ieap-grade-sync/internal/mapping"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/storage"
	"ieap-grade-sync/pkg/errors"
)

type fakeSIS struct {
	imports     []model.GradeImportRequest
	importResp  string
	enrollments string
	users       string
}

func (f *fakeSIS) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/grades/import":
			var req model.GradeImportRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.imports = append(f.imports, req)
			_, _ = io.WriteString(w, f.importResp)
		case "/api/enrollments":
			_, _ = io.WriteString(w, f.enrollments)
		case "/api/users":
			_, _ = io.WriteString(w, f.users)
		default:
			http.NotFound(w, r)
		}
	}
}

type env struct {
	store   *memdb.Store
	sis     *fakeSIS
	srv     *httptest.Server
	svc     *Service
	archive *storage.MemoryStorage
	course  model.Course
	mapped  model.User
	other   model.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memdb.New()
	fake := &fakeSIS{
		importResp:  `{"success":[{"student_id":"S-1"}],"errors":[]}`,
		enrollments: `{"enrollments":[]}`,
		users:       `{"users":[]}`,
	}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	course := store.AddCourse(model.Course{ShortName: "ENG", FullName: "IEAP 2"})
	mapped := store.AddUser(model.User{Email: "mapped@x.edu", FirstName: "Map", LastName: "Ped"})
	other := store.AddUser(model.User{Email: "other@x.edu", FirstName: "Oth", LastName: "Er"})
	for _, u := range []model.User{mapped, other} {
		_, err := store.Enroll(ctx, course.ID, u.ID, model.RoleStudent)
		require.NoError(t, err)
	}

	maps := mapping.NewStore(store)
	code := "ENG-101"
	_, err := maps.Upsert(ctx, model.EntityCourse, course.ID, "C-9", &code)
	require.NoError(t, err)
	_, err = maps.Upsert(ctx, model.EntityUser, mapped.ID, "S-1", nil)
	require.NoError(t, err)

	grades := composite.NewService(store, auth.Unrestricted(), nil)
	_, err = grades.CreateStructure(ctx, auth.SystemActor, model.CreateStructureRequest{CourseID: course.ID, Level: model.LevelIEAP2})
	require.NoError(t, err)

	cfg := &config.Config{
		SIS:  testSISConfig(srv.URL),
		Sync: config.SyncConfig{ArchivePayload: true, ArchivePrefix: "sis-payloads", DefaultLang: "en", DefaultAuth: "manual"},
	}
	svc := NewService(cfg, store, NewClient(cfg.SIS), grades, auth.Unrestricted(), NewLocalLocker())
	archive := storage.NewMemoryStorage()
	svc.SetArchive(archive)

	return &env{store: store, sis: fake, srv: srv, svc: svc, archive: archive, course: course, mapped: mapped, other: other}
}

func TestPushGrades_SkipsUnmappedLearners(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.PushGrades(context.Background(), auth.SystemActor, e.course.ID, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []int64{e.other.ID}, res.Skipped)

	require.Len(t, e.sis.imports, 1)
	sent := e.sis.imports[0]
	assert.Equal(t, model.GradeImportAction, sent.Action)
	require.NotNil(t, sent.CourseCode)
	assert.Equal(t, "ENG-101", *sent.CourseCode)
	require.Len(t, sent.Grades, 1)
	assert.Equal(t, "S-1", sent.Grades[0].StudentID)
	assert.Nil(t, sent.Grades[0].CompositeGrade)
	assert.Len(t, sent.Grades[0].Components, 3)

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusSuccess, logs[0].Status)
	assert.Equal(t, 1, logs[0].RecordsProcessed)
	assert.Equal(t, 1, logs[0].RecordsSuccess)
	assert.Len(t, e.archive.Keys(), 1)
}

func TestPushGrades_RemoteErrorsMarkPartial(t *testing.T) {
	e := newEnv(t)
	e.sis.importResp = `{"success":[],"errors":[{"student_id":"S-1","error":"closed term"}]}`

	res, err := e.svc.PushGrades(context.Background(), auth.SystemActor, e.course.ID, nil)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusPartial, logs[0].Status)
	assert.Equal(t, 1, logs[0].RecordsFailed)
}

func TestPushGrades_UnreachableSIS(t *testing.T) {
	e := newEnv(t)
	e.srv.Close()

	_, err := e.svc.PushGrades(context.Background(), auth.SystemActor, e.course.ID, nil)
	var te *errors.TransportError
	require.True(t, errors.As(err, &te))

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusFailed, logs[0].Status)
	assert.Zero(t, logs[0].RecordsSuccess)
	require.NotNil(t, logs[0].ErrorMessage)
}

func TestPushGrades_NoMappedLearnersSkipsCall(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.PushGrades(context.Background(), auth.SystemActor, e.course.ID, &e.other.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Empty(t, e.sis.imports)
	assert.Len(t, e.store.SyncLogs(), 1)
}

func TestPullEnrollments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.sis.enrollments = `{"enrollments":[
		{"student":{"id":500,"email":"new@x.edu","first_name":"New","last_name":"One"},"course_code":"ENG-101"},
		{"student":{"id":"S-1","email":"mapped@x.edu"},"course_code":"ENG-101"},
		{"student":{"id":"S-7","email":"lost@x.edu"},"course_code":"NOPE"}
	]}`

	res, err := e.svc.PullEnrollments(ctx, auth.SystemActor, "2026S", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrolled)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.CoursesProcessed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "S-7", res.Errors[0].StudentID)
	assert.Equal(t, "NOPE", res.Errors[0].CourseCode)

	created, err := e.store.FindUserByEmail(ctx, "new@x.edu")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "manual", created.Auth)
	assert.True(t, created.Confirmed)
	enrolled, err := e.store.IsEnrolled(ctx, e.course.ID, created.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	// the failed record's user creation rolled back
	lost, err := e.store.FindUserByEmail(ctx, "lost@x.edu")
	require.NoError(t, err)
	assert.Nil(t, lost)

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusPartial, logs[0].Status)
	assert.Equal(t, 3, logs[0].RecordsProcessed)
	assert.Equal(t, 2, logs[0].RecordsSuccess)

	again, err := e.svc.PullEnrollments(ctx, auth.SystemActor, "2026S", "")
	require.NoError(t, err)
	assert.Zero(t, again.Enrolled)
	assert.Equal(t, 2, again.Unchanged)
}

func TestPullEnrollments_MalformedRecordIsPerRecord(t *testing.T) {
	e := newEnv(t)
	e.sis.enrollments = `{"enrollments":[
		{"student":{"id":true,"email":"odd@x.edu"},"course_code":"ENG-101"},
		{"student":{"id":"S-1","email":"mapped@x.edu"},"course_code":"ENG-101"}
	]}`

	res, err := e.svc.PullEnrollments(context.Background(), auth.SystemActor, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "true", res.Errors[0].StudentID)
	assert.Equal(t, "ENG-101", res.Errors[0].CourseCode)
	assert.Contains(t, res.Errors[0].Error, "malformed enrollment record")

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusPartial, logs[0].Status)
	assert.Equal(t, 2, logs[0].RecordsProcessed)
	assert.Equal(t, 1, logs[0].RecordsSuccess)
	assert.Equal(t, 1, logs[0].RecordsFailed)
}

func TestPullEnrollments_MalformedEnvelopeIsFatal(t *testing.T) {
	e := newEnv(t)
	e.sis.enrollments = `{"enrollments":{"student":"S-1"}}`

	_, err := e.svc.PullEnrollments(context.Background(), auth.SystemActor, "", "")
	var de *errors.DecodeError
	require.True(t, errors.As(err, &de))

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusFailed, logs[0].Status)
}

func TestPullEnrollments_UnreachableSIS(t *testing.T) {
	e := newEnv(t)
	e.srv.Close()

	_, err := e.svc.PullEnrollments(context.Background(), auth.SystemActor, "", "")
	var te *errors.TransportError
	require.True(t, errors.As(err, &te))

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncTypeEnrollments, logs[0].SyncType)
	assert.Equal(t, model.SyncStatusFailed, logs[0].Status)
	assert.Zero(t, logs[0].RecordsSuccess)
	require.NotNil(t, logs[0].ErrorMessage)
}

func TestSyncUsers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.sis.users = `{"users":[
		{"id":"S-1","email":"mapped@x.edu","first_name":"Renamed","last_name":"Person"},
		{"id":42,"email":"fresh@x.edu","username":"Fresh","first_name":"Fr","last_name":"Esh"},
		{"id":"S-9","email":""}
	]}`

	res, err := e.svc.SyncUsers(ctx, auth.SystemActor, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "S-9", res.Errors[0].UserID)

	renamed, err := e.store.FindUser(ctx, e.mapped.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.FirstName)

	fresh, err := e.store.FindUserByEmail(ctx, "fresh@x.edu")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, "fresh", fresh.Username)
	assert.Equal(t, "en", fresh.Lang)

	local, err := mapping.NewStore(e.store).ResolveReverse(ctx, model.EntityUser, "42")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, local)
}

func TestSyncUsers_MalformedRecordIsPerRecord(t *testing.T) {
	e := newEnv(t)
	e.sis.users = `{"users":[
		{"id":"S-5","email":"odd@x.edu","first_name":7},
		{"id":{},"email":"worse@x.edu"},
		{"id":42,"email":"fresh@x.edu","first_name":"Fr","last_name":"Esh"}
	]}`

	res, err := e.svc.SyncUsers(context.Background(), auth.SystemActor, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "S-5", res.Errors[0].UserID)
	assert.Equal(t, "odd@x.edu", res.Errors[0].Email)
	assert.Equal(t, "worse@x.edu", res.Errors[1].Email)

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncStatusPartial, logs[0].Status)
	assert.Equal(t, 3, logs[0].RecordsProcessed)
	assert.Equal(t, 1, logs[0].RecordsSuccess)
	assert.Equal(t, 2, logs[0].RecordsFailed)
}

func TestSyncUsers_UnreachableSIS(t *testing.T) {
	e := newEnv(t)
	e.srv.Close()

	_, err := e.svc.SyncUsers(context.Background(), auth.SystemActor, nil)
	var te *errors.TransportError
	require.True(t, errors.As(err, &te))

	logs := e.store.SyncLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.SyncTypeUsers, logs[0].SyncType)
	assert.Equal(t, model.SyncStatusFailed, logs[0].Status)
	assert.Zero(t, logs[0].RecordsSuccess)
	require.NotNil(t, logs[0].ErrorMessage)
}

func TestSyncUsers_MappingConflictIsPerRecord(t *testing.T) {
	e := newEnv(t)
	e.sis.users = `{"users":[{"id":"S-1","email":"other@x.edu"}]}`

	res, err := e.svc.SyncUsers(context.Background(), auth.SystemActor, nil)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error, errors.ErrMappingConflict.Error())
}

func TestSyncData_Preconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SyncData(ctx, auth.SystemActor, model.SyncRequest{SyncType: "marks", Direction: model.DirectionPush})
	assert.True(t, errors.Is(err, errors.ErrInvalidSyncType))

	_, err = e.svc.SyncData(ctx, auth.SystemActor, model.SyncRequest{SyncType: model.SyncTypeGrades, Direction: "sideways"})
	assert.True(t, errors.Is(err, errors.ErrInvalidDirection))

	_, err = e.svc.SyncData(ctx, auth.SystemActor, model.SyncRequest{SyncType: model.SyncTypeGrades, Direction: model.DirectionPush})
	assert.True(t, errors.Is(err, errors.ErrCourseIDRequired))

	e.svc.sisCfg.Enabled = false
	_, err = e.svc.SyncData(ctx, auth.SystemActor, model.SyncRequest{SyncType: model.SyncTypeUsers, Direction: model.DirectionPull})
	assert.True(t, errors.Is(err, errors.ErrSISDisabled))
	assert.Empty(t, e.store.SyncLogs())
}

func TestSyncData_PermissionDenied(t *testing.T) {
	e := newEnv(t)
	e.svc.authz = auth.NewChecker(e.store)

	_, err := e.svc.SyncData(context.Background(), e.other.ID, model.SyncRequest{SyncType: model.SyncTypeUsers, Direction: model.DirectionPull})
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))

	// authorization is checked before the request shape
	_, err = e.svc.SyncData(context.Background(), e.other.ID, model.SyncRequest{SyncType: "marks", Direction: "sideways"})
	assert.True(t, errors.Is(err, errors.ErrPermissionDenied))
}

func TestSyncData_AllBoth(t *testing.T) {
	e := newEnv(t)
	courseID := e.course.ID

	resp, err := e.svc.SyncData(context.Background(), auth.SystemActor, model.SyncRequest{
		SyncType:  model.SyncTypeAll,
		Direction: model.DirectionBoth,
		CourseID:  &courseID,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Results.Users)
	assert.NotNil(t, resp.Results.Enrollments)
	assert.NotNil(t, resp.Results.Grades)

	types := map[model.SyncType]int{}
	for _, l := range e.store.SyncLogs() {
		types[l.SyncType]++
	}
	assert.Equal(t, map[model.SyncType]int{model.SyncTypeUsers: 1, model.SyncTypeEnrollments: 1, model.SyncTypeGrades: 1}, types)
}

func TestSyncData_LockHeld(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	release, err := e.svc.locker.Acquire(ctx, string(model.SyncTypeUsers), false)
	require.NoError(t, err)
	defer release()

	req := model.SyncRequest{SyncType: model.SyncTypeUsers, Direction: model.DirectionPull}
	resp, err := e.svc.SyncData(ctx, auth.SystemActor, req)
	assert.True(t, errors.Is(err, errors.ErrSyncInProgress))
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Empty(t, e.store.SyncLogs())

	req.Force = true
	resp, err = e.svc.SyncData(ctx, auth.SystemActor, req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestSyncData_FailureKeepsEarlierResults(t *testing.T) {
	e := newEnv(t)
	e.sis.enrollments = `not json`

	resp, err := e.svc.SyncData(context.Background(), auth.SystemActor, model.SyncRequest{
		SyncType:  model.SyncTypeAll,
		Direction: model.DirectionPull,
	})
	var de *errors.DecodeError
	require.True(t, errors.As(err, &de))
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.NotNil(t, resp.Results.Users)
}

func TestPlan(t *testing.T) {
	course := int64(4)
	tests := []struct {
		name string
		req  model.SyncRequest
		want []Operation
	}{
		{"all both with course", model.SyncRequest{SyncType: model.SyncTypeAll, Direction: model.DirectionBoth, CourseID: &course}, []Operation{
			{model.SyncTypeUsers, model.DirectionPull},
			{model.SyncTypeEnrollments, model.DirectionPull},
			{model.SyncTypeGrades, model.DirectionPush},
		}},
		{"all both without course", model.SyncRequest{SyncType: model.SyncTypeAll, Direction: model.DirectionBoth}, []Operation{
			{model.SyncTypeUsers, model.DirectionPull},
			{model.SyncTypeEnrollments, model.DirectionPull},
		}},
		{"grades both pushes", model.SyncRequest{SyncType: model.SyncTypeGrades, Direction: model.DirectionBoth, CourseID: &course}, []Operation{
			{model.SyncTypeGrades, model.DirectionPush},
		}},
		{"users push does nothing", model.SyncRequest{SyncType: model.SyncTypeUsers, Direction: model.DirectionPush}, nil},
		{"grades pull does nothing", model.SyncRequest{SyncType: model.SyncTypeGrades, Direction: model.DirectionPull, CourseID: &course}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Plan(tt.req))
		})
	}
}

func TestValidateRequest(t *testing.T) {
	course := int64(3)
	assert.NoError(t, ValidateRequest(model.SyncRequest{SyncType: model.SyncTypeAll, Direction: model.DirectionBoth}))
	assert.NoError(t, ValidateRequest(model.SyncRequest{SyncType: model.SyncTypeGrades, Direction: model.DirectionPush, CourseID: &course}))
	assert.ErrorIs(t, ValidateRequest(model.SyncRequest{SyncType: model.SyncTypeGrades, Direction: model.DirectionPush}), errors.ErrCourseIDRequired)
	assert.ErrorIs(t, ValidateRequest(model.SyncRequest{SyncType: "courses", Direction: model.DirectionPull}), errors.ErrInvalidSyncType)
	assert.ErrorIs(t, ValidateRequest(model.SyncRequest{SyncType: model.SyncTypeUsers, Direction: "sideways"}), errors.ErrInvalidDirection)
}
