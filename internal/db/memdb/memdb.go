// Package memdb is an in-memory db.Repository for service tests and local
// tooling. Transactions are serialized and roll back by restoring a snapshot.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/pkg/errors"
)

type pair [2]int64

type grant struct {
	userID     int64
	courseID   *int64
	capability string
}

type state struct {
	nextID     int64
	structures []model.CompositeConfig
	categories map[int64]model.GradeCategory
	items      map[int64]model.GradeItem
	grades     map[pair]model.Grade
	users      map[int64]model.User
	courses    map[int64]model.Course
	enrolments map[pair]model.Enrollment
	grants     []grant
	mappings   []model.Mapping
	syncLogs   []model.SyncLog
	files      map[int64]model.ImportFile
}

func newState() *state {
	return &state{
		categories: map[int64]model.GradeCategory{},
		items:      map[int64]model.GradeItem{},
		grades:     map[pair]model.Grade{},
		users:      map[int64]model.User{},
		courses:    map[int64]model.Course{},
		enrolments: map[pair]model.Enrollment{},
		files:      map[int64]model.ImportFile{},
	}
}

func (s *state) clone() *state {
	out := &state{
		nextID:     s.nextID,
		structures: append([]model.CompositeConfig(nil), s.structures...),
		categories: make(map[int64]model.GradeCategory, len(s.categories)),
		items:      make(map[int64]model.GradeItem, len(s.items)),
		grades:     make(map[pair]model.Grade, len(s.grades)),
		users:      make(map[int64]model.User, len(s.users)),
		courses:    make(map[int64]model.Course, len(s.courses)),
		enrolments: make(map[pair]model.Enrollment, len(s.enrolments)),
		grants:     append([]grant(nil), s.grants...),
		mappings:   append([]model.Mapping(nil), s.mappings...),
		syncLogs:   append([]model.SyncLog(nil), s.syncLogs...),
		files:      make(map[int64]model.ImportFile, len(s.files)),
	}
	for k, v := range s.categories {
		out.categories[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.grades {
		out.grades[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.courses {
		out.courses[k] = v
	}
	for k, v := range s.enrolments {
		out.enrolments[k] = v
	}
	for k, v := range s.files {
		out.files[k] = v
	}
	return out
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type core struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	st     *state
	faults map[string]error
}

// Store implements db.Repository.
type Store struct {
	c    *core
	inTx bool
}

var _ db.Repository = (*Store)(nil)

func New() *Store {
	return &Store{c: &core{st: newState(), faults: map[string]error{}}}
}

// InjectFault makes every later call of the named method fail with err.
func (s *Store) InjectFault(method string, err error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.faults[method] = err
}

func (s *Store) ClearFaults() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.faults = map[string]error{}
}

// lock acquires the data mutex and returns the injected fault for method.
func (s *Store) lock(method string) (*state, error) {
	s.c.mu.Lock()
	if err := s.c.faults[method]; err != nil {
		return s.c.st, fmt.Errorf("%s: %w", method, err)
	}
	return s.c.st, nil
}

func (s *Store) unlock() { s.c.mu.Unlock() }

func (s *Store) WithTx(ctx context.Context, fn func(tx db.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	s.c.txMu.Lock()
	defer s.c.txMu.Unlock()

	s.c.mu.Lock()
	snapshot := s.c.st.clone()
	s.c.mu.Unlock()

	if err := fn(&Store{c: s.c, inTx: true}); err != nil {
		s.c.mu.Lock()
		s.c.st = snapshot
		s.c.mu.Unlock()
		return err
	}
	return nil
}

// Seeding helpers.

func (s *Store) AddCourse(c model.Course) model.Course {
	st, _ := s.lock("")
	defer s.unlock()
	if c.ID == 0 {
		c.ID = st.id()
	}
	st.courses[c.ID] = c
	return c
}

func (s *Store) AddUser(u model.User) model.User {
	st, _ := s.lock("")
	defer s.unlock()
	if u.ID == 0 {
		u.ID = st.id()
	}
	if u.Username == "" {
		u.Username = u.Email
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	st.users[u.ID] = u
	return u
}

// Grant gives a capability in a course, or system-wide when courseID is nil.
func (s *Store) Grant(userID int64, courseID *int64, capability string) {
	st, _ := s.lock("")
	defer s.unlock()
	st.grants = append(st.grants, grant{userID: userID, courseID: courseID, capability: capability})
}

// Inspection helpers.

func (s *Store) Structures() []model.CompositeConfig {
	st, _ := s.lock("")
	defer s.unlock()
	return append([]model.CompositeConfig(nil), st.structures...)
}

func (s *Store) CategoryCount(courseID int64) int {
	st, _ := s.lock("")
	defer s.unlock()
	n := 0
	for _, c := range st.categories {
		if c.CourseID == courseID {
			n++
		}
	}
	return n
}

func (s *Store) ItemCount(courseID int64) int {
	st, _ := s.lock("")
	defer s.unlock()
	n := 0
	for _, it := range st.items {
		if it.CourseID == courseID && it.ItemType == model.ItemTypeManual {
			n++
		}
	}
	return n
}

func (s *Store) EnrolmentCount() int {
	st, _ := s.lock("")
	defer s.unlock()
	return len(st.enrolments)
}

func (s *Store) SyncLogs() []model.SyncLog {
	st, _ := s.lock("")
	defer s.unlock()
	return append([]model.SyncLog(nil), st.syncLogs...)
}

func (s *Store) Mappings() []model.Mapping {
	st, _ := s.lock("")
	defer s.unlock()
	return append([]model.Mapping(nil), st.mappings...)
}

func (s *Store) Users() []model.User {
	st, _ := s.lock("")
	defer s.unlock()
	out := make([]model.User, 0, len(st.users))
	for _, u := range st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StructureRepository

func (s *Store) FindActiveStructure(ctx context.Context, courseID int64) (*model.CompositeConfig, error) {
	st, err := s.lock("FindActiveStructure")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	for _, cfg := range st.structures {
		if cfg.CourseID == courseID && cfg.Active {
			out := cfg
			out.Structure = cfg.Structure.Clone()
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertStructure(ctx context.Context, cfg *model.CompositeConfig) (int64, error) {
	st, err := s.lock("InsertStructure")
	defer s.unlock()
	if err != nil {
		return 0, err
	}
	for _, existing := range st.structures {
		if existing.CourseID == cfg.CourseID && existing.Active {
			return 0, errors.ErrStructureExists
		}
	}
	row := *cfg
	row.ID = st.id()
	row.Active = true
	row.Structure = cfg.Structure.Clone()
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	st.structures = append(st.structures, row)
	return row.ID, nil
}

func (s *Store) DeactivateStructure(ctx context.Context, courseID int64) (bool, error) {
	st, err := s.lock("DeactivateStructure")
	defer s.unlock()
	if err != nil {
		return false, err
	}
	changed := false
	for i := range st.structures {
		if st.structures[i].CourseID == courseID && st.structures[i].Active {
			st.structures[i].Active = false
			st.structures[i].UpdatedAt = time.Now()
			changed = true
		}
	}
	return changed, nil
}

// GradebookRepository

func (s *Store) EnsureCourseCategory(ctx context.Context, courseID int64) (*model.GradeCategory, error) {
	st, err := s.lock("EnsureCourseCategory")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	var root *model.GradeCategory
	for _, c := range st.categories {
		if c.CourseID == courseID && c.ParentID == nil && (root == nil || c.ID < root.ID) {
			c := c
			root = &c
		}
	}
	if root != nil {
		return root, nil
	}
	cat := createCategory(st, model.GradeCategory{
		CourseID: courseID, FullName: "?", Aggregation: model.AggregationNatural,
	}, model.ItemTypeCourse)
	return &cat, nil
}

func (s *Store) CreateCategory(ctx context.Context, cat *model.GradeCategory) (*model.GradeCategory, error) {
	st, err := s.lock("CreateCategory")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	out := createCategory(st, *cat, model.ItemTypeCategory)
	return &out, nil
}

func createCategory(st *state, cat model.GradeCategory, totalType model.ItemType) model.GradeCategory {
	cat.ID = st.id()
	cat.CreatedAt = time.Now()
	instance := cat.ID
	total := model.GradeItem{
		ID: st.id(), CourseID: cat.CourseID, ItemType: totalType,
		ItemInstance: &instance, GradeMin: 0, GradeMax: 100, CreatedAt: cat.CreatedAt,
	}
	st.items[total.ID] = total
	cat.TotalItemID = total.ID
	st.categories[cat.ID] = cat
	return cat
}

func (s *Store) FindCategory(ctx context.Context, id int64) (*model.GradeCategory, error) {
	st, err := s.lock("FindCategory")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	if c, ok := st.categories[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *Store) FindChildCategory(ctx context.Context, parentID int64, name string) (*model.GradeCategory, error) {
	st, err := s.lock("FindChildCategory")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	var found *model.GradeCategory
	for _, c := range st.categories {
		if c.ParentID != nil && *c.ParentID == parentID && c.FullName == name && (found == nil || c.ID < found.ID) {
			c := c
			found = &c
		}
	}
	return found, nil
}

func (s *Store) CreateItem(ctx context.Context, item *model.GradeItem) (*model.GradeItem, error) {
	st, err := s.lock("CreateItem")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	out := *item
	out.ID = st.id()
	out.CreatedAt = time.Now()
	st.items[out.ID] = out
	return &out, nil
}

func (s *Store) FindItem(ctx context.Context, id int64) (*model.GradeItem, error) {
	st, err := s.lock("FindItem")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	if it, ok := st.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (s *Store) findItem(method string, match func(model.GradeItem) bool) (*model.GradeItem, error) {
	st, err := s.lock(method)
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	var found *model.GradeItem
	for _, it := range st.items {
		if match(it) && (found == nil || it.ID < found.ID) {
			it := it
			found = &it
		}
	}
	return found, nil
}

func (s *Store) FindItemByName(ctx context.Context, categoryID int64, name string) (*model.GradeItem, error) {
	return s.findItem("FindItemByName", func(it model.GradeItem) bool {
		return it.CategoryID != nil && *it.CategoryID == categoryID && it.ItemName == name
	})
}

func (s *Store) FindCourseItemByName(ctx context.Context, courseID int64, name string) (*model.GradeItem, error) {
	return s.findItem("FindCourseItemByName", func(it model.GradeItem) bool {
		return it.CourseID == courseID && it.ItemName == name && it.ItemType == model.ItemTypeManual
	})
}

func (s *Store) FindGrade(ctx context.Context, itemID, userID int64) (*model.Grade, error) {
	st, err := s.lock("FindGrade")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	if g, ok := st.grades[pair{itemID, userID}]; ok {
		return &g, nil
	}
	return nil, nil
}

func (s *Store) UpsertGrade(ctx context.Context, itemID, userID int64, value *float64) error {
	st, err := s.lock("UpsertGrade")
	defer s.unlock()
	if err != nil {
		return err
	}
	g, ok := st.grades[pair{itemID, userID}]
	if !ok {
		g = model.Grade{ID: st.id(), ItemID: itemID, UserID: userID}
	}
	if value != nil {
		v := *value
		g.FinalGrade = &v
	} else {
		g.FinalGrade = nil
	}
	g.UpdatedAt = time.Now()
	st.grades[pair{itemID, userID}] = g
	return nil
}

// UserRepository

func (s *Store) FindUser(ctx context.Context, id int64) (*model.User, error) {
	st, err := s.lock("FindUser")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	if u, ok := st.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	st, err := s.lock("FindUserByEmail")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	var found *model.User
	for _, u := range st.users {
		if u.Email == email && (found == nil || u.ID < found.ID) {
			u := u
			found = &u
		}
	}
	return found, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	st, err := s.lock("CreateUser")
	defer s.unlock()
	if err != nil {
		return 0, err
	}
	for _, existing := range st.users {
		if existing.Username == u.Username {
			return 0, fmt.Errorf("failed to create user %q: duplicate username", u.Username)
		}
	}
	row := *u
	row.ID = st.id()
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	st.users[row.ID] = row
	return row.ID, nil
}

func (s *Store) UpdateUserNames(ctx context.Context, id int64, firstName, lastName string) error {
	st, err := s.lock("UpdateUserNames")
	defer s.unlock()
	if err != nil {
		return err
	}
	u, ok := st.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, errors.ErrNotFound)
	}
	u.FirstName, u.LastName, u.UpdatedAt = firstName, lastName, time.Now()
	st.users[id] = u
	return nil
}

func (s *Store) FindCourse(ctx context.Context, id int64) (*model.Course, error) {
	st, err := s.lock("FindCourse")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	if c, ok := st.courses[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *Store) IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error) {
	st, err := s.lock("IsEnrolled")
	defer s.unlock()
	if err != nil {
		return false, err
	}
	_, ok := st.enrolments[pair{courseID, userID}]
	return ok, nil
}

func (s *Store) Enroll(ctx context.Context, courseID, userID int64, role string) (bool, error) {
	st, err := s.lock("Enroll")
	defer s.unlock()
	if err != nil {
		return false, err
	}
	if _, ok := st.enrolments[pair{courseID, userID}]; ok {
		return false, nil
	}
	st.enrolments[pair{courseID, userID}] = model.Enrollment{
		CourseID: courseID, UserID: userID, Role: role, CreatedAt: time.Now(),
	}
	return true, nil
}

func (s *Store) ListEnrolledUsers(ctx context.Context, courseID int64) ([]model.User, error) {
	st, err := s.lock("ListEnrolledUsers")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	var users []model.User
	for k := range st.enrolments {
		if k[0] == courseID {
			if u, ok := st.users[k[1]]; ok {
				users = append(users, u)
			}
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastName != users[j].LastName {
			return users[i].LastName < users[j].LastName
		}
		if users[i].FirstName != users[j].FirstName {
			return users[i].FirstName < users[j].FirstName
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// MappingRepository

func (s *Store) findMapping(method string, match func(model.Mapping) bool) (*model.Mapping, error) {
	st, err := s.lock(method)
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	for _, m := range st.mappings {
		if m.Active && match(m) {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (s *Store) FindMappingByLocal(ctx context.Context, entity model.EntityType, localID int64) (*model.Mapping, error) {
	return s.findMapping("FindMappingByLocal", func(m model.Mapping) bool {
		return m.EntityType == entity && m.LocalID == localID
	})
}

func (s *Store) FindMappingByRemote(ctx context.Context, entity model.EntityType, remoteID string) (*model.Mapping, error) {
	return s.findMapping("FindMappingByRemote", func(m model.Mapping) bool {
		return m.EntityType == entity && m.RemoteID == remoteID
	})
}

func (s *Store) FindMappingByCode(ctx context.Context, entity model.EntityType, code string) (*model.Mapping, error) {
	return s.findMapping("FindMappingByCode", func(m model.Mapping) bool {
		return m.EntityType == entity && m.RemoteCode != nil && *m.RemoteCode == code
	})
}

func (s *Store) InsertMapping(ctx context.Context, m *model.Mapping) (int64, error) {
	st, err := s.lock("InsertMapping")
	defer s.unlock()
	if err != nil {
		return 0, err
	}
	for _, existing := range st.mappings {
		if !existing.Active || existing.EntityType != m.EntityType {
			continue
		}
		if existing.LocalID == m.LocalID || existing.RemoteID == m.RemoteID {
			return 0, fmt.Errorf("%w: %s local=%d remote=%s", errors.ErrMappingConflict, m.EntityType, m.LocalID, m.RemoteID)
		}
	}
	row := *m
	row.ID = st.id()
	row.Active = true
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	st.mappings = append(st.mappings, row)
	return row.ID, nil
}

func (s *Store) UpdateMapping(ctx context.Context, m *model.Mapping) error {
	st, err := s.lock("UpdateMapping")
	defer s.unlock()
	if err != nil {
		return err
	}
	idx := -1
	for i, existing := range st.mappings {
		if existing.ID == m.ID {
			idx = i
			continue
		}
		if existing.Active && existing.EntityType == m.EntityType && existing.RemoteID == m.RemoteID {
			return fmt.Errorf("%w: %s remote=%s already mapped", errors.ErrMappingConflict, m.EntityType, m.RemoteID)
		}
	}
	if idx < 0 {
		return fmt.Errorf("mapping %d: %w", m.ID, errors.ErrNotFound)
	}
	st.mappings[idx].RemoteID = m.RemoteID
	st.mappings[idx].RemoteCode = m.RemoteCode
	st.mappings[idx].UpdatedAt = time.Now()
	return nil
}

// SyncLogRepository

func (s *Store) InsertSyncLog(ctx context.Context, l *model.SyncLog) (int64, error) {
	st, err := s.lock("InsertSyncLog")
	defer s.unlock()
	if err != nil {
		return 0, err
	}
	row := *l
	row.ID = st.id()
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	st.syncLogs = append(st.syncLogs, row)
	return row.ID, nil
}

func (s *Store) UpdateSyncLog(ctx context.Context, l *model.SyncLog) error {
	st, err := s.lock("UpdateSyncLog")
	defer s.unlock()
	if err != nil {
		return err
	}
	for i := range st.syncLogs {
		if st.syncLogs[i].ID == l.ID {
			row := &st.syncLogs[i]
			row.RecordsProcessed = l.RecordsProcessed
			row.RecordsSuccess = l.RecordsSuccess
			row.RecordsFailed = l.RecordsFailed
			row.Status = l.Status
			row.ErrorMessage = l.ErrorMessage
			row.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("sync log %d: %w", l.ID, errors.ErrNotFound)
}

func (s *Store) ListSyncLogs(ctx context.Context, filter db.SyncLogFilter) ([]model.SyncLog, error) {
	st, err := s.lock("ListSyncLogs")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []model.SyncLog
	for i := len(st.syncLogs) - 1; i >= 0 && len(out) < limit; i-- {
		l := st.syncLogs[i]
		if filter.SyncType != "" && l.SyncType != filter.SyncType {
			continue
		}
		if filter.CourseID != nil && (l.CourseID == nil || *l.CourseID != *filter.CourseID) {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// FileRepository

func (s *Store) CreateFile(ctx context.Context, f *model.ImportFile) (int64, error) {
	st, err := s.lock("CreateFile")
	defer s.unlock()
	if err != nil {
		return 0, err
	}
	row := *f
	row.ID = st.id()
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	st.files[row.ID] = row
	return row.ID, nil
}

func (s *Store) GetFile(ctx context.Context, fileID int64) (*model.ImportFile, error) {
	st, err := s.lock("GetFile")
	defer s.unlock()
	if err != nil {
		return nil, err
	}
	f, ok := st.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errors.ErrFileNotFound, fileID)
	}
	return &f, nil
}

func (s *Store) UpdateFileStatus(ctx context.Context, fileID int64, status model.FileStatus, total, imported int, errorMessage *string) error {
	st, err := s.lock("UpdateFileStatus")
	defer s.unlock()
	if err != nil {
		return err
	}
	f, ok := st.files[fileID]
	if !ok {
		return fmt.Errorf("%w: %d", errors.ErrFileNotFound, fileID)
	}
	f.Status, f.TotalRecords, f.ImportedCount, f.ErrorMessage = status, total, imported, errorMessage
	f.UpdatedAt = time.Now()
	st.files[fileID] = f
	return nil
}

// CapabilityRepository

func (s *Store) HasCapability(ctx context.Context, userID, courseID int64, capability string) (bool, error) {
	st, err := s.lock("HasCapability")
	defer s.unlock()
	if err != nil {
		return false, err
	}
	for _, g := range st.grants {
		if g.userID == userID && g.capability == capability && (g.courseID == nil || *g.courseID == courseID) {
			return true, nil
		}
	}
	return false, nil
}
