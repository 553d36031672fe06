// Package store provides storage backends for ClassPipe.
//
// This file implements an in-memory store used by tests and by runs without
// a configured database. It honors the same code-uniqueness contract as the
// SQL backends.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]models.User
	assignments []models.Assignment
	statuses    map[string]models.AssignmentStatus // key assignmentID/phone
	submissions map[string]models.Submission       // key assignmentID/phone
	nextID      int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]models.User),
		statuses:    make(map[string]models.AssignmentStatus),
		submissions: make(map[string]models.Submission),
		nextID:      1,
	}
}

// AddUser seeds a user (test helper).
func (s *MemoryStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Phone] = u
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetUser(ctx context.Context, phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[phone]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryStore) UpsertUserJID(ctx context.Context, phone, jid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[phone]; ok {
		u.JID = jid
		s.users[phone] = u
	}
	return nil
}

func (s *MemoryStore) ListStudentsByClass(ctx context.Context, className string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == models.RoleStudent && u.ClassName == className {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListAllStudents(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == models.RoleStudent {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClassName != out[j].ClassName {
			return out[i].ClassName < out[j].ClassName
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) ListClasses(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, u := range s.users {
		if u.Role == models.RoleStudent && u.ClassName != "" && !seen[u.ClassName] {
			seen[u.ClassName] = true
			out = append(out, u.ClassName)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.Code == a.Code {
			return fmt.Errorf("%w: %s", models.ErrDuplicateCode, a.Code)
		}
	}
	a.ID = s.nextID
	s.nextID++
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.assignments = append(s.assignments, *a)
	return nil
}

func (s *MemoryStore) GetAssignmentByCode(ctx context.Context, code string) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assignments {
		if a.Code == code {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetAssignmentByID(ctx context.Context, id int64) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.getAssignmentByID(id)
	if !ok {
		return nil, nil
	}
	out := a
	return &out, nil
}

func (s *MemoryStore) getAssignmentByID(id int64) (models.Assignment, bool) {
	for _, a := range s.assignments {
		if a.ID == id {
			return a, true
		}
	}
	return models.Assignment{}, false
}

func (s *MemoryStore) ListAssignmentsByTeacher(ctx context.Context, teacherPhone string, limit int) ([]models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Assignment
	for i := len(s.assignments) - 1; i >= 0 && len(out) < limit; i-- {
		if s.assignments[i].TeacherPhone == teacherPhone {
			out = append(out, s.assignments[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOpenAssignments(ctx context.Context, studentPhone, className string) ([]models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Assignment
	for _, a := range s.assignments {
		if a.ClassName != className {
			continue
		}
		st, ok := s.statuses[statusKey(a.ID, studentPhone)]
		if ok && st.Status == models.StatusPending {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (s *MemoryStore) CreateStatuses(ctx context.Context, assignmentID int64, phones []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, phone := range phones {
		key := statusKey(assignmentID, phone)
		if _, exists := s.statuses[key]; exists {
			continue
		}
		s.statuses[key] = models.AssignmentStatus{
			AssignmentID: assignmentID,
			StudentPhone: phone,
			Status:       models.StatusPending,
			UpdatedAt:    time.Now(),
		}
	}
	return nil
}

func (s *MemoryStore) MarkStatusDone(ctx context.Context, assignmentID int64, studentPhone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := statusKey(assignmentID, studentPhone)
	if st, ok := s.statuses[key]; ok {
		st.Status = models.StatusDone
		st.UpdatedAt = time.Now()
		s.statuses[key] = st
	}
	return nil
}

func (s *MemoryStore) UpsertSubmission(ctx context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := statusKey(sub.AssignmentID, sub.StudentPhone)
	if existing, ok := s.submissions[key]; ok {
		sub.ID = existing.ID
	}
	stored := *sub
	stored.Grade = ""
	stored.Score = nil
	stored.Evaluation = ""
	stored.GradedAt = nil
	s.submissions[key] = stored
	return nil
}

// SetGradingResult simulates the external grader writing back (test helper).
func (s *MemoryStore) SetGradingResult(assignmentID int64, studentPhone, grade string, score float64, evaluation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := statusKey(assignmentID, studentPhone)
	if sub, ok := s.submissions[key]; ok {
		now := time.Now()
		sub.Grade = grade
		sub.Score = &score
		sub.Evaluation = evaluation
		sub.GradedAt = &now
		s.submissions[key] = sub
	}
}

func (s *MemoryStore) GetSubmission(ctx context.Context, assignmentID int64, studentPhone string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[statusKey(assignmentID, studentPhone)]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *MemoryStore) ListSubmissionsByStudent(ctx context.Context, studentPhone string) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Submission
	for _, sub := range s.submissions {
		if sub.StudentPhone == studentPhone {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemoryStore) ListRecapRows(ctx context.Context, assignmentID int64) ([]models.RecapRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.getAssignmentByID(assignmentID)
	if !ok {
		return nil, fmt.Errorf("%w: assignment %d", models.ErrNotFound, assignmentID)
	}

	var out []models.RecapRow
	for _, u := range s.users {
		if u.Role != models.RoleStudent || u.ClassName != a.ClassName {
			continue
		}
		st, ok := s.statuses[statusKey(a.ID, u.Phone)]
		if !ok {
			continue
		}
		row := models.RecapRow{
			ClassName:   u.ClassName,
			StudentName: u.Name,
			Phone:       u.Phone,
			Code:        a.Code,
			Title:       a.Title,
			Deadline:    a.Deadline,
			Status:      st.Status,
		}
		if sub, ok := s.submissions[statusKey(a.ID, u.Phone)]; ok {
			t := sub.SubmittedAt
			row.SubmittedAt = &t
			row.FileURL = sub.FileURL
			row.Evaluation = sub.Evaluation
			row.Grade = sub.Grade
			row.Score = sub.Score
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, nil
}

func statusKey(assignmentID int64, phone string) string {
	return fmt.Sprintf("%d/%s", assignmentID, phone)
}
