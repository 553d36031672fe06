// Package store provides storage backends for ClassPipe.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/ClassPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; its directory is created when missing, and migrations run on
// open.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func (s *SQLiteStore) GetUser(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	var className, jid sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT phone, name, role, class_name, jid FROM users WHERE phone = ?`, phone).
		Scan(&u.Phone, &u.Name, &u.Role, &className, &jid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user %s: %w", phone, err)
	}
	u.ClassName = className.String
	u.JID = jid.String
	return &u, nil
}

func (s *SQLiteStore) UpsertUserJID(ctx context.Context, phone, jid string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET jid = ? WHERE phone = ?`, jid, phone)
	if err != nil {
		slog.Error("SQLiteStore UpsertUserJID failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update jid for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) ListStudentsByClass(ctx context.Context, className string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, name, role, class_name, jid FROM users WHERE role = ? AND class_name = ? ORDER BY name`,
		models.RoleStudent, className)
	if err != nil {
		slog.Error("SQLiteStore ListStudentsByClass query failed", "error", err, "class", className)
		return nil, fmt.Errorf("failed to query students of %s: %w", className, err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *SQLiteStore) ListAllStudents(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, name, role, class_name, jid FROM users WHERE role = ? ORDER BY class_name, name`,
		models.RoleStudent)
	if err != nil {
		slog.Error("SQLiteStore ListAllStudents query failed", "error", err)
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *SQLiteStore) ListClasses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT class_name FROM users WHERE role = ? AND class_name IS NOT NULL AND class_name != '' ORDER BY class_name`,
		models.RoleStudent)
	if err != nil {
		slog.Error("SQLiteStore ListClasses query failed", "error", err)
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan class row: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Code, a.Title, a.Description, a.ClassName, a.Deadline,
		nilIfEmpty(a.AttachmentURL), nilIfEmpty(a.AnswerKeyURL), a.AutoGrade, a.TeacherPhone, a.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			slog.Warn("SQLiteStore CreateAssignment duplicate code", "code", a.Code)
			return fmt.Errorf("%w: %s", models.ErrDuplicateCode, a.Code)
		}
		slog.Error("SQLiteStore CreateAssignment failed", "error", err, "code", a.Code)
		return fmt.Errorf("failed to insert assignment %s: %w", a.Code, err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read assignment id for %s: %w", a.Code, err)
	}
	slog.Debug("SQLiteStore CreateAssignment succeeded", "code", a.Code, "id", a.ID)
	return nil
}

func (s *SQLiteStore) GetAssignmentByCode(ctx context.Context, code string) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at
		 FROM assignments WHERE code = ?`, code)
	a, err := scanAssignmentRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAssignmentByCode failed", "error", err, "code", code)
		return nil, fmt.Errorf("failed to query assignment %s: %w", code, err)
	}
	return a, nil
}

func (s *SQLiteStore) GetAssignmentByID(ctx context.Context, id int64) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at
		 FROM assignments WHERE id = ?`, id)
	a, err := scanAssignmentRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAssignmentByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query assignment %d: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteStore) ListAssignmentsByTeacher(ctx context.Context, teacherPhone string, limit int) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at
		 FROM assignments WHERE teacher_phone = ? ORDER BY created_at DESC LIMIT ?`, teacherPhone, limit)
	if err != nil {
		slog.Error("SQLiteStore ListAssignmentsByTeacher query failed", "error", err, "teacher", teacherPhone)
		return nil, fmt.Errorf("failed to query assignments for %s: %w", teacherPhone, err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (s *SQLiteStore) ListOpenAssignments(ctx context.Context, studentPhone, className string) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.code, a.title, a.description, a.class_name, a.deadline, a.attachment_url, a.answer_key_url, a.auto_grade, a.teacher_phone, a.created_at
		 FROM assignments a
		 JOIN assignment_statuses st ON st.assignment_id = a.id
		 WHERE st.student_phone = ? AND st.status = ? AND a.class_name = ?
		 ORDER BY a.deadline`, studentPhone, models.StatusPending, className)
	if err != nil {
		slog.Error("SQLiteStore ListOpenAssignments query failed", "error", err, "student", studentPhone)
		return nil, fmt.Errorf("failed to query open assignments for %s: %w", studentPhone, err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (s *SQLiteStore) CreateStatuses(ctx context.Context, assignmentID int64, phones []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status fan-out: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, phone := range phones {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO assignment_statuses (assignment_id, student_phone, status, updated_at) VALUES (?, ?, ?, ?)`,
			assignmentID, phone, models.StatusPending, now); err != nil {
			slog.Error("SQLiteStore CreateStatuses insert failed", "error", err, "assignmentID", assignmentID, "phone", phone)
			return fmt.Errorf("failed to insert status row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status fan-out: %w", err)
	}
	slog.Debug("SQLiteStore CreateStatuses succeeded", "assignmentID", assignmentID, "count", len(phones))
	return nil
}

func (s *SQLiteStore) MarkStatusDone(ctx context.Context, assignmentID int64, studentPhone string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE assignment_statuses SET status = ?, updated_at = ? WHERE assignment_id = ? AND student_phone = ?`,
		models.StatusDone, time.Now(), assignmentID, studentPhone)
	if err != nil {
		slog.Error("SQLiteStore MarkStatusDone failed", "error", err, "assignmentID", assignmentID, "phone", studentPhone)
		return fmt.Errorf("failed to mark status done: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSubmission(ctx context.Context, sub *models.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, assignment_id, student_phone, file_url, submitted_at, grade, score, evaluation, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (assignment_id, student_phone) DO UPDATE SET
		   file_url = excluded.file_url,
		   submitted_at = excluded.submitted_at,
		   grade = NULL, score = NULL, evaluation = NULL, graded_at = NULL`,
		sub.ID, sub.AssignmentID, sub.StudentPhone, sub.FileURL, sub.SubmittedAt,
		nilIfEmpty(sub.Grade), sub.Score, nilIfEmpty(sub.Evaluation), sub.GradedAt)
	if err != nil {
		slog.Error("SQLiteStore UpsertSubmission failed", "error", err, "assignmentID", sub.AssignmentID, "phone", sub.StudentPhone)
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	// A resubmission keeps the original row ID; read it back.
	existing, err := s.GetSubmission(ctx, sub.AssignmentID, sub.StudentPhone)
	if err != nil {
		return err
	}
	if existing != nil {
		sub.ID = existing.ID
	}
	slog.Debug("SQLiteStore UpsertSubmission succeeded", "id", sub.ID, "assignmentID", sub.AssignmentID)
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, assignmentID int64, studentPhone string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, assignment_id, student_phone, file_url, submitted_at, grade, score, evaluation, graded_at
		 FROM submissions WHERE assignment_id = ? AND student_phone = ?`, assignmentID, studentPhone)
	sub, err := scanSubmissionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSubmission failed", "error", err, "assignmentID", assignmentID, "phone", studentPhone)
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}
	return sub, nil
}

func (s *SQLiteStore) ListSubmissionsByStudent(ctx context.Context, studentPhone string) ([]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assignment_id, student_phone, file_url, submitted_at, grade, score, evaluation, graded_at
		 FROM submissions WHERE student_phone = ? ORDER BY submitted_at DESC`, studentPhone)
	if err != nil {
		slog.Error("SQLiteStore ListSubmissionsByStudent query failed", "error", err, "phone", studentPhone)
		return nil, fmt.Errorf("failed to query submissions for %s: %w", studentPhone, err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStore) ListRecapRows(ctx context.Context, assignmentID int64) ([]models.RecapRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.class_name, u.name, u.phone, a.code, a.title, a.deadline,
		        st.status, sub.submitted_at, sub.file_url, sub.evaluation, sub.grade, sub.score
		 FROM assignments a
		 JOIN users u ON u.class_name = a.class_name AND u.role = ?
		 JOIN assignment_statuses st ON st.assignment_id = a.id AND st.student_phone = u.phone
		 LEFT JOIN submissions sub ON sub.assignment_id = a.id AND sub.student_phone = u.phone
		 WHERE a.id = ?
		 ORDER BY u.name`, models.RoleStudent, assignmentID)
	if err != nil {
		slog.Error("SQLiteStore ListRecapRows query failed", "error", err, "assignmentID", assignmentID)
		return nil, fmt.Errorf("failed to query recap rows: %w", err)
	}
	defer rows.Close()
	return scanRecapRows(rows)
}

func scanUsers(rows *sql.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		var className, jid sql.NullString
		if err := rows.Scan(&u.Phone, &u.Name, &u.Role, &className, &jid); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u.ClassName = className.String
		u.JID = jid.String
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanAssignments(rows *sql.Rows) ([]models.Assignment, error) {
	var out []models.Assignment
	for rows.Next() {
		var a models.Assignment
		var attachment, answerKey sql.NullString
		if err := rows.Scan(&a.ID, &a.Code, &a.Title, &a.Description, &a.ClassName, &a.Deadline,
			&attachment, &answerKey, &a.AutoGrade, &a.TeacherPhone, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		a.AttachmentURL = attachment.String
		a.AnswerKeyURL = answerKey.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignmentRow(row *sql.Row) (*models.Assignment, error) {
	var a models.Assignment
	var attachment, answerKey sql.NullString
	if err := row.Scan(&a.ID, &a.Code, &a.Title, &a.Description, &a.ClassName, &a.Deadline,
		&attachment, &answerKey, &a.AutoGrade, &a.TeacherPhone, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.AttachmentURL = attachment.String
	a.AnswerKeyURL = answerKey.String
	return &a, nil
}

func scanSubmission(rows *sql.Rows) (*models.Submission, error) {
	var sub models.Submission
	var grade, evaluation sql.NullString
	var score sql.NullFloat64
	var gradedAt sql.NullTime
	if err := rows.Scan(&sub.ID, &sub.AssignmentID, &sub.StudentPhone, &sub.FileURL, &sub.SubmittedAt,
		&grade, &score, &evaluation, &gradedAt); err != nil {
		return nil, fmt.Errorf("failed to scan submission row: %w", err)
	}
	applySubmissionNulls(&sub, grade, score, evaluation, gradedAt)
	return &sub, nil
}

func scanSubmissionRow(row *sql.Row) (*models.Submission, error) {
	var sub models.Submission
	var grade, evaluation sql.NullString
	var score sql.NullFloat64
	var gradedAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.AssignmentID, &sub.StudentPhone, &sub.FileURL, &sub.SubmittedAt,
		&grade, &score, &evaluation, &gradedAt); err != nil {
		return nil, err
	}
	applySubmissionNulls(&sub, grade, score, evaluation, gradedAt)
	return &sub, nil
}

func applySubmissionNulls(sub *models.Submission, grade sql.NullString, score sql.NullFloat64, evaluation sql.NullString, gradedAt sql.NullTime) {
	sub.Grade = grade.String
	sub.Evaluation = evaluation.String
	if score.Valid {
		v := score.Float64
		sub.Score = &v
	}
	if gradedAt.Valid {
		t := gradedAt.Time
		sub.GradedAt = &t
	}
}

func scanRecapRows(rows *sql.Rows) ([]models.RecapRow, error) {
	var out []models.RecapRow
	for rows.Next() {
		var r models.RecapRow
		var submittedAt sql.NullTime
		var fileURL, evaluation, grade sql.NullString
		var score sql.NullFloat64
		if err := rows.Scan(&r.ClassName, &r.StudentName, &r.Phone, &r.Code, &r.Title, &r.Deadline,
			&r.Status, &submittedAt, &fileURL, &evaluation, &grade, &score); err != nil {
			return nil, fmt.Errorf("failed to scan recap row: %w", err)
		}
		if submittedAt.Valid {
			t := submittedAt.Time
			r.SubmittedAt = &t
		}
		r.FileURL = fileURL.String
		r.Evaluation = evaluation.String
		r.Grade = grade.String
		if score.Valid {
			v := score.Float64
			r.Score = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
