// Package store provides storage backends for ClassPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ClassPipe/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN and
// runs migrations on open.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}

func (s *PostgresStore) GetUser(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	var className, jid sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT phone, name, role, class_name, jid FROM users WHERE phone = $1`, phone).
		Scan(&u.Phone, &u.Name, &u.Role, &className, &jid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query user %s: %w", phone, err)
	}
	u.ClassName = className.String
	u.JID = jid.String
	return &u, nil
}

func (s *PostgresStore) UpsertUserJID(ctx context.Context, phone, jid string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET jid = $1 WHERE phone = $2`, jid, phone)
	if err != nil {
		slog.Error("PostgresStore UpsertUserJID failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update jid for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) ListStudentsByClass(ctx context.Context, className string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, name, role, class_name, jid FROM users WHERE role = $1 AND class_name = $2 ORDER BY name`,
		models.RoleStudent, className)
	if err != nil {
		slog.Error("PostgresStore ListStudentsByClass query failed", "error", err, "class", className)
		return nil, fmt.Errorf("failed to query students of %s: %w", className, err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *PostgresStore) ListAllStudents(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, name, role, class_name, jid FROM users WHERE role = $1 ORDER BY class_name, name`,
		models.RoleStudent)
	if err != nil {
		slog.Error("PostgresStore ListAllStudents query failed", "error", err)
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *PostgresStore) ListClasses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT class_name FROM users WHERE role = $1 AND class_name IS NOT NULL AND class_name != '' ORDER BY class_name`,
		models.RoleStudent)
	if err != nil {
		slog.Error("PostgresStore ListClasses query failed", "error", err)
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

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO assignments (code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		a.Code, a.Title, a.Description, a.ClassName, a.Deadline,
		nilIfEmpty(a.AttachmentURL), nilIfEmpty(a.AnswerKeyURL), a.AutoGrade, a.TeacherPhone, a.CreatedAt).
		Scan(&a.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			slog.Warn("PostgresStore CreateAssignment duplicate code", "code", a.Code)
			return fmt.Errorf("%w: %s", models.ErrDuplicateCode, a.Code)
		}
		slog.Error("PostgresStore CreateAssignment failed", "error", err, "code", a.Code)
		return fmt.Errorf("failed to insert assignment %s: %w", a.Code, err)
	}
	slog.Debug("PostgresStore CreateAssignment succeeded", "code", a.Code, "id", a.ID)
	return nil
}

func (s *PostgresStore) GetAssignmentByCode(ctx context.Context, code string) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at
		 FROM assignments WHERE code = $1`, code)
	a, err := scanAssignmentRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAssignmentByCode failed", "error", err, "code", code)
		return nil, fmt.Errorf("failed to query assignment %s: %w", code, err)
	}
	return a, nil
}

func (s *PostgresStore) GetAssignmentByID(ctx context.Context, id int64) (*models.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at
		 FROM assignments WHERE id = $1`, id)
	a, err := scanAssignmentRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAssignmentByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query assignment %d: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssignmentsByTeacher(ctx context.Context, teacherPhone string, limit int) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, title, description, class_name, deadline, attachment_url, answer_key_url, auto_grade, teacher_phone, created_at
		 FROM assignments WHERE teacher_phone = $1 ORDER BY created_at DESC LIMIT $2`, teacherPhone, limit)
	if err != nil {
		slog.Error("PostgresStore ListAssignmentsByTeacher query failed", "error", err, "teacher", teacherPhone)
		return nil, fmt.Errorf("failed to query assignments for %s: %w", teacherPhone, err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (s *PostgresStore) ListOpenAssignments(ctx context.Context, studentPhone, className string) ([]models.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.code, a.title, a.description, a.class_name, a.deadline, a.attachment_url, a.answer_key_url, a.auto_grade, a.teacher_phone, a.created_at
		 FROM assignments a
		 JOIN assignment_statuses st ON st.assignment_id = a.id
		 WHERE st.student_phone = $1 AND st.status = $2 AND a.class_name = $3
		 ORDER BY a.deadline`, studentPhone, models.StatusPending, className)
	if err != nil {
		slog.Error("PostgresStore ListOpenAssignments query failed", "error", err, "student", studentPhone)
		return nil, fmt.Errorf("failed to query open assignments for %s: %w", studentPhone, err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (s *PostgresStore) CreateStatuses(ctx context.Context, assignmentID int64, phones []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin status fan-out: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, phone := range phones {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assignment_statuses (assignment_id, student_phone, status, updated_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (assignment_id, student_phone) DO NOTHING`,
			assignmentID, phone, models.StatusPending, now); err != nil {
			slog.Error("PostgresStore CreateStatuses insert failed", "error", err, "assignmentID", assignmentID, "phone", phone)
			return fmt.Errorf("failed to insert status row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status fan-out: %w", err)
	}
	slog.Debug("PostgresStore CreateStatuses succeeded", "assignmentID", assignmentID, "count", len(phones))
	return nil
}

func (s *PostgresStore) MarkStatusDone(ctx context.Context, assignmentID int64, studentPhone string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE assignment_statuses SET status = $1, updated_at = $2 WHERE assignment_id = $3 AND student_phone = $4`,
		models.StatusDone, time.Now(), assignmentID, studentPhone)
	if err != nil {
		slog.Error("PostgresStore MarkStatusDone failed", "error", err, "assignmentID", assignmentID, "phone", studentPhone)
		return fmt.Errorf("failed to mark status done: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertSubmission(ctx context.Context, sub *models.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, assignment_id, student_phone, file_url, submitted_at, grade, score, evaluation, graded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (assignment_id, student_phone) DO UPDATE SET
		   file_url = EXCLUDED.file_url,
		   submitted_at = EXCLUDED.submitted_at,
		   grade = NULL, score = NULL, evaluation = NULL, graded_at = NULL`,
		sub.ID, sub.AssignmentID, sub.StudentPhone, sub.FileURL, sub.SubmittedAt,
		nilIfEmpty(sub.Grade), sub.Score, nilIfEmpty(sub.Evaluation), sub.GradedAt)
	if err != nil {
		slog.Error("PostgresStore UpsertSubmission failed", "error", err, "assignmentID", sub.AssignmentID, "phone", sub.StudentPhone)
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	existing, err := s.GetSubmission(ctx, sub.AssignmentID, sub.StudentPhone)
	if err != nil {
		return err
	}
	if existing != nil {
		sub.ID = existing.ID
	}
	slog.Debug("PostgresStore UpsertSubmission succeeded", "id", sub.ID, "assignmentID", sub.AssignmentID)
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, assignmentID int64, studentPhone string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, assignment_id, student_phone, file_url, submitted_at, grade, score, evaluation, graded_at
		 FROM submissions WHERE assignment_id = $1 AND student_phone = $2`, assignmentID, studentPhone)
	sub, err := scanSubmissionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSubmission failed", "error", err, "assignmentID", assignmentID, "phone", studentPhone)
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubmissionsByStudent(ctx context.Context, studentPhone string) ([]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assignment_id, student_phone, file_url, submitted_at, grade, score, evaluation, graded_at
		 FROM submissions WHERE student_phone = $1 ORDER BY submitted_at DESC`, studentPhone)
	if err != nil {
		slog.Error("PostgresStore ListSubmissionsByStudent query failed", "error", err, "phone", studentPhone)
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

func (s *PostgresStore) ListRecapRows(ctx context.Context, assignmentID int64) ([]models.RecapRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.class_name, u.name, u.phone, a.code, a.title, a.deadline,
		        st.status, sub.submitted_at, sub.file_url, sub.evaluation, sub.grade, sub.score
		 FROM assignments a
		 JOIN users u ON u.class_name = a.class_name AND u.role = $1
		 JOIN assignment_statuses st ON st.assignment_id = a.id AND st.student_phone = u.phone
		 LEFT JOIN submissions sub ON sub.assignment_id = a.id AND sub.student_phone = u.phone
		 WHERE a.id = $2
		 ORDER BY u.name`, models.RoleStudent, assignmentID)
	if err != nil {
		slog.Error("PostgresStore ListRecapRows query failed", "error", err, "assignmentID", assignmentID)
		return nil, fmt.Errorf("failed to query recap rows: %w", err)
	}
	defer rows.Close()
	return scanRecapRows(rows)
}
