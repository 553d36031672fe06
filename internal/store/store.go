// Package store provides storage backends for ClassPipe.
//
// It defines the persistent Store interface consumed by the bot engine and
// API, with SQLite and PostgreSQL implementations plus an in-memory store
// for tests. The assignment-code uniqueness constraint lives here: the
// database is the authoritative duplicate guard, wizard pre-checks are only
// a fast path.
package store

import (
	"context"
	"strings"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

// Store is the persistence surface for users, assignments, statuses and
// submissions.
type Store interface {
	// GetUser returns the user for a canonical phone, or nil when unknown.
	GetUser(ctx context.Context, phone string) (*models.User, error)
	UpsertUserJID(ctx context.Context, phone, jid string) error
	ListStudentsByClass(ctx context.Context, className string) ([]models.User, error)
	ListAllStudents(ctx context.Context) ([]models.User, error)
	ListClasses(ctx context.Context) ([]string, error)

	// CreateAssignment inserts the assignment and fills in its ID. Returns
	// models.ErrDuplicateCode when the unique code constraint fires.
	CreateAssignment(ctx context.Context, a *models.Assignment) error
	GetAssignmentByCode(ctx context.Context, code string) (*models.Assignment, error)
	GetAssignmentByID(ctx context.Context, id int64) (*models.Assignment, error)
	ListAssignmentsByTeacher(ctx context.Context, teacherPhone string, limit int) ([]models.Assignment, error)
	// ListOpenAssignments returns assignments in the student's class whose
	// status row for that student is still pending.
	ListOpenAssignments(ctx context.Context, studentPhone, className string) ([]models.Assignment, error)

	// CreateStatuses fans out pending status rows, skipping existing pairs.
	CreateStatuses(ctx context.Context, assignmentID int64, phones []string) error
	MarkStatusDone(ctx context.Context, assignmentID int64, studentPhone string) error

	// UpsertSubmission inserts or replaces the submission keyed by
	// (assignment, student), preserving the original ID on replacement.
	UpsertSubmission(ctx context.Context, sub *models.Submission) error
	GetSubmission(ctx context.Context, assignmentID int64, studentPhone string) (*models.Submission, error)
	ListSubmissionsByStudent(ctx context.Context, studentPhone string) ([]models.Submission, error)

	// ListRecapRows returns one row per student of the assignment's class,
	// joined with their submission when present.
	ListRecapRows(ctx context.Context, assignmentID int64) ([]models.RecapRow, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-looking DSNs, otherwise
// "sqlite".
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
