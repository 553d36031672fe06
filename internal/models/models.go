// Package models defines core data structures and types for ClassPipe.
//
// It contains the domain records shared across modules (users, assignments,
// submissions), the message transport types, sentinel errors, and the API
// response envelope.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Role identifies which handler surface a user is routed to.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Validate checks that the role is one of the known values.
func (r Role) Validate() error {
	switch r {
	case RoleTeacher, RoleStudent:
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidation, string(r))
	}
}

// ClassNameRegex matches a canonical class identifier: grade level roman
// numeral, department letters, section number (e.g. XIITKJ2).
var ClassNameRegex = regexp.MustCompile(`^(X|XI|XII)[A-Z]{2,8}\d{1,2}$`)

// User is a registered participant keyed by canonical phone number.
type User struct {
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	ClassName string `json:"className,omitempty"` // set for students
	JID       string `json:"jid,omitempty"`       // last known WhatsApp JID
}

// Assignment is a task published by a teacher to one class.
type Assignment struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"` // unique, store-enforced
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	ClassName     string    `json:"className"`
	Deadline      time.Time `json:"deadline"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	AnswerKeyURL  string    `json:"answerKeyUrl,omitempty"`
	AutoGrade     bool      `json:"autoGrade"`
	TeacherPhone  string    `json:"teacherPhone"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Validate checks the fields required before an assignment can be saved.
func (a Assignment) Validate() error {
	if a.Code == "" {
		return fmt.Errorf("%w: assignment code is required", ErrValidation)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: assignment title is required", ErrValidation)
	}
	if a.Description == "" {
		return fmt.Errorf("%w: assignment description is required", ErrValidation)
	}
	if !ClassNameRegex.MatchString(a.ClassName) {
		return fmt.Errorf("%w: malformed class identifier %q", ErrValidation, a.ClassName)
	}
	return nil
}

// SubmissionStatus tracks per-student progress on an assignment.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "PENDING"
	StatusDone    SubmissionStatus = "DONE"
)

// AssignmentStatus is one row of the per-student fan-out created when an
// assignment is published.
type AssignmentStatus struct {
	AssignmentID int64            `json:"assignmentId"`
	StudentPhone string           `json:"studentPhone"`
	Status       SubmissionStatus `json:"status"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Submission is a stored student upload, upserted on (assignment, student).
type Submission struct {
	ID           string     `json:"id"`
	AssignmentID int64      `json:"assignmentId"`
	StudentPhone string     `json:"studentPhone"`
	FileURL      string     `json:"fileUrl"`
	SubmittedAt  time.Time  `json:"submittedAt"`
	Grade        string     `json:"grade,omitempty"`
	Score        *float64   `json:"score,omitempty"`
	Evaluation   string     `json:"evaluation,omitempty"`
	GradedAt     *time.Time `json:"gradedAt,omitempty"`
}

// Graded reports whether the external grader has written back a result.
func (s Submission) Graded() bool {
	return s.Grade != "" && s.Score != nil
}

// RecapRow is one line of the grade recap workbook.
type RecapRow struct {
	ClassName   string
	StudentName string
	Phone       string
	Code        string
	Title       string
	Deadline    time.Time
	Status      SubmissionStatus
	SubmittedAt *time.Time
	FileURL     string
	Evaluation  string
	Grade       string
	Score       *float64
}

// Document is a binary attachment moving through the transport. Data carries
// the raw bytes for transports that upload inline; URL is set once the file
// lives in object storage.
type Document struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Caption  string `json:"caption,omitempty"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
}

// StatusType represents delivery status values for receipts.
type StatusType string

const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
)

// Receipt represents a delivery/read receipt event from the transport.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// Response represents an incoming message from a participant.
type Response struct {
	From     string    `json:"from"`
	Body     string    `json:"body"`
	Time     int64     `json:"time"`
	Document *Document `json:"document,omitempty"`
}

// Sentinel errors for the failure classes handled across the engine.
var (
	ErrValidation     = errors.New("validation failed")
	ErrDuplicateCode  = errors.New("assignment code already exists")
	ErrNotFound       = errors.New("record not found")
	ErrTransientStore = errors.New("transient store failure")
	ErrTransportQuirk = errors.New("benign transport send quirk")
)

// BroadcastRequest is the payload of the administrative broadcast endpoint.
type BroadcastRequest struct {
	Code      string   `json:"code"`
	ClassName string   `json:"className"`
	Students  []string `json:"studentList"`
	Title     string   `json:"title,omitempty"`
	Deadline  string   `json:"deadline,omitempty"`
	PDFURL    string   `json:"pdfUrl,omitempty"`
}

// Validate checks the required broadcast fields.
func (r BroadcastRequest) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	if r.ClassName == "" {
		return fmt.Errorf("%w: className is required", ErrValidation)
	}
	if len(r.Students) == 0 {
		return fmt.Errorf("%w: studentList must not be empty", ErrValidation)
	}
	return nil
}

// BroadcastResult reports fan-out counts for a broadcast run.
type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// APIResponse provides a consistent response structure for API endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: "ok", Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
