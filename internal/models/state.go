package models

import "time"

// Intent is a closed enumeration of recognized user requests.
type Intent string

const (
	IntentNone     Intent = ""
	IntentGreeting Intent = "greeting"
	IntentFallback Intent = "fallback"

	// Teacher-side intents.
	IntentCreateAssignment    Intent = "teacher_create_assignment"
	IntentBroadcastAssignment Intent = "teacher_broadcast_assignment"
	IntentExportRecap         Intent = "teacher_export_recap"
	IntentListRoster          Intent = "teacher_list_roster"
	IntentTeacherHelp         Intent = "teacher_help"

	// Student-side intents.
	IntentMyAssignments    Intent = "student_my_assignments"
	IntentStatusHistory    Intent = "student_status_history"
	IntentSubmitAssignment Intent = "student_submit_assignment"
	IntentAssignmentDetail Intent = "student_assignment_detail"
	IntentAskDeadline      Intent = "student_ask_deadline"
	IntentStudentHelp      Intent = "student_help"

	// Shared utility intents, available to both roles.
	IntentImageToPDF Intent = "image_to_pdf"
)

// teacherOnly lists intents gated to the teacher role.
var teacherOnly = map[Intent]bool{
	IntentCreateAssignment:    true,
	IntentBroadcastAssignment: true,
	IntentExportRecap:         true,
	IntentListRoster:          true,
	IntentTeacherHelp:         true,
}

// TeacherOnly reports whether the intent requires the teacher role.
func (i Intent) TeacherOnly() bool {
	return teacherOnly[i]
}

// MenuMode marks a conversation awaiting a single numeric menu selection.
type MenuMode string

const (
	MenuModeNone    MenuMode = ""
	MenuModeTeacher MenuMode = "teacher_menu"
	MenuModeStudent MenuMode = "student_menu"
)

// WizardKind tags the active wizard variant in a conversation.
type WizardKind string

const (
	WizardCreate      WizardKind = "create"
	WizardAfterCreate WizardKind = "after_create"
	WizardBroadcast   WizardKind = "broadcast"
	WizardRecap       WizardKind = "recap"
	WizardRoster      WizardKind = "roster"
	WizardSubmitPick  WizardKind = "submit_pick"
	WizardAwaitFile   WizardKind = "await_file"
	WizardHistory     WizardKind = "history"
	WizardImageToPDF  WizardKind = "image_to_pdf"
)

// CreateDraft is the assignment-creation wizard payload: partially collected
// form fields plus staged attachments.
type CreateDraft struct {
	Code        string `json:"code,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ClassName   string `json:"className,omitempty"`
	// AttachPDF and AutoGrade hold "yes"/"no" once answered, empty before.
	AttachPDF    string `json:"attachPdf,omitempty"`
	AutoGrade    string `json:"autoGrade,omitempty"`
	DeadlineDays int    `json:"deadlineDays,omitempty"`

	// Armed flags: a "yes" answer arms the matching await state until a file
	// arrives or the requirement is waived.
	AwaitingPDF bool `json:"awaitingPdf,omitempty"`
	AwaitingKey bool `json:"awaitingKey,omitempty"`

	PDFName string `json:"pdfName,omitempty"`
	PDFMime string `json:"pdfMime,omitempty"`
	PDFData []byte `json:"-"`
	KeyName string `json:"keyName,omitempty"`
	KeyMime string `json:"keyMime,omitempty"`
	KeyData []byte `json:"-"`
}

// AfterCreateData remembers the just-created assignment for the
// broadcast-or-menu choice step.
type AfterCreateData struct {
	Code      string `json:"code"`
	ClassName string `json:"className"`
}

// PickData is the shared payload of the numbered-list wizards: the candidate
// items shown to the user, pending their 1..N selection.
type PickData struct {
	AssignmentIDs []int64  `json:"assignmentIds,omitempty"`
	Codes         []string `json:"codes,omitempty"`
	Classes       []string `json:"classes,omitempty"`
}

// AwaitFileData is the submission-collection payload while waiting for the
// student's PDF upload.
type AwaitFileData struct {
	AssignmentID int64  `json:"assignmentId"`
	Code         string `json:"code"`
	HasAnswerKey bool   `json:"hasAnswerKey"`
}

// ImageToPDFData stages the received images until the user finishes the
// conversion.
type ImageToPDFData struct {
	Names []string `json:"names,omitempty"`
	Mimes []string `json:"mimes,omitempty"`
	Pages [][]byte `json:"-"`
}

// WizardData is the tagged union of wizard payloads. Exactly the variant
// matching Kind is non-nil.
type WizardData struct {
	Kind        WizardKind       `json:"kind"`
	Create      *CreateDraft     `json:"create,omitempty"`
	AfterCreate *AfterCreateData `json:"afterCreate,omitempty"`
	Pick        *PickData        `json:"pick,omitempty"`
	AwaitFile   *AwaitFileData   `json:"awaitFile,omitempty"`
	ImageToPDF  *ImageToPDFData  `json:"imageToPdf,omitempty"`
}

// ConversationState is the per-identity dialog record. At most one of menu
// mode or an active wizard governs the next inbound message; an active wizard
// always wins.
type ConversationState struct {
	Identity   string            `json:"identity"`
	LastIntent Intent            `json:"lastIntent,omitempty"`
	Slots      map[string]string `json:"slots,omitempty"`
	MenuMode   MenuMode          `json:"menuMode,omitempty"`
	Wizard     *WizardData       `json:"wizard,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// SetSlot adds a slot value, initializing the map lazily.
func (s *ConversationState) SetSlot(name, value string) {
	if s.Slots == nil {
		s.Slots = make(map[string]string)
	}
	s.Slots[name] = value
}

// Slot returns the slot value or empty string.
func (s *ConversationState) Slot(name string) string {
	if s.Slots == nil {
		return ""
	}
	return s.Slots[name]
}

// WizardActive reports whether a wizard currently owns the conversation.
func (s *ConversationState) WizardActive() bool {
	return s != nil && s.Wizard != nil
}
