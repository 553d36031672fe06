package nlp

import "github.com/BTreeMap/ClassPipe/internal/models"

// Entity requirement names used by IntentRule.NeedEntities and
// BoostRule.RequireCode.
const (
	EntityCode  = "code"
	EntityClass = "class"
)

// BoostRule adds Weight to an intent's score when any of its trigger phrases
// is fully present (and, if RequireCode is set, a code entity was extracted).
// An empty phrase list applies the boost on the code entity alone.
type BoostRule struct {
	Phrases     []string
	RequireCode bool
	Weight      float64
}

// IntentRule declares the scoring inputs for one intent. Keywords are
// phrases scoring +1 each when every word of the phrase appears in the text;
// NeedEntities score +1.5 each when the named entity was extracted.
type IntentRule struct {
	Intent       models.Intent
	Keywords     []string
	NeedEntities []string
	Boosts       []BoostRule
}

// Rules is the declarative intent table. Order matters: score ties resolve
// to the earlier rule, so broader intents sit below the specific ones they
// could shadow.
var Rules = []IntentRule{
	{
		Intent:   models.IntentGreeting,
		Keywords: []string{"hello", "hi", "hey", "menu", "start", "good morning", "good afternoon"},
		Boosts: []BoostRule{
			{Phrases: []string{"hello", "hi", "hey", "menu", "start", "help"}, Weight: 3},
		},
	},
	{
		Intent:   models.IntentCreateAssignment,
		Keywords: []string{"create assignment", "new assignment", "make assignment", "add assignment", "create task", "make task"},
		Boosts: []BoostRule{
			{Phrases: []string{"create assignment", "create task", "new assignment", "make assignment"}, Weight: 4},
			{Phrases: []string{"create", "make", "add"}, Weight: 0.2},
		},
	},
	{
		Intent:       models.IntentBroadcastAssignment,
		Keywords:     []string{"broadcast assignment", "announce assignment", "send assignment", "share assignment", "broadcast task"},
		NeedEntities: []string{EntityCode, EntityClass},
		Boosts: []BoostRule{
			{Phrases: []string{"broadcast", "announce"}, Weight: 3},
			{Phrases: []string{"send", "share"}, Weight: 0.2},
		},
	},
	{
		Intent:   models.IntentExportRecap,
		Keywords: []string{"export report", "grade report", "excel report", "download report", "export recap", "grade recap"},
		Boosts: []BoostRule{
			{Phrases: []string{"recap", "excel", "report"}, Weight: 3},
			{Phrases: []string{"export", "download"}, Weight: 0.2},
		},
	},
	{
		Intent:   models.IntentListRoster,
		Keywords: []string{"list students", "student list", "class roster", "show students", "my students"},
		Boosts: []BoostRule{
			{Phrases: []string{"roster", "student list", "list students"}, Weight: 3},
			{Phrases: []string{"list", "show"}, Weight: 0.2},
		},
	},
	{
		Intent:       models.IntentSubmitAssignment,
		Keywords:     []string{"submit assignment", "submit task", "turn in", "collect assignment", "hand in"},
		NeedEntities: []string{EntityCode},
		Boosts: []BoostRule{
			{Phrases: []string{"submit", "turn in", "hand in"}, Weight: 2},
			{Phrases: []string{"submit", "turn in", "hand in"}, RequireCode: true, Weight: 2},
		},
	},
	{
		Intent:       models.IntentAssignmentDetail,
		Keywords:     []string{"assignment detail", "assignment info", "about assignment", "task detail", "task info"},
		NeedEntities: []string{EntityCode},
		Boosts: []BoostRule{
			{Phrases: []string{"detail", "info", "about"}, RequireCode: true, Weight: 2},
		},
	},
	{
		Intent:   models.IntentMyAssignments,
		Keywords: []string{"my assignments", "my tasks", "pending assignments", "open assignments", "what assignments"},
	},
	{
		Intent:   models.IntentStatusHistory,
		Keywords: []string{"assignment status", "submission status", "my grades", "my scores", "task history", "submission history"},
	},
	{
		Intent:       models.IntentAskDeadline,
		Keywords:     []string{"deadline", "due date", "when due", "when is it due"},
		NeedEntities: []string{EntityCode},
	},
	{
		Intent:   models.IntentImageToPDF,
		Keywords: []string{"image to pdf", "images to pdf", "img to pdf", "photo to pdf", "photos to pdf", "picture to pdf", "convert image", "convert images", "convert photo"},
		Boosts: []BoostRule{
			{Phrases: []string{"convert", "imgtopdf"}, Weight: 2},
		},
	},
	{
		Intent:   models.IntentTeacherHelp,
		Keywords: []string{"teacher help", "what can you do", "commands"},
	},
	{
		Intent:   models.IntentStudentHelp,
		Keywords: []string{"student help", "how to submit", "how do i"},
	},
}
