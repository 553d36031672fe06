package nlp

import (
	"regexp"
	"strings"
	"time"
)

// Entities is the fixed-shape extraction record. Zero values mean "not
// present"; Date is nil when no relative-date word was found.
type Entities struct {
	Code      string
	ClassName string
	Date      *time.Time
}

var (
	// codePattern matches assignment-code candidates: letters followed by
	// digits, letter/digit tokens joined by - or _, or a bare all-caps token.
	codePattern = regexp.MustCompile(`\b[A-Z]{2,15}(?:\d+|[-_][A-Z0-9]+)*\b`)

	// classPattern matches a class identifier: grade level, department
	// letters, section number, optionally space separated.
	classPattern = regexp.MustCompile(`(?i)\b(xii|xi|x)\s*([a-z]{2,6})\s*(\d{1,2})\b`)

	lettersOnly = regexp.MustCompile(`^[A-Z]+$`)
)

// stopWords filters code candidates that are really just conversation:
// common words, menu verbs, and file-name-ish nouns that users type in
// upper case often enough to trip the code pattern.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"hello", "halo", "hai", "hey", "hei", "good", "morning", "afternoon",
		"evening", "night", "please", "thanks", "thank", "okay", "yes", "no",
		"sir", "maam", "madam", "miss", "mister",
		"the", "this", "that", "what", "when", "where", "which", "who", "how",
		"can", "could", "will", "would", "want", "need", "have", "has", "had",
		"about", "with", "from", "for", "and", "but", "not", "all", "any",
		"you", "your", "there", "here", "now", "soon", "next", "week",
		"after", "before", "later", "look", "just", "also", "still",
		"create", "make", "new", "add", "send", "broadcast", "share",
		"announce", "submit", "collect", "turn", "upload", "download",
		"export", "generate", "show", "list", "view", "open", "check", "see",
		"give", "tell", "ask", "help", "menu", "start", "exit", "back",
		"cancel", "save", "done", "finish",
		"task", "tasks", "assignment", "assignments", "homework", "exam",
		"quiz", "report", "recap", "grade", "grades", "score", "status",
		"history", "deadline", "due", "date", "today", "tomorrow", "class",
		"classes", "student", "students", "teacher", "roster", "code", "info",
		"detail", "details", "title", "description",
		"file", "files", "document", "docs", "pdf", "image", "images",
		"photo", "photos", "picture", "pictures", "page", "scan", "convert",
		"answer", "key",
	} {
		stopWords[w] = struct{}{}
	}
}

// Extract scans whitespace-collapsed text for domain entities. First
// non-rejected match wins for each entity kind; there is no best-match
// search. The result is deterministic for a fixed text and reference time.
func Extract(text string, now time.Time) Entities {
	var ents Entities
	ents.Code = extractCode(text)
	ents.ClassName = extractClass(text)
	ents.Date = extractDate(text, now)
	return ents
}

func extractCode(text string) string {
	upper := strings.ToUpper(text)
	for _, cand := range codePattern.FindAllString(upper, -1) {
		if _, stop := stopWords[strings.ToLower(cand)]; stop {
			continue
		}
		// A short all-letters token is far more likely a word than a code.
		if lettersOnly.MatchString(cand) && len(cand) < 4 {
			continue
		}
		return cand
	}
	return ""
}

func extractClass(text string) string {
	m := classPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1] + m[2] + m[3])
}

func extractDate(text string, now time.Time) *time.Time {
	lower := strings.ToLower(text)
	var days int
	switch {
	case strings.Contains(lower, "day after tomorrow"):
		days = 2
	case strings.Contains(lower, "tomorrow"):
		days = 1
	case strings.Contains(lower, "today"):
		days = 0
	default:
		return nil
	}
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, days)
	return &d
}
