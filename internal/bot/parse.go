package bot

import (
	"regexp"
	"strconv"
	"strings"
)

// Draft field names used by the creation wizard.
const (
	fieldCode        = "code"
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldClass       = "class"
	fieldAttachPDF   = "attachPdf"
	fieldAutoGrade   = "autoGrade"
	fieldDeadline    = "deadlineDays"
)

// fieldLine matches one "label: value" line, tolerating a leading dash and
// punctuation inside the label (e.g. "Attach PDF?", "- Deadline (days)").
var fieldLine = regexp.MustCompile(`^\s*-?\s*([A-Za-z][A-Za-z ?()\[\]/_-]*?)\s*:\s*(.+?)\s*$`)

// fieldAliases maps normalized labels (lower case, punctuation stripped,
// spaces collapsed) to canonical draft fields. Indonesian labels from the
// classroom are first-class aliases.
var fieldAliases = map[string]string{
	"code": fieldCode, "kode": fieldCode, "assignment code": fieldCode,
	"title": fieldTitle, "judul": fieldTitle,
	"description": fieldDescription, "desc": fieldDescription, "deskripsi": fieldDescription,
	"class": fieldClass, "kelas": fieldClass,
	"attach pdf": fieldAttachPDF, "pdf": fieldAttachPDF, "attachment": fieldAttachPDF, "lampiran": fieldAttachPDF,
	"auto grade": fieldAutoGrade, "autograde": fieldAutoGrade, "auto grading": fieldAutoGrade,
	"deadline": fieldDeadline, "deadline days": fieldDeadline, "due in": fieldDeadline, "tenggat": fieldDeadline,
}

var labelPunct = regexp.MustCompile(`[?()\[\]/_-]`)

// fieldUpdate is one recognized field assignment from a message.
type fieldUpdate struct {
	Field string
	Value string
}

// parseFieldLines extracts all recognized "field: value" assignments from a
// possibly multi-line message. Unrecognized labels are skipped, not errors.
func parseFieldLines(body string) []fieldUpdate {
	var updates []fieldUpdate
	for _, line := range strings.Split(body, "\n") {
		m := fieldLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := normalizeLabel(m[1])
		field, ok := fieldAliases[label]
		if !ok {
			continue
		}
		updates = append(updates, fieldUpdate{Field: field, Value: strings.TrimSpace(m[2])})
	}
	return updates
}

func normalizeLabel(label string) string {
	label = labelPunct.ReplaceAllString(strings.ToLower(label), " ")
	return strings.Join(strings.Fields(label), " ")
}

// parseYesNo maps free-text answers to "yes"/"no"; unrecognized input
// returns empty string.
func parseYesNo(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "ya", "iya", "yup", "sure", "ok", "oke":
		return "yes"
	case "no", "n", "tidak", "nggak", "gak", "ga", "nope":
		return "no"
	default:
		return ""
	}
}

// canonicalizeCode upper-cases and strips whitespace from a code value.
func canonicalizeCode(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

// canonicalizeClass strips internal whitespace and upper-cases a class
// identifier so "XI IPA 1" and "xiipa1" compare equal.
func canonicalizeClass(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

// parseDays parses a positive day count, tolerating suffixes like "7 days".
func parseDays(value string) (int, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 || n > 365 {
		return 0, false
	}
	return n, true
}

// isPDF reports whether the attachment looks like a PDF by mime type or
// filename.
func isPDF(mimeType, filename string) bool {
	if strings.Contains(strings.ToLower(mimeType), "pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// isImage reports whether the attachment is a photo format the PDF
// converter accepts.
func isImage(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/png":
		return true
	default:
		return false
	}
}
