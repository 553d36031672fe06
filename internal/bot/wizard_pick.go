package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// pickResult is the outcome of parsing a numbered-list reply.
type pickResult int

const (
	pickInvalid pickResult = iota
	pickCancel
	pickChoice
)

// parsePick interprets a reply to a numbered list of n items: "0" cancels,
// 1..n selects, anything else is invalid. idx is zero-based.
func parsePick(body string, n int) (result pickResult, idx int) {
	choice, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return pickInvalid, 0
	}
	if choice == 0 {
		return pickCancel, 0
	}
	if choice < 1 || choice > n {
		return pickInvalid, 0
	}
	return pickChoice, choice - 1
}

// numberedList renders items as "1. ...\n2. ..." with the cancel footer.
func numberedList(header string, items []string) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	b.WriteString("0. Cancel")
	return b.String()
}

// rangePrompt is the fixed re-prompt for an out-of-range pick.
func rangePrompt(n int) string {
	return fmt.Sprintf("Please reply with a number between 1 and %d, or 0 to cancel.", n)
}
