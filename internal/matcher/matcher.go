// Package matcher locates phone-number/OTP pairs inside raw inbox
// snapshots. It is a pure text transformation: it performs no writes, and
// deduplication against history goes through the caller-supplied seen
// callback so the extraction heuristic can be swapped for a structured
// parser without touching the crediting path.
package matcher

import (
	"regexp"
	"strings"
)

const (
	// The OTP is expected to be printed near its number in the rendered
	// page; bounded windows keep the scan cost fixed and avoid pairing a
	// number with an unrelated code elsewhere on the page.
	forwardWindow  = 400
	backwardWindow = 200

	snippetLimit = 300

	minOTPDigits = 4
	maxOTPDigits = 8

	minNumberDigits = 6
	maxNumberDigits = 15
)

var (
	numberRe   = regexp.MustCompile(`\+?[0-9]{6,15}`)
	digitRunRe = regexp.MustCompile(`[0-9]+`)
)

var serviceKeywords = []string{
	"whatsapp", "facebook", "telegram", "google",
	"instagram", "tiktok", "netflix", "clerk",
}

// Match is one extracted (number, otp) pair with its local context
type Match struct {
	Number  string
	OTP     string
	Snippet string
	Service string
	Country string
}

// Scan extracts all new (number, otp) pairs from one inbox snapshot.
// Every number-shaped occurrence is processed independently in order of
// appearance. seen reports whether a pair is already recorded in history;
// pairs seen either in history or earlier in the same snapshot are dropped
// silently. A nil seen treats all pairs as new.
func Scan(text string, seen func(number, otp string) bool) []Match {
	var matches []Match
	emitted := make(map[string]bool)

	for _, loc := range numberRe.FindAllStringIndex(text, -1) {
		number := text[loc[0]:loc[1]]

		forward := text[loc[1]:min(len(text), loc[1]+forwardWindow)]
		backward := text[max(0, loc[0]-backwardWindow):loc[0]]

		otp, snippet := findOTP(forward, false)
		if otp == "" {
			otp, snippet = findOTP(backward, true)
		}
		if otp == "" {
			// Absence of a code near a number is expected noise.
			continue
		}

		key := number + "|" + otp
		if emitted[key] {
			continue
		}
		emitted[key] = true

		if seen != nil && seen(number, otp) {
			continue
		}

		matches = append(matches, Match{
			Number:  number,
			OTP:     otp,
			Snippet: snippet,
			Service: DetectService(snippet),
			Country: "UNKNOWN",
		})
	}

	return matches
}

// findOTP returns the first standalone digit run in window that looks like
// a passcode rather than another phone number, plus the snippet around it.
func findOTP(window string, backward bool) (string, string) {
	for _, loc := range digitRunRe.FindAllStringIndex(window, -1) {
		run := window[loc[0]:loc[1]]
		if len(run) < minOTPDigits || len(run) > maxOTPDigits {
			continue
		}
		// A run long enough to be a phone number, or one carrying the
		// international prefix, is more likely a neighbouring number
		// from the inventory listing than a code.
		if len(run) >= minNumberDigits {
			continue
		}
		if loc[0] > 0 && window[loc[0]-1] == '+' {
			continue
		}
		return run, clipSnippet(window, backward)
	}
	return "", ""
}

func clipSnippet(window string, backward bool) string {
	if len(window) <= snippetLimit {
		return window
	}
	if backward {
		return window[len(window)-snippetLimit:]
	}
	return window[:snippetLimit]
}

// ExtractNumbers returns all distinct phone-number-shaped substrings in
// order of first appearance. Used by the inventory sync.
func ExtractNumbers(text string) []string {
	var numbers []string
	seen := make(map[string]bool)
	for _, num := range numberRe.FindAllString(text, -1) {
		if !seen[num] {
			seen[num] = true
			numbers = append(numbers, num)
		}
	}
	return numbers
}

// DetectService guesses the originating service from the message snippet
// by a case-insensitive keyword search. Defaults to a generic placeholder.
func DetectService(snippet string) string {
	lower := strings.ToLower(snippet)
	for _, keyword := range serviceKeywords {
		if strings.Contains(lower, keyword) {
			return strings.ToUpper(keyword[:1]) + keyword[1:]
		}
	}
	return "Service"
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
