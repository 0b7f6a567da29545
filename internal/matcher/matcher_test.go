package matcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanForwardWindow(t *testing.T) {
	text := "+8801700000000 some padding text Your code is 4821 thanks"

	matches := Scan(text, nil)

	assert.Len(t, matches, 1)
	assert.Equal(t, "+8801700000000", matches[0].Number)
	assert.Equal(t, "4821", matches[0].OTP)
	assert.Equal(t, "UNKNOWN", matches[0].Country)
}

func TestScanCodeOutsideBothWindows(t *testing.T) {
	// Code only appears 500+ characters after the number and there is
	// nothing within 200 characters before it.
	text := "+8801700000000" + strings.Repeat("x", 500) + "4821"

	matches := Scan(text, nil)

	assert.Empty(t, matches)
}

func TestScanBackwardWindow(t *testing.T) {
	text := "code 4821 arrived for +8801700000000" + strings.Repeat("x", 450)

	matches := Scan(text, nil)

	assert.Len(t, matches, 1)
	assert.Equal(t, "4821", matches[0].OTP)
}

func TestScanSkipsNumberShapedRuns(t *testing.T) {
	// The forward window only contains another phone number; it must not
	// be mistaken for a passcode.
	text := "+8801700000000 next entry +8801811111111"

	matches := Scan(text, nil)

	// The second occurrence pairs with nothing either: its backward
	// window holds only the first number, which is number-shaped too.
	assert.Empty(t, matches)
}

func TestScanDeduplicatesWithinSnapshot(t *testing.T) {
	row := "1555000111 Your WhatsApp code is 9321. "
	text := row + row + row

	matches := Scan(text, nil)

	assert.Len(t, matches, 1)
	assert.Equal(t, "1555000111", matches[0].Number)
	assert.Equal(t, "9321", matches[0].OTP)
	assert.Equal(t, "Whatsapp", matches[0].Service)
}

func TestScanDropsPairsSeenInHistory(t *testing.T) {
	text := "1555000111 Your code is 9321"

	matches := Scan(text, func(number, otp string) bool {
		return number == "1555000111" && otp == "9321"
	})

	assert.Empty(t, matches)
}

func TestScanNewCodeForKnownNumber(t *testing.T) {
	// A genuinely new OTP for an already-OTP'd number is still emitted;
	// only the (number, otp) pair governs dedup.
	text := "1555000111 fresh code 7777"

	matches := Scan(text, func(number, otp string) bool {
		return otp == "9321"
	})

	assert.Len(t, matches, 1)
	assert.Equal(t, "7777", matches[0].OTP)
}

func TestScanSnippetIsBounded(t *testing.T) {
	text := "1555000111 code 4821 " + strings.Repeat("y", 400)

	matches := Scan(text, nil)

	assert.Len(t, matches, 1)
	assert.LessOrEqual(t, len(matches[0].Snippet), 300)
}

func TestExtractNumbers(t *testing.T) {
	text := "numbers: +8801700000000, 1555000111, and again +8801700000000"

	numbers := ExtractNumbers(text)

	assert.Equal(t, []string{"+8801700000000", "1555000111"}, numbers)
}

func TestDetectService(t *testing.T) {
	assert.Equal(t, "Telegram", DetectService("Telegram code: 12345"))
	assert.Equal(t, "Google", DetectService("G-12345 is your GOOGLE verification code"))
	assert.Equal(t, "Service", DetectService("your verification code is 12345"))
}
