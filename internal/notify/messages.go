package notify

import (
	"fmt"

	"github.com/otpearn/otpearn-server/internal/models"
)

// FormatOTPMessage renders the credit announcement sent to the number's
// owner and the notification group.
func FormatOTPMessage(event models.CreditEvent) string {
	snippet := event.Snippet
	if len(snippet) > 300 {
		snippet = snippet[:300]
	}
	return fmt.Sprintf(
		"New OTP!\nNumber: %s\nCountry: %s\nProvider: %s\nOTP Code: %s\nSnippet: %s\nYou have earned %s!",
		event.Number, event.Country, event.Service, event.OTP, snippet, event.Reward.StringFixed(2),
	)
}

// FormatWithdrawalRequest renders the admin alert for a new request
func FormatWithdrawalRequest(w *models.Withdrawal) string {
	return fmt.Sprintf(
		"New withdrawal request #%d\nUser: %d\nMethod: %s\nTarget: %s\nAmount: %s",
		w.ID, w.UserID, w.Method, w.Target, w.Amount.StringFixed(2),
	)
}

// FormatWithdrawalApproved renders the confirmation sent to the requester
func FormatWithdrawalApproved(w *models.Withdrawal) string {
	return fmt.Sprintf(
		"Your withdrawal #%d for %s was approved.",
		w.ID, w.Amount.StringFixed(2),
	)
}
