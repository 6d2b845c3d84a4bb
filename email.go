package accounts

import "log"

// EmailSender is the outbound delivery sink. The service embeds the raw
// token into a caller-supplied URL before handing it off; rendering the
// message body is the sender's concern.
type EmailSender interface {
	SendConfirmationEmail(to string, confirmationURL string) error
	SendPasswordResetEmail(to string, resetURL string) error
	SendUpdateEmailEmail(to string, updateURL string) error
}

// ConsoleEmailSender is a development implementation that logs emails to console
type ConsoleEmailSender struct{}

func (c *ConsoleEmailSender) SendConfirmationEmail(to string, confirmationURL string) error {
	log.Printf("\n=== EMAIL: Confirmation ===")
	log.Printf("To: %s", to)
	log.Printf("Subject: Confirm your account")
	log.Printf("Body: Confirm your account by clicking: %s", confirmationURL)
	log.Printf("===========================\n")
	return nil
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(to string, resetURL string) error {
	log.Printf("\n=== EMAIL: Password Reset ===")
	log.Printf("To: %s", to)
	log.Printf("Subject: Reset your password")
	log.Printf("Body: Reset your password by clicking: %s", resetURL)
	log.Printf("==============================\n")
	return nil
}

func (c *ConsoleEmailSender) SendUpdateEmailEmail(to string, updateURL string) error {
	log.Printf("\n=== EMAIL: Email Change ===")
	log.Printf("To: %s", to)
	log.Printf("Subject: Confirm your new email address")
	log.Printf("Body: Confirm your new address by clicking: %s", updateURL)
	log.Printf("===========================\n")
	return nil
}
