package providers

import (
	"fmt"
	"net/smtp"

	"tank-monitor-service/internal/config"
	"tank-monitor-service/internal/db"
	"tank-monitor-service/internal/models"
)

// SendEmail delivers a refill notice to the distributor's configured address.
func SendEmail(alert models.Alert, device models.Device, contact db.Contact, cfg config.Config) error {
	if contact.Email == "" {
		return fmt.Errorf("email not set for distributor %s", contact.DistributorID)
	}

	smtpServer := cfg.Email.SMTPServer
	smtpPort := cfg.Email.SMTPPort
	username := cfg.Email.Username
	password := cfg.Email.Password

	if smtpServer == "" || smtpPort == 0 || username == "" || password == "" {
		return fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}

	subject := fmt.Sprintf("Refill requested for tank %s", alert.DeviceID)
	body := fmt.Sprintf(
		"Tank: %s\nLocation: %s\nFill level: %.1f%%\nTank level: %.1f cm\nRequested by consumer: %s\nAlert source: %s",
		alert.DeviceID,
		device.Location,
		alert.TankLevel,
		device.TankLevelCm,
		alert.ConsumerID,
		alert.Source,
	)
	message := fmt.Sprintf("Subject: %s\n\n%s", subject, body)

	auth := smtp.PlainAuth("", username, password, smtpServer)
	to := []string{contact.Email}
	addr := fmt.Sprintf("%s:%d", smtpServer, smtpPort)

	if err := smtp.SendMail(addr, auth, username, to, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", contact.Email, err)
	}
	return nil
}
