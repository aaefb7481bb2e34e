package email

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/gip-inclusion/geiq-assessments/internal/config"
)

// Service sends transactional emails over SMTP
type Service struct {
	config *config.EmailConfig
}

// NewService creates a new email service
func NewService(cfg *config.EmailConfig) *Service {
	return &Service{config: cfg}
}

// SendAssessmentSubmitted notifies an institution that a GEIQ submitted its
// assessment
func (s *Service) SendAssessmentSubmitted(to []string, geiqName string, year int) error {
	subject := fmt.Sprintf("Bilan %d transmis par %s", year, geiqName)

	body := s.layout(fmt.Sprintf(`
        <h2 style="color: #000091;">Un bilan d'exécution vous a été transmis</h2>
        <p>Le GEIQ <strong>%s</strong> a transmis son bilan d'exécution pour la campagne %d.</p>
        <p>Vous pouvez dès à présent examiner les contrats, statuer sur les aides demandées et valider votre décision.</p>
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #000091; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Consulter le bilan</a>
        </div>
`, geiqName, year, s.config.BaseURL))

	return s.sendEmail(to, subject, body)
}

// SendAssessmentReviewed notifies the GEIQ that the first-tier review is done
func (s *Service) SendAssessmentReviewed(to []string, geiqName string, year int) error {
	subject := fmt.Sprintf("Bilan %d : décision enregistrée", year)

	body := s.layout(fmt.Sprintf(`
        <h2 style="color: #000091;">Votre bilan a été contrôlé</h2>
        <p>Le bilan d'exécution %d de <strong>%s</strong> a été contrôlé par l'institution conventionnante.</p>
        <p>Il est maintenant en attente de la validation définitive.</p>
`, year, geiqName))

	return s.sendEmail(to, subject, body)
}

// SendAssessmentFinalReviewed notifies the GEIQ that the final review is done
// and the financial result is available
func (s *Service) SendAssessmentFinalReviewed(to []string, geiqName string, year, balance int, refundOwed bool) error {
	subject := fmt.Sprintf("Bilan %d : résultat disponible", year)

	settlement := fmt.Sprintf("Un solde de <strong>%d €</strong> reste à vous verser.", -balance)
	if refundOwed {
		settlement = fmt.Sprintf("Un montant de <strong>%d €</strong> reste à restituer.", balance)
	}

	body := s.layout(fmt.Sprintf(`
        <h2 style="color: #000091;">Le résultat de votre bilan est disponible</h2>
        <p>Le bilan d'exécution %d de <strong>%s</strong> a été définitivement validé.</p>
        <p>%s</p>
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #000091; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Consulter le résultat</a>
        </div>
`, year, geiqName, settlement, s.config.BaseURL))

	return s.sendEmail(to, subject, body)
}

// SendAssessmentRefused notifies the GEIQ that its assessment was refused at
// campaign close
func (s *Service) SendAssessmentRefused(to []string, geiqName string, year int, reason string) error {
	subject := fmt.Sprintf("Bilan %d : campagne clôturée", year)

	body := s.layout(fmt.Sprintf(`
        <h2 style="color: #ce0500;">Campagne %d clôturée sans transmission</h2>
        <p>La campagne %d est clôturée et le bilan d'exécution de <strong>%s</strong> n'a pas été transmis dans les délais.</p>
        <p>Motif : %s</p>
        <p>Rapprochez-vous de votre institution référente pour connaître les suites données.</p>
`, year, year, geiqName, reason))

	return s.sendEmail(to, subject, body)
}

// SendSubmissionReminder reminds a GEIQ of the approaching submission deadline
func (s *Service) SendSubmissionReminder(to []string, geiqName string, year int, deadline string) error {
	subject := fmt.Sprintf("Rappel : bilan %d à transmettre avant le %s", year, deadline)

	body := s.layout(fmt.Sprintf(`
        <h2 style="color: #000091;">Votre bilan %d est attendu</h2>
        <p>Le bilan d'exécution de <strong>%s</strong> n'a pas encore été transmis.</p>
        <p>La date limite de transmission est le <strong>%s</strong>.</p>
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #000091; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Compléter mon bilan</a>
        </div>
`, year, geiqName, deadline, s.config.BaseURL))

	return s.sendEmail(to, subject, body)
}

// SendInstitutionSummary sends the daily pending-review digest to an
// institution
func (s *Service) SendInstitutionSummary(to []string, institutionName string, pendingCount int) error {
	subject := fmt.Sprintf("%d bilan(s) en attente d'examen", pendingCount)

	body := s.layout(fmt.Sprintf(`
        <h2 style="color: #000091;">Bilans en attente</h2>
        <p><strong>%s</strong> a %d bilan(s) d'exécution transmis en attente d'examen.</p>
        <div style="text-align: center; margin: 30px 0;">
            <a href="%s" style="background-color: #000091; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Voir les bilans</a>
        </div>
`, institutionName, pendingCount, s.config.BaseURL))

	return s.sendEmail(to, subject, body)
}

// layout wraps a body fragment in the shared HTML shell
func (s *Service) layout(content string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Les emplois de l'inclusion</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
%s
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">Cet email est envoyé automatiquement. Merci de ne pas y répondre.</p>
    </div>
</body>
</html>
`, content)
}

// sendEmail sends an email over SMTP to every recipient
func (s *Service) sendEmail(to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}

	var message bytes.Buffer
	fmt.Fprintf(&message, "From: %s\r\n", s.config.SMTPFrom)
	fmt.Fprintf(&message, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&message, "Subject: %s\r\n", subject)
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := net.JoinHostPort(s.config.SMTPHost, s.config.SMTPPort)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func(conn net.Conn) {
		if err := conn.Close(); err != nil {
			slog.Error("Failed to close SMTP connection", "error", err)
		}
	}(conn)

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func(client *smtp.Client) {
		if err := client.Close(); err != nil {
			slog.Error("Failed to close SMTP client", "error", err)
		}
	}(client)

	// No credentials means a dev relay like Mailpit; skip authentication
	if s.config.SMTPUsername != "" && s.config.SMTPPassword != "" {
		auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
		_ = client.Auth(auth)
	}

	if err := client.Mail(s.config.SMTPFrom); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	defer func(wc io.WriteCloser) {
		if err := wc.Close(); err != nil {
			slog.Error("Failed to close message writer", "error", err)
		}
	}(wc)

	if _, err := wc.Write(message.Bytes()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	slog.Info("Email sent", "recipients", len(to), "subject", subject)

	return nil
}
