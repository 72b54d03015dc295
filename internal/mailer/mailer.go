// Package mailer notifies participants that their photos are ready.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"github.com/kozaktomas/photo-batcher/internal/config"
)

// Sender delivers the photos-ready notification. The SMTP implementation is
// the default; tests and the processor depend on the interface only.
type Sender interface {
	SendPhotosEmail(ctx context.Context, to, firstName, driveLink string) error
}

var photosTmpl = template.Must(template.New("photos").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <p>Hi {{.FirstName}},</p>
  <p>Your photos from the event are ready. You can view and download them here:</p>
  <p><a href="{{.DriveLink}}">{{.DriveLink}}</a></p>
  <p>The link gives read access to everyone who has it, so feel free to pass
  it on to family and friends.</p>
  <p>Enjoy!</p>
</body>
</html>
`))

type emailData struct {
	FirstName string
	DriveLink string
}

// SMTPSender sends mail through a configured SMTP relay.
type SMTPSender struct {
	cfg *config.SMTPConfig
	log zerolog.Logger
}

func NewSMTPSender(cfg *config.SMTPConfig, log zerolog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, log: log}
}

// SendPhotosEmail renders and delivers the notification for one person.
func (s *SMTPSender) SendPhotosEmail(ctx context.Context, to, firstName, driveLink string) error {
	body, err := renderPhotosEmail(firstName, driveLink)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address %q: %w", s.cfg.From, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject("Your event photos are ready")
	msg.SetBodyString(mail.TypeTextHTML, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("could not create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("could not send mail to %s: %w", to, err)
	}
	s.log.Info().Str("to", to).Msg("photos email sent")
	return nil
}

func renderPhotosEmail(firstName, driveLink string) (string, error) {
	var buf bytes.Buffer
	if err := photosTmpl.Execute(&buf, emailData{FirstName: firstName, DriveLink: driveLink}); err != nil {
		return "", fmt.Errorf("could not render email template: %w", err)
	}
	return buf.String(), nil
}
