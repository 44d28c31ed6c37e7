package transport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	mail "github.com/wneessen/go-mail"

	"github.com/edvin/backhaul/internal/model"
)

// SMTP mails the backup file as an attachment.
type SMTP struct {
	logger zerolog.Logger
	cfg    *model.SMTPConfig
}

func NewSMTP(cfg *model.SMTPConfig, logger zerolog.Logger) (*SMTP, error) {
	if cfg == nil {
		return nil, fmt.Errorf("smtp channel not configured")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid smtp config: %w", err)
	}
	return &SMTP{
		logger: logger.With().Str("component", "smtp-transport").Logger(),
		cfg:    cfg,
	}, nil
}

func (t *SMTP) Deliver(ctx context.Context, record *model.BackupRecord) (string, error) {
	name := filepath.Base(record.Path)

	msg := mail.NewMsg()
	if err := msg.From(t.cfg.From); err != nil {
		return "", fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(t.cfg.To...); err != nil {
		return "", fmt.Errorf("set mail recipients: %w", err)
	}
	msg.Subject(fmt.Sprintf("Database backup %s", name))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("Backup %s for resource group %s is attached.\n", name, record.GroupID))
	msg.AttachFile(record.Path)

	opts := []mail.Option{mail.WithPort(t.cfg.Port)}
	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}

	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("send backup mail: %w", err)
	}

	t.logger.Info().Int64("record", record.ID).Str("file", name).Strs("to", t.cfg.To).Msg("mailed backup")
	return fmt.Sprintf("mailed %s to %s", name, strings.Join(t.cfg.To, ", ")), nil
}
