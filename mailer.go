package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wneessen/go-mail"
)

const epubContentType = mail.ContentType("application/epub+zip")

// SMTPSettings holds the outgoing mail server configuration
type SMTPSettings struct {
	Host     string
	Port     int
	SSL      bool
	Timeout  time.Duration
	Username string
	Password string
	From     string
	To       string
}

// SMTPDeliverer mails the digest with the EPUB attached
type SMTPDeliverer struct {
	settings SMTPSettings
	builder  *DigestBuilder
	now      func() time.Time
	send     func(ctx context.Context, msg *mail.Msg) error
	logger   *slog.Logger
}

// NewSMTPDeliverer creates a deliverer that sends one message per digest
func NewSMTPDeliverer(settings SMTPSettings, builder *DigestBuilder, logger *slog.Logger) *SMTPDeliverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &SMTPDeliverer{
		settings: settings,
		builder:  builder,
		now:      time.Now,
		logger:   logger,
	}
	d.send = d.dialAndSend
	return d
}

// Deliver renders and sends the digest. One call is one send attempt.
func (d *SMTPDeliverer) Deliver(ctx context.Context, articles []ArticleItem) error {
	digest, err := d.builder.Build(articles, d.now())
	if err != nil {
		return err
	}

	msg, err := d.buildMessage(digest)
	if err != nil {
		return err
	}

	d.logger.Info("→ sending digest", "to", d.settings.To, "subject", digest.Subject,
		"epub", digest.EPUBName, "epub_bytes", len(digest.EPUB))
	if err := d.send(ctx, msg); err != nil {
		return fmt.Errorf("sending mail via %s: %w", d.settings.Host, err)
	}
	return nil
}

// buildMessage assembles multipart/mixed: alternative(text, html) plus the EPUB
func (d *SMTPDeliverer) buildMessage(digest *Digest) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(d.settings.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", d.settings.From, err)
	}
	to := d.settings.To
	if to == "" {
		to = d.settings.From
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(digest.Subject)
	msg.SetDateWithValue(digest.Date)
	msg.SetBodyString(mail.TypeTextPlain, digest.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, digest.HTML)

	if len(digest.EPUB) > 0 {
		err := msg.AttachReader(digest.EPUBName, bytes.NewReader(digest.EPUB),
			mail.WithFileContentType(epubContentType))
		if err != nil {
			return nil, fmt.Errorf("attaching %s: %w", digest.EPUBName, err)
		}
	}
	return msg, nil
}

func (d *SMTPDeliverer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(d.settings.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(d.settings.Username),
		mail.WithPassword(d.settings.Password),
	}
	if d.settings.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(d.settings.Timeout))
	}
	if d.settings.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(d.settings.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// FileDeliverer writes the digest to disk instead of mailing it (dry runs)
type FileDeliverer struct {
	OutputDir string

	builder *DigestBuilder
	now     func() time.Time
	logger  *slog.Logger
}

// NewFileDeliverer creates a deliverer writing into outputDir/<timestamp>/
func NewFileDeliverer(outputDir string, builder *DigestBuilder, logger *slog.Logger) *FileDeliverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileDeliverer{OutputDir: outputDir, builder: builder, now: time.Now, logger: logger}
}

// Deliver writes digest.html, digest.txt and the EPUB
func (d *FileDeliverer) Deliver(ctx context.Context, articles []ArticleItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := d.now()
	digest, err := d.builder.Build(articles, now)
	if err != nil {
		return err
	}

	dir := filepath.Join(d.OutputDir, now.Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	files := map[string][]byte{
		"digest.html":   []byte(digest.HTML),
		"digest.txt":    []byte(digest.Text),
		digest.EPUBName: digest.EPUB,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	d.logger.Info("✓ digest written", "dir", dir, "subject", digest.Subject)
	return nil
}
