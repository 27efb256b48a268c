package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"
)

func newTestSMTPDeliverer(t *testing.T, to string) *SMTPDeliverer {
	t.Helper()
	d := NewSMTPDeliverer(SMTPSettings{
		Host: "smtp.example.com",
		Port: 465,
		SSL:  true,
		From: "me@example.com",
		To:   to,
	}, newTestDigestBuilder(t), nil)
	d.now = func() time.Time { return time.Date(2025, 10, 19, 8, 0, 0, 0, time.UTC) }
	return d
}

func TestSMTPDelivererBuildMessage(t *testing.T) {
	d := newTestSMTPDeliverer(t, "")
	digest, err := d.builder.Build(testArticles(), d.now())
	if err != nil {
		t.Fatal(err)
	}

	msg, err := d.buildMessage(digest)
	if err != nil {
		t.Fatalf("buildMessage() unexpected error: %v", err)
	}

	if got := msg.GetToString(); len(got) != 1 || !strings.Contains(got[0], "me@example.com") {
		t.Errorf("To = %v, want the sender", got)
	}
	if got := msg.GetGenHeader(mail.HeaderSubject); len(got) != 1 || got[0] != digest.Subject {
		t.Errorf("Subject = %v, want %q", got, digest.Subject)
	}

	attachments := msg.GetAttachments()
	if len(attachments) != 1 {
		t.Fatalf("message has %d attachments, want 1", len(attachments))
	}
	if attachments[0].Name != "youtube_digest_20251019.epub" {
		t.Errorf("attachment name = %q", attachments[0].Name)
	}
	if attachments[0].ContentType != epubContentType {
		t.Errorf("attachment content type = %q", attachments[0].ContentType)
	}

	var raw bytes.Buffer
	if _, err := msg.WriteTo(&raw); err != nil {
		t.Fatalf("WriteTo() unexpected error: %v", err)
	}
	for _, want := range []string{"multipart/mixed", "multipart/alternative", "text/plain", "text/html", "application/epub+zip"} {
		if !strings.Contains(raw.String(), want) {
			t.Errorf("raw message missing %q", want)
		}
	}
}

func TestSMTPDelivererExplicitRecipient(t *testing.T) {
	d := newTestSMTPDeliverer(t, "reader@example.com")
	digest, err := d.builder.Build(testArticles(), d.now())
	if err != nil {
		t.Fatal(err)
	}

	msg, err := d.buildMessage(digest)
	if err != nil {
		t.Fatal(err)
	}
	if got := msg.GetToString(); len(got) != 1 || !strings.Contains(got[0], "reader@example.com") {
		t.Errorf("To = %v, want reader@example.com", got)
	}
}

func TestSMTPDelivererInvalidSender(t *testing.T) {
	d := newTestSMTPDeliverer(t, "")
	d.settings.From = "not an address"
	digest, err := d.builder.Build(testArticles(), d.now())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.buildMessage(digest); err == nil {
		t.Error("buildMessage() expected error for invalid sender")
	}
}

func TestSMTPDelivererDeliver(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
		wantErr bool
	}{
		{name: "sent", sendErr: nil},
		{name: "smtp failure", sendErr: errors.New("535 5.7.8 bad credentials"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestSMTPDeliverer(t, "")
			sends := 0
			d.send = func(ctx context.Context, msg *mail.Msg) error {
				sends++
				return tt.sendErr
			}

			err := d.Deliver(context.Background(), testArticles())
			if (err != nil) != tt.wantErr {
				t.Errorf("Deliver() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, tt.sendErr) {
				t.Errorf("Deliver() error = %v, want it to wrap %v", err, tt.sendErr)
			}
			if sends != 1 {
				t.Errorf("send called %d times, want exactly one attempt", sends)
			}
		})
	}
}

func TestFileDeliverer(t *testing.T) {
	outDir := t.TempDir()
	d := NewFileDeliverer(outDir, newTestDigestBuilder(t), nil)
	d.now = func() time.Time { return time.Date(2025, 10, 19, 8, 30, 15, 0, time.UTC) }

	if err := d.Deliver(context.Background(), testArticles()); err != nil {
		t.Fatalf("Deliver() unexpected error: %v", err)
	}

	dir := filepath.Join(outDir, "20251019-083015")
	for _, name := range []string{"digest.html", "digest.txt", "youtube_digest_20251019.epub"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s not written: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestFileDelivererCancelled(t *testing.T) {
	outDir := t.TempDir()
	d := NewFileDeliverer(outDir, newTestDigestBuilder(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Deliver(ctx, testArticles()); !errors.Is(err, context.Canceled) {
		t.Errorf("Deliver() error = %v, want context.Canceled", err)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 0 {
		t.Errorf("cancelled delivery wrote %d entries", len(entries))
	}
}
