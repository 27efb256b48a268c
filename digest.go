package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	epub "github.com/go-shiori/go-epub"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const digestDateLayout = "January 2, 2006"

// Digest is one rendered newsletter in every format it is delivered in
type Digest struct {
	Subject  string
	Date     time.Time
	HTML     string
	Text     string
	EPUB     []byte
	EPUBName string
}

// DigestBuilder renders delivered articles into the newsletter formats
type DigestBuilder struct {
	heading  string
	tmpl     *template.Template
	markdown goldmark.Markdown
	text     *md.Converter
	css      string
}

// digestArticle is the template view of one article
type digestArticle struct {
	Title   string
	Channel string
	URL     string
	Body    template.HTML
}

type digestView struct {
	Heading    string
	Date       string
	Attachment string
	Articles   []digestArticle
}

// NewDigestBuilder parses the newsletter template. heading doubles as the subject prefix.
func NewDigestBuilder(heading, templateText, css string) (*DigestBuilder, error) {
	if heading == "" {
		heading = "Your YouTube Digest"
	}
	tmpl, err := template.New("digest").Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("parsing digest template: %w", err)
	}
	return &DigestBuilder{
		heading: heading,
		tmpl:    tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// EPUB chapters are XHTML
			goldmark.WithRendererOptions(gmhtml.WithXHTML()),
		),
		text: md.NewConverter("", true, nil),
		css:  css,
	}, nil
}

// Build renders the HTML, plain-text and EPUB versions of the digest
func (b *DigestBuilder) Build(articles []ArticleItem, now time.Time) (*Digest, error) {
	if len(articles) == 0 {
		return nil, fmt.Errorf("no articles to build a digest from")
	}

	date := now.Format(digestDateLayout)
	d := &Digest{
		Subject:  fmt.Sprintf("%s - %s", b.heading, date),
		Date:     now,
		EPUBName: fmt.Sprintf("youtube_digest_%s.epub", now.Format("20060102")),
	}

	view := digestView{Heading: b.heading, Date: date, Attachment: d.EPUBName}
	for _, a := range articles {
		body, err := b.renderMarkdown(a.ArticleBody)
		if err != nil {
			return nil, fmt.Errorf("rendering article %s: %w", a.VideoID, err)
		}
		view.Articles = append(view.Articles, digestArticle{
			Title:   a.Title,
			Channel: a.ChannelName,
			URL:     articleURL(a),
			Body:    template.HTML(body),
		})
	}

	var page bytes.Buffer
	if err := b.tmpl.Execute(&page, view); err != nil {
		return nil, fmt.Errorf("executing digest template: %w", err)
	}
	d.HTML = page.String()

	text, err := b.text.ConvertString(d.HTML)
	if err != nil {
		return nil, fmt.Errorf("converting digest to text: %w", err)
	}
	d.Text = text

	book, err := b.buildEPUB(view, date)
	if err != nil {
		return nil, fmt.Errorf("building epub: %w", err)
	}
	d.EPUB = book

	return d, nil
}

func (b *DigestBuilder) renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := b.markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (b *DigestBuilder) buildEPUB(view digestView, date string) ([]byte, error) {
	book, err := epub.NewEpub(fmt.Sprintf("YouTube Digest - %s", date))
	if err != nil {
		return nil, err
	}
	book.SetAuthor("video-digest")
	book.SetLang("en")
	book.SetIdentifier("urn:uuid:" + uuid.NewString())

	cssPath := ""
	if b.css != "" {
		source := "data:text/css;base64," + base64.StdEncoding.EncodeToString([]byte(b.css))
		cssPath, err = book.AddCSS(source, "digest.css")
		if err != nil {
			return nil, fmt.Errorf("adding css: %w", err)
		}
	}

	for i, a := range view.Articles {
		var body strings.Builder
		fmt.Fprintf(&body, "<h1>%s</h1>\n", html.EscapeString(a.Title))
		fmt.Fprintf(&body, "<p class=\"intro\"><em>Based on the video from %s</em></p>\n", html.EscapeString(a.Channel))
		body.WriteString(string(a.Body))
		fmt.Fprintf(&body, "<p><a href=\"%s\">Watch the original video</a></p>\n", html.EscapeString(a.URL))

		filename := fmt.Sprintf("article_%02d.xhtml", i+1)
		if _, err := book.AddSection(body.String(), a.Title, filename, cssPath); err != nil {
			return nil, fmt.Errorf("adding chapter %q: %w", a.Title, err)
		}
	}

	var buf bytes.Buffer
	if _, err := book.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func articleURL(a ArticleItem) string {
	if a.URL != "" {
		return a.URL
	}
	return defaultWatchURL(a.VideoID)
}
