package mimetree

import (
	"bytes"

	"github.com/dhcgn/mbox-inline-decode/extract"
	"github.com/dhcgn/mbox-inline-decode/model"
)

// Result is the outcome of rewriting one message.
type Result struct {
	// Raw is the rewritten message. When Changed is false it is the input
	// itself, or the folded message for several articles.
	Raw         []byte
	Changed     bool
	Replaced    int
	Attachments []*extract.Part
}

// Rewrite parses raw, reassembles it and renders the result. Messages
// without inline attachments are returned byte for byte.
func Rewrite(raw []byte, opts Options) (*Result, error) {
	root, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return rewriteTree(root, raw, opts)
}

// RewriteArticles folds the articles of one post with Fold and rewrites the
// result. The folded message is rendered even when nothing was replaced.
func RewriteArticles(articles [][]byte, opts Options) (*Result, error) {
	if len(articles) == 1 {
		return Rewrite(articles[0], opts)
	}
	root, err := Fold(articles...)
	if err != nil {
		return nil, err
	}
	return rewriteTree(root, nil, opts)
}

// rewriteTree returns raw unchanged when it is set and nothing was
// replaced.
func rewriteTree(root Node, raw []byte, opts Options) (*Result, error) {
	root, report, err := Reassemble(root, opts)
	if err != nil {
		return nil, err
	}
	if report.Replaced == 0 && raw != nil {
		return &Result{Raw: raw}, nil
	}

	var buf bytes.Buffer
	if err := Render(&buf, root); err != nil {
		return nil, err
	}
	return &Result{
		Raw:         buf.Bytes(),
		Changed:     report.Replaced > 0,
		Replaced:    report.Replaced,
		Attachments: report.Attachments,
	}, nil
}

// Apply records the rewrite on msg. It returns msg unchanged when nothing
// was replaced.
func (r *Result) Apply(msg model.Message) model.Message {
	if !r.Changed {
		return msg
	}
	msg.Rewritten = r.Raw
	msg.Attachments = make([]model.Attachment, 0, len(r.Attachments))
	for _, p := range r.Attachments {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			Filename:    p.Filename,
			ContentType: p.ContentType.String(),
			Encoding:    p.Kind.String(),
			Data:        p.Data,
			CRC32:       p.YEnc.CRC32,
		})
	}
	return msg
}
