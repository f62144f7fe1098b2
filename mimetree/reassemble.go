package mimetree

import (
	"fmt"
	"log/slog"

	"github.com/emersion/go-message"

	"github.com/dhcgn/mbox-inline-decode/extract"
)

// Options configures reassembly.
type Options struct {
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Report describes what Reassemble changed.
type Report struct {
	// Replaced counts text leaves turned into containers.
	Replaced int
	// Attachments lists the decoded UU and yEnc parts in document order.
	Attachments []*extract.Part
}

// Reassemble walks the tree and replaces every text/plain leaf that carries
// inline attachments with a multipart/mixed container holding one child per
// detected section. Containers are descended into but never changed
// themselves. The returned node is the new root.
func Reassemble(root Node, opts Options) (Node, *Report, error) {
	r := &reassembler{log: opts.logger(), report: &Report{}}
	n, err := r.node(root, true)
	if err != nil {
		return nil, nil, err
	}
	return n, r.report, nil
}

type reassembler struct {
	log    *slog.Logger
	report *Report
}

func (r *reassembler) node(n Node, top bool) (Node, error) {
	switch n := n.(type) {
	case *Container:
		for i, child := range n.Children {
			replaced, err := r.node(child, false)
			if err != nil {
				return nil, err
			}
			n.Children[i] = replaced
		}
		return n, nil
	case *Leaf:
		return r.leaf(n, top)
	}
	return n, nil
}

func (r *reassembler) leaf(l *Leaf, top bool) (Node, error) {
	if !l.IsPlainText() {
		return l, nil
	}
	body, err := l.Decoded()
	if err != nil {
		r.log.Warn("Skipping undecodable text part", "error", err)
		return l, nil
	}

	parts, err := extract.SplitBytes(body, extract.Options{Logger: r.log})
	if err != nil {
		return nil, fmt.Errorf("split text part: %w", err)
	}
	if extract.IsPlainOnly(parts, int64(len(body))) {
		return l, nil
	}

	c, err := synthesize(l, parts, top)
	if err != nil {
		return nil, err
	}
	r.report.Replaced++
	for _, p := range parts {
		if p.Kind != extract.KindPlain {
			r.report.Attachments = append(r.report.Attachments, p)
		}
	}
	r.log.Debug("Replaced text part", "sections", len(parts))
	return c, nil
}

// synthesize builds the multipart/mixed container standing in for l. It
// keeps the leaf's header fields except those describing its content.
func synthesize(l *Leaf, parts []*extract.Part, top bool) (*Container, error) {
	_, params, _ := l.Header.ContentType()
	charset := params["charset"]

	h := l.Header.Copy()
	h.Del("Content-Type")
	h.Del("Content-Transfer-Encoding")
	h.Del("Content-Disposition")
	h.SetContentType("multipart/mixed", map[string]string{})
	if top && !h.Has("Mime-Version") {
		h.Set("MIME-Version", "1.0")
	}

	c := &Container{Header: h}
	for _, p := range parts {
		child, err := partLeaf(p, charset)
		if err != nil {
			return nil, err
		}
		c.Children = append(c.Children, child)
	}
	return c, nil
}

func partLeaf(p *extract.Part, charset string) (*Leaf, error) {
	var h message.Header
	if p.Filename == "" {
		params := map[string]string{}
		if charset != "" {
			params["charset"] = charset
		}
		h.SetContentType(p.ContentType.String(), params)
		h.SetContentDisposition("inline", nil)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
	} else {
		h.SetContentType(p.ContentType.String(), map[string]string{"name": p.Filename})
		h.SetContentDisposition("attachment", map[string]string{"filename": p.Filename})
		h.Set("Content-Transfer-Encoding", "base64")
	}

	body, err := encodeBody(h, p.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", p.Filename, err)
	}
	return &Leaf{Header: h, Body: body}, nil
}
