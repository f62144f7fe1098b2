// Package mimetree turns raw RFC 822 messages into a tree of MIME entities,
// replaces text parts carrying inline yEnc or uuencoded attachments with
// multipart/mixed containers, and writes the tree back out.
package mimetree

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

const maxDepth = 32

// Node is either a *Leaf or a *Container.
type Node interface {
	header() *message.Header
}

// Leaf is a single-part entity. Body holds the content exactly as it
// appears on the wire, still transfer-encoded.
type Leaf struct {
	Header message.Header
	Body   []byte
}

// Container is a multipart entity.
type Container struct {
	Header   message.Header
	Children []Node
}

func (l *Leaf) header() *message.Header      { return &l.Header }
func (c *Container) header() *message.Header { return &c.Header }

// Parse reads a whole message. Multipart bodies are split recursively;
// a multipart body that cannot be split is kept as a leaf.
func Parse(raw []byte) (Node, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return parseEntity(message.Header{Header: h}, body, 0), nil
}

func parseEntity(h message.Header, body []byte, depth int) Node {
	mediaType, params, _ := h.ContentType()
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" || depth >= maxDepth {
		return &Leaf{Header: h, Body: body}
	}

	c := &Container{Header: h}
	mr := textproto.NewMultipartReader(bytes.NewReader(body), params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &Leaf{Header: h, Body: body}
		}
		pb, err := io.ReadAll(p)
		if err != nil {
			return &Leaf{Header: h, Body: body}
		}
		c.Children = append(c.Children, parseEntity(message.Header{Header: p.Header}, pb, depth+1))
	}
	return c
}

// IsPlainText reports whether the leaf is text/plain. A leaf without a
// Content-Type header is text/plain by default.
func (l *Leaf) IsPlainText() bool {
	if !l.Header.Has("Content-Type") {
		return true
	}
	mediaType, _, err := l.Header.ContentType()
	return err == nil && mediaType == "text/plain"
}

// Decoded returns the body with its transfer encoding removed. The charset
// is left alone. Unknown transfer encodings yield the body as is.
func (l *Leaf) Decoded() ([]byte, error) {
	h := l.Header.Copy()
	if mediaType, params, err := h.ContentType(); err == nil {
		if _, ok := params["charset"]; ok {
			delete(params, "charset")
			h.SetContentType(mediaType, params)
		}
	}

	e, err := message.New(h, bytes.NewReader(l.Body))
	if err != nil && !message.IsUnknownEncoding(err) && !message.IsUnknownCharset(err) {
		return nil, err
	}
	b, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", h.Get("Content-Transfer-Encoding"), err)
	}
	return b, nil
}

// Walk calls fn for every node of the tree in document order.
func Walk(n Node, fn func(Node)) {
	fn(n)
	if c, ok := n.(*Container); ok {
		for _, child := range c.Children {
			Walk(child, fn)
		}
	}
}
