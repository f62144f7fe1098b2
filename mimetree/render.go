package mimetree

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/quotedprintable"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

// Render writes the tree rooted at root. Containers without a usable
// boundary get a fresh one, which is stored in their header.
func Render(w io.Writer, root Node) error {
	fixBoundaries(root)
	if err := textproto.WriteHeader(w, root.header().Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return writeBody(w, root)
}

func writeBody(w io.Writer, n Node) error {
	switch n := n.(type) {
	case *Leaf:
		_, err := w.Write(n.Body)
		return err
	case *Container:
		_, params, _ := n.Header.ContentType()
		mw := textproto.NewMultipartWriter(w)
		if err := mw.SetBoundary(params["boundary"]); err != nil {
			return err
		}
		for _, child := range n.Children {
			pw, err := mw.CreatePart(child.header().Header)
			if err != nil {
				return fmt.Errorf("create part: %w", err)
			}
			if err := writeBody(pw, child); err != nil {
				return err
			}
		}
		return mw.Close()
	}
	return fmt.Errorf("unknown node type %T", n)
}

func fixBoundaries(n Node) {
	Walk(n, func(n Node) {
		c, ok := n.(*Container)
		if !ok {
			return
		}
		mediaType, params, err := c.Header.ContentType()
		if err != nil {
			mediaType, params = "multipart/mixed", map[string]string{}
		}
		mw := textproto.NewMultipartWriter(io.Discard)
		if mw.SetBoundary(params["boundary"]) == nil {
			return
		}
		params["boundary"] = mw.Boundary()
		c.Header.SetContentType(mediaType, params)
	})
}

// encodeBody applies the Content-Transfer-Encoding named in h to data.
func encodeBody(h message.Header, data []byte) ([]byte, error) {
	var buf lineBuffer
	var wc io.WriteCloser
	switch h.Get("Content-Transfer-Encoding") {
	case "base64":
		buf.wrap = 76
		wc = base64.NewEncoder(base64.StdEncoding, &buf)
	case "quoted-printable":
		wc = quotedprintable.NewWriter(&buf)
	default:
		return data, nil
	}
	if _, err := wc.Write(data); err != nil {
		return nil, err
	}
	if err := wc.Close(); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// lineBuffer collects output, breaking it into CRLF terminated lines of
// wrap bytes when wrap is set.
type lineBuffer struct {
	b    []byte
	wrap int
	col  int
}

func (l *lineBuffer) Write(p []byte) (int, error) {
	if l.wrap == 0 {
		l.b = append(l.b, p...)
		return len(p), nil
	}
	for _, c := range p {
		if l.col == l.wrap {
			l.b = append(l.b, '\r', '\n')
			l.col = 0
		}
		l.b = append(l.b, c)
		l.col++
	}
	return len(p), nil
}
