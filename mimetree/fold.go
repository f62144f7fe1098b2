package mimetree

import (
	"bytes"
	"errors"
	"fmt"
)

var ErrNoArticles = errors.New("mimetree: no articles to fold")

// Fold joins the articles of one multi-article post into a single message.
// The bodies are transfer-decoded and concatenated in the given order under
// the header of the first article, so blocks split across articles end up
// in one body. A single article is returned as parsed. Multipart articles
// cannot be folded.
func Fold(articles ...[]byte) (Node, error) {
	if len(articles) == 0 {
		return nil, ErrNoArticles
	}
	first, err := Parse(articles[0])
	if err != nil {
		return nil, fmt.Errorf("article 1: %w", err)
	}
	if len(articles) == 1 {
		return first, nil
	}

	head, ok := first.(*Leaf)
	if !ok {
		return nil, fmt.Errorf("article 1: cannot fold a multipart article")
	}

	var body bytes.Buffer
	for i, raw := range articles {
		n := first
		if i > 0 {
			if n, err = Parse(raw); err != nil {
				return nil, fmt.Errorf("article %d: %w", i+1, err)
			}
		}
		leaf, ok := n.(*Leaf)
		if !ok {
			return nil, fmt.Errorf("article %d: cannot fold a multipart article", i+1)
		}
		b, err := leaf.Decoded()
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i+1, err)
		}
		body.Write(b)
		// Keep the last line of one article off the first line of the next.
		if len(b) > 0 && b[len(b)-1] != '\n' {
			body.WriteByte('\n')
		}
	}

	h := head.Header.Copy()
	h.Del("Content-Transfer-Encoding")
	return &Leaf{Header: h, Body: body.Bytes()}, nil
}
