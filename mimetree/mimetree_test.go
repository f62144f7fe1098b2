package mimetree

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-message"

	"github.com/dhcgn/mbox-inline-decode/model"
)

const uuHello = "begin 644 hello.txt\n322!L;W9E('EO=2!F;W)E=F5R+@``\n`\nend\n"

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return strings.ReplaceAll(string(b), "\r\n", "\n")
}

func TestRewrite_NoAttachmentsIsUnchanged(t *testing.T) {
	raw := []byte("From: a@example.com\nSubject: hi\n\njust some text\n")
	res, err := Rewrite(raw, Options{})
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if res.Changed {
		t.Error("Changed = true, want false")
	}
	if !bytes.Equal(res.Raw, raw) {
		t.Errorf("Raw = %q, want the input", res.Raw)
	}
}

func TestRewrite_InlineUU(t *testing.T) {
	raw := []byte("From: a@example.com\nSubject: files\nContent-Type: text/plain; charset=utf-8\n\nHello\n" + uuHello + "Bye\n")
	res, err := Rewrite(raw, Options{})
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if !res.Changed || res.Replaced != 1 {
		t.Fatalf("Changed = %v, Replaced = %d", res.Changed, res.Replaced)
	}
	if len(res.Attachments) != 1 || res.Attachments[0].Filename != "hello.txt" {
		t.Fatalf("Attachments = %v", res.Attachments)
	}

	e, err := message.Read(bytes.NewReader(res.Raw))
	if err != nil {
		t.Fatalf("message.Read() error = %v", err)
	}
	if got := e.Header.Get("Subject"); got != "files" {
		t.Errorf("Subject = %q", got)
	}
	if mt, _, _ := e.Header.ContentType(); mt != "multipart/mixed" {
		t.Fatalf("Content-Type = %q, want multipart/mixed", mt)
	}

	mr := e.MultipartReader()
	var children []*message.Entity
	var bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		children = append(children, p)
		bodies = append(bodies, readAll(t, p.Body))
	}
	if len(children) != 3 {
		t.Fatalf("got %d parts, want 3", len(children))
	}

	if bodies[0] != "Hello\n" || bodies[2] != "Bye\n" {
		t.Errorf("text parts = %q, %q", bodies[0], bodies[2])
	}
	if _, params, _ := children[0].Header.ContentType(); params["charset"] != "utf-8" {
		t.Errorf("text part charset = %q, want utf-8", params["charset"])
	}

	disp, params, err := children[1].Header.ContentDisposition()
	if err != nil || disp != "attachment" || params["filename"] != "hello.txt" {
		t.Errorf("attachment disposition = %q %v %v", disp, params, err)
	}
	if mt, _, _ := children[1].Header.ContentType(); mt != "text/plain" {
		t.Errorf("attachment type = %q", mt)
	}
	if bodies[1] != "I love you forever." {
		t.Errorf("attachment body = %q", bodies[1])
	}
}

func TestRewrite_NestedMultipart(t *testing.T) {
	raw := crlf("From: a@example.com\n" +
		"MIME-Version: 1.0\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\n" +
		"\n" +
		"--XYZ\n" +
		"Content-Type: text/plain\n" +
		"\n" +
		"see attached\n" +
		uuHello +
		"--XYZ\n" +
		"Content-Type: text/html\n" +
		"\n" +
		"<p>begin 644 x.bin</p>\n" +
		"--XYZ--\n")

	res, err := Rewrite([]byte(raw), Options{})
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if !res.Changed {
		t.Fatal("Changed = false, want true")
	}

	root, err := Parse(res.Raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c, ok := root.(*Container)
	if !ok || len(c.Children) != 2 {
		t.Fatalf("root = %T, want container with 2 children", root)
	}
	if mt, params, _ := c.Header.ContentType(); mt != "multipart/alternative" || params["boundary"] != "XYZ" {
		t.Errorf("root type = %q %v", mt, params)
	}

	mixed, ok := c.Children[0].(*Container)
	if !ok {
		t.Fatalf("first child = %T, want container", c.Children[0])
	}
	if mt, _, _ := mixed.Header.ContentType(); mt != "multipart/mixed" {
		t.Errorf("first child type = %q", mt)
	}
	if len(mixed.Children) != 2 {
		t.Errorf("mixed has %d children, want 2", len(mixed.Children))
	}

	html, ok := c.Children[1].(*Leaf)
	if !ok {
		t.Fatalf("second child = %T, want leaf", c.Children[1])
	}
	if string(html.Body) != "<p>begin 644 x.bin</p>" {
		t.Errorf("html part changed: %q", html.Body)
	}
}

func TestRewrite_Base64TextPart(t *testing.T) {
	var h message.Header
	h.SetContentType("text/plain", nil)
	h.Set("Content-Transfer-Encoding", "base64")
	body, err := encodeBody(h, []byte("intro\n"+uuHello))
	if err != nil {
		t.Fatalf("encodeBody() error = %v", err)
	}
	raw := "Subject: b64\nContent-Type: text/plain\nContent-Transfer-Encoding: base64\n\n" + string(body) + "\n"

	res, err := Rewrite([]byte(raw), Options{})
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if !res.Changed || len(res.Attachments) != 1 {
		t.Fatalf("Changed = %v, attachments = %d", res.Changed, len(res.Attachments))
	}
	if got := string(res.Attachments[0].Data); got != "I love you forever." {
		t.Errorf("attachment = %q", got)
	}
}

func TestReassemble_SkipsNonTextLeaves(t *testing.T) {
	var h message.Header
	h.SetContentType("application/octet-stream", nil)
	leaf := &Leaf{Header: h, Body: []byte(uuHello)}

	root, report, err := Reassemble(leaf, Options{})
	if err != nil {
		t.Fatalf("Reassemble() error = %v", err)
	}
	if root != Node(leaf) || report.Replaced != 0 {
		t.Errorf("non-text leaf was replaced")
	}
}

func TestLeaf_IsPlainText(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"missing header", "", true},
		{"text/plain", "text/plain; charset=us-ascii", true},
		{"upper case", "TEXT/PLAIN", true},
		{"html", "text/html", false},
		{"malformed", "text/plain; charset", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Leaf{}
			if tt.contentType != "" {
				l.Header.Set("Content-Type", tt.contentType)
			}
			if got := l.IsPlainText(); got != tt.want {
				t.Errorf("IsPlainText() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRender_GeneratesBoundary(t *testing.T) {
	var h message.Header
	h.SetContentType("multipart/mixed", nil)
	var child message.Header
	child.SetContentType("text/plain", nil)
	c := &Container{Header: h, Children: []Node{&Leaf{Header: child, Body: []byte("x")}}}

	var buf bytes.Buffer
	if err := Render(&buf, c); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	_, params, _ := c.Header.ContentType()
	if params["boundary"] == "" {
		t.Fatal("no boundary generated")
	}
	if !strings.Contains(buf.String(), "--"+params["boundary"]+"--") {
		t.Errorf("output lacks closing boundary: %q", buf.String())
	}
}

func TestResult_Apply(t *testing.T) {
	raw := []byte("Subject: files\n\n" + uuHello)
	res, err := Rewrite(raw, Options{})
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	msg := res.Apply(model.Message{ID: "m", Raw: raw})
	if !msg.IsRewritten() || !bytes.Equal(msg.Output(), res.Raw) {
		t.Fatal("Apply() did not record the rewritten message")
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(msg.Attachments))
	}
	a := msg.Attachments[0]
	if a.Filename != "hello.txt" || a.Encoding != "uu" || a.ContentType != "text/plain" {
		t.Errorf("attachment = %+v", a)
	}

	plain, err := Rewrite([]byte("Subject: x\n\nnothing\n"), Options{})
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if m := plain.Apply(model.Message{ID: "p"}); m.IsRewritten() || m.Attachments != nil {
		t.Errorf("Apply() changed a plain message: %+v", m)
	}
}
