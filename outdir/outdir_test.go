package outdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dhcgn/mbox-inline-decode/model"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "photo.jpg", "photo.jpg"},
		{"separators", "../etc/passwd", "_etc_passwd"},
		{"windows reserved", `a:b*c?.txt`, "a_b_c_.txt"},
		{"control chars", "bad\x00\x1fname.bin", "badname.bin"},
		{"dots only", "..", fallbackName},
		{"empty", "", fallbackName},
		{"latin1", "caf\xe9.txt", "caf\u00e9.txt"},
		{"decomposed", "cafe\u0301.txt", "caf\u00e9.txt"},
		{"message id", "abc@example.com", "abc@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	long := strings.Repeat("é", 150) + ".jpg"
	got := SanitizeName(long)
	if len(got) > maxNameBytes {
		t.Fatalf("len = %d, want <= %d", len(got), maxNameBytes)
	}
	if !strings.HasSuffix(got, ".jpg") {
		t.Errorf("extension lost: %q", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("rune split: %q", got)
	}
}

func TestCreateUnique(t *testing.T) {
	dir := t.TempDir()
	want := []string{"a.txt", "a-1.txt", "a-2.txt"}
	for i, w := range want {
		path, err := createUnique(dir, "a.txt", []byte{byte('0' + i)})
		if err != nil {
			t.Fatalf("createUnique() error = %v", err)
		}
		if filepath.Base(path) != w {
			t.Errorf("call %d wrote %s, want %s", i, filepath.Base(path), w)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(data) != "0" {
		t.Errorf("first file overwritten: %q, %v", data, err)
	}

	path, err := createUnique(dir, ".profile", nil)
	if err != nil || filepath.Base(path) != ".profile" {
		t.Fatalf("createUnique(.profile) = %s, %v", path, err)
	}
	path, err = createUnique(dir, ".profile", nil)
	if err != nil || filepath.Base(path) != ".profile-1" {
		t.Errorf("second .profile = %s, %v", path, err)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	msg := model.Message{
		ID:        "abc/1@example.com",
		Raw:       []byte("raw"),
		Rewritten: []byte("rewritten"),
		Attachments: []model.Attachment{
			{Filename: "hello.txt", ContentType: "text/plain", Encoding: "uu", Data: []byte("I love you forever.")},
			{Filename: "hello.txt", ContentType: "image/png", Encoding: "yenc", Data: []byte("not a png")},
		},
	}

	paths, err := Save(dir, msg, true, nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	msgDir := filepath.Join(dir, "abc_1@example.com")
	want := []string{
		filepath.Join(msgDir, "hello.txt"),
		filepath.Join(msgDir, "hello-1.txt"),
		filepath.Join(msgDir, MessageFile),
	}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %v, want %v", paths, want)
	}

	data, err := os.ReadFile(want[0])
	if err != nil || string(data) != "I love you forever." {
		t.Errorf("attachment = %q, %v", data, err)
	}
	data, err = os.ReadFile(want[2])
	if err != nil || string(data) != "rewritten" {
		t.Errorf("message.eml = %q, %v", data, err)
	}
}

func TestSave_UnnamedAttachment(t *testing.T) {
	dir := t.TempDir()
	msg := model.Message{
		ID:          "x",
		Rewritten:   []byte("m"),
		Attachments: []model.Attachment{{Data: []byte("%PDF-1.4\n")}},
	}
	paths, err := Save(dir, msg, false, nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "attachment.pdf" {
		t.Errorf("paths = %v, want attachment.pdf", paths)
	}
}
