package model

import "time"

// Message represents a single email message extracted from an mbox archive.
type Message struct {
	ID         string
	Hash       string
	ReceivedAt time.Time
	Size       int64
	Raw        []byte

	// Rewritten holds the message with its inline attachments turned into
	// MIME parts. It is nil when nothing was found.
	Rewritten   []byte
	Attachments []Attachment
}

// Output returns the bytes that should be delivered for the message.
func (m Message) Output() []byte {
	if m.Rewritten != nil {
		return m.Rewritten
	}
	return m.Raw
}

// IsRewritten reports whether inline attachments were decoded.
func (m Message) IsRewritten() bool {
	return m.Rewritten != nil
}

// Attachment is one decoded inline attachment.
type Attachment struct {
	Filename    string
	ContentType string
	Encoding    string
	Data        []byte
	// CRC32 is the checksum announced by a yEnc trailer, if any. It is not
	// verified.
	CRC32 uint32
}

// Envelope wraps a message alongside an optional error encountered while decoding.
type Envelope struct {
	Message Message
	Err     error
}
