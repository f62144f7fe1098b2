package extract

import (
	"strings"
)

// ContentType is a MIME type/subtype pair.
type ContentType struct {
	Type    string
	Subtype string
}

func (c ContentType) String() string {
	return c.Type + "/" + c.Subtype
}

var (
	TextPlain   = ContentType{Type: "text", Subtype: "plain"}
	OctetStream = ContentType{Type: "application", Subtype: "octet-stream"}
)

var suffixTypes = map[string]ContentType{
	".avi":  {"video", "vnd.msvideo"},
	".dtd":  {"text", "xml-dtd"},
	".flac": {"audio", "flac"},
	".gif":  {"image", "gif"},
	".htm":  {"text", "html"},
	".html": {"text", "html"},
	".jpg":  {"image", "jpeg"},
	".jpeg": {"image", "jpeg"},
	".md5":  {"text", "plain"},
	".mp3":  {"audio", "mpeg"},
	".mpeg": {"video", "mpeg"},
	".mpg":  {"video", "mpeg"},
	".mov":  {"video", "quicktime"},
	".nfo":  {"text", "plain"},
	".oga":  {"audio", "x-vorbis"},
	".ogg":  {"audio", "ogg"},
	".ogv":  {"video", "ogg"},
	".ogx":  {"application", "ogg"},
	".png":  {"image", "png"},
	".qt":   {"video", "quicktime"},
	".rar":  {"application", "x-rar"},
	".rv":   {"video", "vnd.rn-realvideo"},
	".scr":  {"application", "octet-stream"},
	".spx":  {"audio", "ogg"},
	".svg":  {"image", "svg+xml"},
	".tar":  {"application", "x-tar"},
	".tbz2": {"application", "x-tar"},
	".tgz":  {"application", "x-tar"},
	".tiff": {"image", "tiff"},
	".tif":  {"image", "tiff"},
	".txt":  {"text", "plain"},
	".uu":   {"text", "x-uuencode"},
	".uue":  {"text", "x-uuencode"},
	".xml":  {"text", "xml"},
	".xsl":  {"text", "xml"},
	".zip":  {"application", "zip"},
}

// TypeForFilename guesses a content type from the last suffix of name,
// ignoring case. Unknown suffixes map to application/octet-stream.
func TypeForFilename(name string) ContentType {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return OctetStream
	}
	if ct, ok := suffixTypes[strings.ToLower(name[i:])]; ok {
		return ct
	}
	return OctetStream
}
