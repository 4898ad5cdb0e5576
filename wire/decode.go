package wire

import (
	"encoding/base64"
	"strings"

	"github.com/rainerleuschke/tcp-bridge/errors"
)

// Kind classifies an inbound client line.
type Kind int

// Inbound line kinds.
const (
	KindEmpty Kind = iota
	KindKeepAlive
	KindRequest
	KindCapability
	KindSettings
	KindStatusDocument
	KindSystemCommand
	KindTopic
	KindCommand
)

var kindNames = map[Kind]string{
	KindEmpty:          "empty",
	KindKeepAlive:      "keepalive",
	KindRequest:        "request",
	KindCapability:     "capability",
	KindSettings:       "settings",
	KindStatusDocument: "status",
	KindSystemCommand:  "system_command",
	KindTopic:          "topic",
	KindCommand:        "command",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Inbound prefixes.
const (
	PrefixCapability = "CAPABILITY="
	PrefixSettings   = "SETTINGS="
	PrefixStatus     = "STATUS="
	PrefixRequest    = "REQUEST="
	PrefixSystem     = "[SYS]"
	PrefixKeepAlive  = "[KEEPALIVE]"
)

// Request names.
const (
	RequestStatus = "STATUS"
	RequestLabs   = "LABS"
)

// Line is a classified inbound line.
type Line struct {
	Kind Kind
	// Topic is set for KindTopic lines.
	Topic string
	// Payload is the line content after its marker. System and opaque
	// commands keep the whole line.
	Payload string
}

// ParseLine classifies a single line received from a client. Trailing line
// terminators are stripped.
func ParseLine(raw string) Line {
	line := strings.TrimRight(raw, "\r\n")
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		return Line{Kind: KindEmpty}
	case strings.HasPrefix(trimmed, PrefixKeepAlive):
		return Line{Kind: KindKeepAlive}
	case strings.HasPrefix(trimmed, PrefixSystem):
		return Line{Kind: KindSystemCommand, Payload: trimmed}
	case strings.HasPrefix(trimmed, PrefixCapability):
		return Line{Kind: KindCapability, Payload: trimmed[len(PrefixCapability):]}
	case strings.HasPrefix(trimmed, PrefixSettings):
		return Line{Kind: KindSettings, Payload: trimmed[len(PrefixSettings):]}
	case strings.HasPrefix(trimmed, PrefixStatus):
		return Line{Kind: KindStatusDocument, Payload: trimmed[len(PrefixStatus):]}
	case strings.HasPrefix(trimmed, PrefixRequest):
		return Line{Kind: KindRequest, Payload: strings.TrimSpace(trimmed[len(PrefixRequest):])}
	case isRequest(trimmed):
		return Line{Kind: KindRequest, Payload: trimmed}
	case strings.HasPrefix(trimmed, "["):
		if end := strings.IndexByte(trimmed, ']'); end > 1 && IsPublishableTopic(trimmed[1:end]) {
			return Line{Kind: KindTopic, Topic: trimmed[1:end], Payload: trimmed[end+1:]}
		}
	}
	return Line{Kind: KindCommand, Payload: trimmed}
}

// Topics a client may publish with a [<topic>]k=v;... line. Other bracketed
// lines are opaque commands.
var publishableTopics = map[string]struct{}{
	"AMM_Render_Modification":     {},
	"AMM_Physiology_Modification": {},
	"AMM_Assessment":              {},
	"AMM_EventRecord":             {},
}

// IsPublishableTopic reports whether topic may arrive as a client topic line.
func IsPublishableTopic(topic string) bool {
	_, ok := publishableTopics[topic]
	return ok
}

func isRequest(s string) bool {
	kind, _ := SplitRequest(s)
	return kind == RequestStatus || kind == RequestLabs
}

// SplitRequest splits "LABS;POCT" into its kind and argument. A trailing
// '|' terminator is dropped from either part.
func SplitRequest(req string) (kind, arg string) {
	req = strings.TrimSuffix(strings.TrimSpace(req), "|")
	kind, arg, _ = strings.Cut(req, ";")
	return strings.TrimSpace(kind), strings.TrimSpace(arg)
}

// ParseFields decodes "k=v;k=v" into a map. Segments without '=' are skipped
// and a trailing '|' is ignored. Values may themselves contain '='.
func ParseFields(s string) map[string]string {
	fields := make(map[string]string)
	for _, seg := range strings.Split(strings.TrimSuffix(strings.TrimSpace(s), "|"), ";") {
		key, value, ok := strings.Cut(seg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		fields[key] = value
	}
	return fields
}

// DecodeDocument returns the XML bytes carried by a document line. Payloads
// starting with '<' are raw XML; anything else must be base64 in the standard
// or URL-safe alphabet, padded or not.
func DecodeDocument(payload string) ([]byte, error) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodeDocument", "empty payload")
	}
	if strings.HasPrefix(p, "<") {
		return []byte(p), nil
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(p); err == nil {
			return b, nil
		}
	}
	return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodeDocument", "base64 decode")
}

// DecodeBase64 decodes a URL-safe base64 string produced by EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.WrapInvalid(err, "wire", "DecodeBase64", "decode")
	}
	return b, nil
}
