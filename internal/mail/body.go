package mail

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"
)

const (
	noSubject = "(No Subject)"
	noSender  = "(No Sender)"
	noBody    = "(No plain text body found)"
)

// ExtractBody returns the plain text body of a message payload. Multi-part
// payloads yield their first decodable text/plain part in order; single-part
// payloads yield their own body. The placeholder "(No plain text body found)"
// is returned when neither rule finds anything.
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return noBody
	}

	if len(payload.Parts) > 0 {
		if body, ok := firstPlainPart(payload.Parts); ok {
			return body
		}
		return noBody
	}

	if body, ok := decodePartBody(payload); ok {
		return body
	}

	return noBody
}

func firstPlainPart(parts []*gmail.MessagePart) (string, bool) {
	for _, part := range parts {
		if part == nil {
			continue
		}

		if part.MimeType == "text/plain" {
			if body, ok := decodePartBody(part); ok {
				return body, true
			}
		}

		if len(part.Parts) > 0 {
			if body, ok := firstPlainPart(part.Parts); ok {
				return body, true
			}
		}
	}

	return "", false
}

func decodePartBody(part *gmail.MessagePart) (string, bool) {
	if part.Body == nil || part.Body.Data == "" {
		return "", false
	}

	return decodeBase64URL(part.Body.Data)
}

// decodeBase64URL accepts padded and unpadded input and replaces invalid
// UTF-8 sequences instead of failing.
func decodeBase64URL(data string) (string, bool) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", false
		}
	}

	return strings.ToValidUTF8(string(decoded), "\uFFFD"), true
}

func headerValue(payload *gmail.MessagePart, name, def string) string {
	if payload == nil {
		return def
	}

	for _, h := range payload.Headers {
		if h != nil && h.Name == name {
			return h.Value
		}
	}

	return def
}
