package sanitize

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// roomTokenPrefix marks tokens produced by ForRoomToken
const roomTokenPrefix = "dir_"

var (
	// shellMetaReplacer removes characters a shell would interpret
	shellMetaReplacer = strings.NewReplacer(
		"<", "", ">", "", "&", "", `"`, "", "'", "", "|", "",
		";", "", "`", "", "$", "", "(", "", ")", "",
		"{", "", "}", "", "[", "", "]", "",
	)

	// whitespaceRegex matches runs of whitespace, newlines included
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// StripShellMeta removes shell metacharacters: < > & " ' | ; ` $ ( ) { } [ ]
func StripShellMeta(s string) string {
	if s == "" {
		return ""
	}
	return shellMetaReplacer.Replace(s)
}

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims the ends.
func CollapseWhitespace(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// ForRoomToken derives a room identifier from a directory path.
// The token is URL- and filename-safe, deterministic, and reversible with
// RoomPath, so two different paths never share a token.
func ForRoomToken(path string) string {
	return roomTokenPrefix + base64.RawURLEncoding.EncodeToString([]byte(path))
}

// RoomPath recovers the directory path encoded in a room token.
func RoomPath(token string) (string, error) {
	encoded, ok := strings.CutPrefix(token, roomTokenPrefix)
	if !ok {
		return "", fmt.Errorf("not a room token: %s", token)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid room token %s: %w", token, err)
	}
	return string(raw), nil
}
