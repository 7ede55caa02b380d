package chat

import "strings"

// ParseLine splits "<dest1>[,<dest2>...]:<body>" at the first colon. Lines
// without a colon are not messages and report false.
func ParseLine(from, line string) (RoutedMessage, bool) {
	dest, body, found := strings.Cut(line, ":")
	if !found {
		return RoutedMessage{}, false
	}
	names := strings.Split(dest, ",")
	to := make([]string, 0, len(names))
	for _, name := range names {
		to = append(to, strings.TrimSpace(name))
	}
	return RoutedMessage{
		From: from,
		To:   to,
		Body: strings.TrimSpace(body),
	}, true
}
