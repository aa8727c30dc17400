package generation

import "strings"

const minCleanLength = 10

var promptEchoes = []string{
	"User says:",
	"Respond as your character:",
	"Background information:",
	"Background:",
	"Previous conversation:",
	"Recent conversation:",
	"IMPORTANT:",
}

// CleanResponse trims prompt echoes and invented dialogue from a raw reply.
// A leading "<name>:" is dropped, lines repeating prompt headers are removed,
// and the reply is cut at the first line that starts another speaker's turn.
// If fewer than ten characters survive the original reply is returned.
func CleanResponse(reply, personaName string) string {
	if reply == "" {
		return reply
	}

	speakers := []string{"User:", "AI:", "BOT:"}
	if personaName != "" {
		speakers = append(speakers, personaName+":")
	}

	cleaned := strings.TrimSpace(reply)
	if personaName != "" {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, personaName+":"))
	}

	var kept []string
	for i, line := range strings.Split(cleaned, "\n") {
		trimmed := strings.TrimSpace(line)
		if i > 0 && hasAnyPrefix(trimmed, speakers) {
			break
		}
		if hasAnyPrefix(trimmed, promptEchoes) {
			continue
		}
		kept = append(kept, line)
	}

	cleaned = strings.TrimSpace(strings.Join(kept, "\n"))
	if len(cleaned) < minCleanLength {
		return reply
	}
	return cleaned
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
