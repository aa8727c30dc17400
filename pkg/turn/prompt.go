package turn

import (
	"fmt"
	"strings"
)

// MaxBackgroundChunks is how many retrieved chunks reach the prompt.
const MaxBackgroundChunks = 2

// PromptInput is everything a prompt is assembled from.
type PromptInput struct {
	Query       string
	Description string // "Name, a Role from Location"
	Chunks      []string
	History     string
	Events      string
	State       string
}

// PromptBuilder renders the character-focused prompt.
type PromptBuilder struct{}

// Build assembles the prompt. Empty sections are omitted.
func (PromptBuilder) Build(in PromptInput) string {
	name := strings.TrimSpace(strings.SplitN(in.Description, ",", 2)[0])

	chunks := in.Chunks
	if len(chunks) > MaxBackgroundChunks {
		chunks = chunks[:MaxBackgroundChunks]
	}

	var sections []string
	if background := strings.Join(chunks, "\n"); background != "" {
		sections = append(sections, "Background information: "+background)
	}
	if in.State != "" {
		sections = append(sections, "Your current state: "+in.State)
	}
	if in.Events != "" {
		sections = append(sections, in.Events)
	}
	if in.History != "" {
		sections = append(sections, "Previous conversation:\n"+in.History)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s\n\n", name, in.Description)
	fmt.Fprintf(&b, "IMPORTANT: Always respond as %s. Never break character or refer to yourself in third person. "+
		"Use the background information to inform your responses naturally.\n\n", name)
	b.WriteString(strings.Join(sections, "\n\n"))
	fmt.Fprintf(&b, "\n\nUser: %s\n\n%s:", in.Query, name)
	return b.String()
}
