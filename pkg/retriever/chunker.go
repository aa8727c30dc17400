package retriever

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LongDocumentThreshold is the length above which a document is split into
// paragraphs.
const LongDocumentThreshold = 1000

// SplitDocument turns one lore document into chunks. Short documents stay
// whole; long ones are split on blank lines. Markdown rule lines ("---") are
// dropped since they collide with the chunk sidecar separator.
func SplitDocument(content string) []string {
	content = dropRules(content)
	if len(content) <= LongDocumentThreshold {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []string{strings.TrimSpace(content)}
	}

	var chunks []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

func dropRules(content string) string {
	if !strings.Contains(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "---" {
			kept = append(kept, "")
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// LoadDirectory reads every .txt and .md file directly under dir, in name
// order, and splits each into chunks.
func LoadDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("retriever: read lore dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var chunks []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("retriever: read %s: %w", name, err)
		}
		chunks = append(chunks, SplitDocument(string(data))...)
	}
	return chunks, nil
}
