// Package statechange detects emotion and inventory changes in a dialogue
// turn and applies them to persona state.
package statechange

import (
	"regexp"
	"strings"
)

// Intensity tiers, strongest first.
const (
	IntensityExtreme  = "extreme"
	IntensityHigh     = "high"
	IntensityModerate = "moderate"
	IntensityLow      = "low"
)

type emotionEntry struct {
	emotion  string
	keywords []string
}

// lexicon is scanned in this order; the order decides ties.
var lexicon = []emotionEntry{
	{"joy", []string{"happy", "joy", "excited", "pleased", "delighted", "cheerful"}},
	{"trust", []string{"trust", "believe", "confident", "reliable", "faith"}},
	{"fear", []string{"afraid", "scared", "fear", "terrified", "worried", "anxious"}},
	{"surprise", []string{"surprised", "shocked", "amazed", "astonished", "stunned"}},
	{"sadness", []string{"sad", "depressed", "melancholy", "grief", "sorrow", "unhappy"}},
	{"disgust", []string{"disgusted", "repulsed", "revolted", "appalled"}},
	{"anger", []string{"angry", "furious", "rage", "irritated", "mad", "enraged"}},
	{"anticipation", []string{"excited", "eager", "anticipating", "looking forward"}},
}

type intensityTier struct {
	intensity  string
	indicators []string
}

var intensityTiers = []intensityTier{
	{IntensityExtreme, []string{"extremely", "absolutely", "completely", "totally", "utterly"}},
	{IntensityHigh, []string{"very", "really", "so", "quite", "highly"}},
	{IntensityModerate, []string{"somewhat", "kind of", "sort of", "a bit"}},
}

// EmotionChange proposes a new primary emotion.
type EmotionChange struct {
	Emotion   string `json:"emotion"`
	Intensity string `json:"intensity"`
}

// InventoryOp is the kind of an inventory proposal.
type InventoryOp string

const (
	InventoryAdd    InventoryOp = "add"
	InventoryRemove InventoryOp = "remove"
)

// InventoryChange proposes adding or removing one item.
type InventoryChange struct {
	Op   InventoryOp `json:"op"`
	Item string      `json:"item"`
}

// Proposals bundles the detector output for one turn.
type Proposals struct {
	Emotions  []EmotionChange   `json:"emotion_changes"`
	Inventory []InventoryChange `json:"inventory_changes"`
}

// Empty reports whether nothing was detected.
func (p Proposals) Empty() bool {
	return len(p.Emotions) == 0 && len(p.Inventory) == 0
}

// Analyze runs both detectors over one exchange.
func Analyze(userText, assistantText string) Proposals {
	return Proposals{
		Emotions:  DetectEmotionChanges(userText, assistantText),
		Inventory: DetectInventoryChanges(userText),
	}
}

// DetectEmotionChanges scans userText and then assistantText for emotion
// keywords. Per text and emotion the first matching keyword counts. A match
// in assistantText replaces the intensity found in userText for the same
// emotion but keeps its position. Matching is case-insensitive substring.
func DetectEmotionChanges(userText, assistantText string) []EmotionChange {
	var changes []EmotionChange
	pos := make(map[string]int)

	for _, text := range []string{userText, assistantText} {
		lower := strings.ToLower(text)
		if lower == "" {
			continue
		}
		for _, entry := range lexicon {
			if !containsAny(lower, entry.keywords) {
				continue
			}
			change := EmotionChange{Emotion: entry.emotion, Intensity: Intensity(lower)}
			if i, ok := pos[entry.emotion]; ok {
				changes[i] = change
				continue
			}
			pos[entry.emotion] = len(changes)
			changes = append(changes, change)
		}
	}
	return changes
}

// Intensity returns the first tier whose indicator occurs anywhere in text,
// or IntensityLow.
func Intensity(text string) string {
	lower := strings.ToLower(text)
	for _, tier := range intensityTiers {
		if containsAny(lower, tier.indicators) {
			return tier.intensity
		}
	}
	return IntensityLow
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var (
	givePatterns = compile(
		`give\s+(?:you|him|her|them)\s+([a-zA-Z\s]+)`,
		`hand\s+(?:you|him|her|them)\s+([a-zA-Z\s]+)`,
		`offer\s+(?:you|him|her|them)\s+([a-zA-Z\s]+)`,
		`present\s+(?:you|him|her|them)\s+([a-zA-Z\s]+)`,
		`here\s+is\s+([a-zA-Z\s]+)`,
		`take\s+this\s+([a-zA-Z\s]+)`,
	)
	takePatterns = compile(
		`take\s+(?:your|his|her|their)\s+([a-zA-Z\s]+)`,
		`steal\s+(?:your|his|her|their)\s+([a-zA-Z\s]+)`,
		`remove\s+(?:your|his|her|their)\s+([a-zA-Z\s]+)`,
		`lose\s+(?:your|his|her|their)\s+([a-zA-Z\s]+)`,
	)
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// minItemLength discards matches like "it" or "me".
const minItemLength = 3

// leadingDeterminers are stripped from captured items so "here is my sword"
// yields "sword".
var leadingDeterminers = []string{"a", "an", "the", "my", "our", "your", "his", "her", "their", "this", "that", "some"}

// DetectInventoryChanges applies the give and take patterns to the lowercased
// userText. Every match is kept, de-duplicated per (op, item) in first-seen
// order, adds before removes.
func DetectInventoryChanges(userText string) []InventoryChange {
	lower := strings.ToLower(userText)
	var changes []InventoryChange
	seen := make(map[InventoryChange]bool)

	collect := func(op InventoryOp, patterns []*regexp.Regexp) {
		for _, re := range patterns {
			for _, m := range re.FindAllStringSubmatch(lower, -1) {
				item := normalizeItem(m[1])
				if len(item) < minItemLength {
					continue
				}
				c := InventoryChange{Op: op, Item: item}
				if seen[c] {
					continue
				}
				seen[c] = true
				changes = append(changes, c)
			}
		}
	}
	collect(InventoryAdd, givePatterns)
	collect(InventoryRemove, takePatterns)
	return changes
}

func normalizeItem(raw string) string {
	words := strings.Fields(raw)
	for len(words) > 1 && isDeterminer(words[0]) {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func isDeterminer(w string) bool {
	for _, d := range leadingDeterminers {
		if w == d {
			return true
		}
	}
	return false
}
