package engine

import (
	"regexp"
	"strings"
)

// Role identifies who produced a conversation turn. User text is gated
// more loosely than assistant text.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GatePolicy is the immutable rule table for the attention gate. The
// default policy covers the common conversational noise; tests and
// deployments may swap in their own.
type GatePolicy struct {
	MinChars          int
	MaxUserChars      int
	MaxAssistantChars int // lower than user's, to avoid retaining code dumps
	MinUserWords      int
	MinAssistantWords int
	MaxEmoji          int

	NoisePatterns  []*regexp.Regexp // matched against the full trimmed text
	ContextMarkers []string         // markers of the engine's own injected output
	ToolMarkers    []string         // tool-call/result markup, assistant only
}

// DefaultGatePolicy returns the built-in rule table.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{
		MinChars:          12,
		MaxUserChars:      8000,
		MaxAssistantChars: 4000,
		MinUserWords:      3,
		MinAssistantWords: 5,
		MaxEmoji:          3,
		NoisePatterns:     noisePatterns,
		ContextMarkers: []string{
			"[recalled memory]",
			"Relevant memories:",
			"<memory-context>",
		},
		ToolMarkers: []string{
			"<tool_call>",
			"<tool_result>",
			"<function_call>",
			"[TOOL_REQUEST]",
		},
	}
}

// noisePatterns match whole utterances that carry no retainable signal.
var noisePatterns = []*regexp.Regexp{
	// Greetings and acknowledgments
	regexp.MustCompile(`(?i)^(hi|hiya|hello|hey|yo|howdy|good (morning|afternoon|evening|night))[.!?\s]*$`),
	regexp.MustCompile(`(?i)^(ok(ay)?|sure|yes|yeah|yep|no|nope|nah|thanks|thank you|thx|got it|sounds good|will do|cool|great|nice|perfect|awesome|done|indeed|right|correct|exactly|agreed)[.!?\s]*$`),
	// Two-word affirmations
	regexp.MustCompile(`(?i)^(ok(ay)?|sure|yes|yeah) (thanks|please|then|cool|fine)[.!?\s]*$`),
	// Deictic filler
	regexp.MustCompile(`(?i)^let me (check|see|look)( (it|that|this))?[.!?\s]*$`),
	// Short ack with trailing context
	regexp.MustCompile(`(?i)^(ok(ay)?|got it|sure)[,.!]? (i('ll| will) .{0,40}|one (sec|moment|minute).{0,20})$`),
	// Exclamations and fillers
	regexp.MustCompile(`(?i)^(h+m+|u+h+|u+m+|a+h+|o+h+|ugh+|wow+|oops|whoops|haha+|lol)[.!?\s]*$`),
	// Near-empty strings
	regexp.MustCompile(`^[\s[:punct:]]*$`),
	// Raw markup wrappers with no prose
	regexp.MustCompile(`^<[^>]+>\s*$`),
	// System-generated boilerplate
	regexp.MustCompile(`(?i)^session (re)?start(ed)?\b`),
	regexp.MustCompile(`(?i)^(heartbeat|HEARTBEAT_OK)\b`),
	regexp.MustCompile(`(?i)conversation (history )?(was )?compacted`),
	regexp.MustCompile(`(?i)^\[(cron|scheduled task|background task)\]`),
	regexp.MustCompile(`(?i)^(cron|background) (job|task) (report|completed)`),
}

// PassesGate decides whether a raw text turn is worth persisting.
// Pure and deterministic: same inputs, same answer, no side effects.
func PassesGate(text string, role Role, policy GatePolicy) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < policy.MinChars {
		return false
	}

	maxChars := policy.MaxUserChars
	minWords := policy.MinUserWords
	if role == RoleAssistant {
		maxChars = policy.MaxAssistantChars
		minWords = policy.MinAssistantWords
	}
	if len(trimmed) > maxChars {
		return false
	}
	if len(strings.Fields(trimmed)) < minWords {
		return false
	}

	for _, p := range policy.NoisePatterns {
		if p.MatchString(trimmed) {
			return false
		}
	}

	// Never re-store the engine's own injected context as a fresh observation.
	for _, marker := range policy.ContextMarkers {
		if strings.Contains(trimmed, marker) {
			return false
		}
	}

	if countEmoji(trimmed) > policy.MaxEmoji {
		return false
	}

	if role == RoleAssistant {
		for _, marker := range policy.ToolMarkers {
			if strings.Contains(trimmed, marker) {
				return false
			}
		}
		if fencedCodeRatio(trimmed) > 0.5 {
			return false
		}
	}

	return true
}

// fencedCodeRatio returns the fraction of characters inside ``` fences.
func fencedCodeRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	inFence := false
	fenced := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			fenced += len(line) + 1
		}
	}
	return float64(fenced) / float64(len(text))
}

func countEmoji(text string) int {
	count := 0
	for _, r := range text {
		if isEmoji(r) {
			count++
		}
	}
	return count
}

func isEmoji(r rune) bool {
	// Pictographs/emoticons and the misc-symbols/dingbats blocks.
	return (r >= 0x1F300 && r <= 0x1FAFF) || (r >= 0x2600 && r <= 0x27BF)
}
