package crawler

import "strings"

// DefaultPhraseTemplate is the search phrase shape used when none is configured.
const DefaultPhraseTemplate = "womens pockets {modifier} {topic}"

// Phrases expands a topic and its modifiers into one search phrase per
// modifier, in input order.
func Phrases(template, topic string, modifiers []string) []string {
	if template == "" {
		template = DefaultPhraseTemplate
	}
	out := make([]string, 0, len(modifiers))
	for _, m := range modifiers {
		r := strings.NewReplacer("{modifier}", m, "{topic}", topic)
		out = append(out, r.Replace(template))
	}
	return out
}
