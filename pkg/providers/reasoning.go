package providers

import "regexp"

var (
	thinkBlock    = regexp.MustCompile(`(?is)<think>.*?</think>`)
	unclosedThink = regexp.MustCompile(`(?is)<think>.*$`)
)

// StripReasoning removes the <think>...</think> blocks that reasoning models
// such as deepseek-r1 put before their answer. An unterminated block is cut
// to the end of the text.
func StripReasoning(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	return unclosedThink.ReplaceAllString(s, "")
}
