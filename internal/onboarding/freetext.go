package onboarding

import (
	"slices"
	"strconv"
	"strings"
)

var (
	skipWords   = []string{"skip", "skip this step", "pass", "prefer not to say"}
	finishWords = []string{"done", "continue", "next", "finish", "that's all"}
)

// MatchOption resolves free text to one of the step's options. An exact
// case-insensitive match wins; otherwise the text must be contained in exactly
// one option.
func MatchOption(step Step, text string) (string, bool) {
	needle := normalize(text)
	if needle == "" {
		return "", false
	}

	for _, opt := range step.Options {
		if normalize(opt) == needle {
			return opt, true
		}
	}

	var found string
	hits := 0
	for _, opt := range step.Options {
		if strings.Contains(normalize(opt), needle) {
			found = opt
			hits++
		}
	}
	if hits != 1 {
		return "", false
	}
	return found, true
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func isSkipWord(s string) bool   { return slices.Contains(skipWords, normalize(s)) }
func isFinishWord(s string) bool { return slices.Contains(finishWords, normalize(s)) }

// OptionByNumber resolves a 1-based option number such as "2" to the
// step's option.
func OptionByNumber(step Step, input string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(step.Options) {
		return "", false
	}
	return step.Options[n-1], true
}
