// Package textclean tidies model and recogniser output before it is stored or spoken.
package textclean

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
)

// A phrase repeated four or more times in a row.
const repetitionPattern = `(.+?)\1{3,}`

var (
	repetitions  = regexp2.MustCompile(repetitionPattern, regexp2.None)
	thoughtTags  = regexp2.MustCompile(`<(thought|think)>.*?</\1>`, regexp2.Singleline|regexp2.IgnoreCase)
	thinkingLine = regexp2.MustCompile(`^[ \t]*Thinking:.*(\r?\n|$)`, regexp2.Multiline|regexp2.IgnoreCase)
)

// CollapseRepetitions keeps one copy of any phrase repeated four or more
// times in a row, a common speech-recognition hallucination.
func CollapseRepetitions(text string) (string, error) {
	if text == "" {
		return text, nil
	}

	collapsed, err := repetitions.Replace(text, "$1", -1, -1)
	if err != nil {
		return text, fmt.Errorf("failed to collapse repetitions: %w", err)
	}

	return collapsed, nil
}

// StripThinking removes reasoning blocks and "Thinking:" lines that some
// models emit before their answer.
func StripThinking(text string) (string, error) {
	stripped, err := thoughtTags.Replace(text, "", -1, -1)
	if err != nil {
		return text, fmt.Errorf("failed to strip thought tags: %w", err)
	}

	stripped, err = thinkingLine.Replace(stripped, "", -1, -1)
	if err != nil {
		return text, fmt.Errorf("failed to strip thinking lines: %w", err)
	}

	return strings.TrimSpace(stripped), nil
}

// ContainsCJK reports whether text holds at least minCount Han characters.
func ContainsCJK(text string, minCount int) bool {
	count := 0

	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			count++
			if count >= minCount {
				return true
			}
		}
	}

	return minCount <= 0
}
