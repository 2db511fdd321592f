package orchestrator

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Utterances groups words into utterances. An utterance ends at a word
// whose last character is one of terminators; words left over at the end
// form a final utterance.
func Utterances(words []Word, terminators string) iter.Seq[Utterance] {
	return func(yield func(Utterance) bool) {
		var (
			start int64
			text  []string
		)
		for _, w := range words {
			if len(text) == 0 {
				start = w.Start
			}
			text = append(text, w.Text)
			if !endsWithAny(w.Text, terminators) {
				continue
			}
			if !yield(Utterance{Start: start, End: w.End, Text: strings.Join(text, " ")}) {
				return
			}
			text = text[:0]
		}
		if len(text) > 0 {
			yield(Utterance{Start: start, End: words[len(words)-1].End, Text: strings.Join(text, " ")})
		}
	}
}

func endsWithAny(word, chars string) bool {
	r, size := utf8.DecodeLastRuneInString(word)
	if size == 0 {
		return false
	}
	return strings.ContainsRune(chars, r)
}

// SpeakerNormalizer turns tier names into speaker labels.
type SpeakerNormalizer struct {
	strip []*regexp.Regexp
}

// NewSpeakerNormalizer compiles the patterns removed from tier names, in order.
func NewSpeakerNormalizer(patterns []string) (*SpeakerNormalizer, error) {
	n := &SpeakerNormalizer{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		n.strip = append(n.strip, re)
	}
	return n, nil
}

// Normalize drops the party suffix and the minister title and joins the
// remaining name with hyphens: "Matti Meikäläinen/kok" -> "Matti-Meikäläinen".
func (n *SpeakerNormalizer) Normalize(tier string) string {
	s := strings.ReplaceAll(tier, "\u00a0", " ")
	for _, re := range n.strip {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, " ", "-")
}

func uttID(speaker, recording string, u Utterance) string {
	return speaker + "-" + recording + "-" + strconv.FormatInt(u.Start, 10) + "-" + strconv.FormatInt(u.End, 10)
}
