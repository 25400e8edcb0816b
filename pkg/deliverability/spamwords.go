package deliverability

import (
	"regexp"
	"slices"
	"strings"
)

// spamTriggerWords are phrases that commonly push a subject line into spam folders.
var spamTriggerWords = []string{
	"act now",
	"buy now",
	"cash",
	"cheap",
	"click here",
	"congratulations",
	"credit card",
	"don't delete",
	"double your",
	"earn money",
	"free",
	"guarantee",
	"limited time",
	"no cost",
	"no obligation",
	"once in a lifetime",
	"order now",
	"risk free",
	"special promotion",
	"urgent",
	"what are you waiting for",
	"while supplies last",
	"winner",
}

var spamPattern = compileSpamPattern(spamTriggerWords)

func compileSpamPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}

	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// SpamWords returns the spam trigger phrases found in subject, lower-cased
// and in order of first appearance.
func SpamWords(subject string) []string {
	var found []string

	for _, match := range spamPattern.FindAllString(subject, -1) {
		word := strings.ToLower(match)
		if !slices.Contains(found, word) {
			found = append(found, word)
		}
	}

	return found
}
