package nodes

import (
	"regexp"
	"strings"
)

// Lawyer replies are matched on whole words, case-insensitively.
var (
	approvalKeywords = []string{
		"approve", "approved", "yes", "correct", "go ahead", "proceed", "lgtm", "looks good", "agreed",
	}
	correctionKeywords = []string{
		"however", "but", "instead", "actually", "incorrect", "not correct", "wrong", "change", "correction",
		"should be", "should say", "amend", "modify", "revise", "update", "add", "also", "except", "clarify", "note that",
	}
)

// keywordSet matches any of its terms as whole words.
type keywordSet struct {
	re *regexp.Regexp
}

func newKeywordSet(terms []string) *keywordSet {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	if len(quoted) == 0 {
		return &keywordSet{}
	}
	return &keywordSet{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

// Match reports whether s contains any term.
func (k *keywordSet) Match(s string) bool {
	return k != nil && k.re != nil && k.re.MatchString(s)
}

var (
	approvals   = newKeywordSet(approvalKeywords)
	corrections = newKeywordSet(correctionKeywords)
)

// "nothing to add" and "no changes" say there is no correction.
var negatedCorrectionRe = regexp.MustCompile(`(?i)\b(?:nothing|no)\s+(?:(?:else|further|more|other)\s+)?(?:to\s+)?(?:add|change|update|amend|modify|revise|changes|updates|amendments|corrections|additions)\b`)

// Negated approvals: "not approved", "do not send", "don't proceed", "rejected", a leading "no".
var negatedApprovalRe = regexp.MustCompile(`(?i)\b(?:not|never|don['’]?t|do not|doesn['’]?t|cannot|can['’]?t|won['’]?t|shouldn['’]?t)\s+(?:\w+\s+){0,2}?(?:approve[ds]?|proceed|send|agree[ds]?|go ahead|sign off|release)\b|\b(?:disapprove[ds]?|reject(?:ed|s)?|decline[ds]?|disagree[ds]?|hold off)\b|^\W*no\b`)

// wantsCorrection reports whether a lawyer reply asks for changes or withholds approval.
func wantsCorrection(reply string) bool {
	r := negatedCorrectionRe.ReplaceAllString(reply, " ")
	return corrections.Match(r) || negatedApprovalRe.MatchString(r)
}

// clearApproval reports an unnegated approval with no correction in it.
func clearApproval(reply string) bool {
	return approvals.Match(reply) && !wantsCorrection(reply)
}

var proposedAnswerRe = regexp.MustCompile(`(?is)PROPOSED ANSWER\**\s*:\**\s*(.*?)(?:\n[\s*#]*(?:CITATIONS|LAWYER ACTION|QUESTION)\**\s*:|\z)`)

// ExtractProposedAnswer returns the proposed-answer section of a briefing, or
// the whole briefing when it has no such section.
func ExtractProposedAnswer(briefing string) string {
	if m := proposedAnswerRe.FindStringSubmatch(briefing); len(m) == 2 {
		if ans := strings.TrimSpace(m[1]); ans != "" {
			return ans
		}
	}
	return strings.TrimSpace(briefing)
}
