package nodes

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/legal-assist-poc/server/internal/agent/graph/prompts"
	"github.com/legal-assist-poc/server/internal/agent/model"
)

func TestKeywordFeedback(t *testing.T) {
	tests := []struct {
		reply string
		want  model.FeedbackType
	}{
		{"Approved", model.FeedbackApproveBriefing},
		{"Yes, go ahead.", model.FeedbackApproveBriefing},
		{"Approved, but mention the 10 day cure period.", model.FeedbackProvideCorrections},
		{"Correct. Also add that notice must be written.", model.FeedbackProvideCorrections},
		{"That is incorrect, it is 45 days.", model.FeedbackProvideCorrections},
		{"The cap is two times annual fees.", model.FeedbackProvideCorrections},
		{"Not approved. Do not send this to the client.", model.FeedbackProvideCorrections},
		{"I do not approve.", model.FeedbackProvideCorrections},
		{"no, don't proceed", model.FeedbackProvideCorrections},
		{"Rejected.", model.FeedbackProvideCorrections},
		{"Approved, nothing to add.", model.FeedbackApproveBriefing},
		{"Looks good, no changes.", model.FeedbackApproveBriefing},
		{"Yes, nothing else to change.", model.FeedbackApproveBriefing},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, keywordFeedback(tt.reply).FeedbackType)
		})
	}
}

func TestWantsCorrection(t *testing.T) {
	assert.True(t, wantsCorrection("Approved, but change the cap."))
	assert.True(t, wantsCorrection("Please hold off, I disagree with the cap."))
	assert.True(t, wantsCorrection("No. The cap is two times fees."))
	assert.False(t, wantsCorrection("Approved, nothing to add."))
	assert.False(t, wantsCorrection("Approved. No further changes."))
	assert.False(t, wantsCorrection("Go ahead and send it."))
}

func TestKeywordSetMatchesWholeWords(t *testing.T) {
	k := newKeywordSet([]string{"add", " ", "go ahead"})
	assert.True(t, k.Match("please ADD the fee"))
	assert.True(t, k.Match("Go ahead."))
	assert.False(t, k.Match("send it to the address on file"))
	assert.False(t, newKeywordSet(nil).Match("anything"))

	var nilSet *keywordSet
	assert.False(t, nilSet.Match("add"))
}

func TestExtractProposedAnswer(t *testing.T) {
	memo := "QUESTION: Is notice required?\n**PROPOSED ANSWER:** Yes, 30-day notice is required.\n**CITATIONS:** Section 3.4\nLAWYER ACTION: approve?"
	assert.Equal(t, "Yes, 30-day notice is required.", ExtractProposedAnswer(memo))

	multi := "PROPOSED ANSWER:\nYes.\nIt must be in writing.\n\nCITATIONS: 3.4"
	assert.Equal(t, "Yes.\nIt must be in writing.", ExtractProposedAnswer(multi))

	bold := "**QUESTION**: Is notice required?\n**PROPOSED ANSWER**: Yes, in writing.\n**CITATIONS**: Section 3.4"
	assert.Equal(t, "Yes, in writing.", ExtractProposedAnswer(bold))

	assert.Equal(t, "just a memo", ExtractProposedAnswer("  just a memo "))
}

func TestAcceptAddition(t *testing.T) {
	base := "The notice period is 30 days (Section 3.4)."

	assert.Empty(t, acceptAddition(prompts.NoEnhancement, base, 400))
	assert.Empty(t, acceptAddition(" "+prompts.NoEnhancement+".\n", base, 400))
	assert.Empty(t, acceptAddition("", base, 400))
	assert.Empty(t, acceptAddition(strings.Repeat("a", 401), base, 400))
	assert.Empty(t, acceptAddition("30 days (Section 3.4)", base, 400))
	assert.Equal(t, "Notice must be written (Section 3.5).", acceptAddition(" Notice must be written (Section 3.5).\n", base, 400))
}

func TestNormalizeClauses(t *testing.T) {
	c := model.ExtractedClauses{
		TerminationClause: " 30 days ",
		IndemnityClause:   "Not found.",
		GoverningLaw:      "N/A",
		LiabilityCaps:     "",
		ForceMajeure:      "not specified",
		PaymentTerms:      "Net 30",
	}
	normalizeClauses(&c)
	assert.Equal(t, "30 days", c.TerminationClause)
	assert.Equal(t, model.ClauseNotSpecified, c.IndemnityClause)
	assert.Equal(t, model.ClauseNotSpecified, c.GoverningLaw)
	assert.Equal(t, model.ClauseNotSpecified, c.LiabilityCaps)
	assert.Equal(t, model.ClauseNotSpecified, c.ForceMajeure)
	assert.Equal(t, "Net 30", c.PaymentTerms)
}

func TestReplaceLastAssistant(t *testing.T) {
	history := []*schema.Message{
		schema.UserMessage("q"),
		schema.AssistantMessage("base", nil),
	}
	out := replaceLastAssistant(history, "base", "base\n\nmore")
	assert.Equal(t, "base\n\nmore", out[1].Content)
	assert.Equal(t, "base", history[1].Content, "input slice is untouched")

	same := replaceLastAssistant(history, "other", "x")
	assert.Equal(t, "base", same[1].Content)
}
