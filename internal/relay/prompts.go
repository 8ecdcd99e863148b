package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/parley0/parley/internal/convo"
)

// DefaultIntro is the leading system instruction for new conversations.
const DefaultIntro = "You are a helpful assistant. Answer as accurately and concisely as you can."

// DefaultHowToRespond shapes answer delivery after the tool rounds are done.
const DefaultHowToRespond = "When you used web results, mention the source. If you do not know, say so instead of guessing."

// DefaultSummaryPrompt asks for the condensation that replaces an
// over-budget conversation.
const DefaultSummaryPrompt = "Summarize the conversation above, keeping every fact needed to continue it. Answer with the summary only."

// tagInstructions teaches the inline invocation syntax when tools are not
// advertised through the manifest.
const tagInstructions = "When you need current information, reply with exactly <search>your query</search> and nothing else. " +
	"To read a page from the results, reply with exactly <load>url</load>. " +
	"The result will follow wrapped in <result></result> tags. When you have enough information, answer normally."

// SeedConfig controls the seed turn set installed on first access and on
// every reset.
type SeedConfig struct {
	Intro        string // defaults to DefaultIntro
	HowToRespond string // defaults to DefaultHowToRespond

	// TagStyle appends the inline invocation instructions to the system
	// turn. Leave false when tools are advertised via the manifest.
	TagStyle bool

	// Now overrides the clock used for the date line, for tests.
	Now func() time.Time
}

// NewSeed builds the seed function for the conversation store. The system
// turn carries the current date so the model does not reason from its
// training cutoff.
func NewSeed(cfg SeedConfig) convo.SeedFunc {
	intro := cfg.Intro
	if intro == "" {
		intro = DefaultIntro
	}
	howTo := cfg.HowToRespond
	if howTo == "" {
		howTo = DefaultHowToRespond
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return func(string) []convo.Turn {
		parts := []string{intro, howTo}
		if cfg.TagStyle {
			parts = append(parts, tagInstructions)
		}
		parts = append(parts, fmt.Sprintf("Current date: %s.", now().Format("January 2, 2006")))

		return []convo.Turn{{
			Role:    convo.RoleSystem,
			Content: strings.Join(parts, "\n"),
			Kind:    convo.KindInitial,
		}}
	}
}
