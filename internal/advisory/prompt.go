package advisory

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/tribed/internal/profile"
)

// profileSummary is the compact profile rendering sent to the provider.
// Identity is limited to the opaque ID; no contact or location precision
// beyond what scoring needs.
type profileSummary struct {
	ID            string                     `json:"id"`
	Traits        []profile.PersonalityTrait `json:"traits"`
	Interests     []string                   `json:"interests"`
	Communication profile.CommunicationStyle `json:"communication"`
}

func summarize(p *profile.Profile) profileSummary {
	return profileSummary{
		ID:            p.ID,
		Traits:        p.Traits,
		Interests:     p.InterestKeys(),
		Communication: p.Communication,
	}
}

// pairScorePrompt renders the compatibility scoring request. The response
// contract is a bare JSON object so extractScore can parse it even when
// the model wraps it in prose.
func pairScorePrompt(a, b *profile.Profile) string {
	ja, _ := json.MarshalIndent(summarize(a), "", "  ")
	jb, _ := json.MarshalIndent(summarize(b), "", "  ")

	return fmt.Sprintf(`You assess social compatibility between two people for a small ongoing activity group.

Person A:
%s

Person B:
%s

Considering personality fit, shared interests and communication styles, rate their compatibility from 0 (incompatible) to 100 (excellent match).

Respond with exactly one JSON object: {"score": <number>}`, ja, jb)
}

// adjustmentPrompt renders the assignment-review request.
func adjustmentPrompt(summary string) string {
	return fmt.Sprintf(`You review group assignments for a social matching system.

Current assignments:
%s

Suggest up to three member adjustments that could improve overall group compatibility, or state that the assignments look balanced. Keep it under 150 words.`, summary)
}
