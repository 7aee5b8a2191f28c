package spam

import "regexp"

// invitePattern matches invite links in message bodies. Whitespace is
// tolerated around the dots because spammers pad hostnames to dodge naive
// matchers ("example . gg/abc").
var invitePattern = regexp.MustCompile(`(?i)example(?:app\s*\.\s*chat/invite|\s*\.\s*gg(?:/invite)?)/([\w-]{2,255})`)

// ExtractInviteCodes returns every invite code referenced in the content,
// in order of appearance.
func ExtractInviteCodes(content string) []string {
	matches := invitePattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		codes = append(codes, m[1])
	}
	return codes
}
