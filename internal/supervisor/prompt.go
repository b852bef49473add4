package supervisor

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// ComposePrompt joins the fixed instructions, the conversation context and
// the request into the text fed to the tool.
func ComposePrompt(system, context, request string) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	b.WriteString("Conversation context:\n")
	b.WriteString(context)
	b.WriteString("\n\nRequest: ")
	b.WriteString(request)
	return b.String()
}

// Fingerprint is the hex BLAKE3 digest of a composed prompt. It lets the
// journal and the logs correlate runs without storing prompt text.
func Fingerprint(prompt string) string {
	sum := blake3.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
