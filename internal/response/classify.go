// Package response turns raw tool output into chat messages.
//
// The tool is instructed to open its answer with a bracketed tag. Classify
// maps that tag to a Kind, Format renders the fixed template for the kind,
// and Chunk splits the result to fit the transport's message limit.
package response

import "strings"

// Kind is the closed set of response classes.
type Kind int

const (
	Plain Kind = iota
	Question
	AuthorizationRequest
	Success
	Error
)

func (k Kind) String() string {
	switch k {
	case Question:
		return "question"
	case AuthorizationRequest:
		return "authorization_request"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "plain"
	}
}

// Response is classified tool output with the tag removed.
type Response struct {
	Kind Kind
	Body string
}

// tags lists accepted prefixes. Older prompt files ask for the French
// spellings, so those are accepted too.
var tags = []struct {
	tag  string
	kind Kind
}{
	{"[QUESTION]", Question},
	{"[AUTHORIZATION]", AuthorizationRequest},
	{"[AUTORISATION]", AuthorizationRequest},
	{"[OK]", Success},
	{"[ERROR]", Error},
	{"[ERREUR]", Error},
}

// Classify inspects the leading tag of raw. Untagged output is Plain and kept verbatim.
func Classify(raw string) Response {
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	for _, t := range tags {
		if strings.HasPrefix(trimmed, t.tag) {
			return Response{
				Kind: t.kind,
				Body: strings.TrimSpace(strings.TrimPrefix(trimmed, t.tag)),
			}
		}
	}
	return Response{Kind: Plain, Body: raw}
}

// EmptyNotice is shown when the tool produced no output at all.
const EmptyNotice = "(Empty response - the tool returned nothing)"

// Format renders r with its presentation template.
func Format(r Response) string {
	switch r.Kind {
	case Question:
		return "? " + r.Body
	case AuthorizationRequest:
		return "Authorization requested:\n\n" + r.Body + "\n\nReply 'yes' to approve or 'no' to cancel."
	case Success:
		return r.Body
	case Error:
		return "Error: " + r.Body
	default:
		if strings.TrimSpace(r.Body) == "" {
			return EmptyNotice
		}
		return r.Body
	}
}

// Chunk splits text into contiguous pieces of at most limit runes. Joining
// the result gives back text. Empty text yields no chunks.
func Chunk(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
