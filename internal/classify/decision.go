// Package classify asks a completion service what to do with an email and
// turns its tagged reply into a Decision.
package classify

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// Kind is the action the classifier settled on.
type Kind int

const (
	KindForwardToHuman Kind = iota
	KindAnswer
	KindIgnore
)

func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindIgnore:
		return "ignore"
	default:
		return "forward to human"
	}
}

// Decision is the parsed classification of one message.
type Decision struct {
	Kind            Kind
	Response        string // reply body, set only for KindAnswer
	ResponseAddress string // optional recipient override
	Reason          string
}

// Forward builds a forward-to-human decision carrying reason.
func Forward(reason string) Decision {
	return Decision{Kind: KindForwardToHuman, Reason: reason}
}

const (
	tagType          = "type"
	tagResponse      = "response"
	tagResponseEmail = "response email"
	tagReason        = "reason"
)

var (
	tagRe   = regexp.MustCompile(`(?i)<\s*(type|response\s+email|response|reason)\s*>\s*:?`)
	spaceRe = regexp.MustCompile(`\s+`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// Parse reads the four-field tagged format:
//
//	<Type>: answer | forward to human | ignore
//	<Response>: text, may span lines
//	<Response email>: optional address
//	<Reason>: free text
//
// Each value runs to the next recognised tag or the end of text. Anything
// it cannot trust becomes a forward-to-human decision.
func Parse(text string) Decision {
	fields := splitFields(text)
	reason := fields[tagReason]

	typ, ok := fields[tagType]
	if !ok || normalizeType(typ) == "" {
		return Forward(withModelReason("invalid classification: missing <Type>", reason))
	}

	d := Decision{Reason: reason}
	switch normalizeType(typ) {
	case "answer":
		d.Kind = KindAnswer
		d.Response = fields[tagResponse]
		if d.Response == "" {
			return Forward(withModelReason("invalid classification: answer without <Response>", reason))
		}
	case "forward to human":
		d.Kind = KindForwardToHuman
	case "ignore":
		d.Kind = KindIgnore
	default:
		return Forward(withModelReason(fmt.Sprintf("invalid classification type %q", strings.TrimSpace(typ)), reason))
	}
	d.ResponseAddress = parseAddress(fields[tagResponseEmail])
	return d
}

func splitFields(text string) map[string]string {
	out := map[string]string{}
	locs := tagRe.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		name := strings.ToLower(spaceRe.ReplaceAllString(text[loc[2]:loc[3]], " "))
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if _, seen := out[name]; seen {
			continue
		}
		out[name] = strings.TrimSpace(text[loc[1]:end])
	}
	return out
}

func normalizeType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.Trim(v, "[]().*\"' ")
	return spaceRe.ReplaceAllString(v, " ")
}

func parseAddress(v string) string {
	v = strings.TrimSpace(strings.Trim(strings.TrimSpace(v), "[]"))
	if v == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(v); err == nil {
		return addr.Address
	}
	return emailRe.FindString(v)
}

func withModelReason(msg, reason string) string {
	if reason == "" {
		return msg
	}
	return msg + "; model reason: " + reason
}
