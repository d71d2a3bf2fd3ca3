package relay

import (
	"errors"
	"net/textproto"
	"strings"
)

// Outcome classifies one send attempt. The delivery worker branches on this
// enum only; no caller inspects raw relay error text.
type Outcome int

const (
	// OutcomeSent: the relay accepted the message.
	OutcomeSent Outcome = iota
	// OutcomeTransient: the connection broke before the relay answered.
	// The message may be retried once on a fresh connection.
	OutcomeTransient
	// OutcomeRateLimited: the relay rejected citing throughput or quota.
	// Ambiguous accept state; never retried within the same run.
	OutcomeRateLimited
	// OutcomeFatal: a definitive protocol rejection. Terminal.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeTransient:
		return "transient"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "fatal"
	}
}

// Reply codes that relays use for throughput or quota pushback. 421 is the
// classic "too many connections/messages" code; 450-452 cover mailbox and
// storage quota family responses.
var rateLimitCodes = map[int]bool{
	421: true,
	450: true,
	451: true,
	452: true,
}

// Vendor wordings observed on providers that hide rate limits behind
// generic codes (Gmail, Outlook, SES and the like). Matched against the
// protocol reply text only, never against arbitrary Go error strings.
var rateLimitPhrases = []string{
	"rate limit",
	"ratelimit",
	"too many",
	"quota",
	"exceeded",
	"throttl",
	"try again later",
	"4.7.0",
	"4.7.28",
}

// Classify maps a send error to an Outcome. The rules, in order:
// a nil error is a successful send; a protocol reply (textproto.Error) is
// rate-limited when its code or wording matches the tables above and fatal
// otherwise; anything else means the connection itself failed mid-exchange
// and is transient.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSent
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if rateLimitCodes[protoErr.Code] {
			return OutcomeRateLimited
		}

		reply := strings.ToLower(protoErr.Msg)
		for _, phrase := range rateLimitPhrases {
			if strings.Contains(reply, phrase) {
				return OutcomeRateLimited
			}
		}

		return OutcomeFatal
	}

	return OutcomeTransient
}
