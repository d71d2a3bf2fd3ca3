package relay

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"
)

func TestClassify_NilIsSent(t *testing.T) {
	if got := Classify(nil); got != OutcomeSent {
		t.Errorf("expected sent, got %v", got)
	}
}

func TestClassify_RateLimitCodes(t *testing.T) {
	for _, code := range []int{421, 450, 451, 452} {
		err := &textproto.Error{Code: code, Msg: "service unavailable"}
		if got := Classify(err); got != OutcomeRateLimited {
			t.Errorf("code %d: expected rate_limited, got %v", code, got)
		}
	}
}

func TestClassify_RateLimitPhrases(t *testing.T) {
	cases := []string{
		"4.7.28 Our system has detected an unusual rate of unsolicited mail",
		"Daily sending quota exceeded",
		"Too many messages, slow down",
		"Throttling in effect, try again later",
		"RateLimit reached for this sender",
	}

	for _, msg := range cases {
		// 554 is not in the code table; only the wording should match.
		err := &textproto.Error{Code: 554, Msg: msg}
		if got := Classify(err); got != OutcomeRateLimited {
			t.Errorf("%q: expected rate_limited, got %v", msg, got)
		}
	}
}

func TestClassify_ProtocolRejectionIsFatal(t *testing.T) {
	cases := []*textproto.Error{
		{Code: 550, Msg: "mailbox unavailable"},
		{Code: 553, Msg: "invalid recipient address"},
		{Code: 554, Msg: "message rejected due to content policy"},
	}

	for _, err := range cases {
		if got := Classify(err); got != OutcomeFatal {
			t.Errorf("%d %s: expected fatal, got %v", err.Code, err.Msg, got)
		}
	}
}

func TestClassify_WrappedProtocolErrorIsUnwrapped(t *testing.T) {
	inner := &textproto.Error{Code: 452, Msg: "insufficient system storage"}
	wrapped := fmt.Errorf("send failed: %w", inner)

	if got := Classify(wrapped); got != OutcomeRateLimited {
		t.Errorf("expected rate_limited through the wrap, got %v", got)
	}
}

func TestClassify_ConnectionErrorsAreTransient(t *testing.T) {
	cases := []error{
		errors.New("connection reset by peer"),
		&net.OpError{Op: "write", Err: errors.New("broken pipe")},
		errors.New("EOF"),
	}

	for _, err := range cases {
		if got := Classify(err); got != OutcomeTransient {
			t.Errorf("%v: expected transient, got %v", err, got)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeSent:        "sent",
		OutcomeTransient:   "transient",
		OutcomeRateLimited: "rate_limited",
		OutcomeFatal:       "fatal",
	}

	for outcome, want := range cases {
		if got := outcome.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
