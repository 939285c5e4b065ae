package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "borsabot/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	got := splitText("merhaba", 4000, "")
	if len(got) != 1 || got[0] != "merhaba" {
		t.Fatalf("splitText = %v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	lines := strings.Repeat("satır satır satır\n", 40)
	chunks := splitText(lines, 100, "")
	if len(chunks) < 2 {
		t.Fatal("expected multiple chunks")
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk %d over limit: %d runes", i, len([]rune(c)))
		}
		if strings.Contains(c, "satır sa\ntır") {
			t.Fatalf("chunk %d split mid-word: %q", i, c)
		}
	}
}

func TestSplitTextAvoidsDanglingHTMLTag(t *testing.T) {
	s := strings.Repeat("x", 95) + "<b>kalın</b>"
	chunks := splitText(s, 100, "HTML")
	for i, c := range chunks {
		opens := strings.Count(c, "<")
		closes := strings.Count(c, ">")
		if opens != closes {
			t.Fatalf("chunk %d has a dangling tag: %q", i, c)
		}
	}
}

func TestClassifySendErr(t *testing.T) {
	cases := []struct {
		err  error
		gone bool
	}{
		{nil, false},
		{&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, true},
		{&tele.Error{Code: 400, Description: "Bad Request: chat not found"}, true},
		{&tele.Error{Code: 400, Description: "Bad Request: message is too long"}, false},
		{&tele.Error{Code: 429, Description: "Too Many Requests"}, false},
		{errors.New("dial tcp: timeout"), false},
	}
	for _, tc := range cases {
		got := classifySendErr(tc.err)
		if tc.err == nil {
			if got != nil {
				t.Fatal("nil must stay nil")
			}
			continue
		}
		if errors.Is(got, kit.ErrRecipientGone) != tc.gone {
			t.Errorf("classifySendErr(%v): gone = %v, want %v", tc.err, !tc.gone, tc.gone)
		}
	}
}
