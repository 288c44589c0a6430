package ircmsg

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		prefix  string
		command string
		params  []string
		success bool
	}{
		{":irc PRIVMSG\r\n", "irc", "PRIVMSG", []string{}, true},
		{":irc PRIVMSG", "", "", []string{}, false},
		{":irc \r\n", "", "", []string{}, false},
		{"PRIVMSG\r\n", "", "PRIVMSG", []string{}, true},
		{"PRIVMSG :hi there\r\n", "", "PRIVMSG", []string{"hi there"}, true},
		{": PRIVMSG \r\n", "", "", []string{}, false},
		{"ir\rc\r\n", "", "", []string{}, false},
		{":irc PRIVMSG blah\r\n", "irc", "PRIVMSG", []string{"blah"}, true},
		{":irc 001 :Welcome\r\n", "irc", "001", []string{"Welcome"}, true},
		{":irc 001\r\n", "irc", "001", []string{}, true},
		{":irc PRIVMSG \r\n", "irc", "PRIVMSG", []string{}, true},
		{":irc @01\r\n", "", "", []string{}, false},

		// IRCv3 tags.
		{"@id=123 :irc PRIVMSG #a :hi\r\n", "irc", "PRIVMSG", []string{"#a", "hi"}, true},
		{"@a;b=2 PING\r\n", "", "PING", []string{}, true},
	}

	for _, test := range tests {
		got, err := Parse(test.input)
		if test.success && err != nil {
			t.Errorf("Parse(%q) = error %s, wanted success", test.input, err)
			continue
		}
		if !test.success {
			if err == nil {
				t.Errorf("Parse(%q) = success, wanted error", test.input)
			}
			continue
		}

		if got.Prefix != test.prefix {
			t.Errorf("Parse(%q).Prefix = %s, wanted %s", test.input, got.Prefix, test.prefix)
		}
		if got.Command != test.command {
			t.Errorf("Parse(%q).Command = %s, wanted %s", test.input, got.Command, test.command)
		}
		if len(got.Params) != len(test.params) {
			t.Fatalf("Parse(%q).Params = %q, wanted %q", test.input, got.Params, test.params)
		}
		for i := range test.params {
			if got.Params[i] != test.params[i] {
				t.Errorf("Parse(%q).Params[%d] = %s, wanted %s", test.input, i, got.Params[i], test.params[i])
			}
		}
	}
}

func TestParseTags(t *testing.T) {
	m, err := Parse("@account=bob;draft\\sfoo=a\\sb :nick!user@host PRIVMSG #a :hi\r\n")
	if err != nil {
		t.Fatalf("Parse() = error %s", err)
	}
	if m.Tags["account"] != "bob" {
		t.Errorf("Tags[account] = %q, wanted bob", m.Tags["account"])
	}
	// Only values are unescaped; the key is kept exactly as it appears.
	if m.Tags[`draft\sfoo`] != "a b" {
		t.Errorf(`Tags[draft\sfoo] = %q, wanted 'a b'`, m.Tags[`draft\sfoo`])
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := Message{
		Tags:    map[string]string{"account": "bob", "k": "a;b c"},
		Prefix:  "nick!user@host",
		Command: "PRIVMSG",
		Params:  []string{"#a", "hi there"},
	}

	encoded, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() = error %s", err)
	}

	got, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse(%q) = error %s", encoded, err)
	}

	if got.Prefix != m.Prefix || got.Command != m.Command {
		t.Fatalf("round trip changed prefix/command: %+v", got)
	}
	if len(got.Params) != len(m.Params) || got.Params[1] != "hi there" {
		t.Fatalf("round trip changed params: %+v", got.Params)
	}
	if got.Tags["account"] != "bob" || got.Tags["k"] != "a;b c" {
		t.Fatalf("round trip changed tags: %+v", got.Tags)
	}
}

func TestEncodeTruncates(t *testing.T) {
	big := make([]byte, MaxLineLength)
	for i := range big {
		big[i] = 'a'
	}

	m := Message{Command: "PRIVMSG", Params: []string{"#a", string(big)}}

	encoded, err := m.Encode()
	if err != ErrTruncated {
		t.Fatalf("Encode() = err %v, wanted ErrTruncated", err)
	}
	if len(encoded) > MaxLineLength {
		t.Fatalf("encoded length = %d, wanted <= %d", len(encoded), MaxLineLength)
	}
}
