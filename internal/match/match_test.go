package match

import "testing"

func compile(t *testing.T, pattern string) *Pattern {
	t.Helper()
	p, err := Compile(pattern)
	if err != nil {
		t.Fatalf("Compile(%q): %v", pattern, err)
	}
	return p
}

func TestPattern_Alternation(t *testing.T) {
	p := compile(t, "香港|港|HK|Hong Kong|🇭🇰")

	cases := []struct {
		name string
		want bool
	}{
		{"HK-01", true},
		{"🇭🇰 Premium 02", true},
		{"香港 IPLC", true},
		{"Hong Kong 3", true},
		{"hk-lower", false}, // case-sensitive
		{"US-02", false},
		{"", false},
	}
	for _, c := range cases {
		if got := p.Match(c.name); got != c.want {
			t.Errorf("Match(%q): got %v, want %v", c.name, got, c.want)
		}
	}
	if got, want := p.String(), "香港|港|HK|Hong Kong|🇭🇰"; got != want {
		t.Fatalf("String: got %q, want %q", got, want)
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile("(unclosed"); err == nil {
		t.Fatalf("want error for unbalanced group")
	}
}

func TestAnyOf(t *testing.T) {
	m := AnyOf{compile(t, "HK"), compile(t, "JP|Japan")}
	if !m.Match("Japan 1") {
		t.Errorf("want match for Japan 1")
	}
	if m.Match("SG-1") {
		t.Errorf("want no match for SG-1")
	}
	if (AnyOf{}).Match("HK") {
		t.Errorf("empty AnyOf must match nothing")
	}
}
