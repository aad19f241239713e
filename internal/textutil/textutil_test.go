package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"AC/DC":            "AC-DC",
		"  What? <Live>  ": "What Live",
		"..hidden":         "hidden",
		"a\tb":             "ab",
		"":                 "",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("  My Playlist!  "); got != "my_playlist" {
		t.Fatalf("SanitizeToken = %q", got)
	}
	if got := SanitizeToken("***"); got != "unknown" {
		t.Fatalf("SanitizeToken = %q", got)
	}
}

func TestToASCII(t *testing.T) {
	cases := map[string]string{
		"Beyoncé":        "Beyonce",
		"Sigur Rós":      "Sigur Ros",
		"Straße":         "Strasse",
		"Motörhead":      "Motorhead",
		"Don’t Stop":     "Don't Stop",
		"東京":             "",
		"plain ascii 42": "plain ascii 42",
	}
	for in, want := range cases {
		if got := ToASCII(in); got != want {
			t.Fatalf("ToASCII(%q) = %q, want %q", in, got, want)
		}
	}
	if got := FoldIf(false, "é"); got != "é" {
		t.Fatalf("FoldIf(false) changed input: %q", got)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("SUCCEEDED"); got != "Succeeded" {
		t.Fatalf("Title = %q", got)
	}
}

func TestTernary(t *testing.T) {
	if Ternary(true, "a", "b") != "a" || Ternary(false, 1, 2) != 2 {
		t.Fatal("Ternary returned the wrong branch")
	}
}
