package catalog

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		id   ID
		kind Kind
		ok   bool
	}{
		{Python, KindEmbedded, true},
		{Java, KindVM, true},
		{Cpp, KindNative, true},
		{C, KindNative, true},
		{JavaScript, KindDirect, true},
		{"JAVASCRIPT", KindDirect, true},
		{"cobol", KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			lang, ok := Default().Lookup(tt.id)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if lang.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", lang.Kind, tt.kind)
			}
		})
	}
}

func TestGetFallsBackToFirst(t *testing.T) {
	if got := Default().Get("cobol"); got.ID != Python {
		t.Errorf("expected python fallback, got %q", got.ID)
	}
}

func TestByExtension(t *testing.T) {
	tests := []struct {
		path string
		want ID
		ok   bool
	}{
		{"main.py", Python, true},
		{"Main.java", Java, true},
		{"solve.CPP", Cpp, true},
		{"app.mjs", JavaScript, true},
		{"README", "", false},
		{"notes.txt", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			lang, ok := Default().ByExtension(tt.path)
			if ok != tt.ok || lang.ID != tt.want {
				t.Errorf("got (%q, %v), want (%q, %v)", lang.ID, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResolveAliases(t *testing.T) {
	tests := map[string]ID{
		"py":     Python,
		"js":     JavaScript,
		"C++":    Cpp,
		" java ": Java,
		"c":      C,
	}
	for in, want := range tests {
		if got := Resolve(in); got != want {
			t.Errorf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSkipsDuplicates(t *testing.T) {
	c := New(
		Language{ID: "x", Name: "first", Kind: KindDirect},
		Language{ID: "x", Name: "second"},
	)
	if len(c.All()) != 1 {
		t.Fatalf("expected 1 language, got %d", len(c.All()))
	}
	l, _ := c.Lookup("x")
	if l.Name != "first" || l.Engine != "direct" {
		t.Errorf("unexpected entry %+v", l)
	}
}
