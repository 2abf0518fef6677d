package source_test

import (
	"errors"
	"testing"

	"vidgrab/internal/services"
	"vidgrab/internal/source"
)

func TestParseNormalizesEquivalentSpellings(t *testing.T) {
	want := source.Reference{Platform: "youtube", ID: "dQw4w9WgXcQ"}
	spellings := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"http://youtube.com/watch?v=dQw4w9WgXcQ",
		"youtube.com/watch?v=dQw4w9WgXcQ",
		"  https://WWW.YouTube.com/watch?v=dQw4w9WgXcQ&t=42s  ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123&index=2",
		"https://music.youtube.com/watch?feature=share&v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ/?si=abc",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ?start=3",
		"https://www.youtube.com/v/dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ/",
		"https://www.youtube.com/live/dQw4w9WgXcQ?feature=shared",
		"https://www.youtube.com:443/watch?v=dQw4w9WgXcQ",
		"youtube.com/watch?v=dQw4w9WgXcQ&u=http://x",
		"youtu.be/dQw4w9WgXcQ?next=https://example.com/",
	}
	for _, raw := range spellings {
		got, err := source.Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %#v, want %#v", raw, got, want)
		}
		if got.Key() != "youtube:dQw4w9WgXcQ" {
			t.Fatalf("unexpected key %q", got.Key())
		}
	}
}

func TestParseRejectsUnknownShapes(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"ftp://youtube.com/watch?v=dQw4w9WgXcQ",
		"https://vimeo.com/123456",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ!",
		"https://www.youtube.com/channel/UC123",
		"https://youtu.be/",
		"https://evil-youtube.com/watch?v=dQw4w9WgXcQ",
		"https://%zz",
	}
	for _, raw := range cases {
		_, err := source.Parse(raw)
		if err == nil {
			t.Fatalf("Parse(%q) expected error", raw)
		}
		if !errors.Is(err, services.ErrInvalidInput) {
			t.Fatalf("Parse(%q) error %v is not InvalidInput", raw, err)
		}
	}
}

func TestParserRecognizesConfiguredPlatforms(t *testing.T) {
	parser := source.NewParser(source.NewPlatform("Example", "Example.com"))

	for _, raw := range []string{
		"https://example.com/watch?v=abc123",
		"example.com/watch?v=abc123&t=5",
		"https://www.example.com/embed/abc123",
	} {
		ref, err := parser.Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", raw, err)
		}
		if ref.Key() != "example:abc123" {
			t.Fatalf("Parse(%q) key = %q", raw, ref.Key())
		}
	}
	if got := parser.CanonicalURL(source.Reference{Platform: "example", ID: "abc123"}); got != "https://example.com/watch?v=abc123" {
		t.Fatalf("unexpected canonical url %q", got)
	}
	if got := parser.CanonicalURL(source.Reference{Platform: "youtube", ID: "dQw4w9WgXcQ"}); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("unexpected youtube canonical url %q", got)
	}
	if _, err := source.Parse("https://example.com/watch?v=abc123"); err == nil {
		t.Fatal("expected unconfigured platform to be rejected")
	}
}
