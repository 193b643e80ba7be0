package tagging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Hope", "hope"},
		{"spaces become hyphens", "Mental Health", "mental-health"},
		{"turkish letters", "Güçlü Kadın", "guclu-kadin"},
		{"accents", "Résilience Été", "resilience-ete"},
		{"punctuation stripped", "Sci/Fi & Co.", "scifi-co"},
		{"repeated hyphens collapse", "  Hope -- Healing ", "hope-healing"},
		{"leading and trailing hyphens", "--brave--", "brave"},
		{"tabs and newlines", "one\ttwo\nthree", "one-two-three"},
		{"digits kept", "Class of 2024", "class-of-2024"},
		{"only symbols", "!!!", ""},
		{"non latin script", "日本", ""},
		{"dotted capital i", "İstanbul", "istanbul"},
		{"transliterated letters", "Sørensen Straße", "sorensen-strasse"},
		{"compatibility forms not folded", "x² ﬁre", "x-re"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.input))
		})
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{"Güçlü Kadın", "Mental Health", "a--b", "Sci/Fi & Co.", "already-a-slug", "Straße"}
	for _, in := range inputs {
		once := Slugify(in)
		assert.Equal(t, once, Slugify(once), "input %q", in)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   Normalized
		wantOK bool
	}{
		{"trims display name", "  Hope  ", Normalized{Name: "Hope", Slug: "hope"}, true},
		{"keeps original casing", "Güçlü Kadın", Normalized{Name: "Güçlü Kadın", Slug: "guclu-kadin"}, true},
		{"two characters", "ai", Normalized{Name: "ai", Slug: "ai"}, true},
		{"thirty characters", strings.Repeat("a", 30), Normalized{Name: strings.Repeat("a", 30), Slug: strings.Repeat("a", 30)}, true},
		{"too short", "a", Normalized{}, false},
		{"too short after trim", "  a  ", Normalized{}, false},
		{"too long", strings.Repeat("a", 31), Normalized{}, false},
		{"length counts characters", strings.Repeat("ç", 30), Normalized{Name: strings.Repeat("ç", 30), Slug: strings.Repeat("c", 30)}, true},
		{"empty slug", "!!", Normalized{}, false},
		{"not a string", 42, Normalized{}, false},
		{"nil", nil, Normalized{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAllDeduplicatesBySlug(t *testing.T) {
	got := NormalizeAll([]any{"Güçlü Kadın", "guclu kadin", "Hope", 7, "x", "HOPE", "Healing"})

	assert.Equal(t, []Normalized{
		{Name: "Güçlü Kadın", Slug: "guclu-kadin"},
		{Name: "Hope", Slug: "hope"},
		{Name: "Healing", Slug: "healing"},
	}, got)
}

func TestNormalizeAllEmpty(t *testing.T) {
	assert.Empty(t, NormalizeAll(nil))
	assert.Empty(t, NormalizeAll([]any{"", " ", 1.5}))
}
