package services

import "testing"

func TestNormalizeProductName(t *testing.T) {
	tests := map[string]string{
		"Apples":          "apple",
		"apple":           "apple",
		"APPLE":           "apple",
		"  Berries ":      "berry",
		"Knives":          "knife",
		"wolves":          "wolf",
		"Boxes":           "box",
		"dishes":          "dish",
		"glasses":         "glass",
		"glass":           "glass",
		"Packets of milk": "packets of milk",
		"Coca-Cola":       "cocacola",
		"rice   bag":      "rice bag",
		"":                "",
	}

	for in, want := range tests {
		if got := NormalizeProductName(in); got != want {
			t.Fatalf("NormalizeProductName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeProductNameCollides(t *testing.T) {
	for _, group := range [][]string{
		{"Apples", "apple", "APPLE", "apples"},
		{"Knives", "knife"},
		{"Boxes", "box"},
	} {
		want := NormalizeProductName(group[0])
		for _, name := range group[1:] {
			if got := NormalizeProductName(name); got != want {
				t.Fatalf("NormalizeProductName(%q) = %q, want %q", name, got, want)
			}
		}
	}
}
