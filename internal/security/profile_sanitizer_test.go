package security

import (
	"testing"

	"github.com/hitoshi/sessionboard/internal/model"
)

func TestProfileSanitizer_StripsMarkup(t *testing.T) {
	s := NewProfileSanitizer()

	got := s.Profile(&model.User{
		Email:      "taro@example.com",
		GivenName:  "<script>alert(1)</script>Taro",
		FamilyName: "<b>Yamada</b> & Co",
		Picture:    "https://cdn.example.com/a.png",
	})

	if got.GivenName != "Taro" {
		t.Errorf("GivenName = %q, want %q", got.GivenName, "Taro")
	}
	if got.FamilyName != "Yamada & Co" {
		t.Errorf("FamilyName = %q, want %q", got.FamilyName, "Yamada & Co")
	}
	if got.Email != "taro@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.Picture != "https://cdn.example.com/a.png" {
		t.Errorf("Picture = %q", got.Picture)
	}
}

func TestProfileSanitizer_DropsUnsafePicture(t *testing.T) {
	s := NewProfileSanitizer()

	for _, pic := range []string{
		"javascript:alert(1)",
		"http://cdn.example.com/a.png",
		"/relative.png",
		"data:image/png;base64,AAAA",
	} {
		t.Run(pic, func(t *testing.T) {
			if got := s.Profile(&model.User{Picture: pic}).Picture; got != "" {
				t.Errorf("Picture = %q, want empty", got)
			}
		})
	}
}

func TestProfileSanitizer_NilUser(t *testing.T) {
	if got := NewProfileSanitizer().Profile(nil); got != (model.Profile{}) {
		t.Errorf("Profile(nil) = %+v, want zero value", got)
	}
}
