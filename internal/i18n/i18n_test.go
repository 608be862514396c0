package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	t.Cleanup(func() {
		if err := Init("en"); err != nil {
			t.Fatalf("reset language: %v", err)
		}
	})
	return WithLanguage(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ScaleActions")
	if got != "Suggesting follow-ups scale" {
		t.Errorf("T(ScaleActions) = %q, want 'Suggesting follow-ups scale'", got)
	}

	got = T(ctx, "OtherClasses")
	if got != "Other Classes" {
		t.Errorf("T(OtherClasses) = %q, want 'Other Classes'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "YourClass")
	if got != "Ваш класс" {
		t.Errorf("T(YourClass) = %q, want 'Ваш класс'", got)
	}
}

func TestContextWithoutLocalizer(t *testing.T) {
	got := T(context.Background(), "Score")
	if got != "Score" {
		t.Errorf("T(Score) = %q, want 'Score'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "StudentsMatched", 1)
	if got1 != "1 student matched." {
		t.Errorf("Tp(StudentsMatched, 1) = %q, want '1 student matched.'", got1)
	}

	got18 := Tp(ctx, "StudentsMatched", 18)
	if got18 != "18 students matched." {
		t.Errorf("Tp(StudentsMatched, 18) = %q, want '18 students matched.'", got18)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "SimilarClassesN", map[string]any{"Count": 50})
	if got != "Similar Classes (N = 50)" {
		t.Errorf("Td(SimilarClassesN, Count=50) = %q, want 'Similar Classes (N = 50)'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitRejectsBadTag(t *testing.T) {
	if err := Init("not a tag!"); err == nil {
		t.Error("Init accepted an invalid language tag")
	}
}
