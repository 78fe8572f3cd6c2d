package patterns

import (
	"testing"
)

func TestGet_Singleton(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Error("Get() should return the same registry instance")
	}
	if a.TotalPatterns() == 0 {
		t.Error("Registry should have patterns after init")
	}
}

func TestMatchAny_Urgency(t *testing.T) {
	reg := Get()

	p := reg.MatchAny("please act immediately or lose access", CategoryUrgency)
	if p == nil {
		t.Fatal("Expected urgency match for 'immediately'")
	}
	if p.Category != CategoryUrgency {
		t.Errorf("Expected urgency category, got %s", p.Category)
	}

	if reg.MatchAny("lovely weather for a walk", CategoryUrgency) != nil {
		t.Error("Benign text should not match urgency patterns")
	}
}

func TestMatchAll_MultipleCategories(t *testing.T) {
	reg := Get()

	matches := reg.MatchAll("Your account is blocked, pay 500 immediately",
		CategoryUrgency, CategoryPaymentRequest, CategoryThreat)
	if len(matches) < 3 {
		t.Errorf("Expected matches across all three signal categories, got %d", len(matches))
	}
}

func TestCategoryScore(t *testing.T) {
	reg := Get()

	score := reg.CategoryScore("complete your KYC or your bank account gets closed", CategoryBanking)
	if score == 0 {
		t.Error("Expected non-zero banking score for KYC vocabulary")
	}

	if reg.CategoryScore("what time is the movie", CategoryBanking) != 0 {
		t.Error("Benign text should score zero")
	}
}

func TestCategoryScore_Ranking(t *testing.T) {
	reg := Get()
	text := "congratulations you won the lottery, claim your prize"

	prize := reg.CategoryScore(text, CategoryPrize)
	banking := reg.CategoryScore(text, CategoryBanking)
	if prize <= banking {
		t.Errorf("Lottery text should rank prize (%d) above banking (%d)", prize, banking)
	}
}

func TestRegisterKeywords(t *testing.T) {
	reg := Get()

	before := reg.CategoryCount(CategoryCustom)
	reg.RegisterKeywords([]string{"gift-card-code", ""})
	after := reg.CategoryCount(CategoryCustom)
	if after != before+1 {
		t.Errorf("Expected one custom pattern added, got %d -> %d", before, after)
	}

	p := reg.MatchAny("read me the gift-card-code on the back", CategoryCustom)
	if p == nil {
		t.Fatal("Expected custom keyword match")
	}
	if p.Name != "custom_gift-card-code" {
		t.Errorf("Unexpected pattern name %s", p.Name)
	}
}

func TestGetByCategory_UnknownCategory(t *testing.T) {
	if got := Get().GetByCategory(Category("nope")); got == nil {
		t.Error("Unknown category should return empty slice, not nil")
	}
}
