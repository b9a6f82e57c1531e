package model

import "testing"

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{"en", English},
		{"ENG", English},
		{"english", English},
		{"ko", Korean},
		{" KOR ", Korean},
		{"Korean", Korean},
		{"", English},
		{"fr", English},
	}
	for _, tt := range tests {
		if got := ParseLanguage(tt.in); got != tt.want {
			t.Errorf("ParseLanguage(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTextFallback(t *testing.T) {
	tests := []struct {
		name string
		text Text
		lang Language
		want string
	}{
		{"english", T("crash", "충돌"), English, "crash"},
		{"korean", T("crash", "충돌"), Korean, "충돌"},
		{"korean missing", T("crash", ""), Korean, "crash"},
		{"english missing", T("", "충돌"), English, "충돌"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.text.In(tt.lang); got != tt.want {
				t.Errorf("In() = %q, want %q", got, tt.want)
			}
		})
	}
	if got := T("a", "가").Append(T("b", "나")); got != T("ab", "가나") {
		t.Errorf("Append() = %+v", got)
	}
	if !(Text{}).IsZero() {
		t.Error("empty Text is not zero")
	}
}

func TestTierSteps(t *testing.T) {
	tests := []struct {
		in       ConfidenceTier
		up, down ConfidenceTier
	}{
		{TierLow, TierMedium, TierLow},
		{TierMedium, TierHigh, TierLow},
		{TierHigh, TierHigh, TierMedium},
	}
	for _, tt := range tests {
		if got := tt.in.Upgrade(); got != tt.up {
			t.Errorf("%v.Upgrade() = %v, want %v", tt.in, got, tt.up)
		}
		if got := tt.in.Downgrade(); got != tt.down {
			t.Errorf("%v.Downgrade() = %v, want %v", tt.in, got, tt.down)
		}
	}
	if got := ParseTier(" HIGH "); got != TierHigh {
		t.Errorf("ParseTier() = %v, want high", got)
	}
	if got := ParseTier("certain"); got != TierUnknown {
		t.Errorf("ParseTier(certain) = %v, want unknown", got)
	}
}
