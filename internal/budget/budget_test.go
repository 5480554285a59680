package budget

import (
	"strings"
	"testing"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"ascii", strings.Repeat("a", 40), 10},
		{"short non-empty floors at one", "ab", 1},
		{"thai counts denser", strings.Repeat("ก", 40), 20},
		{"mixed", strings.Repeat("a", 8) + strings.Repeat("ก", 4), 4},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Estimate(tc.in); got != tc.want {
				t.Fatalf("Estimate(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func Test_Truncate_FitsUnchanged(t *testing.T) {
	t.Parallel()

	in := "short text"
	if got := Truncate(in, 100); got != in {
		t.Fatalf("Truncate = %q, want input unchanged", got)
	}
}

func Test_Truncate_NonPositiveBudget(t *testing.T) {
	t.Parallel()

	if got := Truncate("anything", 0); got != "" {
		t.Fatalf("Truncate with zero budget = %q, want empty", got)
	}
}

func Test_Truncate_StaysWithinBudget(t *testing.T) {
	t.Parallel()

	inputs := []string{
		strings.Repeat("word ", 200),
		strings.Repeat("ก", 500),
		strings.Repeat("mixed ไทย text ", 100),
	}
	for _, in := range inputs {
		got := Truncate(in, 25)
		if est := Estimate(got); est > 25 {
			t.Errorf("Truncate(%q...) estimates %d tokens, budget 25", in[:20], est)
		}
		if !strings.HasPrefix(in, got) {
			t.Errorf("Truncate result %q is not a prefix of the input", got)
		}
	}
}

func Test_Truncate_PrefersWordBoundary(t *testing.T) {
	t.Parallel()

	got := Truncate(strings.Repeat("notebook ", 50), 10)
	if strings.HasSuffix(got, " ") {
		t.Fatalf("result has trailing space: %q", got)
	}
	for _, w := range strings.Fields(got) {
		if w != "notebook" {
			t.Fatalf("word split mid-way: %q", w)
		}
	}
}
