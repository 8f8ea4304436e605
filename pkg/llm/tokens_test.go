package llm

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestCheckBudget(t *testing.T) {
	// budget 100 tokens = 400 chars at 4 chars/token
	tests := []struct {
		name  string
		chars int
		want  BudgetCheck
	}{
		{"well under budget", 100, BudgetOK},
		{"at 80 percent", 320, BudgetOK},
		{"above 80 percent warns", 324, BudgetWarn},
		{"at budget", 400, BudgetWarn},
		{"above budget", 404, BudgetExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := CheckBudget(strings.Repeat("x", tt.chars), 100)
			if got != tt.want {
				t.Errorf("CheckBudget(%d chars, 100) = %v, want %v", tt.chars, got, tt.want)
			}
		})
	}
}

func TestCheckBudget_ZeroBudgetDisablesCheck(t *testing.T) {
	_, got := CheckBudget(strings.Repeat("x", 100000), 0)
	if got != BudgetOK {
		t.Errorf("expected zero budget to disable the check, got %v", got)
	}
}
