package llm

// EstimateTokens approximates the token count of a prompt. The gateway bills
// roughly one token per four characters of English text; an exact tokenizer
// is not worth the dependency for a budget check.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// BudgetCheck is the outcome of checking a prompt against the token budget.
type BudgetCheck int

const (
	// BudgetOK means the prompt fits comfortably within the budget.
	BudgetOK BudgetCheck = iota
	// BudgetWarn means the estimate exceeds 80% of the budget.
	BudgetWarn
	// BudgetExceeded means the estimate exceeds the budget; the call must not be made.
	BudgetExceeded
)

// CheckBudget classifies a prompt's estimated token count against a budget.
func CheckBudget(text string, budget int) (int, BudgetCheck) {
	estimated := EstimateTokens(text)
	if budget <= 0 {
		return estimated, BudgetOK
	}
	switch {
	case estimated > budget:
		return estimated, BudgetExceeded
	case estimated*10 > budget*8:
		return estimated, BudgetWarn
	default:
		return estimated, BudgetOK
	}
}
