package core

import "errors"

// User-facing validation messages shown by the presentation layer.
const (
	MsgInvalidAmount   = "Enter a valid amount"
	MsgInvalidBudget   = "Enter a valid budget"
	MsgSelectCategory  = "Select a category"
	MsgUnknownCategory = "Unknown category"
	MsgDescription     = "Description is too long"
)

// ExpenseForm is the raw input of the add-expense form.
type ExpenseForm struct {
	Amount      string
	Category    string
	Description string
}

// Expense is a validated expense ready for the engine.
type Expense struct {
	Amount      Money
	Category    Category
	Description *string
}

// Parse validates the form. The amount is checked first, then the category,
// matching the order the form reports problems in.
func (f ExpenseForm) Parse() (Expense, error) {
	amount, err := ParseMoney(f.Amount)
	if err != nil {
		return Expense{}, ErrInvalidAmount
	}
	if err := amount.Validate(); err != nil {
		return Expense{}, err
	}
	c, err := ParseCategory(f.Category)
	if err != nil {
		return Expense{}, err
	}
	desc := NormalizeDescription(&f.Description)
	if desc != nil && len(*desc) > maxDescriptionLen {
		return Expense{}, ErrDescriptionLength
	}
	return Expense{Amount: amount, Category: c, Description: desc}, nil
}

// BudgetForm is the raw input of the set-budget dialog.
type BudgetForm struct {
	Category string
	Amount   string
}

// Parse validates the form; zero is a valid budget.
func (f BudgetForm) Parse() (Category, Money, error) {
	c, err := ParseCategory(f.Category)
	if err != nil {
		return "", Money{}, err
	}
	amount, err := ParseMoney(f.Amount)
	if err != nil {
		return "", Money{}, ErrNegativeBudget
	}
	if err := amount.ValidateNonNegative(); err != nil {
		return "", Money{}, err
	}
	return c, amount, nil
}

// UserMessage maps a validation error to the message shown to the user.
// Errors that are not validation errors yield an empty string.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return MsgInvalidAmount
	case errors.Is(err, ErrNegativeBudget):
		return MsgInvalidBudget
	case errors.Is(err, ErrNoCategory):
		return MsgSelectCategory
	case errors.Is(err, ErrUnknownCategory):
		return MsgUnknownCategory
	case errors.Is(err, ErrDescriptionLength):
		return MsgDescription
	}
	return ""
}
