package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Housing        Category = "Housing"
	Food           Category = "Food"
	Transportation Category = "Transportation"
	Entertainment  Category = "Entertainment"
	Savings        Category = "Savings"
)

const (
	StateAbsent BudgetState = iota
	StateActive
	StateHidden
)

const maxDescriptionLen = 200

type (
	// Category is one of the fixed budget categories. The string value is the
	// stable identifier persisted in storage.
	Category string

	// BudgetState tells whether a category has a budget for a month and
	// whether it is shown.
	BudgetState int

	// BudgetValues are the amounts a category showed at some point in time.
	BudgetValues struct {
		MaxBudget Money
		Spent     Money
	}

	// BudgetRecord is one category's budget for one calendar month.
	BudgetRecord struct {
		ID       int64
		Month    MonthKey
		Category Category
		State    BudgetState
		// MaxBudget is the live cap; zero once the record is hidden.
		MaxBudget Money
		// LastKnown holds what the category showed when it was hidden.
		LastKnown BudgetValues
		// SpentSinceTxID is the spend watermark: only transactions with a
		// greater ID count towards this record.
		SpentSinceTxID int64
		UpdatedAt      time.Time
	}

	// Transaction is an immutable expense entry.
	Transaction struct {
		ID          int64
		Timestamp   time.Time
		Amount      Money
		Category    Category
		Description *string
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNegativeBudget    = errors.New("budget cannot be negative")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrNoCategory        = errors.New("no category selected")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidState      = errors.New("invalid budget state")
	ErrDescriptionLength = errors.New("description too long (max 200 characters)")
)

var categoryOrder = []Category{Housing, Food, Transportation, Entertainment, Savings}

var categoryLabels = map[Category]string{
	Housing:        "Housing",
	Food:           "Food",
	Transportation: "Transportation",
	Entertainment:  "Entertainment",
	Savings:        "Savings",
}

// Categories returns the fixed categories in enumeration order.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// ParseCategory resolves an identifier, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrNoCategory
	}
	for _, c := range categoryOrder {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

// ID returns the persisted identifier.
func (c Category) ID() string {
	return string(c)
}

// Label returns the display name.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Index returns the enumeration position, or -1 for unknown categories.
func (c Category) Index() int {
	for i, v := range categoryOrder {
		if v == c {
			return i
		}
	}
	return -1
}

func (c Category) Validate() error {
	if c == "" {
		return ErrNoCategory
	}
	if c.Index() < 0 {
		return ErrUnknownCategory
	}
	return nil
}

func (s BudgetState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateHidden:
		return "hidden"
	default:
		return "absent"
	}
}

// ParseBudgetState is the inverse of String for persisted states.
func ParseBudgetState(s string) (BudgetState, error) {
	switch s {
	case "active":
		return StateActive, nil
	case "hidden":
		return StateHidden, nil
	}
	return StateAbsent, ErrInvalidState
}

// Visible reports whether the record contributes a summary.
func (r BudgetRecord) Visible() bool {
	return r.State == StateActive
}

// Activate returns the record shown with the given cap. The spend watermark
// is kept so a previously hidden category restarts from zero.
func (r BudgetRecord) Activate(maxBudget Money) BudgetRecord {
	r.State = StateActive
	r.MaxBudget = maxBudget
	return r
}

// Hide returns the record soft-deleted. spent is what the category showed
// just before hiding and watermark the highest transaction ID at that time.
func (r BudgetRecord) Hide(spent Money, watermark int64) BudgetRecord {
	r.LastKnown = BudgetValues{MaxBudget: r.MaxBudget, Spent: spent}
	r.State = StateHidden
	r.MaxBudget = Money{}
	if watermark > r.SpentSinceTxID {
		r.SpentSinceTxID = watermark
	}
	return r
}

func (r BudgetRecord) Validate() error {
	if _, err := ParseMonthKey(string(r.Month)); err != nil {
		return err
	}
	if err := r.Category.Validate(); err != nil {
		return err
	}
	if r.State != StateActive && r.State != StateHidden {
		return ErrInvalidState
	}
	if err := r.MaxBudget.ValidateNonNegative(); err != nil {
		return err
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Timestamp.IsZero() {
		return errors.New("timestamp cannot be zero")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Category.Validate(); err != nil {
		return err
	}
	if t.Description != nil && len(*t.Description) > maxDescriptionLen {
		return ErrDescriptionLength
	}
	return nil
}

// NormalizeDescription trims the description and drops it when blank.
func NormalizeDescription(desc *string) *string {
	if desc == nil {
		return nil
	}
	d := strings.TrimSpace(*desc)
	if d == "" {
		return nil
	}
	return &d
}
