package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldMonth       = "month"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldTxID        = "tx_id"
	FieldState       = "state"
	FieldRevision    = "revision"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
)

const (
	ComponentApp     = "app"
	ComponentEngine  = "engine"
	ComponentStorage = "storage"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Operation names used in the operation field.
const (
	OpSetBudget = "set_budget"
	OpRecord    = "record_transaction"
	OpHide      = "hide_category"
	OpDelete    = "delete_transaction"
	OpClear     = "clear_transactions"
	OpDerive    = "derive"
	OpSetMonth  = "set_month"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// LogFields is a small builder for structured log fields.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error text; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithMonth(month string) LogFields {
	f[FieldMonth] = month
	return f
}

// WithEntry adds the category and amount of a budget or transaction.
func (f LogFields) WithEntry(category string, amountCents int64) LogFields {
	f[FieldCategory] = category
	f[FieldAmountCents] = amountCents
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
