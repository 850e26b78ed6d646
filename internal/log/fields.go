package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldUserID     = "user_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldExpenseID  = "expense_id"
	FieldCategoryID = "category_id"
	FieldAmount     = "amount_cents"
	FieldEventType  = "event_type"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpQuery     = "query"
	OpSummarize = "summarize"
	OpMonthly   = "monthly_stats"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// Fields is an ordered list of slog key/value pairs.
type Fields []any

func NewFields() Fields {
	return make(Fields, 0, 8)
}

func (f Fields) WithOperation(op string) Fields {
	return append(f, FieldOperation, op)
}

func (f Fields) WithUser(userID string) Fields {
	return append(f, FieldUserID, userID)
}

func (f Fields) WithExpense(id string, amountCents int64) Fields {
	return append(f, FieldExpenseID, id, FieldAmount, amountCents)
}

// WithError adds the error field when err is non-nil.
func (f Fields) WithError(err error) Fields {
	if err == nil {
		return f
	}
	return append(f, FieldError, err.Error())
}

func (f Fields) WithRequest(method, path string) Fields {
	return append(f, FieldMethod, method, FieldPath, path)
}
