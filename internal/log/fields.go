package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldRecordID   = "record_id"
	FieldAmount     = "amount"
	FieldItem       = "item"
	FieldCount      = "count"
	FieldTotal      = "total"
	FieldKey        = "storage_key"
	FieldBackend    = "backend"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentEvents    = "events"
	ComponentAudit     = "audit"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
)

// Operations defines standard operation names
const (
	OpHydrate    = "hydrate"
	OpAdd        = "add"
	OpDelete     = "delete"
	OpToggleEdit = "toggle_edit"
	OpSaveEdit   = "save_edit"
	OpClear      = "clear"
	OpPersist    = "persist"
	OpNotify     = "notify"
	OpRender     = "render"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRecord adds the fields describing one ledger line
func (f LogFields) WithRecord(id int64, amount, item string) LogFields {
	f[FieldRecordID] = id
	f[FieldAmount] = amount
	f[FieldItem] = item
	return f
}

// WithLedger adds the aggregate state of the ledger
func (f LogFields) WithLedger(count int, total string) LogFields {
	f[FieldCount] = count
	f[FieldTotal] = total
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
