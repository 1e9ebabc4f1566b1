package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldOperation    = "operation"
	FieldDuration     = "duration_ms"
	FieldMovementID   = "movement_id"
	FieldCategoryID   = "category_id"
	FieldCategoryName = "category_name"
	FieldAmount       = "amount"
	FieldKind         = "kind"
	FieldDate         = "date"
	FieldPeriod       = "period"
	FieldJobSeq       = "job_seq"
	FieldQueueDepth   = "queue_depth"
	FieldDBPath       = "db_path"
	FieldEvent        = "event"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentQueue   = "queue"
	ComponentAMQP    = "amqp"
	ComponentSheets  = "sheets"
	ComponentExport  = "export"
	ComponentWorker  = "worker"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpOpen     = "open"
	OpMigrate  = "migrate"
	OpSeed     = "seed"
	OpPublish  = "publish"
	OpExport   = "export"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeDomain        = "domain_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeInternal      = "internal_error"
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

// WithErrorType adds the error category
func (f LogFields) WithErrorType(errorType string) LogFields {
	f[FieldErrorType] = errorType
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithMovement adds movement-related fields
func (f LogFields) WithMovement(id, categoryID int64, amount, kind, date string) LogFields {
	if id != 0 {
		f[FieldMovementID] = id
	}
	f[FieldCategoryID] = categoryID
	f[FieldAmount] = amount
	f[FieldKind] = kind
	f[FieldDate] = date
	return f
}

// WithCategory adds category-related fields
func (f LogFields) WithCategory(id int64, name, kind string) LogFields {
	if id != 0 {
		f[FieldCategoryID] = id
	}
	if name != "" {
		f[FieldCategoryName] = name
	}
	if kind != "" {
		f[FieldKind] = kind
	}
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
