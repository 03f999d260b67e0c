package sheetstore

// FieldConsumer receives field values pushed out of a managed object
type FieldConsumer interface {
	StoreField(fieldNumber int, value any) error
}

// FieldSupplier supplies field values pulled into a managed object
type FieldSupplier interface {
	FetchField(fieldNumber int) (any, error)
}

// StateManager is the per-object handle the store reads and writes through.
// Field numbers are absolute indexes into ClassMeta().AllFields().
type StateManager interface {
	ClassMeta() *ClassMeta

	ProvideField(fieldNumber int) any
	ReplaceField(fieldNumber int, value any)
	// ProvideFields pushes the listed fields to fc, stopping at the first error
	ProvideFields(fieldNumbers []int, fc FieldConsumer) error
	// ReplaceFields pulls the listed fields from fs, stopping at the first error
	ReplaceFields(fieldNumbers []int, fs FieldSupplier) error
	// OriginalValue returns the value a field held before it was changed in
	// the current unit of work
	OriginalValue(fieldNumber int) (any, bool)
	LoadUnloadedFields() error

	InternalID() any
	SetInternalID(id any)
	Version() any
	SetVersion(v any)
	MakeDirty(fieldNumber int)

	// Context returns the execution context managing the object, nil when
	// the object is not managed
	Context() ObjectContext
}

// ObjectContext is the execution context that owns managed objects
type ObjectContext interface {
	// PersistReachable makes obj persistent when needed and returns its
	// identity token
	PersistReachable(obj any, owner StateManager, fieldNumber int) (string, error)
	IsPersistent(obj any) bool
	// FindObject resolves an identity token of the target class or one of
	// its subclasses, returning ErrNotFound when no row holds the identity
	FindObject(token string, target string) (any, error)
	DeleteReachable(obj any) error
	// NewEmbedded creates the managed holder for an embedded object
	NewEmbedded(class *ClassMeta, owner StateManager, fieldNumber int) StateManager
}
