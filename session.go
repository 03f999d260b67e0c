package sheetstore

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Session is the execution context for records. It keeps one record per
// identity, assigns datastore identities, cascades persists and deletes, and
// writes tracked changes on Flush.
type Session struct {
	store *Store

	mu         sync.Mutex
	objects    map[string]*Record // identity token -> managed record
	nondurable []*Record
}

// NewSession creates a session over the store
func NewSession(store *Store) *Session {
	return &Session{
		store:   store,
		objects: make(map[string]*Record),
	}
}

// Store returns the underlying store
func (s *Session) Store() *Store { return s.store }

func (s *Session) lookup(token string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[token]
}

func (s *Session) register(token string, r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		s.nondurable = append(s.nondurable, r)
		return
	}
	s.objects[token] = r
}

func (s *Session) unregister(token string, r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		for i, o := range s.nondurable {
			if o == r {
				s.nondurable = append(s.nondurable[:i], s.nondurable[i+1:]...)
				break
			}
		}
		return
	}
	if s.objects[token] == r {
		delete(s.objects, token)
	}
}

// Token returns the identity token of a record. Nondurable records have
// no token.
func (s *Session) Token(r *Record) (string, error) {
	cmd := r.class
	codec := s.store.config.IdentityCodec
	switch cmd.Identity {
	case IdentityApplication:
		pks := cmd.PKFieldNumbers()
		keys := make([]any, 0, len(pks))
		for _, n := range pks {
			v := r.values[n]
			if v == nil {
				return "", fmt.Errorf("class %s: primary key %s is not set", cmd.Name, cmd.Field(n).Name)
			}
			if _, ok := v.(StateManager); ok {
				return "", newMappingError(cmd, cmd.Field(n), fmt.Errorf("%w: embedded primary keys cannot be referenced", ErrUnsupportedMapping))
			}
			keys = append(keys, v)
		}
		return codec.Encode(cmd.Name, keys), nil
	case IdentityDatastore:
		if r.id == nil {
			return "", fmt.Errorf("class %s: datastore identity not assigned", cmd.Name)
		}
		return codec.Encode(cmd.Name, []any{r.id}), nil
	}
	return "", nil
}

// Persist makes a transient record persistent, inserting it and every
// record reachable through cascade-persist fields
func (s *Session) Persist(r *Record) error {
	if r.session != nil && r.session != s {
		return fmt.Errorf("record of class %s is managed by another session", r.class.Name)
	}
	if r.persistent {
		return nil
	}
	cmd := r.class
	if cmd.EmbeddedOnly {
		return fmt.Errorf("class %s is embedded only and cannot be persisted on its own", cmd.Name)
	}
	if cmd.Identity == IdentityDatastore && r.id == nil {
		id, err := newDatastoreID(s.store, cmd)
		if err != nil {
			return err
		}
		r.id = id
	}
	token, err := s.Token(r)
	if err != nil {
		return err
	}
	if token != "" && s.lookup(token) != nil {
		return &ObjectError{Class: cmd.Name, Identity: token, Op: "persist", Err: ErrDuplicateIdentity}
	}

	// registered before the insert so cyclic references resolve to r
	r.session = s
	r.persistent = true
	s.adoptEmbedded(r)
	s.register(token, r)
	if err := s.store.Insert(r); err != nil {
		s.unregister(token, r)
		r.persistent = false
		r.session = nil
		return err
	}
	r.clearChanges()
	return nil
}

// adoptEmbedded attaches embedded records to the session of their owner
func (s *Session) adoptEmbedded(r *Record) {
	for n, f := range r.class.AllFields() {
		if f.Embedded == nil {
			continue
		}
		if emb, ok := r.values[n].(*Record); ok {
			emb.session = s
			emb.owner = r
			emb.ownerField = n
			s.adoptEmbedded(emb)
		}
	}
}

// Find returns the record of the class with the given key values: the
// primary key fields in declaration order, or the datastore identity
func (s *Session) Find(class string, keys ...any) (*Record, error) {
	return s.FindByToken(s.store.config.IdentityCodec.Encode(class, keys))
}

// FindByToken returns the record with the identity token, reading it from
// the workbook when the session does not hold it yet
func (s *Session) FindByToken(token string) (*Record, error) {
	if r := s.lookup(token); r != nil {
		return r, nil
	}
	className, raw, err := s.store.config.IdentityCodec.Decode(token)
	if err != nil {
		return nil, err
	}
	cmd, ok := s.store.schema.Class(className)
	if !ok {
		return nil, fmt.Errorf("unknown class %q in identity %s", className, token)
	}

	r := newHollowRecord(cmd)
	switch cmd.Identity {
	case IdentityApplication:
		pks := cmd.PKFieldNumbers()
		if len(raw) != len(pks) {
			return nil, fmt.Errorf("identity %s has %d keys, class %s declares %d", token, len(raw), cmd.Name, len(pks))
		}
		for i, n := range pks {
			f := cmd.Field(n)
			if f.Embedded != nil {
				return nil, newMappingError(cmd, f, fmt.Errorf("%w: embedded primary keys cannot be referenced", ErrUnsupportedMapping))
			}
			v, err := ParseKey(raw[i], f.Type)
			if err != nil {
				return nil, fmt.Errorf("identity %s: %w", token, err)
			}
			r.values[n] = v
			r.loaded[n] = true
		}
	case IdentityDatastore:
		if len(raw) != 1 {
			return nil, fmt.Errorf("identity %s must carry exactly one key", token)
		}
		if cmd.DatastoreID == DatastoreIDString {
			r.id = raw[0]
		} else {
			id, err := strconv.ParseInt(raw[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("identity %s: %w", token, err)
			}
			r.id = id
		}
	default:
		return nil, fmt.Errorf("class %s has no identity to look up", cmd.Name)
	}

	r.session = s
	r.persistent = true
	s.register(token, r)
	if err := s.store.Fetch(r, cmd.AllFieldNumbers()); err != nil {
		s.unregister(token, r)
		return nil, err
	}
	return r, nil
}

// Refresh rereads every field of a persistent record, discarding changes
func (s *Session) Refresh(r *Record) error {
	if !r.persistent {
		return fmt.Errorf("record of class %s is not persistent", r.class.Name)
	}
	r.version = nil
	if err := s.store.Fetch(r, r.class.AllFieldNumbers()); err != nil {
		return err
	}
	r.clearChanges()
	return nil
}

// Flush writes the changed fields of every managed record
func (s *Session) Flush() error {
	s.mu.Lock()
	records := make([]*Record, 0, len(s.objects)+len(s.nondurable))
	for _, r := range s.objects {
		records = append(records, r)
	}
	records = append(records, s.nondurable...)
	s.mu.Unlock()

	var errs []error
	for _, r := range records {
		if !r.persistent || !r.IsDirty() {
			continue
		}
		if err := s.store.Update(r, r.DirtyFields()); err != nil {
			errs = append(errs, err)
			continue
		}
		r.clearChanges()
	}
	return errors.Join(errs...)
}

// Delete removes a persistent record and its cascade-delete dependents
func (s *Session) Delete(r *Record) error {
	if !r.persistent {
		return fmt.Errorf("record of class %s is not persistent", r.class.Name)
	}
	token, err := s.Token(r)
	if err != nil {
		return err
	}
	// marked first so cascades that lead back to r stop here
	r.deleted = true
	if err := s.store.Delete(r); err != nil {
		r.deleted = false
		return err
	}
	s.unregister(token, r)
	r.persistent = false
	r.clearChanges()
	return nil
}

// Evict drops a record from the session without touching the workbook
func (s *Session) Evict(r *Record) {
	token, _ := s.Token(r)
	s.unregister(token, r)
	r.session = nil
}

// Query returns the records of the class matching the query, in row order
func (s *Session) Query(class string, query Query) ([]*Record, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	cmd, ok := s.store.schema.Class(class)
	if !ok {
		return nil, fmt.Errorf("unknown class %q", class)
	}

	var records []*Record
	newObject := func() StateManager {
		r := newHollowRecord(cmd)
		r.session = s
		return r
	}
	err := s.store.Candidates(cmd, newObject, func(candidate StateManager) (StateManager, bool, error) {
		r := candidate.(*Record)
		token, err := s.Token(r)
		if err != nil {
			return nil, false, err
		}
		if token == "" {
			r.persistent = true
			s.register("", r)
			records = append(records, r)
			return nil, false, nil
		}
		if existing := s.lookup(token); existing != nil {
			records = append(records, existing)
			return nil, false, nil
		}
		r.persistent = true
		s.register(token, r)
		records = append(records, r)
		return r, true, nil
	})
	if err != nil {
		return nil, err
	}
	return ApplyQuery(records, query), nil
}

// PersistReachable implements ObjectContext
func (s *Session) PersistReachable(obj any, owner StateManager, fieldNumber int) (string, error) {
	r, ok := obj.(*Record)
	if !ok {
		return "", fmt.Errorf("cannot persist %T, only *Record is managed", obj)
	}
	if !r.persistent {
		if err := s.Persist(r); err != nil {
			return "", err
		}
	}
	token, err := s.Token(r)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("class %s is nondurable and cannot be referenced", r.class.Name)
	}
	return token, nil
}

// IsPersistent implements ObjectContext
func (s *Session) IsPersistent(obj any) bool {
	r, ok := obj.(*Record)
	return ok && r.persistent
}

// FindObject implements ObjectContext
func (s *Session) FindObject(token string, target string) (any, error) {
	r, err := s.FindByToken(token)
	if err != nil {
		return nil, err
	}
	if target != "" {
		if tcmd, ok := s.store.schema.Class(target); ok && !r.class.IsSubclassOf(tcmd) {
			return nil, fmt.Errorf("identity %s is a %s, not a %s", token, r.class.Name, target)
		}
	}
	return r, nil
}

// DeleteReachable implements ObjectContext
func (s *Session) DeleteReachable(obj any) error {
	r, ok := obj.(*Record)
	if !ok {
		return fmt.Errorf("cannot delete %T, only *Record is managed", obj)
	}
	if !r.persistent || r.deleted {
		return nil
	}
	return s.Delete(r)
}

// NewEmbedded implements ObjectContext
func (s *Session) NewEmbedded(class *ClassMeta, owner StateManager, fieldNumber int) StateManager {
	r := NewRecord(class)
	r.session = s
	if o, ok := owner.(*Record); ok {
		r.owner = o
		r.ownerField = fieldNumber
	}
	return r
}
