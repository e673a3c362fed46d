package rights

import (
	"context"
	"time"
)

// StoreObserver is notified after every store call.
type StoreObserver interface {
	ObserveStoreOperation(backend, operation string, duration time.Duration, err error)
}

// InstrumentedStore reports the latency and outcome of each call to the
// wrapped store. Backend labels the observations, e.g. "postgres" or "redis".
type InstrumentedStore struct {
	store    Store
	backend  string
	observer StoreObserver
}

// NewInstrumentedStore wraps store. A nil observer returns store unchanged.
func NewInstrumentedStore(store Store, backend string, observer StoreObserver) Store {
	if observer == nil {
		return store
	}
	return &InstrumentedStore{store: store, backend: backend, observer: observer}
}

func (s *InstrumentedStore) observe(operation string, start time.Time, err error) {
	s.observer.ObserveStoreOperation(s.backend, operation, time.Since(start), err)
}

func (s *InstrumentedStore) Get(ctx context.Context, userID, resourceID string, rightType RightType) (*UserRight, error) {
	start := time.Now()
	right, err := s.store.Get(ctx, userID, resourceID, rightType)
	s.observe("get", start, err)
	return right, err
}

func (s *InstrumentedStore) GetAll(ctx context.Context, userID, resourceID string) ([]UserRight, error) {
	start := time.Now()
	rights, err := s.store.GetAll(ctx, userID, resourceID)
	s.observe("get_all", start, err)
	return rights, err
}

func (s *InstrumentedStore) SetRight(ctx context.Context, userID, resourceID string, rightType RightType, rights Permission) (string, error) {
	start := time.Now()
	id, err := s.store.SetRight(ctx, userID, resourceID, rightType, rights)
	s.observe("set_right", start, err)
	return id, err
}

func (s *InstrumentedStore) RemoveRight(ctx context.Context, userID, resourceID string, rightType RightType) error {
	start := time.Now()
	err := s.store.RemoveRight(ctx, userID, resourceID, rightType)
	s.observe("remove_right", start, err)
	return err
}

func (s *InstrumentedStore) GetInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) (*UserInheritRight, error) {
	start := time.Now()
	rule, err := s.store.GetInherit(ctx, userID, resourceID, rightType, inheritType)
	s.observe("get_inherit", start, err)
	return rule, err
}

func (s *InstrumentedStore) GetAllInherit(ctx context.Context, userID, resourceID string) ([]UserInheritRight, error) {
	start := time.Now()
	rules, err := s.store.GetAllInherit(ctx, userID, resourceID)
	s.observe("get_all_inherit", start, err)
	return rules, err
}

func (s *InstrumentedStore) SetInherit(ctx context.Context, inheritType RightType, userID, resourceID string, rightType RightType, rights Permission) (string, error) {
	start := time.Now()
	id, err := s.store.SetInherit(ctx, inheritType, userID, resourceID, rightType, rights)
	s.observe("set_inherit", start, err)
	return id, err
}

func (s *InstrumentedStore) RemoveInherit(ctx context.Context, userID, resourceID string, rightType, inheritType RightType) error {
	start := time.Now()
	err := s.store.RemoveInherit(ctx, userID, resourceID, rightType, inheritType)
	s.observe("remove_inherit", start, err)
	return err
}

func (s *InstrumentedStore) CreateRights(ctx context.Context, userID, resourceID string, granted map[RightType]Permission, inherit *InheritForm) error {
	start := time.Now()
	err := s.store.CreateRights(ctx, userID, resourceID, granted, inherit)
	s.observe("create_rights", start, err)
	return err
}

func (s *InstrumentedStore) RemoveResource(ctx context.Context, resourceID string) error {
	start := time.Now()
	err := s.store.RemoveResource(ctx, resourceID)
	s.observe("remove_resource", start, err)
	return err
}
