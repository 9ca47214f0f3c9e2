package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/snowbind/snowbind/internal/core"
)

// MemoryStore is an in-process Object Store used by tests and local dry
// runs. It implements the same contract as the SQL adapter, including the
// created=false path for pre-existing objects.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]core.PlatformObject
	grants  map[string]struct{}

	// writes counts mutating calls, so tests can assert that a re-run of a
	// converged target issues zero writes.
	writes int
}

var _ core.ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]core.PlatformObject),
		grants:  make(map[string]struct{}),
	}
}

func objectKey(name string, kind core.ObjectKind) string {
	return string(kind) + "/" + name
}

func grantKey(g core.GrantSpec) string {
	return fmt.Sprintf("%s/%s/%s->%s", g.Privilege, g.On.Kind, g.On.Name, g.To.Name)
}

func (s *MemoryStore) Describe(_ context.Context, name string, kind core.ObjectKind) (core.PlatformObject, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[objectKey(name, kind)]
	if !ok {
		return core.PlatformObject{Name: name, Kind: kind}, false, nil
	}
	return obj, true, nil
}

func (s *MemoryStore) EnsureExists(_ context.Context, obj core.PlatformObject) (bool, error) {
	if obj.Kind == core.KindServiceUser {
		return false, core.Validationf("service users must be created via the trust binder, not EnsureExists")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey(obj.Name, obj.Kind)
	if _, ok := s.objects[key]; ok {
		return false, nil
	}
	obj.Exists = true
	s.objects[key] = obj
	s.writes++
	return true, nil
}

func (s *MemoryStore) Grant(_ context.Context, g core.GrantSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantKey(g)
	if _, ok := s.grants[key]; ok {
		return nil
	}
	s.grants[key] = struct{}{}
	s.writes++
	return nil
}

func (s *MemoryStore) HasGrant(_ context.Context, g core.GrantSpec) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[grantKey(g)]
	return ok, nil
}

func (s *MemoryStore) CreateServiceUser(_ context.Context, name string, binding core.FederationBinding, defaultRole, defaultWarehouse string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey(name, core.KindServiceUser)
	if _, ok := s.objects[key]; ok {
		return fmt.Errorf("service user %q already exists", name)
	}
	s.objects[key] = core.PlatformObject{
		Name:   name,
		Kind:   core.KindServiceUser,
		Exists: true,
		Attributes: map[string]string{
			core.AttrUserType:          core.UserTypeService,
			core.AttrWorkloadProvider:  string(binding.Provider),
			core.AttrWorkloadPrincipal: binding.PrincipalRef,
			core.AttrDefaultRole:       defaultRole,
			core.AttrDefaultWarehouse:  defaultWarehouse,
		},
	}
	s.writes++
	return nil
}

func (s *MemoryStore) AlterSessionDefaults(_ context.Context, name, defaultRole, defaultWarehouse string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[objectKey(name, core.KindServiceUser)]
	if !ok {
		return fmt.Errorf("service user %q does not exist", name)
	}
	if defaultRole != "" {
		obj.Attributes[core.AttrDefaultRole] = defaultRole
	}
	if defaultWarehouse != "" {
		obj.Attributes[core.AttrDefaultWarehouse] = defaultWarehouse
	}
	s.writes++
	return nil
}

func (s *MemoryStore) ReplaceBinding(_ context.Context, name string, binding core.FederationBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[objectKey(name, core.KindServiceUser)]
	if !ok {
		return fmt.Errorf("service user %q does not exist", name)
	}
	obj.Attributes[core.AttrWorkloadProvider] = string(binding.Provider)
	obj.Attributes[core.AttrWorkloadPrincipal] = binding.PrincipalRef
	s.writes++
	return nil
}

// Writes returns the number of mutating calls issued so far.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Remove deletes an object, simulating external state changes between runs.
func (s *MemoryStore) Remove(name string, kind core.ObjectKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey(name, kind))
}
