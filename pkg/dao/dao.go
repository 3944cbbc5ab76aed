// Package dao provides the external collaborators the voting core depends
// on: the DAO registry (name, admin, membership-open flag) and the SBT
// membership record. The core only sees the two interfaces; the in-memory
// implementations back tests and single-process deployments.
package dao

import (
	"sync"

	"github.com/AshFrancis/zkvote/config"
	"github.com/AshFrancis/zkvote/pkg/protocol"
)

// Address is an opaque caller identity.
type Address string

// Registry resolves DAO metadata.
type Registry interface {
	GetAdmin(daoID uint64) (Address, error)
	IsMembershipOpen(daoID uint64) bool
	DaoExists(daoID uint64) bool
}

// SBT answers membership queries and links back to its registry for admin
// resolution.
type SBT interface {
	Has(daoID uint64, addr Address) bool
	Registry() Registry
}

// Info describes a registered DAO.
type Info struct {
	ID             uint64
	Name           string
	Admin          Address
	MembershipOpen bool
}

// DaoCreatedEvent is published when a DAO is registered.
type DaoCreatedEvent struct {
	DaoID uint64
	Name  string
	Admin Address
}

// AdminTransferredEvent is published when a DAO admin hands over control.
type AdminTransferredEvent struct {
	DaoID    uint64
	OldAdmin Address
	NewAdmin Address
}

// SbtMintedEvent is published when a membership token is minted.
type SbtMintedEvent struct {
	DaoID uint64
	To    Address
}

// MemoryRegistry is an in-memory Registry with dense 1-indexed DAO ids.
type MemoryRegistry struct {
	mu   sync.RWMutex
	daos []*Info
	sink protocol.EventSink
}

// NewMemoryRegistry returns an empty registry. A nil sink drops events.
func NewMemoryRegistry(sink protocol.EventSink) *MemoryRegistry {
	if sink == nil {
		sink = protocol.NopSink{}
	}
	return &MemoryRegistry{sink: sink}
}

// CreateDao registers a new DAO and returns its id.
func (r *MemoryRegistry) CreateDao(name string, admin Address, membershipOpen bool) (uint64, error) {
	if len(name) > config.MaxDaoNameLen {
		return 0, protocol.ErrNameTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uint64(len(r.daos)) + 1
	r.daos = append(r.daos, &Info{
		ID:             id,
		Name:           name,
		Admin:          admin,
		MembershipOpen: membershipOpen,
	})

	r.sink.Publish(DaoCreatedEvent{DaoID: id, Name: name, Admin: admin})
	return id, nil
}

// TransferAdmin hands a DAO over to a new admin. Only the current admin may
// call it.
func (r *MemoryRegistry) TransferAdmin(daoID uint64, caller, newAdmin Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := r.lookup(daoID)
	if err != nil {
		return err
	}
	if info.Admin != caller {
		return protocol.ErrNotAdmin
	}

	old := info.Admin
	info.Admin = newAdmin
	r.sink.Publish(AdminTransferredEvent{DaoID: daoID, OldAdmin: old, NewAdmin: newAdmin})
	return nil
}

// GetDao returns a copy of the DAO record.
func (r *MemoryRegistry) GetDao(daoID uint64) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, err := r.lookup(daoID)
	if err != nil {
		return Info{}, err
	}
	return *info, nil
}

// GetAdmin implements Registry.
func (r *MemoryRegistry) GetAdmin(daoID uint64) (Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, err := r.lookup(daoID)
	if err != nil {
		return "", err
	}
	return info.Admin, nil
}

// IsMembershipOpen implements Registry.
func (r *MemoryRegistry) IsMembershipOpen(daoID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, err := r.lookup(daoID)
	if err != nil {
		return false
	}
	return info.MembershipOpen
}

// DaoExists implements Registry.
func (r *MemoryRegistry) DaoExists(daoID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return daoID >= 1 && daoID <= uint64(len(r.daos))
}

// DaoCount returns the number of registered DAOs.
func (r *MemoryRegistry) DaoCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.daos))
}

// lookup requires r.mu held.
func (r *MemoryRegistry) lookup(daoID uint64) (*Info, error) {
	if daoID < 1 || daoID > uint64(len(r.daos)) {
		return nil, protocol.ErrDaoNotFound
	}
	return r.daos[daoID-1], nil
}

// MemorySBT is an in-memory soul-bound membership record.
type MemorySBT struct {
	mu       sync.RWMutex
	registry Registry
	members  map[uint64]map[Address]bool
	sink     protocol.EventSink
}

// NewMemorySBT returns an empty membership record bound to a registry.
func NewMemorySBT(registry Registry, sink protocol.EventSink) *MemorySBT {
	if sink == nil {
		sink = protocol.NopSink{}
	}
	return &MemorySBT{
		registry: registry,
		members:  make(map[uint64]map[Address]bool),
		sink:     sink,
	}
}

// Mint issues a membership token. Only the DAO admin may mint, and a member
// can hold at most one token per DAO.
func (s *MemorySBT) Mint(daoID uint64, to Address, admin Address) error {
	daoAdmin, err := s.registry.GetAdmin(daoID)
	if err != nil {
		return err
	}
	if daoAdmin != admin {
		return protocol.ErrNotAdmin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.members[daoID][to] {
		return protocol.ErrAlreadyMinted
	}
	if s.members[daoID] == nil {
		s.members[daoID] = make(map[Address]bool)
	}
	s.members[daoID][to] = true

	s.sink.Publish(SbtMintedEvent{DaoID: daoID, To: to})
	return nil
}

// Has implements SBT.
func (s *MemorySBT) Has(daoID uint64, addr Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[daoID][addr]
}

// Registry implements SBT.
func (s *MemorySBT) Registry() Registry {
	return s.registry
}
