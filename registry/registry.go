// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry maps model identifiers to their registered weight
// commitments. The matmul verifier consults it once per call, before any
// cryptographic work: a proof whose stated A-matrix commitment disagrees
// with the registered one is rejected outright.
package registry

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/matverify/channel"
)

var (
	ErrModelExists   = errors.New("model already registered")
	ErrModelNotFound = errors.New("model not found")
	ErrEmptyName     = errors.New("model name must not be empty")
)

// Model is one registered model version and its weight commitment.
type Model struct {
	ID               [32]byte
	Owner            common.Address
	Name             string
	Version          uint64
	WeightCommitment channel.Felt
	RegisteredAt     uint64
}

// Registry is the model-to-commitment store. It is the only shared,
// externally-owned resource the verifier touches; reads take the read
// lock, registration the write lock.
type Registry struct {
	models map[[32]byte]*Model
	mu     sync.RWMutex

	// Statistics
	TotalRegistered uint64
	TotalLookups    uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		models: make(map[[32]byte]*Model),
	}
}

// ComputeModelID computes the model ID: BLAKE3(owner || name || version).
func ComputeModelID(owner common.Address, name string, version uint64) [32]byte {
	h := blake3.New()
	h.Write(owner[:])
	h.Write([]byte(name))

	var versionBytes [8]byte
	binary.BigEndian.PutUint64(versionBytes[:], version)
	h.Write(versionBytes[:])

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Register stores a weight commitment for a new model version and returns
// its ID. Re-registering an existing ID fails; commitments are immutable
// once published.
func (r *Registry) Register(owner common.Address, name string, version uint64, commitment channel.Felt) ([32]byte, error) {
	if name == "" {
		return [32]byte{}, ErrEmptyName
	}

	id := ComputeModelID(owner, name, version)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[id]; exists {
		return [32]byte{}, ErrModelExists
	}

	r.models[id] = &Model{
		ID:               id,
		Owner:            owner,
		Name:             name,
		Version:          version,
		WeightCommitment: commitment,
		RegisteredAt:     uint64(time.Now().Unix()),
	}
	r.TotalRegistered++
	return id, nil
}

// Lookup returns the registered weight commitment for a model ID.
func (r *Registry) Lookup(id [32]byte) (channel.Felt, bool) {
	r.mu.Lock()
	r.TotalLookups++
	m, ok := r.models[id]
	r.mu.Unlock()

	if !ok {
		return channel.Felt{}, false
	}
	return m.WeightCommitment, true
}

// Get returns the full model record.
func (r *Registry) Get(id [32]byte) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[id]
	if !ok {
		return nil, ErrModelNotFound
	}
	return m, nil
}
