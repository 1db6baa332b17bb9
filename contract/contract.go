// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the stateful-precompile call surface shared by
// the precompiles in this repo.
package contract

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/matverify/precompileconfig"
)

// StateDB is the subset of EVM state access precompiles may use.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash)
}

// AccessibleState exposes chain state to a running precompile.
type AccessibleState interface {
	GetStateDB() StateDB
}

// ConfigurationBlockContext is the block context available while a
// precompile is being configured at an upgrade boundary.
type ConfigurationBlockContext interface {
	Number() *big.Int
	Timestamp() uint64
}

// StatefulPrecompiledContract is a precompile with access to state.
type StatefulPrecompiledContract interface {
	Address() common.Address
	RequiredGas(input []byte) uint64
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)
}

// Configurator produces and applies a precompile's upgrade config.
type Configurator interface {
	MakeConfig() precompileconfig.Config
	Configure(
		chainConfig precompileconfig.ChainConfig,
		cfg precompileconfig.Config,
		state StateDB,
		blockContext ConfigurationBlockContext,
	) error
}
