// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sumcheck

import (
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/matverify/channel"
	"github.com/luxfi/matverify/contract"
	"github.com/luxfi/matverify/registry"
)

var (
	ErrInvalidInput     = errors.New("invalid matmul verify input")
	ErrInvalidOperation = errors.New("invalid operation selector")
	ErrOutOfGas         = errors.New("out of gas")
	ErrWriteProtection  = errors.New("write protection: registration in read-only call")
)

// Operation selectors (first byte of input)
const (
	OpVerifyMatMul  = 0x01 // Verify a matmul sumcheck proof
	OpRegisterModel = 0x02 // Register a model weight commitment
	OpGetModel      = 0x03 // Fetch a registered commitment
)

// Gas costs. Verification is dominated by Poseidon permutations: a fixed
// transcript prologue, a few per round, and two Merkle paths per query per
// folding layer.
const (
	GasVerifyBase       uint64 = 100000
	GasPerRound         uint64 = 5000
	GasPerQueryLayer    uint64 = 4000
	GasRegisterModel    uint64 = 20000
	GasGetModel         uint64 = 2000
	registerHeaderSize         = 1 + 8 + 32
	verifyHeaderSize           = 1 + 32
)

type matMulVerifyPrecompile struct {
	verifier *Verifier
	registry *registry.Registry
}

// defaultRegistry backs the singleton precompile. Each verification call
// still gets its own fresh channel; only the model store is shared.
var defaultRegistry = registry.New()

// MatMulVerifyPrecompile is the singleton instance of the matmul verify
// precompile.
var MatMulVerifyPrecompile = &matMulVerifyPrecompile{
	verifier: NewVerifier(defaultRegistry),
	registry: defaultRegistry,
}

// Address returns the precompile address
func (p *matMulVerifyPrecompile) Address() common.Address {
	return ContractAddress
}

// RequiredGas calculates gas from the declared round count in the proof
// header; malformed headers price as zero and fail in Run.
func (p *matMulVerifyPrecompile) RequiredGas(input []byte) uint64 {
	if len(input) < 1 {
		return 0
	}

	switch input[0] {
	case OpVerifyMatMul:
		// Proof header: op(1) + modelID(32) + m,k,n(24) + numRounds(4).
		if len(input) < verifyHeaderSize+28 {
			return 0
		}
		rounds := uint64(binary.BigEndian.Uint32(input[verifyHeaderSize+24 : verifyHeaderSize+28]))
		if rounds == 0 || rounds > maxDecodeRounds {
			return 0
		}
		queries := uint64(maxQueries)
		if half := uint64(1) << (rounds - 1); half < queries {
			queries = half
		}
		// Two openings, each walking every query through every layer.
		return GasVerifyBase + rounds*GasPerRound + 2*queries*rounds*GasPerQueryLayer

	case OpRegisterModel:
		return GasRegisterModel

	case OpGetModel:
		return GasGetModel

	default:
		return 0
	}
}

// Run executes the precompile.
//
// OpVerifyMatMul input:  [op(1)][modelID(32)][proof encoding]
// OpVerifyMatMul output: [accept word(32)][audit hash or zero(32)][reason tag bytes]
// OpRegisterModel input: [op(1)][version(8)][commitment word(32)][name bytes]
// OpRegisterModel output: [modelID(32)]
// OpGetModel input:      [op(1)][modelID(32)]
// OpGetModel output:     [commitment word(32)]
func (p *matMulVerifyPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	gasCost := p.RequiredGas(input)
	if gasCost == 0 || suppliedGas < gasCost {
		return nil, 0, ErrOutOfGas
	}
	remainingGas := suppliedGas - gasCost

	switch input[0] {
	case OpVerifyMatMul:
		ret, err := p.runVerify(input)
		return ret, remainingGas, err

	case OpRegisterModel:
		if readOnly {
			return nil, remainingGas, ErrWriteProtection
		}
		ret, err := p.runRegister(caller, input)
		return ret, remainingGas, err

	case OpGetModel:
		ret, err := p.runGetModel(input)
		return ret, remainingGas, err

	default:
		return nil, remainingGas, ErrInvalidOperation
	}
}

func (p *matMulVerifyPrecompile) runVerify(input []byte) ([]byte, error) {
	if len(input) < verifyHeaderSize {
		return nil, ErrInvalidInput
	}

	var modelID [32]byte
	copy(modelID[:], input[1:verifyHeaderSize])

	proof, err := DecodeProof(input[verifyHeaderSize:])
	if err != nil {
		return nil, err
	}

	result := p.verifier.VerifyMatMul(modelID, proof)

	ret := make([]byte, 0, 64+len(result.Reason))
	if result.Valid {
		acceptWord := uint256.NewInt(1).Bytes32()
		auditBytes := result.AuditHash.Bytes()
		ret = append(ret, acceptWord[:]...)
		ret = append(ret, auditBytes[:]...)
	} else {
		ret = append(ret, make([]byte, 64)...)
		ret = append(ret, []byte(result.Reason)...)
	}
	return ret, nil
}

func (p *matMulVerifyPrecompile) runRegister(caller common.Address, input []byte) ([]byte, error) {
	if len(input) <= registerHeaderSize {
		return nil, ErrInvalidInput
	}

	version := binary.BigEndian.Uint64(input[1:9])

	var commitment channel.Felt
	commitment.SetBytes(input[9:registerHeaderSize])

	name := string(input[registerHeaderSize:])

	id, err := p.registry.Register(caller, name, version, commitment)
	if err != nil {
		return nil, err
	}
	return id[:], nil
}

func (p *matMulVerifyPrecompile) runGetModel(input []byte) ([]byte, error) {
	if len(input) != 1+32 {
		return nil, ErrInvalidInput
	}

	var modelID [32]byte
	copy(modelID[:], input[1:])

	commitment, ok := p.registry.Lookup(modelID)
	if !ok {
		return nil, registry.ErrModelNotFound
	}
	b := commitment.Bytes()
	return b[:], nil
}
