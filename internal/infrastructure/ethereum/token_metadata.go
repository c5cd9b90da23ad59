/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ContractCaller executes read-only contract calls
type ContractCaller interface {
	CallContract(ctx context.Context, address common.Address, data []byte) ([]byte, error)
}

// ERC-20 selectors
var (
	// symbol() -> 0x95d89b41
	symbolSelector = common.FromHex("0x95d89b41")
	// decimals() -> 0x313ce567
	decimalsSelector = common.FromHex("0x313ce567")
)

var stringArgs = func() abi.Arguments {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// TokenMetadataReader reads ERC-20 symbol and decimals via eth_call
type TokenMetadataReader struct {
	caller ContractCaller
	logger *zap.Logger
}

// NewTokenMetadataReader creates a new metadata reader
func NewTokenMetadataReader(caller ContractCaller, logger *zap.Logger) *TokenMetadataReader {
	return &TokenMetadataReader{
		caller: caller,
		logger: logger,
	}
}

// Read returns the token's metadata. Missing fields come back nil and are
// logged; a token without metadata is still a valid treasury token.
func (r *TokenMetadataReader) Read(ctx context.Context, token common.Address) (symbol *string, decimals *int) {
	if raw, err := r.caller.CallContract(ctx, token, symbolSelector); err != nil {
		r.logger.Warn("Failed to read token symbol", zap.String("token", token.Hex()), zap.Error(err))
	} else if s, err := decodeSymbol(raw); err != nil {
		r.logger.Warn("Unexpected token symbol encoding", zap.String("token", token.Hex()), zap.Error(err))
	} else {
		symbol = &s
	}

	if raw, err := r.caller.CallContract(ctx, token, decimalsSelector); err != nil {
		r.logger.Warn("Failed to read token decimals", zap.String("token", token.Hex()), zap.Error(err))
	} else if d, err := decodeDecimals(raw); err != nil {
		r.logger.Warn("Unexpected token decimals encoding", zap.String("token", token.Hex()), zap.Error(err))
	} else {
		decimals = &d
	}

	return symbol, decimals
}

// decodeSymbol accepts an ABI string or a bytes32 (MKR-style) symbol
func decodeSymbol(data []byte) (string, error) {
	if len(data) < wordSize {
		return "", fmt.Errorf("symbol response too short: %d bytes", len(data))
	}

	if len(data) >= 2*wordSize {
		if values, err := stringArgs.Unpack(data); err == nil && len(values) == 1 {
			if s, ok := values[0].(string); ok {
				return s, nil
			}
		}
	}

	trimmed := bytes.TrimRight(data[:wordSize], "\x00")
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty bytes32 symbol")
	}
	for _, b := range trimmed {
		if b < 32 || b > 126 {
			return "", fmt.Errorf("bytes32 symbol is not printable")
		}
	}
	return string(trimmed), nil
}

func decodeDecimals(data []byte) (int, error) {
	if len(data) != wordSize {
		return 0, fmt.Errorf("decimals response must be one word, got %d bytes", len(data))
	}
	v := new(big.Int).SetBytes(data)
	if v.Cmp(big.NewInt(255)) > 0 {
		return 0, fmt.Errorf("decimals %s out of uint8 range", v.String())
	}
	return int(v.Int64()), nil
}
