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
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type fakeCaller struct {
	responses map[string][]byte
	err       error
}

func (c *fakeCaller) CallContract(ctx context.Context, address common.Address, data []byte) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.responses[hex.EncodeToString(data)], nil
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestDecodeSymbol(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
		wantErr  bool
	}{
		{
			name: "ABI-encoded string",
			input: mustHex(
				"0000000000000000000000000000000000000000000000000000000000000020" + // offset
					"0000000000000000000000000000000000000000000000000000000000000004" + // length
					"5553445400000000000000000000000000000000000000000000000000000000", // "USDT"
			),
			expected: "USDT",
		},
		{
			name:     "bytes32 - MKR style",
			input:    mustHex("4d4b520000000000000000000000000000000000000000000000000000000000"),
			expected: "MKR",
		},
		{
			name:    "too short",
			input:   []byte{0x01},
			wantErr: true,
		},
		{
			name:    "bytes32 not printable",
			input:   append([]byte{0x01, 0x02}, make([]byte, 30)...),
			wantErr: true,
		},
		{
			name:    "all zero",
			input:   make([]byte, 32),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSymbol(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDecodeDecimals(t *testing.T) {
	six := common.LeftPadBytes([]byte{6}, 32)
	if d, err := decodeDecimals(six); err != nil || d != 6 {
		t.Errorf("expected 6, got %d (%v)", d, err)
	}

	if _, err := decodeDecimals([]byte{6}); err == nil {
		t.Error("expected error for short response")
	}

	big := common.LeftPadBytes([]byte{1, 0}, 32)
	if _, err := decodeDecimals(big); err == nil {
		t.Error("expected error for decimals above 255")
	}
}

func TestSelectors(t *testing.T) {
	if !bytes.Equal(symbolSelector, []byte{0x95, 0xd8, 0x9b, 0x41}) {
		t.Errorf("symbol selector mismatch: %x", symbolSelector)
	}
	if !bytes.Equal(decimalsSelector, []byte{0x31, 0x3c, 0xe5, 0x67}) {
		t.Errorf("decimals selector mismatch: %x", decimalsSelector)
	}
}

func TestTokenMetadataReader_Read(t *testing.T) {
	caller := &fakeCaller{responses: map[string][]byte{
		"95d89b41": mustHex("5553444300000000000000000000000000000000000000000000000000000000"),
		"313ce567": common.LeftPadBytes([]byte{6}, 32),
	}}

	symbol, decimals := NewTokenMetadataReader(caller, zap.NewNop()).Read(context.Background(), testToken)

	if symbol == nil || *symbol != "USDC" {
		t.Errorf("expected USDC, got %v", symbol)
	}
	if decimals == nil || *decimals != 6 {
		t.Errorf("expected 6 decimals, got %v", decimals)
	}
}

func TestTokenMetadataReader_ReadFailure(t *testing.T) {
	caller := &fakeCaller{err: errors.New("execution reverted")}

	symbol, decimals := NewTokenMetadataReader(caller, zap.NewNop()).Read(context.Background(), testToken)

	if symbol != nil || decimals != nil {
		t.Errorf("expected nil metadata on failure, got %v %v", symbol, decimals)
	}
}
