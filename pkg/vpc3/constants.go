// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vpc3 decodes SPI traffic of the VPC3 Profibus ASIC.
//
// Events from a capture are grouped into chip-select cycles, each cycle is
// decoded into a memory command (opcode, address, data), its timing is checked
// against configured limits, and the result is filtered for display.
package vpc3

// SPI memory opcodes understood by the VPC3
const (
	OpReadArray  = 0x03
	OpReadByte   = 0x13
	OpWriteArray = 0x02
	OpWriteByte  = 0x12
)

// Address widths
const (
	AddressWidthShort = 1 // single address byte
	AddressWidthLong  = 2 // high byte, then low byte
)

// Assembler states (internal)
const (
	stateIdle = iota
	stateReceiving
)

// initialFrameCapacity sizes the byte buffer for a new cycle
const initialFrameCapacity = 16
