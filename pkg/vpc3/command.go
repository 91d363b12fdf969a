// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"fmt"
	"strings"
)

// CommandTag identifies a VPC3 SPI memory command
type CommandTag uint8

const (
	// CmdNone is the zero value, used for "no command filter"
	CmdNone CommandTag = iota
	CmdReadArray
	CmdReadByte
	CmdWriteArray
	CmdWriteByte
	CmdUnknown
)

// TagForOpcode maps an opcode byte to its command tag
func TagForOpcode(op byte) CommandTag {
	switch op {
	case OpReadArray:
		return CmdReadArray
	case OpReadByte:
		return CmdReadByte
	case OpWriteArray:
		return CmdWriteArray
	case OpWriteByte:
		return CmdWriteByte
	default:
		return CmdUnknown
	}
}

// Opcode returns the opcode byte of a known command tag
func (t CommandTag) Opcode() (byte, bool) {
	switch t {
	case CmdReadArray:
		return OpReadArray, true
	case CmdReadByte:
		return OpReadByte, true
	case CmdWriteArray:
		return OpWriteArray, true
	case CmdWriteByte:
		return OpWriteByte, true
	default:
		return 0, false
	}
}

// Known reports whether the tag is one of the four VPC3 commands
func (t CommandTag) Known() bool {
	_, ok := t.Opcode()
	return ok
}

// IsRead reports whether the command transfers data from the ASIC
func (t CommandTag) IsRead() bool {
	return t == CmdReadArray || t == CmdReadByte
}

// IsArray reports whether the command carries a variable-length payload
func (t CommandTag) IsArray() bool {
	return t == CmdReadArray || t == CmdWriteArray
}

// String returns the human-readable command name
func (t CommandTag) String() string {
	switch t {
	case CmdNone:
		return "None"
	case CmdReadArray:
		return "Read Array"
	case CmdReadByte:
		return "Read Byte"
	case CmdWriteArray:
		return "Write Array"
	case CmdWriteByte:
		return "Write Byte"
	case CmdUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("CommandTag(%d)", uint8(t))
	}
}

// FilterName returns the upper-case name used by command filters
func (t CommandTag) FilterName() string {
	switch t {
	case CmdReadArray:
		return "READ_ARRAY"
	case CmdReadByte:
		return "READ_BYTE"
	case CmdWriteArray:
		return "WRITE_ARRAY"
	case CmdWriteByte:
		return "WRITE_BYTE"
	default:
		return ""
	}
}

// ParseCommandTag parses a command filter name.
// Accepts READ_BYTE, read-byte, "Read Byte" and the opcode in hex (0x13).
// An empty string or "none" yields CmdNone.
func ParseCommandTag(s string) (CommandTag, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "", "NONE", "NO_FILTER":
		return CmdNone, nil
	case "READ_ARRAY", "0X03":
		return CmdReadArray, nil
	case "READ_BYTE", "0X13":
		return CmdReadByte, nil
	case "WRITE_ARRAY", "0X02":
		return CmdWriteArray, nil
	case "WRITE_BYTE", "0X12":
		return CmdWriteByte, nil
	}
	return CmdNone, fmt.Errorf("unknown command %q (use READ_BYTE, READ_ARRAY, WRITE_BYTE or WRITE_ARRAY)", s)
}

// Command is a decoded VPC3 command.
//
// Known commands carry an address and data; Unknown carries only the raw opcode.
type Command struct {
	Tag     CommandTag
	Opcode  byte
	Address uint16
	Data    []byte
}

// HasAddress reports whether the command carries an address field
func (c Command) HasAddress() bool {
	return c.Tag.Known()
}

// Equal reports whether two commands have the same tag, fields and data
func (c Command) Equal(o Command) bool {
	if c.Tag != o.Tag || c.Opcode != o.Opcode || c.Address != o.Address || len(c.Data) != len(o.Data) {
		return false
	}
	for i := range c.Data {
		if c.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}
