// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture reads SPI bus events from recorded traces and live sniffer links.
//
// Every source implements vpc3.EventSource and can be handed to a vpc3.Session.
// Supported inputs are Saleae Logic 2 SPI analyzer CSV exports, Saleae binary
// digital channel exports, and the framed CBOR event stream spoken by sniffer
// bridges over serial and WebSocket.
package capture

// Link framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Link frame size limits
const (
	MaxPayloadSize = 64
	MaxFrameSize   = 1 + MaxPayloadSize + 2 // length + payload + CRC
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Deframer states
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
