// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// vpc3scope - VPC3 Profibus SPI decoder
//
// A CLI tool for decoding and timing-checking the SPI traffic between a
// microcontroller and a VPC3 Profibus controller.

package main

import (
	"os"

	"github.com/Thermoquad/vpc3scope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
