// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"

	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

// SaleaeChannels names the binary digital export of each SPI line
type SaleaeChannels struct {
	Clock  string
	Enable string
	MOSI   string
	MISO   string // optional
}

// SaleaeSource replays SPI transactions scanned from Saleae binary digital exports.
//
// The analyzer reports only a start time per transaction, so all events of a
// cycle share that time. Commands decode normally but timing windows measure zero.
type SaleaeSource struct {
	*SliceSource
	Transactions int
}

// OpenSaleae reads the channel files and scans them for SPI transactions
func OpenSaleae(ch SaleaeChannels) (*SaleaeSource, error) {
	clk, err := openDigital(ch.Clock)
	if err != nil {
		return nil, err
	}
	enable, err := openDigital(ch.Enable)
	if err != nil {
		return nil, err
	}
	sdo, err := openDigital(ch.MOSI)
	if err != nil {
		return nil, err
	}
	sdi := sdo
	if ch.MISO != "" {
		if sdi, err = openDigital(ch.MISO); err != nil {
			return nil, err
		}
	}

	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, sdo, sdi)
	if len(txs) == 0 {
		return nil, fmt.Errorf("no SPI transactions found in %s", ch.Enable)
	}

	var events []vpc3.Event
	for _, tx := range txs {
		at := time.Duration(math.Round(tx.StartTime() * 1e9))
		events = append(events, vpc3.ChipSelectAssert(at))
		for i, mosi := range tx.SDO {
			if ch.MISO != "" && i < len(tx.SDI) {
				events = append(events, vpc3.ByteExchange(mosi, tx.SDI[i], at, at))
			} else {
				events = append(events, vpc3.ByteTransfer(mosi, at, at))
			}
		}
		events = append(events, vpc3.ChipSelectDeassert(at))
	}
	return &SaleaeSource{SliceSource: NewSliceSource(events), Transactions: len(txs)}, nil
}

func openDigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return df, nil
}
