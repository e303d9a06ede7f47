//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package common

import (
	"time"

	"github.com/cesanta/go-serial/serial"
	"github.com/golang/glog"
	"github.com/juju/errors"
)

const (
	DefaultBaudRate = 115200

	interCharacterTimeout = 100 * time.Millisecond
	resetPulse            = 100 * time.Millisecond
	bootloaderStartDelay  = 200 * time.Millisecond
)

type SerialOpts struct {
	BaudRate            uint
	HardwareFlowControl bool
	// On most LPC boards DTR drives ISP enable and RTS drives reset, both active low.
	// With InvertedControlLines the levels are flipped, for adapters with inverting drivers.
	InvertedControlLines bool
}

// OpenSerial opens the port with 8N1 framing. Reads return after interCharacterTimeout with no data.
func OpenSerial(portName string, opts *SerialOpts) (serial.Serial, error) {
	glog.Infof("Opening %s...", portName)
	oo := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              DefaultBaudRate,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		HardwareFlowControl:   opts.HardwareFlowControl,
		InterCharacterTimeout: uint(interCharacterTimeout / time.Millisecond),
		MinimumReadSize:       0,
	}
	if opts.BaudRate != 0 {
		oo.BaudRate = opts.BaudRate
	}
	s, err := serial.Open(oo)
	glog.Infof("%s opened: %v, err: %v", portName, s, err)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", portName)
	}
	return s, nil
}

type controlLines interface {
	SetDTR(bool) error
	SetRTS(bool) error
}

// EnterISP resets the device with the ISP pin held, so that it starts in the bootloader.
func EnterISP(s controlLines, inverted bool) {
	glog.V(1).Infof("Resetting into ISP mode (inverted: %t)", inverted)
	// Asserted is low on the wire, which is "true" for the modem lines.
	assert, release := !inverted, inverted
	s.SetDTR(assert)
	s.SetRTS(assert)
	time.Sleep(resetPulse)
	s.SetRTS(release)
	time.Sleep(bootloaderStartDelay)
	s.SetDTR(release)
}
