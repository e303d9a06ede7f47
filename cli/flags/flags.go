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
package flags

import (
	"strconv"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lpcisp/cli/flash/common"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/flasher"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/isp"
)

var (
	Port = flag.String("port", "auto", "Serial port where the device is connected. "+
		"If set to 'auto', ports on the system will be enumerated and the first USB one will be used.")
	BaudRate             = flag.Uint("baud-rate", common.DefaultBaudRate, "Serial port speed")
	HWFC                 = flag.Bool("hw-flow-control", false, "Enable hardware flow control (CTS/RTS)")
	InvertedControlLines = flag.Bool("inverted-control-lines", false, "DTR and RTS control lines use inverted polarity")
	Timeout              = flag.Duration("timeout", common.DefaultLineTimeout, "Timeout for a response from the device")

	XonXoff           = flag.Bool("lpc-xonxoff", true, "Use software (XON/XOFF) flow control")
	Reset             = flag.Bool("lpc-reset", false, "Reset the device into ISP mode using DTR (ISP) and RTS (reset)")
	CrystalKHz        = flag.Int("lpc-crystal-khz", 12000, "Crystal frequency, kHz")
	Attempts          = flag.Int("lpc-attempts", isp.DefaultAttempts, "Max number of retries for a data chunk with a bad checksum")
	Part              = flag.String("lpc-part", "", "Part name. If not set, the part is detected by id.")
	PartFile          = flag.String("lpc-part-file", "", "YAML file with part definitions, replaces the built-in table")
	StagingAddr       = flag.String("lpc-staging-addr", "", "Override the RAM address where the image is staged")
	StagingSize       = flag.String("lpc-staging-size", "", "Override the size of the RAM staging window, a multiple of 256")
	PatchChecksum     = flag.Bool("lpc-patch-checksum", true, "Patch the vector table checksum so that the bootloader accepts the image")
	BootAfterFlashing = flag.Bool("lpc-boot-after-flashing", false, "Boot the firmware after flashing")
	ChunkSize         = flag.Uint32("lpc-chunk-size", flasher.DefaultChunkSize, "Size of a single read when dumping flash")

	IHexBigEndian = flag.Bool("ihex-big-endian", false, "Multi-byte fields of Intel HEX address records are big-endian")
	Yes           = flag.BoolP("yes", "y", false, "Do not ask for confirmation")
)

// parseSize parses an optional numeric flag value in any base and checks its alignment.
func parseSize(name, v string, align uint64) (uint32, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return 0, errors.Annotatef(err, "invalid --%s", name)
	}
	if n%align != 0 {
		return 0, errors.Errorf("--%s must be a multiple of %d", name, align)
	}
	return uint32(n), nil
}

// FlashOpts collects LPC flashing options from flags.
func FlashOpts(port string) (*lpc.FlashOpts, error) {
	sa, err := parseSize("lpc-staging-addr", *StagingAddr, 4)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ss, err := parseSize("lpc-staging-size", *StagingSize, 256)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if *Timeout <= 0 {
		return nil, errors.Errorf("invalid timeout %s", *Timeout)
	}
	return &lpc.FlashOpts{
		Port:                 port,
		BaudRate:             *BaudRate,
		HardwareFlowControl:  *HWFC,
		SoftwareFlowControl:  *XonXoff,
		InvertedControlLines: *InvertedControlLines,
		ResetIntoISP:         *Reset,
		Timeout:              *Timeout,
		CrystalKHz:           *CrystalKHz,
		Attempts:             *Attempts,
		PartName:             *Part,
		PartFile:             *PartFile,
		StagingAddr:          sa,
		StagingSize:          ss,
		PatchChecksum:        *PatchChecksum,
		BootAfterFlashing:    *BootAfterFlashing,
		ChunkSize:            *ChunkSize,
	}, nil
}
