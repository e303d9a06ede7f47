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
package flasher

import (
	"math/big"

	"github.com/juju/errors"

	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/isp"
)

type Info struct {
	PartID       uint32
	Part         *lpc.Part
	SerialNumber *big.Int
	BootMajor    int
	BootMinor    int
}

func getInfo(s *isp.Session, partID uint32, part *lpc.Part) (*Info, error) {
	info := &Info{PartID: partID, Part: part}
	var err error
	if info.SerialNumber, err = s.GetSerialNumber(); err != nil {
		return nil, errors.Annotatef(err, "failed to read serial number")
	}
	if info.BootMajor, info.BootMinor, err = s.GetBootloaderVersion(); err != nil {
		return nil, errors.Annotatef(err, "failed to read bootloader version")
	}
	return info, nil
}

func GetInfo(opts *lpc.FlashOpts) (*Info, error) {
	cfr, err := Connect(opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cfr.Disconnect()
	return getInfo(cfr.s, cfr.partID, cfr.part)
}
