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
	"io"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/lpcisp/cli/flash/common"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/isp"
	"github.com/mongoose-os/lpcisp/cli/ourutil"
)

const maxBaudRate = 230400

type cfResult struct {
	port   io.Closer
	s      *isp.Session
	partID uint32
	part   *lpc.Part
}

func (r *cfResult) Disconnect() {
	if r.port != nil {
		r.port.Close()
		r.port = nil
	}
}

func loadParts(opts *lpc.FlashOpts) (*lpc.PartTable, error) {
	if opts.PartFile == "" {
		return lpc.BuiltinParts(), nil
	}
	return lpc.LoadPartsFile(opts.PartFile)
}

// resolvePart picks the part by name if one is given, otherwise by the id reported by the device.
func resolvePart(pt *lpc.PartTable, name string, id uint32) (*lpc.Part, error) {
	if name == "" {
		p, err := pt.ByID(id)
		if err != nil {
			return nil, errors.Annotatef(err, "use --lpc-part to specify the part")
		}
		return p, nil
	}
	p, err := pt.ByName(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	known := false
	for _, pid := range p.IDs {
		known = known || pid == id
	}
	if !known {
		glog.Warningf("Device reports part id 0x%08x which is not %s", id, p.Name)
	}
	return p, nil
}

// Connect brings up an ISP session: open port, synchronize, set crystal frequency, disable echo, identify the part.
func Connect(opts *lpc.FlashOpts) (*cfResult, error) {
	if opts.BaudRate > maxBaudRate {
		return nil, errors.Errorf("invalid baud rate (%d)", opts.BaudRate)
	}
	pt, err := loadParts(opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sp, err := common.OpenSerial(opts.Port, &common.SerialOpts{
		BaudRate:             opts.BaudRate,
		HardwareFlowControl:  opts.HardwareFlowControl,
		InvertedControlLines: opts.InvertedControlLines,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	r := &cfResult{port: sp}
	ok := false
	defer func() {
		if !ok {
			r.Disconnect()
		}
	}()
	if opts.ResetIntoISP {
		common.EnterISP(sp, opts.InvertedControlLines)
	}
	lc := common.NewLineChannel(sp, &common.LineChannelOpts{
		Timeout:             opts.Timeout,
		SoftwareFlowControl: opts.SoftwareFlowControl,
	})
	if err := lc.Flush(); err != nil {
		return nil, errors.Trace(err)
	}
	r.s = isp.NewSession(lc, &isp.SessionOpts{Attempts: opts.Attempts})
	if err := r.s.Handshake(); err != nil {
		return nil, errors.Annotatef(err, "Failed to talk to bootloader. Hold ISP low, reset the device and try again")
	}
	if err := r.s.SetCrystalFrequency(opts.CrystalKHz); err != nil {
		return nil, errors.Trace(err)
	}
	if err := r.s.DisableEcho(); err != nil {
		return nil, errors.Trace(err)
	}
	if r.partID, err = r.s.GetPartID(); err != nil {
		return nil, errors.Trace(err)
	}
	if r.part, err = resolvePart(pt, opts.PartName, r.partID); err != nil {
		return nil, errors.Trace(err)
	}
	ourutil.Reportf("Part: %s (id 0x%08x), flash size %d", r.part.Name, r.partID, r.part.FlashSize)
	ok = true
	return r, nil
}
