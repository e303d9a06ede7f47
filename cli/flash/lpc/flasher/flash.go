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
	"context"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/ourutil"
	"github.com/mongoose-os/lpcisp/common/ihex"
)

func newProgress(desc string) ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(done, total uint32) {
		if bar == nil {
			bar = progressbar.NewOptions64(int64(total),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(desc),
				progressbar.OptionShowBytes(true),
				progressbar.OptionOnCompletion(func() { os.Stderr.WriteString("\n") }),
			)
		}
		bar.Set64(int64(done))
	}
}

func programmerOpts(opts *lpc.FlashOpts, confirm ConfirmFunc, progress ProgressFunc) *ProgrammerOpts {
	return &ProgrammerOpts{
		StagingAddr:   opts.StagingAddr,
		StagingSize:   opts.StagingSize,
		PatchChecksum: opts.PatchChecksum,
		Confirm:       confirm,
		Progress:      progress,
	}
}

// Flash writes an image to the device.
func Flash(ctx context.Context, opts *lpc.FlashOpts, recs []ihex.Record, confirm ConfirmFunc) error {
	cfr, err := Connect(opts)
	if err != nil {
		return errors.Trace(err)
	}
	defer cfr.Disconnect()

	p := NewProgrammer(cfr.s, cfr.part, programmerOpts(opts, confirm, newProgress("Staging")))
	start := time.Now()
	if err := p.ProgramImage(ctx, recs); err != nil {
		return errors.Trace(err)
	}
	seconds := time.Since(start).Seconds()
	ourutil.Reportf("Flashed in %.2f seconds", seconds)

	if opts.BootAfterFlashing {
		ourutil.Reportf("Booting firmware...")
		if err := p.Go(0, lpc.ThumbMode); err != nil {
			return errors.Annotatef(err, "failed to boot firmware")
		}
	}
	return nil
}

// ReadFlash dumps flash contents. Zero length means up to the end of flash.
func ReadFlash(ctx context.Context, opts *lpc.FlashOpts, addr, length uint32) ([]ihex.Record, error) {
	cfr, err := Connect(opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cfr.Disconnect()

	if addr == 0 && length == 0 {
		length = cfr.part.FlashSize
	}
	p := NewProgrammer(cfr.s, cfr.part, programmerOpts(opts, nil, newProgress("Reading")))
	ourutil.Reportf("Reading %d @ 0x%x...", length, addr)
	start := time.Now()
	recs, err := p.DumpFlash(ctx, addr, length, opts.ChunkSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	seconds := time.Since(start).Seconds()
	bytesPerSecond := float64(length) / seconds
	ourutil.Reportf("Read %d bytes in %.2f seconds (%.2f KBit/sec)", length, seconds, bytesPerSecond*8/1024)
	return recs, nil
}
