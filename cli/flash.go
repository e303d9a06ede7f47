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
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lpcisp/cli/devutil"
	"github.com/mongoose-os/lpcisp/cli/flags"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/flasher"
	"github.com/mongoose-os/lpcisp/cli/ourutil"
	"github.com/mongoose-os/lpcisp/common/ihex"
)

func ihexByteOrder() binary.ByteOrder {
	if *flags.IHexBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func flashOpts() (*lpc.FlashOpts, error) {
	port, err := devutil.GetPort()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return flags.FlashOpts(port)
}

func readImage(fname string) ([]ihex.Record, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	recs, err := ihex.DecodeWithOrder(f, ihexByteOrder())
	if err != nil {
		return nil, errors.Annotatef(err, "%s", fname)
	}
	return recs, nil
}

func confirmFlash(length uint32) bool {
	if *flags.Yes {
		return true
	}
	return ourutil.IsYes(ourutil.Prompt(fmt.Sprintf("Write 0x%08x bytes to flash? (y/N)", length)))
}

func flash(ctx context.Context) error {
	args := flag.Args()
	if len(args) != 2 {
		return errors.Errorf("usage: flash <file.hex>")
	}
	recs, err := readImage(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	opts, err := flashOpts()
	if err != nil {
		return errors.Trace(err)
	}
	if err := flasher.Flash(ctx, opts, recs, confirmFlash); err != nil {
		if errors.Cause(err) == flasher.ErrAborted {
			ourutil.Reportf("Flash not modified.")
		}
		return errors.Trace(err)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "All done!\n")
	return nil
}
