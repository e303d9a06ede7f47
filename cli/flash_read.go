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
	"bytes"
	"context"
	"os"
	"strconv"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lpcisp/cli/flash/lpc/flasher"
	"github.com/mongoose-os/lpcisp/cli/ourutil"
	"github.com/mongoose-os/lpcisp/common/ihex"
	"github.com/mongoose-os/lpcisp/common/ourio"
)

func flashRead(ctx context.Context) error {
	var err error
	var addr, length uint64
	outFile := ""
	args := flag.Args()
	switch len(args) {
	case 2:
		// Zero length reads the entire flash.
		outFile = args[1]
	case 4:
		addr, err = strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return errors.Annotatef(err, "invalid address")
		}
		length, err = strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return errors.Annotatef(err, "invalid length")
		}
		outFile = args[3]
	default:
		return errors.Errorf("invalid arguments")
	}

	opts, err := flashOpts()
	if err != nil {
		return errors.Trace(err)
	}
	recs, err := flasher.ReadFlash(ctx, opts, uint32(addr), uint32(length))
	if err != nil {
		return errors.Trace(err)
	}

	var buf bytes.Buffer
	if err := ihex.EncodeWithOrder(&buf, recs, ihexByteOrder()); err != nil {
		return errors.Trace(err)
	}
	if outFile == "-" {
		_, err = os.Stdout.Write(buf.Bytes())
		return errors.Trace(err)
	}
	written, err := ourio.WriteFileIfDifferent(outFile, buf.Bytes(), 0644)
	if err != nil {
		return errors.Annotatef(err, "failed to write %s", outFile)
	}
	if written {
		ourutil.Reportf("Wrote %s", outFile)
	} else {
		ourutil.Reportf("%s is up to date", outFile)
	}
	return nil
}
