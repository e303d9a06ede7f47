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
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lpcisp/common/pflagenv"
)

const (
	envPrefix = "LPCISP_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

var (
	// put all commands here
	commands = []command{
		{"info", info, `Show part id, serial number and bootloader version`, []string{}, []string{"port", "baud-rate", "lpc-crystal-khz", "lpc-part"}},
		{"flash", flash, `Write an Intel HEX image to the device flash. Usage: flash <file.hex>`, []string{}, []string{"port", "baud-rate", "lpc-crystal-khz", "lpc-part", "lpc-patch-checksum", "lpc-boot-after-flashing", "yes"}},
		{"flash-read", flashRead, `Dump device flash to an Intel HEX file. Usage: flash-read [<addr> <length>] <file.hex|->`, []string{}, []string{"port", "baud-rate", "lpc-crystal-khz", "lpc-part", "lpc-chunk-size"}},
		{"parts", parts, `List known parts and their flash layout. Usage: parts [<out.yaml>] to export the table`, []string{}, []string{"lpc-part-file"}},
		{"version", showVersion, `Show version`, []string{}, []string{}},
	}
)

type command struct {
	name     string
	handler  handler
	short    string
	required []string
	optional []string
}

type handler func(ctx context.Context) error

func run(ctx context.Context) error {
	for _, c := range commands {
		if c.name == flag.Arg(0) {
			// check required flags
			if err := checkFlags(c.required); err != nil {
				return errors.Trace(err)
			}
			// run the handler
			if err := c.handler(ctx); err != nil {
				return errors.Trace(err)
			}
			return nil
		}
	}
	// not found
	usage()
	return nil
}

func main() {
	initFlags()
	flag.Parse()
	if err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		showVersion(context.Background())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}
