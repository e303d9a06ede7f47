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
	"io"
	"os"
	"text/tabwriter"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/lpcisp/cli/flags"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/flasher"
	"github.com/mongoose-os/lpcisp/cli/ourutil"
	"github.com/mongoose-os/lpcisp/common/ourio"
	"github.com/mongoose-os/lpcisp/version"
)

func info(ctx context.Context) error {
	opts, err := flashOpts()
	if err != nil {
		return errors.Trace(err)
	}
	i, err := flasher.GetInfo(opts)
	if err != nil {
		return errors.Trace(err)
	}
	printInfo(os.Stdout, i)
	return nil
}

func printInfo(out io.Writer, i *flasher.Info) {
	w := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "Part:\t%s\n", i.Part.Name)
	fmt.Fprintf(w, "Part ID:\t0x%08x\n", i.PartID)
	fmt.Fprintf(w, "Serial number:\t%032x\n", i.SerialNumber)
	fmt.Fprintf(w, "Bootloader version:\t%d.%d\n", i.BootMajor, i.BootMinor)
	fmt.Fprintf(w, "Flash size:\t%d\n", i.Part.FlashSize)
	w.Flush()
}

func parts(ctx context.Context) error {
	pt := lpc.BuiltinParts()
	if *flags.PartFile != "" {
		var err error
		if pt, err = lpc.LoadPartsFile(*flags.PartFile); err != nil {
			return errors.Trace(err)
		}
	}
	args := flag.Args()
	switch len(args) {
	case 1:
		printParts(os.Stdout, pt)
	case 2:
		written, err := ourio.WriteYAMLFileIfDifferent(args[1], pt, 0644)
		if err != nil {
			return errors.Trace(err)
		}
		if written {
			ourutil.Reportf("Wrote %s", args[1])
		}
	default:
		return errors.Errorf("usage: parts [<out.yaml>]")
	}
	return nil
}

func printParts(out io.Writer, pt *lpc.PartTable) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tIDS\tFLASH\tSTAGING\tSECTORS\n")
	for _, p := range pt.Parts {
		ids := ""
		for i, id := range p.IDs {
			if i > 0 {
				ids += ","
			}
			ids += fmt.Sprintf("0x%08x", id)
		}
		layout := ""
		for i, g := range p.SectorLayout {
			if i > 0 {
				layout += " + "
			}
			layout += fmt.Sprintf("%dx%dK", g.Count, g.Size/1024)
		}
		fmt.Fprintf(w, "%s\t%s\t%dK\t0x%08x/0x%x\t%d (%s)\n",
			p.Name, ids, p.FlashSize/1024, p.RAMStagingAddr, p.RAMStagingSize, len(p.Sectors), layout)
	}
	w.Flush()
}

func showVersion(ctx context.Context) error {
	fmt.Printf("%s\nVersion: %s\nBuild ID: %s\n", "The LPC ISP command line tool", version.Version, version.BuildId)
	if parts := version.GetBuildIDParts(version.BuildId); parts != nil {
		fmt.Printf("Distribution: %s\n", parts["distr"])
	}
	return nil
}
