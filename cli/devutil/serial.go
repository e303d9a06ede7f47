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
package devutil

import (
	"sort"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"go.bug.st/serial/enumerator"

	"github.com/mongoose-os/lpcisp/cli/flags"
	"github.com/mongoose-os/lpcisp/cli/ourutil"
)

var defaultPort string

// EnumerateSerialPorts lists serial ports, USB adapters first.
func EnumerateSerialPorts() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to enumerate serial ports")
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []*enumerator.PortDetails) {
	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].IsUSB != ports[j].IsUSB {
			return ports[i].IsUSB
		}
		return ports[i].Name < ports[j].Name
	})
}

func getDefaultPort() (string, error) {
	ports, err := EnumerateSerialPorts()
	if err != nil {
		return "", errors.Trace(err)
	}
	for _, p := range ports {
		glog.V(1).Infof("Port %s usb %t %s:%s sn %q", p.Name, p.IsUSB, p.VID, p.PID, p.SerialNumber)
	}
	if len(ports) == 0 {
		return "", nil
	}
	return ports[0].Name, nil
}

func GetPort() (string, error) {
	if *flags.Port != "auto" {
		return *flags.Port, nil
	}
	if defaultPort == "" {
		p, err := getDefaultPort()
		if err != nil {
			return "", errors.Trace(err)
		}
		if p == "" {
			return "", errors.Errorf("--port not specified and none were found")
		}
		defaultPort = p
		ourutil.Reportf("Using port %s", defaultPort)
	}
	return defaultPort, nil
}
