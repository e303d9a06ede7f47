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
package ourutil

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	ans := prompt(strings.NewReader(" y \nmore\n"), &out, "Write 1024 bytes? (y/N)")
	assert.Equal(t, "y", ans)
	assert.Equal(t, "Write 1024 bytes? (y/N) ", out.String())
	assert.Equal(t, "", prompt(strings.NewReader(""), &out, "?"))
}

func TestIsYes(t *testing.T) {
	for ans, want := range map[string]bool{"y": true, "Y": true, "yes": true, "YES": true, "": false, "n": false, "yep": false} {
		assert.Equal(t, want, IsYes(ans), "%q", ans)
	}
}

func TestFreportf(t *testing.T) {
	var out bytes.Buffer
	Freportf(&out, "Part: %s", "LPC1768")
	assert.Equal(t, "Part: LPC1768\n", out.String())
}

func TestFindNamedSubmatches(t *testing.T) {
	re := regexp.MustCompile(`^(?P<major>\d+)\.(?P<minor>\d+)$`)
	assert.Equal(t, map[string]string{"major": "4", "minor": "13"}, FindNamedSubmatches(re, "4.13"))
	assert.Nil(t, FindNamedSubmatches(re, "x"))
}
