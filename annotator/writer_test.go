// Copyright 2025 Blink Labs Software
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

package annotator

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "250", formatNumber(250))
	assert.Equal(t, "0.5", formatNumber(0.5))
	assert.Equal(t, "0", formatNumber(-0.00001))
	assert.Equal(t, "33.3333", formatNumber(100.0/3))
}

func TestWriteName(t *testing.T) {
	var b bytes.Buffer
	writeName(&b, "A B#(x)")
	assert.Equal(t, "/A#20B#23#28x#29", b.String())
}

func TestSubsections(t *testing.T) {
	assert.Equal(
		t,
		[][]uint32{{3}, {7, 8, 9}, {12}},
		subsections([]uint32{3, 7, 8, 9, 12}),
	)
	assert.Nil(t, subsections(nil))
}

func TestScaledSize(t *testing.T) {
	img := &rasterImage{width: 200, height: 80}
	w, h := scaledSize(img, 0, 100)
	assert.InDelta(t, 250, w, 1e-9)
	assert.InDelta(t, 100, h, 1e-9)
	w, h = scaledSize(img, 100, 0)
	assert.InDelta(t, 100, w, 1e-9)
	assert.InDelta(t, 40, h, 1e-9)
	w, h = scaledSize(img, 0, 0)
	assert.InDelta(t, 200, w, 1e-9)
	assert.InDelta(t, 80, h, 1e-9)
}

func TestFindStartXref(t *testing.T) {
	off, err := findStartXref([]byte("%PDF-1.7\nxref\nstartxref\n9\n%%EOF\n"))
	assert.NoError(t, err)
	assert.Equal(t, int64(9), off)
	_, err = findStartXref([]byte("%PDF-1.7\n"))
	assert.ErrorIs(t, err, ErrMalformedDocument)
}
