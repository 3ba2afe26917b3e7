/*
 * rvsim - Convert register/memory contents to hex strings.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package hexfmt formats register and memory dumps for the monitor.
package hexfmt

import "strings"

var hexMap = "0123456789abcdef"

// Word64 appends a 16-digit hex word, space-terminated.
func Word64(str *strings.Builder, v uint64) {
	for shift := 60; shift >= 0; shift -= 4 {
		str.WriteByte(hexMap[(v>>uint(shift))&0xf])
	}
	str.WriteByte(' ')
}

// Word32 appends an 8-digit hex word, space-terminated.
func Word32(str *strings.Builder, v uint32) {
	for shift := 28; shift >= 0; shift -= 4 {
		str.WriteByte(hexMap[(v>>uint(shift))&0xf])
	}
	str.WriteByte(' ')
}

// Bytes appends each byte of data as two hex digits, space-separated when
// space is true.
func Bytes(str *strings.Builder, space bool, data []byte) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

// Dump renders a classic hex+ASCII memory dump of data, addresses labeled
// starting at base.
func Dump(base uint64, data []byte) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		Word64(&sb, base+uint64(off))
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]
		Bytes(&sb, true, line)
		for pad := len(line); pad < 16; pad++ {
			sb.WriteString("   ")
		}
		sb.WriteByte(' ')
		for _, b := range line {
			if b >= 0x20 && b < 0x7f {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
