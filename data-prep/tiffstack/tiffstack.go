// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Reading multi-page TIFF stacks, one page per channel. IMC stacks are usually uncompressed
// 32-bit float pages which golang.org/x/image/tiff can't decode (it also only ever reads the
// first page), so uncompressed pages are read here directly and anything compressed is handed
// to x/image/tiff one page at a time.
package tiffstack

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"
	"os"

	"github.com/imcdata/imcprep/data-prep/models"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// Decoder - turns a raster file into a Raster. The image assembler takes one of these so tests
// don't need real TIFF files
type Decoder func(filePath string) (*models.Raster, error)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339

	typeShort = 3
	typeLong  = 4

	compressionNone = 1

	sampleFormatUInt  = 1
	sampleFormatFloat = 3

	ifdEntrySize = 12
)

type page struct {
	offset          uint32
	width           int
	height          int
	bitsPerSample   int
	samplesPerPixel int
	compression     int
	sampleFormat    int
	stripOffsets    []uint32
	stripByteCounts []uint32
}

// ReadFile - reads every page of the TIFF file as one channel
func ReadFile(filePath string) (*models.Raster, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	r, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %v", filePath)
	}
	return r, nil
}

// Decode - reads every page of an in-memory TIFF. All pages must be the same size
func Decode(data []byte) (*models.Raster, error) {
	order, pages, err := readPages(data)
	if err != nil {
		return nil, err
	}

	result := &models.Raster{Width: pages[0].width, Height: pages[0].height, Planes: make([][]float32, 0, len(pages))}

	// Shared by every compressed page, only its header's first IFD offset changes between pages
	var patched []byte

	for i, p := range pages {
		if p.width != result.Width || p.height != result.Height {
			return nil, errors.Errorf("page %v is %vx%v, first page is %vx%v", i, p.width, p.height, result.Width, result.Height)
		}

		var plane []float32
		if p.compression == compressionNone {
			plane, err = readUncompressed(data, order, p)
		} else {
			if patched == nil {
				patched = make([]byte, len(data))
				copy(patched, data)
			}
			plane, err = readDelegated(patched, order, p)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "page %v", i)
		}
		result.Planes = append(result.Planes, plane)
	}

	return result, nil
}

func readPages(data []byte) (binary.ByteOrder, []page, error) {
	if len(data) < 8 {
		return nil, nil, errors.New("not a TIFF file: too short")
	}

	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, nil, errors.New("not a TIFF file: bad byte order mark")
	}

	if order.Uint16(data[2:4]) != 42 {
		return nil, nil, errors.New("not a TIFF file: bad magic number, BigTIFF is not supported")
	}

	pages := []page{}
	visited := map[uint32]bool{}
	for offset := order.Uint32(data[4:8]); offset != 0; {
		if visited[offset] {
			return nil, nil, errors.Errorf("IFD chain loops back to offset %v", offset)
		}
		visited[offset] = true

		p, next, err := readIFD(data, order, offset)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "IFD %v", len(pages))
		}
		pages = append(pages, p)
		offset = next
	}

	if len(pages) <= 0 {
		return nil, nil, errors.New("TIFF has no pages")
	}
	return order, pages, nil
}

func readIFD(data []byte, order binary.ByteOrder, offset uint32) (page, uint32, error) {
	p := page{offset: offset, bitsPerSample: 1, samplesPerPixel: 1, compression: compressionNone, sampleFormat: sampleFormatUInt}

	start := int(offset)
	if start+2 > len(data) {
		return p, 0, errors.Errorf("offset %v is past the end of the file", offset)
	}
	count := int(order.Uint16(data[start : start+2]))
	end := start + 2 + count*ifdEntrySize
	if end+4 > len(data) {
		return p, 0, errors.Errorf("%v entries at offset %v run past the end of the file", count, offset)
	}

	for e := 0; e < count; e++ {
		entry := data[start+2+e*ifdEntrySize : start+2+(e+1)*ifdEntrySize]
		tag := order.Uint16(entry[0:2])

		switch tag {
		case tagImageWidth, tagImageLength, tagBitsPerSample, tagCompression, tagSamplesPerPixel, tagRowsPerStrip, tagSampleFormat:
			values, err := entryValues(data, order, entry)
			if err != nil {
				return p, 0, errors.Wrapf(err, "tag %v", tag)
			}
			if len(values) <= 0 {
				return p, 0, errors.Errorf("tag %v has no values", tag)
			}
			v := int(values[0])
			switch tag {
			case tagImageWidth:
				p.width = v
			case tagImageLength:
				p.height = v
			case tagBitsPerSample:
				p.bitsPerSample = v
			case tagCompression:
				p.compression = v
			case tagSamplesPerPixel:
				p.samplesPerPixel = v
			case tagSampleFormat:
				p.sampleFormat = v
			}
		case tagStripOffsets, tagStripByteCounts:
			values, err := entryValues(data, order, entry)
			if err != nil {
				return p, 0, errors.Wrapf(err, "tag %v", tag)
			}
			if tag == tagStripOffsets {
				p.stripOffsets = values
			} else {
				p.stripByteCounts = values
			}
		}
	}

	if p.width <= 0 || p.height <= 0 {
		return p, 0, errors.Errorf("bad page size %vx%v", p.width, p.height)
	}
	if p.samplesPerPixel != 1 {
		return p, 0, errors.Errorf("%v samples per pixel, only single-sample pages are supported", p.samplesPerPixel)
	}

	return p, order.Uint32(data[end : end+4]), nil
}

// entryValues - SHORT or LONG values of an IFD entry, read inline or from the offset it points at
func entryValues(data []byte, order binary.ByteOrder, entry []byte) ([]uint32, error) {
	typ := order.Uint16(entry[2:4])
	count := int(order.Uint32(entry[4:8]))

	size := 0
	switch typ {
	case typeShort:
		size = 2
	case typeLong:
		size = 4
	default:
		return nil, errors.Errorf("unsupported field type %v", typ)
	}

	raw := entry[8:12]
	if count*size > 4 {
		off := int(order.Uint32(entry[8:12]))
		if off < 0 || off+count*size > len(data) {
			return nil, errors.Errorf("%v values at offset %v run past the end of the file", count, off)
		}
		raw = data[off : off+count*size]
	}

	result := make([]uint32, count)
	for i := range result {
		if size == 2 {
			result[i] = uint32(order.Uint16(raw[i*2:]))
		} else {
			result[i] = order.Uint32(raw[i*4:])
		}
	}
	return result, nil
}

func readUncompressed(data []byte, order binary.ByteOrder, p page) ([]float32, error) {
	if len(p.stripOffsets) != len(p.stripByteCounts) || len(p.stripOffsets) <= 0 {
		return nil, errors.Errorf("%v strip offsets but %v strip byte counts", len(p.stripOffsets), len(p.stripByteCounts))
	}

	bytesPerSample := p.bitsPerSample / 8
	switch {
	case p.sampleFormat == sampleFormatFloat && p.bitsPerSample == 32:
	case p.sampleFormat == sampleFormatUInt && (p.bitsPerSample == 8 || p.bitsPerSample == 16 || p.bitsPerSample == 32):
	default:
		return nil, errors.Errorf("unsupported sample layout: format %v, %v bits", p.sampleFormat, p.bitsPerSample)
	}

	want := p.width * p.height * bytesPerSample
	buf := make([]byte, 0, want)
	for s, off := range p.stripOffsets {
		n := p.stripByteCounts[s]
		if uint64(off)+uint64(n) > uint64(len(data)) {
			return nil, errors.Errorf("strip %v runs past the end of the file", s)
		}
		buf = append(buf, data[off:off+n]...)
	}
	if len(buf) < want {
		return nil, errors.Errorf("strips hold %v bytes, expected %v", len(buf), want)
	}

	result := make([]float32, p.width*p.height)
	for i := range result {
		b := buf[i*bytesPerSample:]
		switch {
		case p.sampleFormat == sampleFormatFloat:
			result[i] = math.Float32frombits(order.Uint32(b))
		case bytesPerSample == 1:
			result[i] = float32(b[0])
		case bytesPerSample == 2:
			result[i] = float32(order.Uint16(b))
		default:
			result[i] = float32(order.Uint32(b))
		}
	}
	return result, nil
}

// readDelegated - decodes one compressed page with x/image/tiff by pointing the header of
// patched, a private copy of the file, at that page's IFD
func readDelegated(patched []byte, order binary.ByteOrder, p page) ([]float32, error) {
	order.PutUint32(patched[4:8], p.offset)

	img, err := tiff.Decode(bytes.NewReader(patched))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	result := make([]float32, 0, b.Dx()*b.Dy())
	switch g := img.(type) {
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				result = append(result, float32(g.Gray16At(x, y).Y))
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				result = append(result, float32(g.GrayAt(x, y).Y))
			}
		}
	default:
		return nil, errors.Errorf("unsupported compressed page type %T", img)
	}

	if len(result) != p.width*p.height {
		return nil, errors.Errorf("decoded %v pixels, expected %vx%v", len(result), p.width, p.height)
	}
	return result, nil
}
