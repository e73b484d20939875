package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/smart-env/obsidian-smart-env/internal/manifest"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// Record signatures, little endian.
const (
	localHeaderSig    = 0x04034b50
	centralHeaderSig  = 0x02014b50
	endOfCentralSig   = 0x06054b50
	dataDescriptorSig = 0x08074b50
)

const (
	localHeaderLen = 30

	// Data descriptor lengths with and without the optional signature.
	signedDescriptorLen   = 16
	unsignedDescriptorLen = 12

	flagDataDescriptor = 0x8
)

// Compression methods understood by the reader.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// ErrMalformed is returned when the archive structure cannot be walked:
// truncated headers, entries running past the end of the buffer or an
// unterminated streaming entry.
var ErrMalformed = errors.New("malformed zip archive")

// File is one extracted archive entry.
type File struct {
	Name string
	Data []byte
}

// Skipped records an entry that was present in the archive but not extracted.
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result is the outcome of reading a bundle.
type Result struct {
	// Files holds the extracted entries in archive order. Directory entries
	// are not included.
	Files []File

	// Manifest is the parsed top-level manifest.json, or nil when the
	// archive has none.
	Manifest *model.Manifest

	// Skipped lists entries that used an unsupported compression method or
	// whose data could not be decoded.
	Skipped []Skipped
}

// File returns the extracted entry with the given name.
func (r *Result) File(name string) (File, bool) {
	for _, f := range r.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// localHeader is the fixed part of a local file header.
type localHeader struct {
	flags            uint16
	method           uint16
	crc              uint32
	compressedSize   uint32
	uncompressedSize uint32
	name             string
}

// Read extracts every file from the ZIP archive in data.
//
// Unsupported or undecodable entries are listed in Result.Skipped and do not
// fail the read. A structural problem returns an error wrapping ErrMalformed.
// A manifest.json at the archive root that cannot be parsed is an error too,
// since the bundle cannot be installed without it.
func Read(data []byte) (*Result, error) {
	result := &Result{}
	offset := 0

	for offset+4 <= len(data) {
		sig := binary.LittleEndian.Uint32(data[offset:])
		switch sig {
		case localHeaderSig:
		case centralHeaderSig, endOfCentralSig, dataDescriptorSig:
			return finish(result)
		default:
			return nil, fmt.Errorf("%w: unexpected signature 0x%08x at offset %d", ErrMalformed, sig, offset)
		}

		hdr, dataStart, err := readLocalHeader(data, offset)
		if err != nil {
			return nil, err
		}

		compSize := int(hdr.compressedSize)
		next := dataStart + compSize
		if hdr.flags&flagDataDescriptor != 0 {
			var crc uint32
			compSize, crc, next, err = scanStreamingEntry(data, dataStart)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", hdr.name, err)
			}
			hdr.crc = crc
		} else if next > len(data) {
			return nil, fmt.Errorf("%w: entry %q runs past end of archive", ErrMalformed, hdr.name)
		}

		if !strings.HasSuffix(hdr.name, "/") {
			raw := data[dataStart : dataStart+compSize]
			content, reason := decode(hdr, raw)
			if reason != "" {
				result.Skipped = append(result.Skipped, Skipped{Name: hdr.name, Reason: reason})
			} else {
				result.Files = append(result.Files, File{Name: hdr.name, Data: content})
			}
		}

		offset = next
	}

	return finish(result)
}

// finish parses the root manifest, if any.
func finish(result *Result) (*Result, error) {
	f, ok := result.File(manifest.FileName)
	if !ok {
		return result, nil
	}
	m, err := manifest.Parse(f.Data)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	result.Manifest = m
	return result, nil
}

// readLocalHeader decodes the local file header at offset and returns it
// with the offset of the entry's data.
func readLocalHeader(data []byte, offset int) (localHeader, int, error) {
	if offset+localHeaderLen > len(data) {
		return localHeader{}, 0, fmt.Errorf("%w: truncated local header at offset %d", ErrMalformed, offset)
	}
	b := data[offset:]
	hdr := localHeader{
		flags:            binary.LittleEndian.Uint16(b[6:]),
		method:           binary.LittleEndian.Uint16(b[8:]),
		crc:              binary.LittleEndian.Uint32(b[14:]),
		compressedSize:   binary.LittleEndian.Uint32(b[18:]),
		uncompressedSize: binary.LittleEndian.Uint32(b[22:]),
	}
	nameLen := int(binary.LittleEndian.Uint16(b[26:]))
	extraLen := int(binary.LittleEndian.Uint16(b[28:]))

	nameStart := offset + localHeaderLen
	dataStart := nameStart + nameLen + extraLen
	if dataStart > len(data) {
		return localHeader{}, 0, fmt.Errorf("%w: truncated file name at offset %d", ErrMalformed, offset)
	}
	hdr.name = string(data[nameStart : nameStart+nameLen])
	return hdr, dataStart, nil
}

// scanStreamingEntry finds the end of an entry written with a trailing data
// descriptor. A candidate position is accepted only when the descriptor's
// compressed size equals the number of bytes scanned, so signature bytes that
// happen to occur inside compressed data are not mistaken for the end.
//
// Both descriptor forms are recognised: with the optional signature, and
// without it (in which case the descriptor is followed directly by the next
// local or central header).
func scanStreamingEntry(data []byte, dataStart int) (compSize int, crc uint32, next int, err error) {
	for p := dataStart; p+4 <= len(data); p++ {
		switch binary.LittleEndian.Uint32(data[p:]) {
		case dataDescriptorSig:
			if p+signedDescriptorLen > len(data) {
				continue
			}
			if int(binary.LittleEndian.Uint32(data[p+8:])) == p-dataStart {
				return p - dataStart, binary.LittleEndian.Uint32(data[p+4:]), p + signedDescriptorLen, nil
			}
		case localHeaderSig, centralHeaderSig:
			d := p - unsignedDescriptorLen
			if d < dataStart {
				continue
			}
			if int(binary.LittleEndian.Uint32(data[d+4:])) == d-dataStart {
				return d - dataStart, binary.LittleEndian.Uint32(data[d:]), p, nil
			}
		}
	}
	return 0, 0, 0, fmt.Errorf("%w: no data descriptor found", ErrMalformed)
}

// decode returns the uncompressed bytes of an entry, or a non-empty reason
// when the entry has to be skipped.
func decode(hdr localHeader, raw []byte) ([]byte, string) {
	var content []byte
	switch hdr.method {
	case MethodStore:
		content = bytes.Clone(raw)
	case MethodDeflate:
		r := flate.NewReader(bytes.NewReader(raw))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Sprintf("inflate failed: %v", err)
		}
		content = out
	default:
		return nil, fmt.Sprintf("unsupported compression method %d", hdr.method)
	}

	if got := crc32.ChecksumIEEE(content); got != hdr.crc {
		return nil, fmt.Sprintf("checksum mismatch: got 0x%08x, want 0x%08x", got, hdr.crc)
	}
	return content, ""
}
