package bdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Limits on header fields that size allocations.
const (
	maxSignals    = 1024
	maxRecordSize = 64 << 20
)

// ReadFile opens and decodes the BDF file at path. The file size bounds
// how much the header may claim.
func ReadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ReadSize(bufio.NewReaderSize(f, 1<<16), st.Size())
}

// Read decodes a complete recording from r when its length is unknown.
func Read(r io.Reader) (*Recording, error) {
	return ReadSize(r, -1)
}

// ReadSize decodes a recording of size bytes from r. A negative size means
// unknown; data buffers then grow with the records actually read.
func ReadSize(r io.Reader, size int64) (*Recording, error) {
	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	recordSize := 0
	for _, s := range hdr.Signals {
		recordSize += s.SamplesPerRecord * bytesPerSample
		if recordSize > maxRecordSize {
			return nil, fmt.Errorf("%w: data record larger than %d bytes", ErrFormat, maxRecordSize)
		}
	}

	records := 0
	if size >= 0 {
		headerBytes := int64(fixedHeaderSize + len(hdr.Signals)*signalHeaderSize)
		available := int((size - headerBytes) / int64(recordSize))
		if hdr.Records > available {
			return nil, fmt.Errorf("%w: header declares %d data records, file holds %d", ErrFormat, hdr.Records, available)
		}
		if hdr.Records < 0 {
			records = max(available, 0)
		} else {
			records = hdr.Records
		}
		if records == 0 && hdr.Records != 0 {
			return nil, fmt.Errorf("%w: no complete data record", ErrFormat)
		}
	}

	data := make([][]float64, len(hdr.Signals))
	for i, s := range hdr.Signals {
		data[i] = make([]float64, 0, records*s.SamplesPerRecord)
	}
	if hdr.Records == 0 {
		return &Recording{Header: *hdr, Data: data}, nil
	}

	buf := make([]byte, recordSize)
	n := 0
	for hdr.Records < 0 || n < hdr.Records {
		if _, err := io.ReadFull(r, buf); err != nil {
			if hdr.Records < 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
				// Unknown record count: a trailing partial record is dropped.
				break
			}
			return nil, fmt.Errorf("%w: data record %d: %v", ErrFormat, n, err)
		}
		off := 0
		for i, s := range hdr.Signals {
			gain := s.gain()
			scale := unitScale(s.PhysicalDimension)
			for k := 0; k < s.SamplesPerRecord; k++ {
				d := decode24(buf[off : off+3])
				off += 3
				phys := (float64(d-s.DigitalMin))*gain + s.PhysicalMin
				data[i] = append(data[i], phys*scale)
			}
		}
		n++
	}
	hdr.Records = n
	return &Recording{Header: *hdr, Data: data}, nil
}

func decode24(b []byte) int {
	v := int(b[0]) | int(b[1])<<8 | int(b[2])<<16
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

func readHeader(r io.Reader) (*Header, error) {
	fixed := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if string(fixed[0:8]) != versionMagic {
		return nil, fmt.Errorf("%w: not a BioSemi file", ErrFormat)
	}

	f := fieldReader{buf: fixed, off: 8}
	hdr := &Header{
		PatientID:   f.str(80),
		RecordingID: f.str(80),
	}
	startDate := f.str(8)
	startTime := f.str(8)
	if t, err := time.Parse("02.01.06 15.04.05", startDate+" "+startTime); err == nil {
		hdr.Start = t
	}
	headerBytes := f.int(8)
	f.str(44) // reserved
	hdr.Records = f.int(8)
	hdr.RecordDuration = f.float(8)
	ns := f.int(4)
	if f.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, f.err)
	}
	if ns <= 0 || ns > maxSignals {
		return nil, fmt.Errorf("%w: signal count %d", ErrFormat, ns)
	}
	if headerBytes != fixedHeaderSize+ns*signalHeaderSize {
		return nil, fmt.Errorf("%w: header size %d does not match %d signals", ErrFormat, headerBytes, ns)
	}
	if hdr.RecordDuration <= 0 {
		return nil, fmt.Errorf("%w: record duration %v", ErrFormat, hdr.RecordDuration)
	}

	sig := make([]byte, ns*signalHeaderSize)
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, fmt.Errorf("%w: signal header: %v", ErrFormat, err)
	}
	// Signal fields are stored column-wise: all labels, then all
	// transducers, and so on.
	sf := fieldReader{buf: sig}
	signals := make([]Signal, ns)
	for i := range signals {
		signals[i].Label = sf.str(16)
	}
	for i := range signals {
		signals[i].Transducer = sf.str(80)
	}
	for i := range signals {
		signals[i].PhysicalDimension = sf.str(8)
	}
	for i := range signals {
		signals[i].PhysicalMin = sf.float(8)
	}
	for i := range signals {
		signals[i].PhysicalMax = sf.float(8)
	}
	for i := range signals {
		signals[i].DigitalMin = sf.int(8)
	}
	for i := range signals {
		signals[i].DigitalMax = sf.int(8)
	}
	for i := range signals {
		signals[i].Prefiltering = sf.str(80)
	}
	for i := range signals {
		signals[i].SamplesPerRecord = sf.int(8)
	}
	if sf.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, sf.err)
	}
	for _, s := range signals {
		if s.DigitalMax <= s.DigitalMin {
			return nil, fmt.Errorf("%w: channel %q digital range [%d,%d]", ErrFormat, s.Label, s.DigitalMin, s.DigitalMax)
		}
		if s.SamplesPerRecord <= 0 {
			return nil, fmt.Errorf("%w: channel %q has %d samples per record", ErrFormat, s.Label, s.SamplesPerRecord)
		}
	}
	hdr.Signals = signals
	return hdr, nil
}

// fieldReader walks fixed-width ASCII fields and keeps the first error.
type fieldReader struct {
	buf []byte
	off int
	err error
}

func (f *fieldReader) str(n int) string {
	s := strings.TrimSpace(string(f.buf[f.off : f.off+n]))
	f.off += n
	return s
}

func (f *fieldReader) int(n int) int {
	s := f.str(n)
	v, err := strconv.Atoi(s)
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("integer field %q at offset %d", s, f.off-n)
	}
	return v
}

func (f *fieldReader) float(n int) float64 {
	s := f.str(n)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("numeric field %q at offset %d", s, f.off-n)
	}
	return v
}
