package bdf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// WriteFile encodes rec into a new file at path.
func WriteFile(path string, rec *Recording) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, rec); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes rec as BDF. Sample values are quantized to the 24-bit
// digital range of each signal and clamped to it. Header.Records is derived
// from the data when zero.
func Write(w io.Writer, rec *Recording) error {
	hdr := rec.Header
	ns := len(hdr.Signals)
	if ns == 0 || len(rec.Data) != ns {
		return fmt.Errorf("bdf: %d signals with %d data channels", ns, len(rec.Data))
	}
	if hdr.RecordDuration <= 0 {
		return fmt.Errorf("bdf: record duration %v", hdr.RecordDuration)
	}
	records := hdr.Records
	for i, s := range hdr.Signals {
		if s.SamplesPerRecord <= 0 || len(rec.Data[i])%s.SamplesPerRecord != 0 {
			return fmt.Errorf("bdf: channel %q has %d samples, not a multiple of %d", s.Label, len(rec.Data[i]), s.SamplesPerRecord)
		}
		n := len(rec.Data[i]) / s.SamplesPerRecord
		if records == 0 {
			records = n
		}
		if n != records {
			return fmt.Errorf("bdf: channel %q spans %d records, want %d", s.Label, n, records)
		}
	}

	var b strings.Builder
	b.WriteString(versionMagic)
	b.WriteString(field(hdr.PatientID, 80))
	b.WriteString(field(hdr.RecordingID, 80))
	if hdr.Start.IsZero() {
		b.WriteString(field("01.01.00", 8))
		b.WriteString(field("00.00.00", 8))
	} else {
		b.WriteString(field(hdr.Start.Format("02.01.06"), 8))
		b.WriteString(field(hdr.Start.Format("15.04.05"), 8))
	}
	b.WriteString(field(strconv.Itoa(fixedHeaderSize+ns*signalHeaderSize), 8))
	b.WriteString(field(reserved24, 44))
	b.WriteString(field(strconv.Itoa(records), 8))
	b.WriteString(field(number(hdr.RecordDuration), 8))
	b.WriteString(field(strconv.Itoa(ns), 4))

	columns := []func(Signal) string{
		func(s Signal) string { return field(s.Label, 16) },
		func(s Signal) string { return field(s.Transducer, 80) },
		func(s Signal) string { return field(s.PhysicalDimension, 8) },
		func(s Signal) string { return field(number(s.PhysicalMin), 8) },
		func(s Signal) string { return field(number(s.PhysicalMax), 8) },
		func(s Signal) string { return field(strconv.Itoa(s.DigitalMin), 8) },
		func(s Signal) string { return field(strconv.Itoa(s.DigitalMax), 8) },
		func(s Signal) string { return field(s.Prefiltering, 80) },
		func(s Signal) string { return field(strconv.Itoa(s.SamplesPerRecord), 8) },
		func(Signal) string { return field("", 32) },
	}
	for _, col := range columns {
		for _, s := range hdr.Signals {
			b.WriteString(col(s))
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	var sample [3]byte
	for r := 0; r < records; r++ {
		for i, s := range hdr.Signals {
			gain := s.gain()
			scale := unitScale(s.PhysicalDimension)
			chunk := rec.Data[i][r*s.SamplesPerRecord : (r+1)*s.SamplesPerRecord]
			for _, v := range chunk {
				d := int(math.Round((v/scale-s.PhysicalMin)/gain)) + s.DigitalMin
				d = min(max(d, s.DigitalMin), s.DigitalMax)
				sample[0] = byte(d)
				sample[1] = byte(d >> 8)
				sample[2] = byte(d >> 16)
				if _, err := w.Write(sample[:]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func field(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// number formats v into at most 8 characters.
func number(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for prec := 6; len(s) > 8 && prec >= 0; prec-- {
		s = strconv.FormatFloat(v, 'f', prec, 64)
	}
	return s
}
