// Package bdf decodes BioSemi Data Format recordings.
//
// A BDF file is an EDF variant with 24-bit little-endian two's complement
// samples. The file starts with a 256 byte fixed header followed by 256
// bytes per signal, then a sequence of data records. Each data record holds,
// for every signal in header order, SamplesPerRecord consecutive samples.
//
// Samples are converted to physical units using the per-signal
// digital/physical ranges and, for voltage channels, rescaled to volts.
package bdf

import (
	"errors"
	"strings"
	"time"
)

const (
	fixedHeaderSize  = 256
	signalHeaderSize = 256
	bytesPerSample   = 3

	versionMagic = "\xffBIOSEMI"
	reserved24   = "24BIT"
)

// ErrFormat is returned for anything that cannot be decoded as BDF.
var ErrFormat = errors.New("bdf: malformed file")

// Header is the decoded fixed part of a BDF header.
type Header struct {
	PatientID      string
	RecordingID    string
	Start          time.Time
	Records        int
	RecordDuration float64 // seconds
	Signals        []Signal
}

// Signal describes one channel.
type Signal struct {
	Label             string
	Transducer        string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Prefiltering      string
	SamplesPerRecord  int
}

// SampleRate returns the channel sampling frequency in Hz.
func (s Signal) SampleRate(recordDuration float64) float64 {
	if recordDuration <= 0 {
		return 0
	}
	return float64(s.SamplesPerRecord) / recordDuration
}

func (s Signal) gain() float64 {
	return (s.PhysicalMax - s.PhysicalMin) / float64(s.DigitalMax-s.DigitalMin)
}

// Recording is a fully loaded BDF file. Data[i] holds every sample of
// Header.Signals[i], in volts for voltage channels and in the declared
// physical unit otherwise.
type Recording struct {
	Header Header
	Data   [][]float64
}

// Labels returns the channel labels in file order.
func (r *Recording) Labels() []string {
	out := make([]string, len(r.Header.Signals))
	for i, s := range r.Header.Signals {
		out[i] = s.Label
	}
	return out
}

// unitScale maps a physical dimension to its factor relative to volts.
// Non-voltage units are left as they are.
func unitScale(dim string) float64 {
	switch strings.TrimSpace(dim) {
	case "uV", "µV", "μV":
		return 1e-6
	case "mV":
		return 1e-3
	case "nV":
		return 1e-9
	default:
		return 1
	}
}
