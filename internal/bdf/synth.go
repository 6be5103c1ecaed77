package bdf

import (
	"math"
	"time"
)

// BioSemi amplifier ranges for EEG and the Status channel.
const (
	eegPhysicalMin = -262144
	eegPhysicalMax = 262143
	digitalMin     = -8388608
	digitalMax     = 8388607
)

// Burst is a sinusoidal artifact added to one channel.
type Burst struct {
	Channel   int     // index into SynthOptions.Channels
	Start     float64 // seconds
	Duration  float64 // seconds
	Amplitude float64 // volts
	Frequency float64 // Hz
}

// SynthOptions describes a synthetic recording. Channels get a sine of
// Frequency Hz whose amplitude grows by half of Amplitude per channel index
// and whose phase advances by 0.7 rad per channel. Extra channels are
// appended after them and carry zeros.
type SynthOptions struct {
	Channels   []string
	Extra      []string
	SampleRate int
	Seconds    int
	Amplitude  float64 // volts
	Frequency  float64 // Hz
	Bursts     []Burst
}

// Synthesize builds an in-memory recording with one-second data records.
func Synthesize(opts SynthOptions) *Recording {
	n := opts.SampleRate * opts.Seconds
	hdr := Header{
		PatientID:      "X X X X",
		RecordingID:    "Startdate X X X X",
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Records:        opts.Seconds,
		RecordDuration: 1,
	}
	var data [][]float64
	for c, label := range opts.Channels {
		hdr.Signals = append(hdr.Signals, eegSignal(label, opts.SampleRate))
		amp := opts.Amplitude * (1 + 0.5*float64(c))
		ch := make([]float64, n)
		for t := range ch {
			ch[t] = amp * math.Sin(2*math.Pi*opts.Frequency*float64(t)/float64(opts.SampleRate)+0.7*float64(c))
		}
		data = append(data, ch)
	}
	for _, b := range opts.Bursts {
		if b.Channel < 0 || b.Channel >= len(opts.Channels) {
			continue
		}
		from := int(math.Round(b.Start * float64(opts.SampleRate)))
		to := min(from+int(math.Round(b.Duration*float64(opts.SampleRate))), n)
		for t := max(from, 0); t < to; t++ {
			data[b.Channel][t] += b.Amplitude * math.Sin(2*math.Pi*b.Frequency*float64(t-from)/float64(opts.SampleRate))
		}
	}
	for _, label := range opts.Extra {
		s := eegSignal(label, opts.SampleRate)
		if label == "Status" {
			s.Transducer = "Triggers and Status"
			s.PhysicalDimension = "Boolean"
			s.PhysicalMin = digitalMin
			s.PhysicalMax = digitalMax
		}
		hdr.Signals = append(hdr.Signals, s)
		data = append(data, make([]float64, n))
	}
	return &Recording{Header: hdr, Data: data}
}

func eegSignal(label string, rate int) Signal {
	return Signal{
		Label:             label,
		Transducer:        "Active Electrode",
		PhysicalDimension: "uV",
		PhysicalMin:       eegPhysicalMin,
		PhysicalMax:       eegPhysicalMax,
		DigitalMin:        digitalMin,
		DigitalMax:        digitalMax,
		Prefiltering:      "HP:DC; LP:417 Hz",
		SamplesPerRecord:  rate,
	}
}
