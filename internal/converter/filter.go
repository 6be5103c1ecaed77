package converter

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// highPass is a linear-phase FIR high-pass applied forward and backward,
// which cancels the phase response and squares the magnitude response.
type highPass struct {
	taps []float64

	// FFT plan and filter spectrum, cached for the last padded length.
	n    int
	fft  *fourier.FFT
	freq []complex128
}

// newHighPass designs a Hamming-windowed sinc high-pass with its pass-band
// edge at lFreq. The transition band is min(max(lFreq/4, 2), lFreq) wide and
// centred below lFreq; the length is ceil(3.3*fs/tb) rounded up to odd.
func newHighPass(fs, lFreq float64) *highPass {
	tb := min(max(0.25*lFreq, 2), lFreq)
	n := int(math.Ceil(3.3 * fs / tb))
	if n%2 == 0 {
		n++
	}
	fc := (lFreq - tb/2) / fs
	mid := float64(n-1) / 2

	h := make([]float64, n)
	var sum float64
	for i := range h {
		x := float64(i) - mid
		var sinc float64
		if x == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		h[i] = sinc * w
		sum += h[i]
	}
	// Unit DC gain low-pass, then spectral inversion.
	for i := range h {
		h[i] = -h[i] / sum
	}
	h[n/2] += 1
	return &highPass{taps: h}
}

func (f *highPass) apply(x []float64) []float64 {
	y := f.filter(x)
	reverse(y)
	y = f.filter(y)
	reverse(y)
	return y
}

// filter convolves x with the taps and compensates the group delay so the
// output is aligned with the input. Edges are padded by point reflection,
// limited to the signal length and zero beyond it.
func (f *highPass) filter(x []float64) []float64 {
	nx := len(x)
	if nx == 0 {
		return x
	}
	nh := len(f.taps)
	edge := max(min(nh, nx)-1, 0)
	padded := padReflectLimited(x, edge)

	full := len(padded) + nh - 1
	f.plan(nextPow2(full))

	buf := make([]float64, f.n)
	copy(buf, padded)
	coeff := f.fft.Coefficients(nil, buf)
	for i := range coeff {
		coeff[i] *= f.freq[i]
	}
	conv := f.fft.Sequence(buf, coeff)

	scale := 1 / float64(f.n)
	delay := (nh - 1) / 2
	out := make([]float64, nx)
	for i := range out {
		out[i] = conv[i+edge+delay] * scale
	}
	return out
}

func (f *highPass) plan(n int) {
	if f.n == n {
		return
	}
	f.n = n
	f.fft = fourier.NewFFT(n)
	taps := make([]float64, n)
	copy(taps, f.taps)
	f.freq = f.fft.Coefficients(nil, taps)
}

func padReflectLimited(x []float64, edge int) []float64 {
	nx := len(x)
	out := make([]float64, nx+2*edge)
	copy(out[edge:], x)
	first, last := x[0], x[nx-1]
	for k := 1; k <= edge; k++ {
		if k < nx {
			out[edge-k] = 2*first - x[k]
			out[edge+nx-1+k] = 2*last - x[nx-1-k]
		}
	}
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
