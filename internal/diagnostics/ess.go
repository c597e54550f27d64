package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// EffectiveSampleSize estimates the number of independent draws in a set of
// chains with Geyer's initial positive sequence over the chain-averaged
// autocorrelation. Chains are truncated to the shortest length. Constant
// chains and chains shorter than four draws yield NaN.
func EffectiveSampleSize(chains [][]float64) float64 {
	m := len(chains)
	if m == 0 {
		return math.NaN()
	}
	n := len(chains[0])
	for _, c := range chains[1:] {
		n = min(n, len(c))
	}
	if n < 4 {
		return math.NaN()
	}

	rho := make([]float64, n)
	for _, c := range chains {
		acov := autocovariance(c[:n])
		if acov[0] == 0 {
			return math.NaN()
		}
		for t := range rho {
			rho[t] += acov[t] / acov[0] / float64(m)
		}
	}

	tau := -1.0
	for t := 0; t+1 < n; t += 2 {
		pair := rho[t] + rho[t+1]
		if pair <= 0 {
			break
		}
		tau += 2 * pair
	}
	return float64(m*n) / tau
}

// autocovariance returns the biased autocovariance of x at lags 0..n-1,
// computed through a zero-padded FFT.
func autocovariance(x []float64) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	size := 2 * n
	padded := make([]float64, size)
	for i, v := range x {
		padded[i] = v - mean
	}

	fft := fourier.NewFFT(size)
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		coeff[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	seq := fft.Sequence(nil, coeff)

	out := make([]float64, n)
	for t := range out {
		out[t] = seq[t] / float64(size) / float64(n)
	}
	return out
}
