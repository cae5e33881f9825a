package garch

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// sqrt2OverPi is E|z| for a standard normal innovation.
var sqrt2OverPi = math.Sqrt(2 / math.Pi)

// maxLogVariance caps EGARCH log variances before exponentiation.
const maxLogVariance = 700.0

// varianceProcess filters residuals into a conditional variance path. A
// process owns scratch buffers and must not be shared between goroutines.
type varianceProcess interface {
	names() []string
	// start returns starting values and scales given the residual variance.
	start(variance float64) (values, scales []float64)
	feasible(theta []float64) bool
	// filter writes σ²_t into sigma2 and reports false on a non-positive or
	// non-finite variance.
	filter(theta, eps []float64, backcast float64, sigma2 []float64) bool
}

func newVarianceProcess(c Candidate, T, truncation int) (varianceProcess, error) {
	switch c.Volatility {
	case GARCH:
		return &garchProcess{p: c.P, o: c.O, q: c.Q}, nil
	case ARCH:
		return &garchProcess{p: c.P}, nil
	case EGARCH:
		return &egarchProcess{p: c.P, o: c.O, q: c.Q, logSigma2: make([]float64, T)}, nil
	case APARCH:
		return &aparchProcess{p: c.P, o: c.O, q: c.Q, sigmaDelta: make([]float64, T)}, nil
	case FIGARCH:
		if truncation <= 0 {
			truncation = 1000
		}
		return &figarchProcess{
			phi:    c.P > 0,
			beta:   c.Q > 0,
			trunc:  truncation,
			lambda: make([]float64, truncation),
			tail:   make([]float64, truncation+1),
			rev:    make([]float64, T),
		}, nil
	case HARCH:
		return &harchProcess{lags: c.P, prefix: make([]float64, T+1)}, nil
	}
	return nil, fmt.Errorf("%w: unknown volatility family %q", ErrInvalidConfiguration, c.Volatility)
}

func indexedNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s[%d]", prefix, i+1)
	}
	return names
}

func spread(total float64, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = total / float64(n)
	}
	return v
}

// garchProcess is the GJR-GARCH(p, o, q) variance:
// σ²_t = ω + Σα_i ε²_{t-i} + Σγ_j ε²_{t-j}·1[ε_{t-j}<0] + Σβ_k σ²_{t-k}.
type garchProcess struct {
	p, o, q int
}

func (g *garchProcess) names() []string {
	names := []string{"omega"}
	names = append(names, indexedNames("alpha", g.p)...)
	names = append(names, indexedNames("gamma", g.o)...)
	return append(names, indexedNames("beta", g.q)...)
}

func (g *garchProcess) start(variance float64) ([]float64, []float64) {
	var alpha, gamma, beta float64
	if g.p > 0 {
		alpha = 0.1
	}
	if g.o > 0 {
		gamma = 0.1
	}
	if g.q > 0 {
		beta = 0.8
	} else {
		alpha = 0.3
	}
	persistence := alpha + 0.5*gamma + beta
	values := []float64{variance * (1 - persistence)}
	values = append(values, spread(alpha, g.p)...)
	values = append(values, spread(gamma, g.o)...)
	values = append(values, spread(beta, g.q)...)

	scales := make([]float64, len(values))
	for i, v := range values {
		scales[i] = math.Max(math.Abs(v), 0.05)
	}
	return values, scales
}

func (g *garchProcess) feasible(theta []float64) bool {
	if !(theta[0] > 0) {
		return false
	}
	alpha := theta[1 : 1+g.p]
	gamma := theta[1+g.p : 1+g.p+g.o]
	beta := theta[1+g.p+g.o:]
	persistence := 0.0
	for _, a := range alpha {
		if a < 0 {
			return false
		}
		persistence += a
	}
	for j, c := range gamma {
		a := 0.0
		if j < len(alpha) {
			a = alpha[j]
		}
		if a+c < 0 {
			return false
		}
		persistence += 0.5 * c
	}
	for _, b := range beta {
		if b < 0 {
			return false
		}
		persistence += b
	}
	return persistence < 1
}

func (g *garchProcess) filter(theta, eps []float64, backcast float64, sigma2 []float64) bool {
	omega := theta[0]
	alpha := theta[1 : 1+g.p]
	gamma := theta[1+g.p : 1+g.p+g.o]
	beta := theta[1+g.p+g.o:]
	for t := range eps {
		s := omega
		for i, a := range alpha {
			if lag := t - i - 1; lag < 0 {
				s += a * backcast
			} else {
				s += a * eps[lag] * eps[lag]
			}
		}
		for j, c := range gamma {
			if lag := t - j - 1; lag < 0 {
				s += 0.5 * c * backcast
			} else if eps[lag] < 0 {
				s += c * eps[lag] * eps[lag]
			}
		}
		for k, b := range beta {
			if lag := t - k - 1; lag < 0 {
				s += b * backcast
			} else {
				s += b * sigma2[lag]
			}
		}
		if !(s > 0) || math.IsInf(s, 0) {
			return false
		}
		sigma2[t] = s
	}
	return true
}

// egarchProcess is EGARCH(p, o, q) on the log variance:
// ln σ²_t = ω + Σα_i(|z_{t-i}| - √(2/π)) + Σγ_j z_{t-j} + Σβ_k ln σ²_{t-k}.
type egarchProcess struct {
	p, o, q   int
	logSigma2 []float64
}

func (g *egarchProcess) names() []string {
	names := []string{"omega"}
	names = append(names, indexedNames("alpha", g.p)...)
	names = append(names, indexedNames("gamma", g.o)...)
	return append(names, indexedNames("beta", g.q)...)
}

func (g *egarchProcess) start(variance float64) ([]float64, []float64) {
	beta := 0.0
	if g.q > 0 {
		beta = 0.95
	}
	values := []float64{math.Log(variance) * (1 - beta)}
	values = append(values, spread(0.1, g.p)...)
	values = append(values, make([]float64, g.o)...)
	values = append(values, spread(beta, g.q)...)

	scales := make([]float64, len(values))
	for i, v := range values {
		scales[i] = math.Max(math.Abs(v), 0.05)
	}
	return values, scales
}

func (g *egarchProcess) feasible(theta []float64) bool {
	var sum float64
	for _, b := range theta[1+g.p+g.o:] {
		sum += math.Abs(b)
	}
	return sum < 1
}

func (g *egarchProcess) filter(theta, eps []float64, backcast float64, sigma2 []float64) bool {
	omega := theta[0]
	alpha := theta[1 : 1+g.p]
	gamma := theta[1+g.p : 1+g.p+g.o]
	beta := theta[1+g.p+g.o:]
	logBackcast := math.Log(backcast)
	for t := range eps {
		s := omega
		for i, a := range alpha {
			if lag := t - i - 1; lag >= 0 {
				z := eps[lag] / math.Sqrt(sigma2[lag])
				s += a * (math.Abs(z) - sqrt2OverPi)
			}
		}
		for j, c := range gamma {
			if lag := t - j - 1; lag >= 0 {
				s += c * eps[lag] / math.Sqrt(sigma2[lag])
			}
		}
		for k, b := range beta {
			if lag := t - k - 1; lag < 0 {
				s += b * logBackcast
			} else {
				s += b * g.logSigma2[lag]
			}
		}
		if math.IsNaN(s) || s > maxLogVariance || s < -maxLogVariance {
			return false
		}
		g.logSigma2[t] = s
		sigma2[t] = math.Exp(s)
	}
	return true
}

// aparchProcess is the asymmetric power ARCH:
// σ^δ_t = ω + Σα_i(|ε_{t-i}| - γ_i ε_{t-i})^δ + Σβ_k σ^δ_{t-k}, with γ_i for i ≤ o.
type aparchProcess struct {
	p, o, q    int
	sigmaDelta []float64
}

func (g *aparchProcess) names() []string {
	names := []string{"omega"}
	names = append(names, indexedNames("alpha", g.p)...)
	names = append(names, indexedNames("gamma", g.o)...)
	names = append(names, indexedNames("beta", g.q)...)
	return append(names, "delta")
}

func (g *aparchProcess) start(variance float64) ([]float64, []float64) {
	const delta = 1.5
	beta := 0.0
	if g.q > 0 {
		beta = 0.8
	}
	values := []float64{math.Pow(variance, delta/2) * (1 - 0.1 - beta)}
	values = append(values, spread(0.1, g.p)...)
	values = append(values, make([]float64, g.o)...)
	values = append(values, spread(beta, g.q)...)
	values = append(values, delta)

	scales := make([]float64, len(values))
	for i, v := range values {
		scales[i] = math.Max(math.Abs(v), 0.05)
	}
	return values, scales
}

func (g *aparchProcess) feasible(theta []float64) bool {
	if !(theta[0] > 0) {
		return false
	}
	alpha := theta[1 : 1+g.p]
	gamma := theta[1+g.p : 1+g.p+g.o]
	beta := theta[1+g.p+g.o : 1+g.p+g.o+g.q]
	delta := theta[len(theta)-1]
	if !(delta > 0.05 && delta < 4) {
		return false
	}
	persistence := 0.0
	for _, a := range alpha {
		if a < 0 {
			return false
		}
		persistence += a
	}
	for _, c := range gamma {
		if !(c > -1 && c < 1) {
			return false
		}
	}
	for _, b := range beta {
		if b < 0 {
			return false
		}
		persistence += b
	}
	return persistence < 1
}

func (g *aparchProcess) filter(theta, eps []float64, backcast float64, sigma2 []float64) bool {
	omega := theta[0]
	alpha := theta[1 : 1+g.p]
	gamma := theta[1+g.p : 1+g.p+g.o]
	beta := theta[1+g.p+g.o : 1+g.p+g.o+g.q]
	delta := theta[len(theta)-1]
	backcastDelta := math.Pow(backcast, delta/2)
	for t := range eps {
		s := omega
		for i, a := range alpha {
			lag := t - i - 1
			if lag < 0 {
				s += a * backcastDelta
				continue
			}
			c := 0.0
			if i < len(gamma) {
				c = gamma[i]
			}
			s += a * math.Pow(math.Abs(eps[lag])-c*eps[lag], delta)
		}
		for k, b := range beta {
			if lag := t - k - 1; lag < 0 {
				s += b * backcastDelta
			} else {
				s += b * g.sigmaDelta[lag]
			}
		}
		if !(s > 0) || math.IsInf(s, 0) {
			return false
		}
		g.sigmaDelta[t] = s
		sigma2[t] = math.Pow(s, 2/delta)
		if !(sigma2[t] > 0) || math.IsInf(sigma2[t], 0) {
			return false
		}
	}
	return true
}

// figarchProcess is FIGARCH(p, d, q) with p, q ∈ {0, 1}, evaluated through
// its ARCH(∞) representation truncated at trunc lags:
// σ²_t = ω/(1-β) + Σ_k λ_k ε²_{t-k}.
type figarchProcess struct {
	phi, beta bool
	trunc     int
	lambda    []float64
	tail      []float64 // tail[k] = Σ_{j≥k} λ_j
	// rev holds ε² in reverse time order so that the lags of every t form
	// one contiguous window aligned with lambda.
	rev []float64
}

func (g *figarchProcess) names() []string {
	names := []string{"omega"}
	if g.phi {
		names = append(names, "phi")
	}
	names = append(names, "d")
	if g.beta {
		names = append(names, "beta")
	}
	return names
}

func (g *figarchProcess) unpack(theta []float64) (omega, phi, d, beta float64) {
	i := 1
	omega = theta[0]
	if g.phi {
		phi = theta[i]
		i++
	}
	d = theta[i]
	i++
	if g.beta {
		beta = theta[i]
	}
	return omega, phi, d, beta
}

func (g *figarchProcess) start(variance float64) ([]float64, []float64) {
	values := []float64{variance * 0.1}
	if g.phi {
		values = append(values, 0.2)
	}
	values = append(values, 0.5)
	if g.beta {
		values = append(values, 0.5)
	}
	scales := make([]float64, len(values))
	for i, v := range values {
		scales[i] = math.Max(math.Abs(v), 0.05)
	}
	return values, scales
}

func (g *figarchProcess) feasible(theta []float64) bool {
	omega, phi, d, beta := g.unpack(theta)
	return omega > 0 &&
		d >= 0 && d <= 1 &&
		phi >= 0 && phi <= (1-d)/2 &&
		beta >= 0 && beta <= d+phi && beta < 1
}

func (g *figarchProcess) weights(phi, d, beta float64) {
	delta := d
	lambda := phi - beta + d
	g.lambda[0] = lambda
	for k := 2; k <= g.trunc; k++ {
		prevDelta := delta
		delta = (float64(k) - 1 - d) / float64(k) * prevDelta
		lambda = beta*lambda + delta - phi*prevDelta
		g.lambda[k-1] = lambda
	}
	g.tail[g.trunc] = 0
	for k := g.trunc - 1; k >= 0; k-- {
		g.tail[k] = g.tail[k+1] + g.lambda[k]
	}
}

func (g *figarchProcess) filter(theta, eps []float64, backcast float64, sigma2 []float64) bool {
	omega, phi, d, beta := g.unpack(theta)
	g.weights(phi, d, beta)
	base := omega / (1 - beta)
	T := len(eps)
	if cap(g.rev) < T {
		g.rev = make([]float64, T)
	}
	g.rev = g.rev[:T]
	for t, e := range eps {
		g.rev[T-1-t] = e * e
	}
	for t := range eps {
		n := t
		if n > g.trunc {
			n = g.trunc
		}
		// rev[T-t+k] = ε²_{t-k-1}
		s := base + floats.Dot(g.lambda[:n], g.rev[T-t:T-t+n])
		// lags reaching before the sample use the backcast
		s += g.tail[n] * backcast
		if !(s > 0) || math.IsInf(s, 0) {
			return false
		}
		sigma2[t] = s
	}
	return true
}

// harchProcess is the heterogeneous ARCH with averaging horizons 1..lags:
// σ²_t = ω + Σ_i α_i (mean(ε_{t-i..t-1}))².
type harchProcess struct {
	lags   int
	prefix []float64
}

func (g *harchProcess) names() []string {
	return append([]string{"omega"}, indexedNames("alpha", g.lags)...)
}

func (g *harchProcess) start(variance float64) ([]float64, []float64) {
	values := append([]float64{variance * 0.1}, spread(0.9, g.lags)...)
	scales := make([]float64, len(values))
	for i, v := range values {
		scales[i] = math.Max(math.Abs(v), 0.05)
	}
	return values, scales
}

func (g *harchProcess) feasible(theta []float64) bool {
	if !(theta[0] > 0) {
		return false
	}
	var sum float64
	for _, a := range theta[1:] {
		if a < 0 {
			return false
		}
		sum += a
	}
	return sum < 1
}

func (g *harchProcess) filter(theta, eps []float64, backcast float64, sigma2 []float64) bool {
	g.prefix[0] = 0
	for t, e := range eps {
		g.prefix[t+1] = g.prefix[t] + e
	}
	omega := theta[0]
	alpha := theta[1:]
	for t := range eps {
		s := omega
		for i, a := range alpha {
			horizon := i + 1
			if t < horizon {
				s += a * backcast
				continue
			}
			m := (g.prefix[t] - g.prefix[t-horizon]) / float64(horizon)
			s += a * m * m
		}
		if !(s > 0) || math.IsInf(s, 0) {
			return false
		}
		sigma2[t] = s
	}
	return true
}
