package agent

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Adam constants match the usual Keras defaults.
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

type layer struct {
	W    *mat.Dense    // shape: [out][in]
	B    *mat.VecDense // shape: [out]
	relu bool
}

type adamState struct {
	mW, vW *mat.Dense
	mB, vB *mat.VecDense
}

// Network is a fully connected regressor with ReLU hidden layers and a
// linear output layer, trained on mean squared error with Adam.
type Network struct {
	sizes  []int
	layers []*layer
	lr     float64
	opt    []adamState
	t      int
}

// NewNetwork builds a network with the given layer sizes, input first.
// Weights are Glorot-uniform, biases zero.
func NewNetwork(sizes []int, lr float64, rng *rand.Rand) (*Network, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("network needs at least 2 layer sizes, got %d", len(sizes))
	}
	for _, s := range sizes {
		if s <= 0 {
			return nil, fmt.Errorf("layer sizes must be > 0, got %v", sizes)
		}
	}
	n := &Network{sizes: append([]int(nil), sizes...), lr: lr}
	for i := 0; i+1 < len(sizes); i++ {
		in, out := sizes[i], sizes[i+1]
		limit := math.Sqrt(6.0 / float64(in+out))
		data := make([]float64, out*in)
		for j := range data {
			data[j] = (rng.Float64()*2 - 1) * limit
		}
		n.layers = append(n.layers, &layer{
			W:    mat.NewDense(out, in, data),
			B:    mat.NewVecDense(out, nil),
			relu: i+2 < len(sizes),
		})
	}
	return n, nil
}

func (n *Network) Sizes() []int {
	return append([]int(nil), n.sizes...)
}

// forward returns the pre-activation and activation of every layer; acts[0]
// is the input.
func (n *Network) forward(x []float64) (zs, acts []*mat.VecDense) {
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	acts = append(acts, a)
	for _, l := range n.layers {
		r, _ := l.W.Dims()
		z := mat.NewVecDense(r, nil)
		z.MulVec(l.W, a)
		z.AddVec(z, l.B)
		next := mat.VecDenseCopyOf(z)
		if l.relu {
			for i := 0; i < r; i++ {
				if next.AtVec(i) < 0 {
					next.SetVec(i, 0)
				}
			}
		}
		zs = append(zs, z)
		acts = append(acts, next)
		a = next
	}
	return zs, acts
}

// Predict returns the output vector for input x.
func (n *Network) Predict(x []float64) []float64 {
	_, acts := n.forward(x)
	out := acts[len(acts)-1]
	return append([]float64(nil), out.RawVector().Data...)
}

// Fit performs one Adam step on the squared error between Predict(x) and
// target, returning the loss before the update.
func (n *Network) Fit(x, target []float64) float64 {
	zs, acts := n.forward(x)
	out := acts[len(acts)-1]
	k := out.Len()

	delta := mat.NewVecDense(k, nil)
	var loss float64
	for i := 0; i < k; i++ {
		diff := out.AtVec(i) - target[i]
		loss += diff * diff
		delta.SetVec(i, 2*diff/float64(k))
	}
	loss /= float64(k)

	if n.opt == nil {
		n.opt = make([]adamState, len(n.layers))
		for i, l := range n.layers {
			r, c := l.W.Dims()
			n.opt[i] = adamState{
				mW: mat.NewDense(r, c, nil), vW: mat.NewDense(r, c, nil),
				mB: mat.NewVecDense(r, nil), vB: mat.NewVecDense(r, nil),
			}
		}
	}
	n.t++

	gradsW := make([]*mat.Dense, len(n.layers))
	gradsB := make([]*mat.VecDense, len(n.layers))
	for li := len(n.layers) - 1; li >= 0; li-- {
		l := n.layers[li]
		r, c := l.W.Dims()
		gw := mat.NewDense(r, c, nil)
		gw.Outer(1, delta, acts[li])
		gradsW[li] = gw
		gradsB[li] = mat.VecDenseCopyOf(delta)

		if li == 0 {
			break
		}
		prev := mat.NewVecDense(c, nil)
		prev.MulVec(l.W.T(), delta)
		if n.layers[li-1].relu {
			z := zs[li-1]
			for i := 0; i < c; i++ {
				if z.AtVec(i) <= 0 {
					prev.SetVec(i, 0)
				}
			}
		}
		delta = prev
	}

	c1 := 1 - math.Pow(adamBeta1, float64(n.t))
	c2 := 1 - math.Pow(adamBeta2, float64(n.t))
	for i, l := range n.layers {
		st := n.opt[i]
		adamUpdate(l.W.RawMatrix().Data, gradsW[i].RawMatrix().Data, st.mW.RawMatrix().Data, st.vW.RawMatrix().Data, n.lr, c1, c2)
		adamUpdate(l.B.RawVector().Data, gradsB[i].RawVector().Data, st.mB.RawVector().Data, st.vB.RawVector().Data, n.lr, c1, c2)
	}
	return loss
}

func adamUpdate(params, grads, m, v []float64, lr, c1, c2 float64) {
	for i, g := range grads {
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		mHat := m[i] / c1
		vHat := v[i] / c2
		params[i] -= lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
	}
}

// Blend moves every parameter toward src: p = tau*src + (1-tau)*p.
func (n *Network) Blend(src *Network, tau float64) error {
	if !sameShape(n, src) {
		return fmt.Errorf("cannot blend network %v into %v", src.sizes, n.sizes)
	}
	for i, l := range n.layers {
		s := src.layers[i]
		l.W.Apply(func(r, c int, v float64) float64 {
			return blend(tau, s.W.At(r, c), v)
		}, l.W)
		b := l.B.RawVector().Data
		for j, v := range s.B.RawVector().Data {
			b[j] = blend(tau, v, b[j])
		}
	}
	return nil
}

// CopyFrom overwrites the parameters with src's. Optimizer state is reset.
func (n *Network) CopyFrom(src *Network) error {
	if !sameShape(n, src) {
		return fmt.Errorf("cannot copy network %v into %v", src.sizes, n.sizes)
	}
	for i, l := range n.layers {
		l.W.Copy(src.layers[i].W)
		l.B.CopyVec(src.layers[i].B)
	}
	n.opt = nil
	n.t = 0
	return nil
}

// blend keeps the two products unfused so the result is reproducible.
func blend(tau, src, dst float64) float64 {
	return float64(tau*src) + float64((1-tau)*dst)
}

func sameShape(a, b *Network) bool {
	if len(a.sizes) != len(b.sizes) {
		return false
	}
	for i := range a.sizes {
		if a.sizes[i] != b.sizes[i] {
			return false
		}
	}
	return true
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}
