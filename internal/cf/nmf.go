package cf

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// factorize runs multiplicative-update non-negative matrix factorization on
// R (n x m), producing W (n x f) and H (f x m) such that R ≈ W·H, W ≥ 0,
// H ≥ 0. seed fixes the initialization so identical inputs reproduce
// identical factors.
func factorize(r *mat.Dense, factors, epochs int, seed int64) (w, h *mat.Dense) {
	n, m := r.Dims()
	const eps = 1e-10

	rng := rand.New(rand.NewSource(seed))
	w = mat.NewDense(n, factors, nil)
	h = mat.NewDense(factors, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < factors; j++ {
			w.Set(i, j, rng.Float64()*0.5+0.01)
		}
	}
	for i := 0; i < factors; i++ {
		for j := 0; j < m; j++ {
			h.Set(i, j, rng.Float64()*0.5+0.01)
		}
	}

	numH := mat.NewDense(factors, m, nil)
	wtw := mat.NewDense(factors, factors, nil)
	denomH := mat.NewDense(factors, m, nil)
	quotH := mat.NewDense(factors, m, nil)

	numW := mat.NewDense(n, factors, nil)
	hht := mat.NewDense(factors, factors, nil)
	denomW := mat.NewDense(n, factors, nil)
	quotW := mat.NewDense(n, factors, nil)

	for epoch := 0; epoch < epochs; epoch++ {
		// H update: H *= (W^T R) / (W^T W H)
		numH.Mul(w.T(), r)
		wtw.Mul(w.T(), w)
		denomH.Mul(wtw, h)
		addEps(denomH, eps)
		quotH.DivElem(numH, denomH)
		h.MulElem(h, quotH)

		// W update: W *= (R H^T) / (W H H^T)
		numW.Mul(r, h.T())
		hht.Mul(h, h.T())
		denomW.Mul(w, hht)
		addEps(denomW, eps)
		quotW.DivElem(numW, denomW)
		w.MulElem(w, quotW)
	}

	return w, h
}

func addEps(m *mat.Dense, eps float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+eps)
		}
	}
}
