package regression

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// rankTolerance is the smallest singular value, relative to the largest,
// that still counts toward the rank of a column-equilibrated design matrix.
const rankTolerance = 1e-10

// errSingular is returned by leastSquares when the design is not of full
// column rank; callers convert it into a RankDeficientError naming the model.
type errSingular struct {
	rank int
}

func (e *errSingular) Error() string { return "design matrix is rank deficient" }

// olsFit holds the raw output of one least-squares solve
type olsFit struct {
	n, k   int
	beta   []float64
	xtxInv *mat.SymDense // (XᵀX)⁻¹
	rss    float64       // residual sum of squares
	tss    float64       // total sum of squares about the mean of y
}

// rSquared returns 1 - RSS/TSS, NaN for a constant outcome
func (f *olsFit) rSquared() float64 {
	if f.tss == 0 {
		return math.NaN()
	}
	return 1 - f.rss/f.tss
}

// columnRank counts singular values above rankTolerance·σ_max
func columnRank(x mat.Matrix) int {
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDNone); !ok {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return 0
	}
	rank := 0
	for _, s := range values {
		if s > values[0]*rankTolerance {
			rank++
		}
	}
	return rank
}

// equilibrate scales every column of x to unit Euclidean norm and returns
// the scaled copy with the factors applied. All-zero columns keep factor 1.
func equilibrate(x *mat.Dense) (*mat.Dense, []float64) {
	n, k := x.Dims()
	scaled := mat.DenseCopyOf(x)
	factors := make([]float64, k)
	for j := 0; j < k; j++ {
		norm := mat.Norm(x.ColView(j), 2)
		factors[j] = 1
		if norm > 0 {
			factors[j] = 1 / norm
		}
		for i := 0; i < n; i++ {
			scaled.Set(i, j, x.At(i, j)*factors[j])
		}
	}
	return scaled, factors
}

// leastSquares solves y = Xβ by Householder QR after checking that X has
// full column rank. Rank check and solve run on the column-equilibrated
// design so the outcome does not depend on the units of each predictor;
// β and (XᵀX)⁻¹ are mapped back to the original scale. The caller
// guarantees n > k.
func leastSquares(x *mat.Dense, y []float64) (*olsFit, error) {
	n, k := x.Dims()
	scaled, d := equilibrate(x)
	if rank := columnRank(scaled); rank < k {
		return nil, &errSingular{rank: rank}
	}

	yVec := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(scaled)
	var betaScaled mat.VecDense
	if err := qr.SolveVecTo(&betaScaled, false, yVec); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, &errSingular{rank: k - 1}
		}
		return nil, err
	}

	// X̃ᵀX̃ = RᵀR, so (X̃ᵀX̃)⁻¹ = R⁻¹R⁻ᵀ
	var full mat.Dense
	qr.RTo(&full)
	r := mat.NewTriDense(k, mat.Upper, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			r.SetTri(i, j, full.At(i, j))
		}
	}
	var rInv mat.TriDense
	if err := rInv.InverseTri(r); err != nil {
		return nil, &errSingular{rank: k - 1}
	}
	var scaledInv mat.SymDense
	scaledInv.SymOuterK(1, &rInv)

	// (XᵀX)⁻¹ = D (X̃ᵀX̃)⁻¹ D with D = diag(d)
	inv := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			inv.SetSym(i, j, d[i]*scaledInv.At(i, j)*d[j])
		}
	}

	fit := &olsFit{n: n, k: k, beta: make([]float64, k), xtxInv: inv}
	for j := 0; j < k; j++ {
		fit.beta[j] = d[j] * betaScaled.AtVec(j)
	}

	var fitted mat.VecDense
	fitted.MulVec(scaled, &betaScaled)

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)

	for i, v := range y {
		res := v - fitted.AtVec(i)
		fit.rss += res * res
		dev := v - mean
		fit.tss += dev * dev
	}
	return fit, nil
}

// designMatrix builds [1, x_1, ..., x_p] from column-major predictor data
func designMatrix(columns [][]float64, n int) *mat.Dense {
	k := len(columns) + 1
	data := make([]float64, n*k)
	for i := 0; i < n; i++ {
		data[i*k] = 1
		for j, col := range columns {
			data[i*k+j+1] = col[i]
		}
	}
	return mat.NewDense(n, k, data)
}
