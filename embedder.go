package main

import (
	"fmt"
	"math/rand"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// The embedder moves fields in and out of latent space.
//
// ENCODE (field -> latent sequence):
//   1. Patchify: cut the grid into patch_num tiles per axis, each tile of
//      r = x_num / patch_num points per axis, flattened with its channels
//      into a patch_dim vector.
//        2D: (t, x, x, c) -> (t, p*p, r*r*c)
//        1D: (t, x, c)    -> (t, p,   r*c)
//   2. pre_proj:  MLP patch_dim -> dim -> dim
//   3. + time_proj(t)         (MLP 1 -> dim -> dim, broadcast over patches)
//   4. + patch_position[p]    (learnt, one vector per patch slot)
//   5. Flatten time and patches: (t*patch_count, dim)
//
// DECODE (latent sequence -> field):
//   post_proj (MLP dim -> dim -> patch_dim), then the exact inverse of
//   Patchify.
//
// Sequence order is time-major: all patches of step 0, then step 1, and
// so on. The decoder's queries use the same order, which is what lets
// Decode reshape its output straight back into fields.
// ===========================================================================

// patchLayout describes how a 1D or 2D grid is tiled into patches.
type patchLayout struct {
	spatial  int // 1 or 2 spatial axes
	xNum     int
	patchNum int
	res      int // grid points per patch per axis
	dataDim  int
}

func newPatchLayout(spatial, xNum, patchNum, dataDim int) patchLayout {
	if patchNum <= 0 || xNum%patchNum != 0 {
		panic(fmt.Sprintf("embedder: x_num (%d) must be divisible by patch_num (%d)", xNum, patchNum))
	}
	return patchLayout{
		spatial:  spatial,
		xNum:     xNum,
		patchNum: patchNum,
		res:      xNum / patchNum,
		dataDim:  dataDim,
	}
}

// count returns the number of patches per time step.
func (l patchLayout) count() int {
	if l.spatial == 2 {
		return l.patchNum * l.patchNum
	}
	return l.patchNum
}

// patchDim returns the flattened length of one patch.
func (l patchLayout) patchDim() int {
	if l.spatial == 2 {
		return l.res * l.res * l.dataDim
	}
	return l.res * l.dataDim
}

// points returns grid points per time step.
func (l patchLayout) points() int {
	if l.spatial == 2 {
		return l.xNum * l.xNum
	}
	return l.xNum
}

// fieldShape returns the per-sample field shape for steps time steps.
func (l patchLayout) fieldShape(steps int) []int {
	if l.spatial == 2 {
		return []int{steps, l.xNum, l.xNum, l.dataDim}
	}
	return []int{steps, l.xNum, l.dataDim}
}

// locate maps grid point s (row-major within one step) to its patch index
// and the offset of its first channel inside that patch.
func (l patchLayout) locate(s int) (patch, offset int) {
	if l.spatial == 2 {
		y, x := s/l.xNum, s%l.xNum
		patch = (y/l.res)*l.patchNum + x/l.res
		offset = ((y%l.res)*l.res + x%l.res) * l.dataDim
		return patch, offset
	}
	return s / l.res, (s % l.res) * l.dataDim
}

// patchify maps a field (t, grid..., c) to (t, count, patchDim).
func (l patchLayout) patchify(field *Tensor) *Tensor {
	steps := field.shape[0]
	count, pd, pts := l.count(), l.patchDim(), l.points()

	out := NewTensor(steps, count, pd)
	for t := 0; t < steps; t++ {
		src := field.data[t*pts*l.dataDim:]
		dst := out.data[t*count*pd:]
		for s := 0; s < pts; s++ {
			patch, offset := l.locate(s)
			copy(dst[patch*pd+offset:patch*pd+offset+l.dataDim], src[s*l.dataDim:(s+1)*l.dataDim])
		}
	}
	return out
}

// unpatchify is the inverse of patchify: (t, count, patchDim) -> (t, grid..., c).
func (l patchLayout) unpatchify(patches *Tensor) *Tensor {
	steps := patches.shape[0]
	count, pd, pts := l.count(), l.patchDim(), l.points()

	out := NewTensor(l.fieldShape(steps)...)
	for t := 0; t < steps; t++ {
		src := patches.data[t*count*pd:]
		dst := out.data[t*pts*l.dataDim:]
		for s := 0; s < pts; s++ {
			patch, offset := l.locate(s)
			copy(dst[s*l.dataDim:(s+1)*l.dataDim], src[patch*pd+offset:patch*pd+offset+l.dataDim])
		}
	}
	return out
}

// LinearEmbedder projects field patches plus time stamps into latent
// vectors and back.
type LinearEmbedder struct {
	dim    int
	layout patchLayout

	preProj        *MLP    // patchDim -> dim -> dim
	timeProj       *MLP    // 1 -> dim -> dim
	patchPositions *Tensor // (patchCount, dim)
	postProj       *MLP    // dim -> dim -> patchDim
}

// NewLinearEmbedder creates the embedder for 2D fields (t, x, x, c).
func NewLinearEmbedder(rng *rand.Rand, cfg EmbedderConfig, xNum, dataDim int) *LinearEmbedder {
	return newLinearEmbedder(rng, cfg, newPatchLayout(2, xNum, cfg.PatchNum, dataDim))
}

// NewLinearEmbedder1D creates the embedder for 1D fields (t, x, c).
func NewLinearEmbedder1D(rng *rand.Rand, cfg EmbedderConfig, xNum, dataDim int) *LinearEmbedder {
	return newLinearEmbedder(rng, cfg, newPatchLayout(1, xNum, cfg.PatchNum, dataDim))
}

func newLinearEmbedder(rng *rand.Rand, cfg EmbedderConfig, layout patchLayout) *LinearEmbedder {
	dim, pd := cfg.Dim, layout.patchDim()
	return &LinearEmbedder{
		dim:            dim,
		layout:         layout,
		preProj:        NewMLP(rng, pd, dim, dim, cfg.Activation),
		timeProj:       NewMLP(rng, 1, dim, dim, cfg.Activation),
		patchPositions: NewTensorRandN(rng, 0.02, layout.count(), dim),
		postProj:       NewMLP(rng, dim, dim, pd, cfg.Activation),
	}
}

// PatchCount returns the number of latent vectors per time step.
func (e *LinearEmbedder) PatchCount() int {
	return e.layout.count()
}

// SpatialDims returns 1 or 2.
func (e *LinearEmbedder) SpatialDims() int {
	return e.layout.spatial
}

// FieldShape returns the per-sample field shape for steps time steps.
func (e *LinearEmbedder) FieldShape(steps int) []int {
	return e.layout.fieldShape(steps)
}

// Encode maps one sample's field (t, grid..., c) and times (t, 1) to
// (t*patchCount, dim).
func (e *LinearEmbedder) Encode(field, times *Tensor) *Tensor {
	steps := field.shape[0]
	count := e.layout.count()

	x := e.preProj.Forward(e.layout.patchify(field)) // (t, count, dim)
	timeEmb := e.timeProj.Forward(times)             // (t, dim)

	out := NewTensor(steps*count, e.dim)
	for t := 0; t < steps; t++ {
		tRow := timeEmb.data[t*e.dim : (t+1)*e.dim]
		for p := 0; p < count; p++ {
			row := (t*count + p) * e.dim
			pRow := e.patchPositions.data[p*e.dim : (p+1)*e.dim]
			for j := 0; j < e.dim; j++ {
				out.data[row+j] = x.data[row+j] + tRow[j] + pRow[j]
			}
		}
	}
	return out
}

// Decode maps (outputLen*patchCount, dim) back to a field
// (outputLen, grid..., c).
func (e *LinearEmbedder) Decode(latent *Tensor) *Tensor {
	count := e.layout.count()
	if latent.shape[0]%count != 0 {
		panic(fmt.Sprintf("embedder: latent length %d is not a multiple of %d patches", latent.shape[0], count))
	}
	steps := latent.shape[0] / count

	patches := e.postProj.Forward(latent) // (steps*count, patchDim)
	return e.layout.unpatchify(patches.Reshape(steps, count, e.layout.patchDim()))
}

// NumParams returns the trainable parameter count.
func (e *LinearEmbedder) NumParams() int {
	return e.preProj.NumParams() + e.timeProj.NumParams() + e.patchPositions.Size() + e.postProj.NumParams()
}
