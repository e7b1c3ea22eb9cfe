// Package imagehash computes 64-bit perceptual hashes of snapshots and
// provides the Hamming-distance similarity predicate used by the change gate
// and detection grouping. The average hash is the default; difference,
// perceptual (DCT) and wavelet variants are selectable. Hashes are rendered
// as 16 hex characters so they can be stored directly on the camera and
// detection rows.
package imagehash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"os"
	"sort"
	"strconv"

	"github.com/tphakala/pestguard-go/internal/errors"
)

// Algorithm selects the hash function.
type Algorithm string

const (
	// AlgorithmAverage thresholds an 8x8 grayscale grid against its mean.
	AlgorithmAverage Algorithm = "average"
	// AlgorithmDifference encodes the horizontal gradient of a 9x8 grid.
	AlgorithmDifference Algorithm = "difference"
	// AlgorithmPerceptual thresholds the low-frequency DCT coefficients of a
	// 32x32 grid against their median.
	AlgorithmPerceptual Algorithm = "perceptual"
	// AlgorithmWavelet thresholds a Haar reduction to 8x8 against its median.
	AlgorithmWavelet Algorithm = "wavelet"
)

// DefaultSimilarityThreshold is the Hamming distance at or below which two
// hashes count as similar.
const DefaultSimilarityThreshold = 8

// HashBytes computes the hash of an encoded image using the default
// average-hash algorithm.
func HashBytes(data []byte) (string, error) {
	return HashBytesWith(data, AlgorithmAverage)
}

// HashBytesWith computes the hash of an encoded image with the given
// algorithm. Malformed input yields an empty string and an error.
func HashBytesWith(data []byte, algorithm Algorithm) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.New(err).
			Component("imagehash").
			Category(errors.CategoryImageDecode).
			Context("operation", "decode_image").
			Context("size_bytes", len(data)).
			Build()
	}
	return hashImage(img, algorithm)
}

// HashFile computes the hash of an image file on disk.
func HashFile(path string) (string, error) {
	return HashFileWith(path, AlgorithmAverage)
}

// HashFileWith computes the hash of an image file with the given algorithm.
func HashFileWith(path string, algorithm Algorithm) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.New(err).
			Component("imagehash").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return HashBytesWith(data, algorithm)
}

func hashImage(img image.Image, algorithm Algorithm) (string, error) {
	switch algorithm {
	case AlgorithmAverage, "":
		return averageHash(img), nil
	case AlgorithmDifference:
		return differenceHash(img), nil
	case AlgorithmPerceptual:
		return perceptualHash(img), nil
	case AlgorithmWavelet:
		return waveletHash(img), nil
	default:
		return "", errors.Newf("unknown hash algorithm %q", algorithm).
			Component("imagehash").
			Category(errors.CategoryValidation).
			Build()
	}
}

// averageHash reduces the image to an 8x8 grayscale grid and sets one bit per
// cell above the grid mean.
func averageHash(img image.Image) string {
	grid := grayGrid(img, 8, 8)

	var sum float64
	for _, v := range grid {
		sum += v
	}
	mean := sum / float64(len(grid))

	var h uint64
	for i, v := range grid {
		if v > mean {
			h |= 1 << uint(63-i)
		}
	}
	return formatHash(h)
}

// differenceHash reduces the image to a 9x8 grid and sets one bit per
// horizontally adjacent pair whose left cell is brighter.
func differenceHash(img image.Image) string {
	grid := grayGrid(img, 9, 8)

	var h uint64
	i := 0
	for y := range 8 {
		for x := range 8 {
			left := grid[y*9+x]
			right := grid[y*9+x+1]
			if left > right {
				h |= 1 << uint(63-i)
			}
			i++
		}
	}
	return formatHash(h)
}

// perceptualHash applies a 2D DCT to a 32x32 grid and thresholds the top-left
// 8x8 coefficient block, excluding the DC term, against its median.
func perceptualHash(img image.Image) string {
	grid := grayGrid(img, 32, 32)
	coeffs := dct2d(grid, 32)

	// Top-left 8x8 block holds the lowest frequencies.
	block := make([]float64, 0, 64)
	for y := range 8 {
		for x := range 8 {
			block = append(block, coeffs[y*32+x])
		}
	}
	med := medianExcludingFirst(block)

	var h uint64
	for i, v := range block {
		if i == 0 {
			continue // DC coefficient carries only overall brightness
		}
		if v > med {
			h |= 1 << uint(63-i)
		}
	}
	return formatHash(h)
}

// waveletHash performs Haar average reductions down to an 8x8 grid and
// thresholds against the median.
func waveletHash(img image.Image) string {
	grid := grayGrid(img, 32, 32)
	size := 32
	for size > 8 {
		grid = haarReduce(grid, size)
		size /= 2
	}

	sorted := append([]float64(nil), grid...)
	sort.Float64s(sorted)
	med := sorted[len(sorted)/2]

	var h uint64
	for i, v := range grid {
		if v > med {
			h |= 1 << uint(63-i)
		}
	}
	return formatHash(h)
}

// grayGrid box-averages the image into a w*h grayscale grid using the
// Rec.601 luma weights.
func grayGrid(img image.Image, w, h int) []float64 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	grid := make([]float64, w*h)

	for gy := range h {
		y0 := bounds.Min.Y + gy*srcH/h
		y1 := bounds.Min.Y + (gy+1)*srcH/h
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := range w {
			x0 := bounds.Min.X + gx*srcW/w
			x1 := bounds.Min.X + (gx+1)*srcW/w
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
				}
			}
			grid[gy*w+gx] = sum / float64((y1-y0)*(x1-x0))
		}
	}
	return grid
}

// dct2d computes a separable 2D DCT-II over a size*size grid.
func dct2d(grid []float64, size int) []float64 {
	rows := make([]float64, size*size)
	for y := range size {
		dct1d(grid[y*size:(y+1)*size], rows[y*size:(y+1)*size])
	}

	out := make([]float64, size*size)
	col := make([]float64, size)
	res := make([]float64, size)
	for x := range size {
		for y := range size {
			col[y] = rows[y*size+x]
		}
		dct1d(col, res)
		for y := range size {
			out[y*size+x] = res[y]
		}
	}
	return out
}

func dct1d(in, out []float64) {
	n := len(in)
	for k := range n {
		var sum float64
		for i := range n {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		out[k] = sum
	}
}

// haarReduce halves a size*size grid by averaging 2x2 blocks, the
// approximation band of one Haar decomposition level.
func haarReduce(grid []float64, size int) []float64 {
	half := size / 2
	out := make([]float64, half*half)
	for y := range half {
		for x := range half {
			a := grid[(2*y)*size+2*x]
			b := grid[(2*y)*size+2*x+1]
			c := grid[(2*y+1)*size+2*x]
			d := grid[(2*y+1)*size+2*x+1]
			out[y*half+x] = (a + b + c + d) / 4
		}
	}
	return out
}

// medianExcludingFirst returns the median of values[1:], the threshold used
// by the perceptual hash.
func medianExcludingFirst(values []float64) float64 {
	sorted := append([]float64(nil), values[1:]...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// Distance returns the Hamming distance between two 16-hex hashes.
func Distance(a, b string) (int, error) {
	ha, err := parseHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := parseHash(b)
	if err != nil {
		return 0, err
	}
	return bits.OnesCount64(ha ^ hb), nil
}

// Similar reports whether the Hamming distance between two hashes is at or
// below the threshold. Malformed hashes are never similar.
func Similar(a, b string, threshold int) bool {
	d, err := Distance(a, b)
	if err != nil {
		return false
	}
	return d <= threshold
}

func parseHash(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, errors.Newf("hash %q is not 16 hex characters", s).
			Component("imagehash").
			Category(errors.CategoryValidation).
			Build()
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.New(err).
			Component("imagehash").
			Category(errors.CategoryValidation).
			Context("hash", s).
			Build()
	}
	return v, nil
}

// GroupHashes partitions hashes into similarity groups with a single greedy
// pass: each hash joins the first existing group whose representative is
// similar, otherwise it starts a new group. The pass is deliberately not a
// transitive closure, so clusters that drift gradually across the threshold
// stay separate. Returned groups hold indexes into the input slice.
func GroupHashes(hashes []string, threshold int) [][]int {
	var groups [][]int
	var representatives []string

	for i, h := range hashes {
		placed := false
		for g, rep := range representatives {
			if Similar(h, rep, threshold) {
				groups[g] = append(groups[g], i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
			representatives = append(representatives, h)
		}
	}
	return groups
}
