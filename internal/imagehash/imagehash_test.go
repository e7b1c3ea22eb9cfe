package imagehash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage renders a horizontal gradient with a bright square whose position
// varies by offset, so nearby offsets produce similar but not identical hashes.
func testImage(t *testing.T, offset int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			v := uint8(x * 4)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	for y := 8 + offset; y < 24+offset && y < 64; y++ {
		for x := 8 + offset; x < 24+offset && x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHashBytesProducesSixteenHex(t *testing.T) {
	t.Parallel()

	data := testImage(t, 0)
	for _, algorithm := range []Algorithm{AlgorithmAverage, AlgorithmDifference, AlgorithmPerceptual, AlgorithmWavelet} {
		h, err := HashBytesWith(data, algorithm)
		require.NoError(t, err, "algorithm %s", algorithm)
		assert.Len(t, h, 16, "algorithm %s", algorithm)
	}
}

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()

	data := testImage(t, 0)
	h1, err := HashBytes(data)
	require.NoError(t, err)
	h2, err := HashBytes(data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

// Hashing the persisted file must equal hashing the original bytes.
func TestHashSurvivesPersistAndReload(t *testing.T) {
	t.Parallel()

	data := testImage(t, 0)
	path := filepath.Join(t.TempDir(), "snapshot.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fromBytes, err := HashBytes(data)
	require.NoError(t, err)
	fromFile, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, fromBytes, fromFile)
}

func TestHashBytesRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	_, err := HashBytes([]byte("not an image"))
	require.Error(t, err)
}

func TestDistance(t *testing.T) {
	t.Parallel()

	d, err := Distance("0000000000000000", "0000000000000000")
	require.NoError(t, err)
	assert.Equal(t, 0, d)

	d, err = Distance("0000000000000000", "000000000000000f")
	require.NoError(t, err)
	assert.Equal(t, 4, d)

	d, err = Distance("ffffffffffffffff", "0000000000000000")
	require.NoError(t, err)
	assert.Equal(t, 64, d)

	_, err = Distance("short", "0000000000000000")
	require.Error(t, err)
}

func TestSimilar(t *testing.T) {
	t.Parallel()

	assert.True(t, Similar("0000000000000000", "0000000000000003", 8))
	assert.False(t, Similar("ffffffffffffffff", "0000000000000000", 8))
	assert.False(t, Similar("bogus", "0000000000000000", 8), "malformed hashes are never similar")
}

func TestSimilarImagesHaveLowDistance(t *testing.T) {
	t.Parallel()

	h1, err := HashBytes(testImage(t, 0))
	require.NoError(t, err)
	h2, err := HashBytes(testImage(t, 1))
	require.NoError(t, err)
	h3, err := HashBytes(testImage(t, 30))
	require.NoError(t, err)

	near, err := Distance(h1, h2)
	require.NoError(t, err)
	far, err := Distance(h1, h3)
	require.NoError(t, err)
	assert.Less(t, near, far, "a one-pixel shift should stay closer than a large move")
}

func TestGroupHashesGreedyFirstSeen(t *testing.T) {
	t.Parallel()

	// b is similar to a; c is similar to b but not to a. The greedy pass
	// compares against group representatives only, so c starts a new group.
	a := "0000000000000000"
	b := "00000000000000ff" // distance 8 from a
	c := "000000000000ffff" // distance 8 from b, 16 from a

	groups := GroupHashes([]string{a, b, c}, 8)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{0, 1}, groups[0])
	assert.Equal(t, []int{2}, groups[1])
}

func TestGroupHashesEveryMemberPlacedOnce(t *testing.T) {
	t.Parallel()

	hashes := []string{
		"0000000000000000",
		"0000000000000001",
		"ffffffffffffffff",
		"fffffffffffffffe",
		"00ffffffff000000",
	}
	groups := GroupHashes(hashes, 8)

	seen := make(map[int]int)
	for _, group := range groups {
		require.NotEmpty(t, group)
		for _, idx := range group {
			seen[idx]++
		}
	}
	for i := range hashes {
		assert.Equal(t, 1, seen[i], "hash %d must belong to exactly one group", i)
	}
}
