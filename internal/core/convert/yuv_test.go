package convert

import (
	"math"
	"testing"

	"presence-gate/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planar builds a frame whose planes are filled with constant samples and
// padded according to the given strides. Padding bytes are set to 0xEE so
// that reading them would be visible in the output.
func planar(t *testing.T, w, h int, yv, uv, vv byte, rowPad, pixStride int) *models.RawFrame {
	t.Helper()
	mk := func(pw, ph int, val byte) models.Plane {
		row := (pw-1)*pixStride + 1 + rowPad
		data := make([]byte, row*ph)
		for i := range data {
			data[i] = 0xEE
		}
		for y := 0; y < ph; y++ {
			for x := 0; x < pw; x++ {
				data[y*row+x*pixStride] = val
			}
		}
		return models.Plane{Data: data, RowStride: row, PixelStride: pixStride}
	}
	cw, ch := (w+1)/2, (h+1)/2
	f, err := models.NewRawFrame(1, w, h, 0, []models.Plane{
		mk(w, h, yv), mk(cw, ch, uv), mk(cw, ch, vv),
	}, nil)
	require.NoError(t, err)
	return f
}

func TestYUV420ToRGBA_MidGrayForAnyStride(t *testing.T) {
	cases := []struct {
		name      string
		rowPad    int
		pixStride int
	}{
		{"tight", 0, 1},
		{"row padding", 13, 1},
		{"pixel stride 2", 0, 2},
		{"row padding and pixel stride 3", 7, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := YUV420ToRGBA(planar(t, 6, 4, 128, 128, 128, tc.rowPad, tc.pixStride))
			require.NoError(t, err)
			for i := 0; i < len(buf.Pix); i += 4 {
				assert.Equal(t, uint8(128), buf.Pix[i], "R at %d", i)
				assert.Equal(t, buf.Pix[i], buf.Pix[i+1])
				assert.Equal(t, buf.Pix[i], buf.Pix[i+2])
				assert.Equal(t, uint8(255), buf.Pix[i+3])
			}
		})
	}
}

func TestYUV420ToRGBA_DimensionsIgnorePadding(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {5, 3}, {16, 9}, {7, 8}} {
		buf, err := YUV420ToRGBA(planar(t, dims[0], dims[1], 90, 128, 128, 11, 2))
		require.NoError(t, err)
		assert.Equal(t, dims[0], buf.Width())
		assert.Equal(t, dims[1], buf.Height())
		assert.Len(t, buf.Pix, dims[0]*dims[1]*4)
	}
}

func TestYUV420ToRGBA_ColourAndClamping(t *testing.T) {
	buf, err := YUV420ToRGBA(planar(t, 2, 2, 100, 200, 50, 0, 1))
	require.NoError(t, err)

	// R = 100 + 1.370705*(-78) -> negative, clamped to 0
	// G = 100 - 0.337633*72 - 0.698001*(-78) = 130.13
	// B = 100 + 1.732446*72 = 224.74
	assert.Equal(t, []uint8{0, 130, 225, 255}, buf.Pix[0:4])

	white, err := YUV420ToRGBA(planar(t, 2, 2, 255, 255, 255, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, uint8(255), white.Pix[0])
	assert.Equal(t, uint8(255), white.Pix[2])
}

func TestYUV420ToRGBA_ChromaSubsampling(t *testing.T) {
	f := planar(t, 4, 2, 128, 128, 128, 0, 1)
	// Zweite Chroma-Spalte färbt die Pixel x=2,3 ein
	f.Planes[2].Data[1] = 228 // V = +100

	buf, err := YUV420ToRGBA(f)
	require.NoError(t, err)
	assert.Equal(t, uint8(128), buf.Pix[0])   // x=0
	assert.Equal(t, uint8(128), buf.Pix[4])   // x=1
	assert.Equal(t, uint8(255), buf.Pix[8])   // x=2, R = 128+137 clamped
	assert.Equal(t, uint8(255), buf.Pix[12])  // x=3
	assert.Equal(t, uint8(255), buf.Pix[buf.Stride+8]) // row 1 shares chroma row 0
}

func TestYUV420ToRGBA_SemiPlanarSharedBuffer(t *testing.T) {
	// NV12-artiges Layout: U und V verschachtelt in einem Puffer, pixel stride 2
	w, h := 4, 2
	y := make([]byte, w*h)
	for i := range y {
		y[i] = 128
	}
	uv := []byte{128, 228, 128, 228}
	f, err := models.NewRawFrame(3, w, h, 90, []models.Plane{
		{Data: y, RowStride: w, PixelStride: 1},
		{Data: uv, RowStride: 4, PixelStride: 2},
		{Data: uv[1:], RowStride: 4, PixelStride: 2},
	}, nil)
	require.NoError(t, err)

	buf, err := YUV420ToRGBA(f)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), buf.Pix[0])
	assert.Equal(t, uint64(3), buf.Seq)
}

func TestYUV420ToRGBA_FormatErrors(t *testing.T) {
	good := func() *models.RawFrame { return planar(t, 4, 4, 1, 2, 3, 0, 1) }

	twoPlanes := good()
	twoPlanes.Planes = twoPlanes.Planes[:2]

	zeroStride := good()
	zeroStride.Planes[1].PixelStride = 0

	narrowRow := good()
	narrowRow.Planes[0].RowStride = 3

	short := good()
	short.Planes[2].Data = short.Planes[2].Data[:3]

	empty := good()
	empty.Width = 0

	// Produkte würden int überlaufen
	hugeRow := good()
	hugeRow.Planes[0].RowStride = math.MaxInt/2 + 1

	hugePixel := good()
	hugePixel.Planes[1].PixelStride = math.MaxInt
	hugePixel.Planes[1].RowStride = math.MaxInt

	for name, f := range map[string]*models.RawFrame{
		"two planes":        twoPlanes,
		"zero pixel stride": zeroStride,
		"narrow row":        narrowRow,
		"short buffer":      short,
		"zero width":        empty,
		"huge row stride":   hugeRow,
		"huge pixel stride": hugePixel,
		"nil":               nil,
	} {
		t.Run(name, func(t *testing.T) {
			buf, err := YUV420ToRGBA(f)
			assert.Nil(t, buf)
			var fe *FormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestValidate_LastRowWithoutPadding(t *testing.T) {
	f := planar(t, 4, 2, 10, 20, 30, 8, 1)
	// Trailing padding of the final row is commonly cut off by the sensor
	f.Planes[0].Data = f.Planes[0].Data[:len(f.Planes[0].Data)-8]
	assert.NoError(t, Validate(f))
}
