package ensocomp

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

func testResult() *CompositeResult {
	lat := []float64{-10, 0, 10}
	lon := []float64{0, 90, 180, 270}
	return &CompositeResult{
		Lat:     lat,
		Lon:     lon,
		PosMean: mat.NewDense(3, 4, nil),
		NegMean: mat.NewDense(3, 4, nil),
		Diff: mat.NewDense(3, 4, []float64{
			-25, -3, 0, 4,
			1, 12, -8, math.NaN(),
			2, 2, 30, -1,
		}),
		T: mat.NewDense(3, 4, nil),
		P: mat.NewDense(3, 4, []float64{
			0.5, 0.01, 0.2, 0.9,
			0.03, 0.001, 0.04, math.NaN(),
			0.7, 0.6, 0.02, 0.3,
		}),
	}
}

func Test_RenderMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "precip_comp_diff_DJF.png")
	res := testResult()
	before := mat.DenseCopyOf(res.Diff)

	opt := DefaultMapOptions()
	require.NoError(t, RenderMap(res, opt, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Width)
	assert.Equal(t, 900, cfg.Height)

	// 表示範囲外の値も丸めずに残る
	assert.True(t, sameMatrix(before, res.Diff))
	assert.Equal(t, -25.0, res.Diff.At(0, 0))
	assert.Equal(t, 30.0, res.Diff.At(2, 2))
}

func sameMatrix(a, b mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x, y := a.At(i, j), b.At(i, j)
			if math.IsNaN(x) != math.IsNaN(y) {
				return false
			}
			if !math.IsNaN(x) && x != y {
				return false
			}
		}
	}
	return true
}

// 表示範囲を変えても解析結果は変わらない
func Test_RenderMap_ClipRange(t *testing.T) {
	dir := t.TempDir()
	res := testResult()
	diff := mat.DenseCopyOf(res.Diff)
	p := mat.DenseCopyOf(res.P)

	opt := DefaultMapOptions()
	opt.VMin, opt.VMax = -2, 2
	require.NoError(t, RenderMap(res, opt, filepath.Join(dir, "narrow.png")))
	opt.VMin, opt.VMax = -50, 50
	require.NoError(t, RenderMap(res, opt, filepath.Join(dir, "wide.png")))

	assert.True(t, sameMatrix(diff, res.Diff))
	assert.True(t, sameMatrix(p, res.P))

	opt.VMin, opt.VMax = 1, 1
	assert.Error(t, RenderMap(res, opt, filepath.Join(dir, "empty.png")))
}

// p 値がすべて NaN でも描画できる
func Test_RenderMap_AllNaN(t *testing.T) {
	res := testResult()
	fillNaN(res.P)

	path := filepath.Join(t.TempDir(), "nan.png")
	require.NoError(t, RenderMap(res, DefaultMapOptions(), path))
	assert.FileExists(t, path)
}

// 地図を画像に描画して地図の描画領域を返す
func drawTestMap(t *testing.T, res *CompositeResult, opt MapOptions) (*mapFigure, *vgimg.Canvas, draw.Canvas) {
	t.Helper()
	fig, err := newMapFigure(res, opt)
	require.NoError(t, err)
	img := newMapCanvas(opt)
	area := fig.draw(draw.New(img))
	return fig, img, area
}

// 経度 lon, 緯度 lat の画素の色
func mapPixel(fig *mapFigure, img *vgimg.Canvas, area draw.Canvas, lon, lat float64) color.Color {
	data := fig.plot.DataCanvas(area)
	trX, trY := fig.plot.Transforms(&data)
	dpi := img.DPI()
	b := img.Image().Bounds()
	x := int(trX(lon).Dots(dpi))
	y := b.Max.Y - 1 - int(trY(lat).Dots(dpi))
	return img.Image().At(x, y)
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	near := func(x, y uint32) bool {
		if x > y {
			return x-y <= 0x300
		}
		return y-x <= 0x300
	}
	return near(ar, br) && near(ag, bg) && near(ab, bb) && near(aa, ba)
}

func countDiffPixels(a, b image.Image) int {
	n := 0
	bounds := a.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if !sameColor(a.At(x, y), b.At(x, y)) {
				n++
			}
		}
	}
	return n
}

func writeEmptyCoastline(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	return path
}

func smallMapOptions() MapOptions {
	opt := DefaultMapOptions()
	opt.Width, opt.Height, opt.DPI = 10, 6, 100
	return opt
}

// 有意な格子 (lon=180, lat=10, 差30 → 上限10) は色の上端、NaN の格子は塗らない
func Test_RenderMap_HeatMapPixels(t *testing.T) {
	opt := smallMapOptions()
	opt.Coastline = writeEmptyCoastline(t)
	res := testResult()
	require.Less(t, res.P.At(2, 2), opt.Alpha)

	fig, img, area := drawTestMap(t, res, opt)

	pal := mapColorMap(opt).Palette(255).Colors()
	top := pal[len(pal)-1]
	assert.True(t, sameColor(top, mapPixel(fig, img, area, 200, 12)), "%v", mapPixel(fig, img, area, 200, 12))

	// lon=270, lat=0 は差が NaN
	assert.True(t, sameColor(color.White, mapPixel(fig, img, area, 290, 2.5)))

	// lon=180, lat=0 は差 -8
	low := pal[int((-8.0-opt.VMin)*float64(len(pal)-1)/(opt.VMax-opt.VMin)+0.5)]
	assert.True(t, sameColor(low, mapPixel(fig, img, area, 200, 2.5)))
}

// 有意水準の等値線が画像に描画される
func Test_RenderMap_Contour(t *testing.T) {
	opt := smallMapOptions()
	opt.Coastline = writeEmptyCoastline(t)

	fig, withContour, _ := drawTestMap(t, testResult(), opt)
	assert.True(t, fig.contour)

	res := testResult()
	fillNaN(res.P)
	fig, withoutContour, _ := drawTestMap(t, res, opt)
	assert.False(t, fig.contour)

	assert.Greater(t, countDiffPixels(withContour.Image(), withoutContour.Image()), 0)
}

// 既定では内蔵の海岸線を描画する
func Test_RenderMap_DefaultCoastline(t *testing.T) {
	opt := smallMapOptions()
	require.Equal(t, "", opt.Coastline)

	lines, err := loadCoastlines("")
	require.NoError(t, err)
	assert.Greater(t, len(lines), 100)
	for _, xy := range lines {
		for _, pt := range xy {
			assert.True(t, pt.X >= 0 && pt.X < 360 && pt.Y >= -90 && pt.Y <= 90)
		}
	}

	fig, withCoast, _ := drawTestMap(t, testResult(), opt)
	assert.Equal(t, len(lines), fig.coastlines)

	opt.Coastline = writeEmptyCoastline(t)
	fig, withoutCoast, _ := drawTestMap(t, testResult(), opt)
	assert.Equal(t, 0, fig.coastlines)

	assert.Greater(t, countDiffPixels(withCoast.Image(), withoutCoast.Image()), 0)
}

const testCoastline = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {},
     "geometry": {"type": "LineString", "coordinates": [[-20, 0], [-10, 0], [10, 0], [20, 0]]}},
    {"type": "Feature", "properties": {},
     "geometry": {"type": "Polygon", "coordinates": [[[100, -5], [110, -5], [110, 5], [100, 5], [100, -5]]]}}
  ]
}`

func Test_loadCoastlines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coast.geojson")
	require.NoError(t, os.WriteFile(path, []byte(testCoastline), 0o644))

	lines, err := loadCoastlines(path)
	require.NoError(t, err)

	// 経度0度で分割される
	require.Len(t, lines, 3)
	assert.InDelta(t, 340.0, lines[0][0].X, 1e-12)
	assert.InDelta(t, 350.0, lines[0][1].X, 1e-12)
	assert.InDelta(t, 10.0, lines[1][0].X, 1e-12)
	assert.Len(t, lines[2], 5)

	res := testResult()
	opt := DefaultMapOptions()
	opt.Coastline = path
	require.NoError(t, RenderMap(res, opt, filepath.Join(t.TempDir(), "coast.png")))
}

func Test_loadCoastlines_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coast.geojson")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := loadCoastlines(path)
	assert.Error(t, err)

	_, err = loadCoastlines(filepath.Join(t.TempDir(), "none.geojson"))
	assert.Error(t, err)
}

// 緯度降順・経度 -180..180 の格子を経度 0-360, 緯度昇順で参照する
func Test_mapGrid(t *testing.T) {
	lat := []float64{10, 0, -10}
	lon := []float64{-90, 0, 90, 180}
	m := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})
	g := newMapGrid(lat, lon, m, func(v float64) float64 { return v })

	c, r := g.Dims()
	assert.Equal(t, []int{4, 3}, []int{c, r})
	assert.Equal(t, []float64{0, 90, 180, 270}, []float64{g.X(0), g.X(1), g.X(2), g.X(3)})
	assert.Equal(t, []float64{-10, 0, 10}, []float64{g.Y(0), g.Y(1), g.Y(2)})

	// 南西端は lat=-10, lon=0
	assert.Equal(t, 10.0, g.Z(0, 0))
	// lon=270 (=-90), lat=10
	assert.Equal(t, 1.0, g.Z(3, 2))
}

func Test_ShowImage_NoDisplay(t *testing.T) {
	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		t.Skip("display is always available")
	}
	assert.NoError(t, ShowImage(filepath.Join(t.TempDir(), "none.png")))
}
