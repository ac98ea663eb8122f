package ensocomp

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func Test_DJFSeries_ToCSV(t *testing.T) {
	s := &DJFSeries{Years: []int{1997, 1998}, Raw: []float64{1.5, -0.5}}

	var buf bytes.Buffer
	s.ToCSV(&buf)
	assert.Equal(t, "year,djf\n1997,1.5\n1998,-0.5\n", buf.String())

	require.NoError(t, s.Normalize())
	s.Classify(1.0)
	buf.Reset()
	s.ToCSV(&buf)
	assert.Equal(t, "year,djf,normalized,phase\n1997,1.5,1,positive\n1998,-0.5,-1,negative\n", buf.String())
}

func Test_CompositeResult_ToCSV(t *testing.T) {
	res := &CompositeResult{
		Lat:     []float64{-2.5, 2.5},
		Lon:     []float64{1.25},
		PosMean: mat.NewDense(2, 1, []float64{3, 4}),
		NegMean: mat.NewDense(2, 1, []float64{1, 1}),
		Diff:    mat.NewDense(2, 1, []float64{2, 3}),
		T:       mat.NewDense(2, 1, []float64{1.5, math.NaN()}),
		P:       mat.NewDense(2, 1, []float64{0.25, math.NaN()}),
	}

	var buf bytes.Buffer
	res.ToCSV(&buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "lat,lon,pos_mean,neg_mean,diff,t,p", lines[0])
	assert.Equal(t, "-2.5,1.25,3,1,2,1.5,0.25", lines[1])
	assert.Equal(t, "2.5,1.25,4,1,3,NaN,NaN", lines[2])
}

func Test_WriteASCIIGrid(t *testing.T) {
	field := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		5, math.NaN(), 7, 8,
		9, 10, 11, 12.5,
	})
	var buf bytes.Buffer
	require.NoError(t, WriteASCIIGrid(&buf, field, []float64{-10, 0, 10}, []float64{0, 10, 20, 30}))

	want := "ncols         4\n" +
		"nrows         3\n" +
		"xllcorner     -5.000000\n" +
		"yllcorner     -15.000000\n" +
		"cellsize      10.000000\n" +
		"NODATA_value  -9999\n" +
		"9 10 11 12.5\n" +
		"5 -9999 7 8\n" +
		"1 2 3 4\n"
	assert.Equal(t, want, buf.String())
}

// 緯度が北から並んでいる場合はそのままの順
func Test_WriteASCIIGrid_NorthFirst(t *testing.T) {
	field := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	var buf bytes.Buffer
	require.NoError(t, WriteASCIIGrid(&buf, field, []float64{1.25, -1.25}, []float64{1.25, 3.75}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "yllcorner     -2.500000", lines[3])
	assert.Equal(t, "1 2", lines[6])
	assert.Equal(t, "3 4", lines[7])
}

func Test_WriteASCIIGrid_Errors(t *testing.T) {
	var buf bytes.Buffer

	// 緯度と経度の間隔が異なる
	err := WriteASCIIGrid(&buf, mat.NewDense(2, 2, nil), []float64{0, 5}, []float64{0, 10})
	assert.Error(t, err)

	// 不等間隔
	err = WriteASCIIGrid(&buf, mat.NewDense(2, 3, nil), []float64{0, 10}, []float64{0, 10, 25})
	assert.Error(t, err)

	// 大きさが一致しない
	err = WriteASCIIGrid(&buf, mat.NewDense(2, 2, nil), []float64{0, 10, 20}, []float64{0, 10})
	assert.Error(t, err)
}
