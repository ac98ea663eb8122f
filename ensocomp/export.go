package ensocomp

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DJF系列のCSV形式
func (s *DJFSeries) ToCSV(buf *bytes.Buffer) {
	buf.WriteString("year,djf")
	if s.Normalized != nil {
		buf.WriteString(",normalized")
	}
	if s.Phases != nil {
		buf.WriteString(",phase")
	}
	buf.WriteString("\n")

	for i := 0; i < len(s.Years); i++ {
		buf.WriteString(strconv.Itoa(s.Years[i]))
		writeFloat(buf, s.Raw[i])
		if s.Normalized != nil {
			writeFloat(buf, s.Normalized[i])
		}
		if s.Phases != nil {
			buf.WriteString(",")
			buf.WriteString(s.Phases[i].String())
		}
		buf.WriteString("\n")
	}
}

// 格子点ごとのCSV形式
func (res *CompositeResult) ToCSV(buf *bytes.Buffer) {
	buf.WriteString("lat,lon,pos_mean,neg_mean,diff,t,p\n")
	for i, lat := range res.Lat {
		for j, lon := range res.Lon {
			buf.WriteString(strconv.FormatFloat(lat, 'f', -1, 64))
			writeFloat(buf, lon)
			writeFloat(buf, res.PosMean.At(i, j))
			writeFloat(buf, res.NegMean.At(i, j))
			writeFloat(buf, res.Diff.At(i, j))
			writeFloat(buf, res.T.At(i, j))
			writeFloat(buf, res.P.At(i, j))
			buf.WriteString("\n")
		}
	}
}

func writeFloat(buf *bytes.Buffer, v float64) {
	buf.WriteString(",")
	buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
}

const asciiGridNoData = -9999

// ESRI ASCII グリッド形式
//
// Note:
//
//	等間隔の格子のみ出力できます。北の行から出力し、NaN は NODATA_value とします。
func WriteASCIIGrid(w io.Writer, field mat.Matrix, lat []float64, lon []float64) error {
	nrows, ncols := field.Dims()
	if nrows != len(lat) || ncols != len(lon) {
		return errors.Errorf("grid %dx%d does not match coordinates %dx%d", nrows, ncols, len(lat), len(lon))
	}
	if nrows < 2 || ncols < 2 {
		return errors.New("ASCII grid needs at least 2x2 cells")
	}

	cellsize := math.Abs(lon[1] - lon[0])
	if !regular(lon, cellsize) || !regular(lat, cellsize) {
		return errors.New("ASCII grid needs a regular grid with equal lat/lon spacing")
	}

	// 北から南の行順
	rows := make([]int, nrows)
	for i := range rows {
		rows[i] = i
	}
	if lat[0] < lat[nrows-1] {
		for i := range rows {
			rows[i] = nrows - 1 - i
		}
	}
	south := math.Min(lat[0], lat[nrows-1])

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("ncols         %d\n", ncols))
	buf.WriteString(fmt.Sprintf("nrows         %d\n", nrows))
	buf.WriteString(fmt.Sprintf("xllcorner     %f\n", lon[0]-cellsize/2))
	buf.WriteString(fmt.Sprintf("yllcorner     %f\n", south-cellsize/2))
	buf.WriteString(fmt.Sprintf("cellsize      %f\n", cellsize))
	buf.WriteString(fmt.Sprintf("NODATA_value  %d\n", asciiGridNoData))

	for _, i := range rows {
		for j := 0; j < ncols; j++ {
			if j > 0 {
				buf.WriteString(" ")
			}
			v := field.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				buf.WriteString(strconv.Itoa(asciiGridNoData))
			} else {
				buf.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
			}
		}
		buf.WriteString("\n")
	}

	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "write ASCII grid")
}

func regular(axis []float64, step float64) bool {
	for i := 1; i < len(axis); i++ {
		if math.Abs(math.Abs(axis[i]-axis[i-1])-step) > 1e-6*step {
			return false
		}
	}
	return true
}
