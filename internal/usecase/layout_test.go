package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
)

func testLayoutConfig() config.LayoutConfig {
	return config.LayoutConfig{
		OriginX:       40,
		OriginY:       160,
		ColumnLimit:   4,
		MaxImageWidth: 300,
		Gap:           20,
	}
}

func imageAt(x, y, w, h float64) domain.Element {
	return domain.Element{Type: domain.ElementImage, X: x, Y: y, Width: w, Height: h}
}

func TestNextPositionEmptyCanvas(t *testing.T) {
	x, y := NextPosition(nil, testLayoutConfig())
	assert.Equal(t, 40.0, x)
	assert.Equal(t, 160.0, y)
}

func TestNextPositionAppendsRight(t *testing.T) {
	elements := []domain.Element{imageAt(40, 160, 300, 200)}

	x, y := NextPosition(elements, testLayoutConfig())
	assert.Equal(t, 360.0, x) // 40 + 300 + 20
	assert.Equal(t, 160.0, y)
}

func TestNextPositionGridPacking(t *testing.T) {
	// Fill a row to the column limit, then insert a fifth image.
	cfg := testLayoutConfig()
	var elements []domain.Element
	for i := 0; i < 4; i++ {
		x, y := NextPosition(elements, cfg)
		elements = append(elements, imageAt(x, y, 300, 200))
	}

	// Images 1..4 sit left to right in one row.
	for i, el := range elements {
		assert.Equal(t, 40.0+float64(i)*320, el.X)
		assert.Equal(t, 160.0, el.Y)
	}

	// Image 5 starts a new row at the reserved x, below the first row.
	x, y := NextPosition(elements, cfg)
	assert.Equal(t, 40.0, x)
	assert.Equal(t, 380.0, y) // 160 + 200 + 20
}

func TestNextPositionUnevenHeightsGroupByOverlap(t *testing.T) {
	// Two elements whose y ranges overlap form one row even though their y
	// coordinates differ.
	elements := []domain.Element{
		imageAt(40, 160, 300, 200),
		imageAt(360, 180, 300, 260),
	}

	x, y := NextPosition(elements, testLayoutConfig())
	assert.Equal(t, 680.0, x)
	assert.Equal(t, 160.0, y)
}

func TestNextPositionNewRowBelowLowestExtent(t *testing.T) {
	cfg := testLayoutConfig()
	// Full row where the second element reaches lower than the first.
	elements := []domain.Element{
		imageAt(40, 160, 300, 200),
		imageAt(360, 160, 300, 320),
		imageAt(680, 160, 300, 200),
		imageAt(1000, 160, 300, 200),
	}

	x, y := NextPosition(elements, cfg)
	assert.Equal(t, 40.0, x)
	assert.Equal(t, 500.0, y) // 160 + 320 + 20
}

func TestNextPositionIgnoresDeletedAndNonOccupying(t *testing.T) {
	elements := []domain.Element{
		{Type: domain.ElementImage, X: 40, Y: 160, Width: 300, Height: 200, IsDeleted: true},
		{Type: domain.ElementRectangle, X: 40, Y: 160, Width: 300, Height: 200},
		{Type: domain.ElementText, X: 500, Y: 500, Width: 100, Height: 24},
	}

	x, y := NextPosition(elements, testLayoutConfig())
	assert.Equal(t, 40.0, x)
	assert.Equal(t, 160.0, y)
}

func TestNextPositionPicksBottomRow(t *testing.T) {
	// Two rows; only the bottom one should receive the next element.
	elements := []domain.Element{
		imageAt(40, 160, 300, 200),
		imageAt(360, 160, 300, 200),
		imageAt(40, 380, 300, 200),
	}

	x, y := NextPosition(elements, testLayoutConfig())
	assert.Equal(t, 360.0, x)
	assert.Equal(t, 380.0, y)
}

func TestDisplaySize(t *testing.T) {
	cfg := testLayoutConfig()

	tests := []struct {
		name    string
		nw, nh  float64
		wantW   float64
		wantH   float64
	}{
		{name: "wide image scaled down", nw: 1024, nh: 768, wantW: 300, wantH: 225},
		{name: "narrow image unchanged", nw: 200, nh: 400, wantW: 200, wantH: 400},
		{name: "exact cap unchanged", nw: 300, nh: 150, wantW: 300, wantH: 150},
		{name: "zero dims fall back to cap", nw: 0, nh: 0, wantW: 300, wantH: 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := DisplaySize(tt.nw, tt.nh, cfg)
			assert.InDelta(t, tt.wantW, w, 0.001)
			assert.InDelta(t, tt.wantH, h, 0.001)
		})
	}
}
