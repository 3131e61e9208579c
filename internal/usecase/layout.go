package usecase

import (
	"sort"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
)

// NextPosition computes where the next inserted element should land: a
// left-to-right, top-to-bottom grid packing over the occupying elements
// already on the canvas. Rows are formed by vertical overlap, so elements of
// uneven height still group naturally; there is no collision avoidance beyond
// row and column placement, manual repositioning afterward is expected.
func NextPosition(elements []domain.Element, cfg config.LayoutConfig) (x, y float64) {
	var occupying []domain.Element
	for _, el := range elements {
		if el.Occupying() {
			occupying = append(occupying, el)
		}
	}
	if len(occupying) == 0 {
		return cfg.OriginX, cfg.OriginY
	}

	rows := groupRows(occupying)
	last := rows[len(rows)-1]

	if len(last) < cfg.ColumnLimit {
		rightmost := last[len(last)-1]
		top := last[0].Y
		for _, el := range last[1:] {
			if el.Y < top {
				top = el.Y
			}
		}
		return rightmost.X + rightmost.Width + cfg.Gap, top
	}

	bottom := last[0].Y + last[0].Height
	for _, el := range last[1:] {
		if b := el.Y + el.Height; b > bottom {
			bottom = b
		}
	}
	return cfg.OriginX, bottom + cfg.Gap
}

// DisplaySize scales natural pixel dimensions down to fit the configured
// maximum width, preserving aspect ratio. Images already narrower than the
// cap keep their natural size.
func DisplaySize(naturalW, naturalH float64, cfg config.LayoutConfig) (w, h float64) {
	if naturalW <= 0 || naturalH <= 0 {
		return cfg.MaxImageWidth, cfg.MaxImageWidth
	}
	if naturalW <= cfg.MaxImageWidth {
		return naturalW, naturalH
	}
	scale := cfg.MaxImageWidth / naturalW
	return cfg.MaxImageWidth, naturalH * scale
}

// groupRows clusters elements into rows by vertical overlap. Rows come back
// ordered top to bottom by mean y, each row ordered left to right.
func groupRows(elements []domain.Element) [][]domain.Element {
	sorted := make([]domain.Element, len(elements))
	copy(sorted, elements)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	var rows [][]domain.Element
	for _, el := range sorted {
		placed := false
		for i, row := range rows {
			if overlapsRow(el, row) {
				rows[i] = append(rows[i], el)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, []domain.Element{el})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return meanY(rows[i]) < meanY(rows[j]) })
	for _, row := range rows {
		sort.Slice(row, func(i, j int) bool { return row[i].X < row[j].X })
	}
	return rows
}

func overlapsRow(el domain.Element, row []domain.Element) bool {
	for _, other := range row {
		if el.Y < other.Y+other.Height && other.Y < el.Y+el.Height {
			return true
		}
	}
	return false
}

func meanY(row []domain.Element) float64 {
	var sum float64
	for _, el := range row {
		sum += el.Y
	}
	return sum / float64(len(row))
}
