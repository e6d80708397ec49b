package exporter

// PageSize is a paper size in points (1/72 inch).
type PageSize struct {
	Width  float64
	Height float64
}

// A4 paper.
var A4 = PageSize{Width: 595.28, Height: 841.89}

// PageConfig controls how the document layout is printed.
type PageConfig struct {
	Size      PageSize
	Landscape bool
	// Margin is applied on every side, in points.
	Margin          float64
	PrintBackground bool
}

// DefaultPageConfig is A4 portrait with 40pt margins.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		Size:            A4,
		Margin:          40,
		PrintBackground: true,
	}
}

// PaperInches returns width and height in inches, honoring orientation.
func (p PageConfig) PaperInches() (width, height float64) {
	w, h := p.Size.Width/72, p.Size.Height/72
	if p.Landscape {
		return h, w
	}
	return w, h
}

// MarginInches returns the margin in inches.
func (p PageConfig) MarginInches() float64 {
	return p.Margin / 72
}
