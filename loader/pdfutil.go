package loader

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageMargins is the height, in points, of the running header and footer
// cut off every page before conversion.
type PageMargins struct {
	Top    float64
	Bottom float64
}

func (m PageMargins) IsZero() bool {
	return m.Top <= 0 && m.Bottom <= 0
}

func (m PageMargins) cropBox() (*model.Box, error) {
	if m.Top < 0 || m.Bottom < 0 {
		return nil, fmt.Errorf("negative page margins %.2f/%.2f", m.Top, m.Bottom)
	}
	box, err := model.ParseBox(fmt.Sprintf("%.2f 0 %.2f 0 abs", m.Top, m.Bottom), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("crop box: %w", err)
	}
	return box, nil
}

// Crop writes a copy of the PDF at path with the margins removed and returns
// the copy's path. The caller removes the copy with release. Zero margins
// return path itself.
func (m PageMargins) Crop(path string) (cropped string, release func(), err error) {
	if m.IsZero() {
		return path, func() {}, nil
	}
	box, err := m.cropBox()
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp("", "ragkb-*.pdf")
	if err != nil {
		return "", nil, err
	}
	f.Close()
	release = func() { os.Remove(f.Name()) }

	if err := api.CropFile(path, f.Name(), []string{"1-"}, box, api.LoadConfiguration()); err != nil {
		release()
		return "", nil, fmt.Errorf("failed to crop %s: %w", path, err)
	}
	return f.Name(), release, nil
}
