package codegen

import (
	_ "embed"
	"fmt"
)

// Instrumentation emits inspection calls into generated code. Each capture kind has a
// fixed preamble defining the function the call sites invoke.
type Instrumentation interface {
	Preambles() []string
	// CaptureImage sends imageVar to the viewer bound to handleID. An empty handleID
	// means imageVar itself; an empty referenceVar means no diff.
	CaptureImage(imageVar, handleID, referenceVar string) string
	CaptureHistogram(imageVar, handleID string) string
	CaptureFolder(folderExpr, handleID string) string
}

var (
	//go:embed jupyter/capture_image.py
	imagePreamble string
	//go:embed jupyter/capture_folder.py
	folderPreamble string
	//go:embed jupyter/capture_histogram.py
	histogramPreamble string
)

// Jupyter reports captures over a Jupyter comm channel named "inspection".
type Jupyter struct{}

func (Jupyter) Preambles() []string {
	return []string{imagePreamble, folderPreamble, histogramPreamble}
}

func (Jupyter) CaptureImage(imageVar, handleID, referenceVar string) string {
	if handleID == "" {
		handleID = imageVar
	}
	ref := referenceVar
	if ref == "" {
		ref = "None"
	}
	return fmt.Sprintf("capture_image(im2im(%s, 'pil.rgb_gray').raw_image, %q, %s, %s)", imageVar, handleID, ref, imageVar)
}

func (Jupyter) CaptureHistogram(imageVar, handleID string) string {
	return fmt.Sprintf("capture_histogram(%s, %q)", imageVar, handleID)
}

func (Jupyter) CaptureFolder(folderExpr, handleID string) string {
	return fmt.Sprintf("capture_folder_images(%s, %q)", folderExpr, handleID)
}
