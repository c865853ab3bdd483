// Package detect provides per-frame analysis: foreground motion
// segmentation, two-tier person detection, and severity escalation over
// the combined evidence.
package detect

import (
	"image"

	"cctv/internal/domain"
)

// Escalator maps detection evidence to alert severities using proximity
// thresholds over box-to-frame ratios.
// Params: area and height ratio thresholds above which a person is
// treated as close enough to be an emergency.
// Returns: pure severity classifier.
type Escalator struct {
	AreaRatio   float64
	HeightRatio float64
}

// Escalate classifies the detection evidence for one frame.
// Params: person boxes, frame dimensions, and whether motion was seen.
// Returns: emergency when the largest person box crosses a proximity
// threshold, high for any person at all, normal for motion only. Ok
// reports whether the frame produced any evidence; without it no alert
// should be raised.
func (e Escalator) Escalate(persons []image.Rectangle, frameW, frameH int, motion bool) (domain.Severity, bool) {
	if len(persons) > 0 && frameW > 0 && frameH > 0 {
		// Only the dominant (largest-area) box decides proximity; a thin
		// tall box behind a nearer person must not escalate on its own.
		largest := persons[0]
		for _, box := range persons[1:] {
			if box.Dx()*box.Dy() > largest.Dx()*largest.Dy() {
				largest = box
			}
		}
		frameArea := float64(frameW) * float64(frameH)
		areaRatio := float64(largest.Dx()*largest.Dy()) / frameArea
		heightRatio := float64(largest.Dy()) / float64(frameH)
		if areaRatio > e.AreaRatio || heightRatio > e.HeightRatio {
			return domain.SeverityEmergency, true
		}
	}
	if len(persons) > 0 {
		return domain.SeverityHigh, true
	}
	if motion {
		return domain.SeverityNormal, true
	}
	return domain.SeverityNormal, false
}
