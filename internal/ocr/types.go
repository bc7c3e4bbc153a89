/**
 * OCR Types - Shared data structures for OCR operations
 *
 * Records produced by the engine for one standalone or embedded image.
 */

package ocr

// FailureReason names why a record was produced without recognized text
type FailureReason string

const (
	FailureNone                  FailureReason = ""
	FailureInsufficientText      FailureReason = "INSUFFICIENT_TEXT"
	FailureUnsupportedColorSpace FailureReason = "UNSUPPORTED_COLOR_SPACE"
	FailureDecode                FailureReason = "DECODE_FAILURE"
)

// OrientationReport is the result of one orientation and script detection pass
type OrientationReport struct {
	DetectedRotation   int     `json:"detected_rotation_degrees" bson:"detected_rotation_degrees"`
	ComplementRotation int     `json:"complement_rotation_degrees" bson:"complement_rotation_degrees"`
	Confidence         float64 `json:"orientation_confidence" bson:"orientation_confidence"`
	Script             string  `json:"detected_script" bson:"detected_script"`
	ScriptConfidence   float64 `json:"script_confidence" bson:"script_confidence"`
}

// NewOrientationReport derives the complement angle from a detected rotation
func NewOrientationReport(rotation int, confidence float64, script string, scriptConfidence float64) OrientationReport {
	rotation = ((rotation % 360) + 360) % 360
	return OrientationReport{
		DetectedRotation:   rotation,
		ComplementRotation: 360 - rotation,
		Confidence:         confidence,
		Script:             script,
		ScriptConfidence:   scriptConfidence,
	}
}

// Quality holds plausibility scores for recognized text
type Quality struct {
	WordConfidence   float64 `json:"word_confidence" bson:"word_confidence"`
	ReadabilityScore float64 `json:"readability_score" bson:"readability_score"`
}

// ImageMetadata describes the image as it was handed to the engine
type ImageMetadata struct {
	Format string                 `json:"format" bson:"format"`
	Mode   string                 `json:"mode" bson:"mode"`
	Info   map[string]interface{} `json:"info" bson:"info"`
}

// Record is the OCR output for a single image
type Record struct {
	SourceID    string            `json:"source_identifier" bson:"source_identifier"`
	Text        string            `json:"text" bson:"text"`
	Orientation OrientationReport `json:"orientation" bson:"orientation"`
	Rotated     bool              `json:"rotated" bson:"rotated"`
	Quality     Quality           `json:"quality" bson:"quality"`
	Metadata    ImageMetadata     `json:"image_metadata" bson:"image_metadata"`
	Failure     FailureReason     `json:"failure,omitempty" bson:"failure,omitempty"`
}

// Empty reports whether the record carries a recoverable failure instead of text
func (r *Record) Empty() bool {
	return r.Failure != FailureNone
}
