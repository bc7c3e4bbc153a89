package ocr

import (
	"context"
	"fmt"
	"image"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// VisionOCR is a TextRecognizer backed by Google Cloud Vision document text detection
type VisionOCR struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionOCR connects with inline credentials, a credentials file, or the
// default application credentials, in that order of preference.
func NewVisionOCR(ctx context.Context, credentialsJSON, credentialsFile string) (*VisionOCR, error) {
	var opts []option.ClientOption
	switch {
	case credentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	return &VisionOCR{client: client}, nil
}

// Recognize sends the normalized image to the Vision API
func (v *VisionOCR) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("no response from vision API")
	}

	r := resp.Responses[0]
	if r.Error != nil {
		return "", fmt.Errorf("vision API error: %s", r.Error.GetMessage())
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return r.FullTextAnnotation.Text, nil
}

// Close releases the underlying gRPC connection
func (v *VisionOCR) Close() error {
	return v.client.Close()
}
