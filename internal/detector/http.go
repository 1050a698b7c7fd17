package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/banshee-data/footfall/internal/httputil"
)

// maxResponseBytes caps the detector response body.
const maxResponseBytes = 8 << 20

// HTTPDetector posts each frame as a JPEG to an inference service and
// parses its JSON reply:
//
//	{"detections": [{"xyxy": [x1, y1, x2, y2], "confidence": 0.9, "class": 0}]}
type HTTPDetector struct {
	url    string
	client httputil.Doer
}

// NewHTTPDetector creates a client for the inference endpoint at url.
// A nil client uses an *http.Client with a 30s timeout.
func NewHTTPDetector(url string, client httputil.Doer) *HTTPDetector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDetector{url: strings.TrimRight(url, "/"), client: client}
}

// Detect uploads img and returns the filtered detections.
func (d *HTTPDetector) Detect(ctx context.Context, frame int, img image.Image, p Params) ([]RawDetection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fmt.Sprintf("frame-%06d.jpg", frame))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame, err)
	}

	fields := map[string]string{
		"conf_thres": strconv.FormatFloat(p.ConfThreshold, 'g', -1, 64),
		"iou_thres":  strconv.FormatFloat(p.IoUThreshold, 'g', -1, 64),
		"img_size":   strconv.Itoa(p.ImageSize),
	}
	if len(p.Classes) > 0 {
		cls := make([]string, len(p.Classes))
		for i, c := range p.Classes {
			cls[i] = strconv.Itoa(c)
		}
		fields["classes"] = strings.Join(cls, ",")
	}
	for _, k := range []string{"conf_thres", "iou_thres", "img_size", "classes"} {
		if v, ok := fields[k]; ok {
			if err := writer.WriteField(k, v); err != nil {
				return nil, fmt.Errorf("write field %s: %w", k, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	data, err := httputil.ReadBody(resp, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("inference on frame %d: %w", frame, err)
	}
	raws, err := ParseDetections(data)
	if err != nil {
		return nil, err
	}
	return Filter(raws, p), nil
}

// CheckHealth checks that the inference service answers.
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	if _, err := httputil.ReadBody(resp, maxResponseBytes); err != nil {
		return fmt.Errorf("inference service unhealthy: %w", err)
	}
	return nil
}

// ParseDetections reads a {"detections": [...]} document. Each entry
// needs a four-element "xyxy" array; "confidence" and "class" default to
// zero.
func ParseDetections(data []byte) ([]RawDetection, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrMalformed)
	}
	dets := gjson.GetBytes(data, "detections")
	if !dets.Exists() {
		return nil, fmt.Errorf("%w: response has no detections field", ErrMalformed)
	}
	return parseDetectionArray(dets)
}

func parseDetectionArray(dets gjson.Result) ([]RawDetection, error) {
	if !dets.IsArray() {
		return nil, fmt.Errorf("%w: detections is not an array", ErrMalformed)
	}
	var out []RawDetection
	var perr error
	dets.ForEach(func(_, d gjson.Result) bool {
		box := d.Get("xyxy").Array()
		if len(box) != 4 {
			perr = fmt.Errorf("%w: detection %s needs 4 box values", ErrMalformed, d.Raw)
			return false
		}
		r := RawDetection{
			Confidence: d.Get("confidence").Float(),
			Class:      int(d.Get("class").Int()),
		}
		for i, v := range box {
			if v.Type != gjson.Number {
				perr = fmt.Errorf("%w: non-numeric box value %s", ErrMalformed, v.Raw)
				return false
			}
			r.Box[i] = v.Float()
		}
		out = append(out, r)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return out, nil
}
