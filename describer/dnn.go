package describer

import (
	"context"
	"fmt"
	"image"
	"log"
	"sort"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// MobileNet-SSD class labels (VOC). Index matches the network's class id.
var ssdClassLabels = []string{
	"background", "aeroplane", "bicycle", "bird", "boat", "bottle", "bus",
	"car", "cat", "chair", "cow", "diningtable", "dog", "horse",
	"motorbike", "person", "pottedplant", "sheep", "sofa", "train",
	"tvmonitor",
}

// Classes surfaced in the synthesized aspects. Everything else detected
// by the net is reported under its own label in the objects aspect.
var vehicleClasses = map[string]bool{"car": true, "bus": true, "motorbike": true, "bicycle": true, "boat": true, "train": true}

const (
	nightLuminanceThreshold = 60.0
	videoSampleInterval     = 2.0 // seconds between sampled frames
	maxVideoSamples         = 10
	thumbnailOffsetSeconds  = 5.0
)

// DNNDescriber produces structured descriptions with an OpenCV DNN
// object-detection network. When the model files are missing the
// describer stays usable and falls back to luminance-only aspects.
type DNNDescriber struct {
	net     gocv.Net
	enabled bool

	inputSizeW    int
	inputSizeH    int
	scaleFactor   float64
	meanVal       gocv.Scalar
	confThreshold float32

	// guards the network across the detached work goroutines that outlive
	// a timed-out call
	runMu sync.Mutex
}

// NewDNNDescriber loads the detection network, preferring CUDA and
// falling back to CPU.
func NewDNNDescriber(configPath, modelPath string) *DNNDescriber {
	if configPath == "" || modelPath == "" {
		log.Println("describer(dnn): config or model path is empty, running without object detection")
		return &DNNDescriber{enabled: false}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		log.Printf("describer(dnn): ERROR loading network model: config=%s, model=%s; running without object detection", configPath, modelPath)
		return &DNNDescriber{enabled: false}
	}
	log.Printf("describer(dnn): successfully loaded object detection model")

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Println("describer(dnn): set backend/target to CUDA")
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Println("describer(dnn): set backend/target to CPU (default)")
	}

	return &DNNDescriber{
		net:           net,
		enabled:       true,
		inputSizeW:    300,
		inputSizeH:    300,
		scaleFactor:   1.0 / 127.5,
		meanVal:       gocv.NewScalar(127.5, 127.5, 127.5, 0),
		confThreshold: 0.4,
	}
}

// Close releases the network.
func (d *DNNDescriber) Close() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.enabled {
		if err := d.net.Close(); err != nil {
			return err
		}
		d.enabled = false
		log.Println("describer(dnn): closed network")
	}
	return nil
}

// DescribeImage decodes and analyzes a still image. The work runs in a
// goroutine so a context timeout can abandon it; the abandoned call
// still finishes under runMu before the network is reused.
func (d *DNNDescriber) DescribeImage(ctx context.Context, data []byte) (*ImageAnalysis, error) {
	type result struct {
		analysis *ImageAnalysis
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		d.runMu.Lock()
		defer d.runMu.Unlock()
		a, err := d.describeImageLocked(data)
		ch <- result{a, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.analysis, r.err
	}
}

func (d *DNNDescriber) describeImageLocked(data []byte) (*ImageAnalysis, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	counts, maxConf := d.detectObjects(img)
	night := isNightFrame(img)

	aspects := synthesizeAspects(counts, night)
	caption := aspects["general"]

	return &ImageAnalysis{
		Aspects:    aspects,
		Caption:    caption,
		Confidence: confidenceFor(counts, maxConf),
		Width:      img.Cols(),
		Height:     img.Rows(),
	}, nil
}

// DescribeVideo samples frames across the clip, builds a timeline of
// scene changes and extracts the thumbnail frame.
func (d *DNNDescriber) DescribeVideo(ctx context.Context, path string) (*VideoAnalysis, error) {
	type result struct {
		analysis *VideoAnalysis
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		d.runMu.Lock()
		defer d.runMu.Unlock()
		a, err := d.describeVideoLocked(path)
		ch <- result{a, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.analysis, r.err
	}
}

func (d *DNNDescriber) describeVideoLocked(path string) (*VideoAnalysis, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)
	frameCount := int(capture.Get(gocv.VideoCaptureFrameCount))
	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))

	var duration float64
	if fps > 0 && frameCount > 0 {
		duration = float64(frameCount) / fps
	}

	analysis := &VideoAnalysis{
		Width:           width,
		Height:          height,
		FrameCount:      frameCount,
		DurationSeconds: duration,
	}

	sampleCount := maxVideoSamples
	if duration > 0 {
		if n := int(duration/videoSampleInterval) + 1; n < sampleCount {
			sampleCount = n
		}
	}

	frame := gocv.NewMat()
	defer frame.Close()

	var (
		prevCounts map[string]int
		night      bool
		maxConf    float32
		eventTypes []string
	)
	for i := 0; i < sampleCount; i++ {
		offset := float64(i) * videoSampleInterval
		if duration > 0 && offset > duration {
			break
		}
		capture.Set(gocv.VideoCapturePosMsec, offset*1000)
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			break
		}

		counts, conf := d.detectObjects(frame)
		if conf > maxConf {
			maxConf = conf
		}
		if isNightFrame(frame) {
			night = true
		}

		if i == 0 || !sameCounts(counts, prevCounts) {
			desc := frameDescription(counts, night)
			eventType := classifyTransition(prevCounts, counts, i == 0)
			analysis.Timeline = append(analysis.Timeline, TimelineEvent{
				OffsetSeconds: offset,
				Description:   desc,
				EventType:     eventType,
			})
			if eventType != "" && eventType != "general_activity" {
				eventTypes = appendUnique(eventTypes, eventType)
			}
		}
		prevCounts = counts
	}

	analysis.Events = eventTypes

	// thumbnail frame at ~5s, or the midpoint for shorter clips
	thumbOffset := thumbnailOffsetSeconds
	if duration > 0 && duration < thumbnailOffsetSeconds {
		thumbOffset = duration / 2
	}
	capture.Set(gocv.VideoCapturePosMsec, thumbOffset*1000)
	if ok := capture.Read(&frame); ok && !frame.Empty() {
		img, err := frame.ToImage()
		if err != nil {
			log.Printf("describer(dnn): Warning: thumbnail frame conversion failed for %s: %v", path, err)
		} else {
			analysis.Thumbnail = img
		}
	} else {
		log.Printf("describer(dnn): Warning: could not read thumbnail frame from %s", path)
	}

	if len(analysis.Timeline) > 0 {
		analysis.Caption = analysis.Timeline[0].Description
	}
	analysis.Confidence = confidenceForVideo(analysis.Timeline, maxConf)

	return analysis, nil
}

// detectObjects runs the network over one frame and returns detected
// class counts plus the best confidence seen.
func (d *DNNDescriber) detectObjects(img gocv.Mat) (map[string]int, float32) {
	counts := map[string]int{}
	if !d.enabled || img.Empty() {
		return counts, 0
	}

	blob := gocv.BlobFromImage(img, d.scaleFactor,
		image.Pt(d.inputSizeW, d.inputSizeH), d.meanVal, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	detectionsMat := d.net.Forward("")
	defer detectionsMat.Close()

	sizes := detectionsMat.Size()
	if len(sizes) != 4 || sizes[2] == 0 {
		return counts, 0
	}
	numDetections := sizes[2]

	// reshape the Mat to 2D: [N, 7] rows of
	// (_, classID, confidence, x1, y1, x2, y2)
	detections2D := detectionsMat.Reshape(1, numDetections*sizes[3])
	detectionsData := detections2D.Reshape(1, numDetections)
	defer detectionsData.Close()

	var maxConf float32
	for i := 0; i < numDetections; i++ {
		confidence := detectionsData.GetFloatAt(i, 2)
		if confidence < d.confThreshold {
			continue
		}
		classID := int(detectionsData.GetFloatAt(i, 1))
		if classID < 0 || classID >= len(ssdClassLabels) {
			continue
		}
		counts[ssdClassLabels[classID]]++
		if confidence > maxConf {
			maxConf = confidence
		}
	}
	return counts, maxConf
}

// isNightFrame uses mean luminance as a cheap day/night heuristic.
func isNightFrame(img gocv.Mat) bool {
	mean := img.Mean()
	luminance := (mean.Val1 + mean.Val2 + mean.Val3) / 3
	return luminance < nightLuminanceThreshold
}

// synthesizeAspects builds the aspect map the processor composes into
// the stored description.
func synthesizeAspects(counts map[string]int, night bool) map[string]string {
	objects := objectInventory(counts)

	var securityItems []string
	if counts["person"] > 0 {
		securityItems = append(securityItems, "person present")
	}
	if vehicleCount(counts) > 0 {
		securityItems = append(securityItems, "vehicle present")
	}
	security := "no security-relevant objects detected"
	if len(securityItems) > 0 {
		security = strings.Join(securityItems, ", ")
	}

	setting := "daytime, bright"
	if night {
		setting = "night, low light"
	}

	general := "Quiet scene with no notable objects"
	if objects != "" {
		general = "Scene with " + objects
	}

	activities := "no activities detected"
	if counts["person"] > 0 || vehicleCount(counts) > 0 {
		activities = "motion detected"
	}

	objectsAspect := objects
	if objectsAspect == "" {
		objectsAspect = "none"
	}

	return map[string]string{
		"general":     general,
		"security":    security,
		"objects":     objectsAspect,
		"activities":  activities,
		"environment": setting,
	}
}

func frameDescription(counts map[string]int, night bool) string {
	objects := objectInventory(counts)
	if objects == "" {
		if night {
			return "no notable objects, dark scene"
		}
		return "no notable objects"
	}
	return objects + " in view"
}

// objectInventory renders counts as "1 car, 2 persons", classes sorted
// for deterministic output.
func objectInventory(counts map[string]int) string {
	classes := make([]string, 0, len(counts))
	for class := range counts {
		if class == "background" {
			continue
		}
		classes = append(classes, class)
	}
	sort.Strings(classes)

	var parts []string
	for _, class := range classes {
		n := counts[class]
		label := class
		if n != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	return strings.Join(parts, ", ")
}

func vehicleCount(counts map[string]int) int {
	total := 0
	for class, n := range counts {
		if vehicleClasses[class] {
			total += n
		}
	}
	return total
}

// classifyTransition labels a timeline entry by what changed since the
// previous sample.
func classifyTransition(prev, curr map[string]int, first bool) string {
	if first {
		return "general_activity"
	}
	switch {
	case curr["person"] > prev["person"]:
		return "person_enters"
	case curr["person"] < prev["person"]:
		return "person_exits"
	case vehicleCount(curr) > vehicleCount(prev):
		return "vehicle_arrives"
	case vehicleCount(curr) < vehicleCount(prev):
		return "vehicle_leaves"
	default:
		return "scene_change"
	}
}

func sameCounts(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func appendUnique(list []string, item string) []string {
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}

func confidenceFor(counts map[string]int, maxConf float32) float64 {
	if len(counts) == 0 {
		return 0.3
	}
	return float64(maxConf)
}

func confidenceForVideo(timeline []TimelineEvent, maxConf float32) float64 {
	if len(timeline) == 0 {
		return 0.3
	}
	if maxConf == 0 {
		return 0.3
	}
	return float64(maxConf)
}
