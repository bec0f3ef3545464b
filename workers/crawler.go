package workers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/facette/natsort"

	"github.com/camden-git/foscambackend/foscam"
	"github.com/camden-git/foscambackend/utils"
)

const maxReportedFailures = 20

// CrawlOptions narrows a backfill run. Kinds restricts to snap and/or
// record; Cameras restricts to camera full names (location_device);
// Limit caps how many files are offered (smoke tests).
type CrawlOptions struct {
	Limit   int
	Kinds   []string
	Cameras []string
}

// CrawlReport summarizes one backfill pass.
type CrawlReport struct {
	Seen                int      `json:"seen"`
	SkippedKnown        int      `json:"skipped_known"`
	SkippedUnrecognized int      `json:"skipped_unrecognized"`
	ProcessedOK         int      `json:"processed_ok"`
	Failed              int      `json:"failed"`
	Failures            []string `json:"failures,omitempty"`
}

// Crawler walks the camera tree once and streams discovered files into
// the processor, one at a time, blocking on queue admission.
type Crawler struct {
	Root      string
	Processor *Processor
}

func NewCrawler(root string, processor *Processor) *Crawler {
	return &Crawler{Root: root, Processor: processor}
}

// discoveredCamera is one recognized <location>/<device> directory.
type discoveredCamera struct {
	location   string
	deviceName string
	path       string
}

// discoverCameras finds every <root>/<location>/<device_name> directory
// whose device name matches a known prefix, ordered by
// (location, device_name) ascending. Unknown directories are ignored.
func (c *Crawler) discoverCameras() ([]discoveredCamera, error) {
	locations, err := os.ReadDir(c.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read foscam root %s: %w", c.Root, err)
	}

	var cameras []discoveredCamera
	for _, locationEntry := range locations {
		if !locationEntry.IsDir() {
			continue
		}
		locationPath := filepath.Join(c.Root, locationEntry.Name())
		devices, err := os.ReadDir(locationPath)
		if err != nil {
			log.Printf("Warning: failed to read location dir %s: %v", locationPath, err)
			continue
		}
		for _, deviceEntry := range devices {
			if !deviceEntry.IsDir() {
				continue
			}
			if !foscam.IsKnownDevice(deviceEntry.Name()) {
				log.Printf("crawler: ignoring unknown device directory: %s", deviceEntry.Name())
				continue
			}
			cameras = append(cameras, discoveredCamera{
				location:   locationEntry.Name(),
				deviceName: deviceEntry.Name(),
				path:       filepath.Join(locationPath, deviceEntry.Name()),
			})
		}
	}

	sort.Slice(cameras, func(i, j int) bool {
		if cameras[i].location != cameras[j].location {
			return cameras[i].location < cameras[j].location
		}
		return cameras[i].deviceName < cameras[j].deviceName
	})
	return cameras, nil
}

// crawlFile is one enumerated artifact candidate.
type crawlFile struct {
	path string
	info *foscam.PathInfo // nil when the name did not parse
}

// listCameraFiles enumerates a camera's snap/ and record/ children in
// the deterministic processing order: parseable timestamps ascending,
// then unparseable-timestamp files in natural name order.
func (c *Crawler) listCameraFiles(camera discoveredCamera, kinds []string) ([]crawlFile, int) {
	var parsed []crawlFile
	var unparsed []crawlFile
	unrecognized := 0

	for _, kind := range kinds {
		kindDir := filepath.Join(camera.path, kind)
		entries, err := os.ReadDir(kindDir)
		if err != nil {
			continue // cameras do not always have both subdirs
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if kind == foscam.KindSnap && !utils.IsFoscamImage(name) {
				unrecognized++
				continue
			}
			if kind == foscam.KindRecord && !utils.IsFoscamVideo(name) {
				unrecognized++
				continue
			}
			fullPath := filepath.Join(kindDir, name)
			info, err := foscam.ParsePath(fullPath)
			if err != nil {
				unrecognized++
				continue
			}
			file := crawlFile{path: fullPath, info: info}
			if info.FileTimestamp != nil {
				parsed = append(parsed, file)
			} else {
				unparsed = append(unparsed, file)
			}
		}
	}

	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].info.FileTimestamp.Before(*parsed[j].info.FileTimestamp)
	})
	sort.Slice(unparsed, func(i, j int) bool {
		return natsort.Compare(filepath.Base(unparsed[i].path), filepath.Base(unparsed[j].path))
	})
	return append(parsed, unparsed...), unrecognized
}

// Crawl walks the tree once, offering each recognized file to the
// processor and blocking on admission. Returns after every offered file
// has reached a terminal outcome.
func (c *Crawler) Crawl(ctx context.Context, opts CrawlOptions) (*CrawlReport, error) {
	report := &CrawlReport{}

	cameras, err := c.discoverCameras()
	if err != nil {
		return nil, err
	}
	log.Printf("crawler: discovered %d camera devices under %s", len(cameras), c.Root)

	cameraFilter := map[string]bool{}
	for _, name := range opts.Cameras {
		cameraFilter[name] = true
	}

	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []string{foscam.KindSnap, foscam.KindRecord}
	}

	// collect the full offer list first so outcome collection can be
	// sized; files are still streamed to the processor one at a time
	var files []crawlFile
	for _, camera := range cameras {
		if len(cameraFilter) > 0 && !cameraFilter[camera.location+"_"+camera.deviceName] {
			continue
		}
		cameraFiles, unrecognized := c.listCameraFiles(camera, kinds)
		report.Seen += len(cameraFiles) + unrecognized
		report.SkippedUnrecognized += unrecognized
		files = append(files, cameraFiles...)
	}

	if opts.Limit > 0 && len(files) > opts.Limit {
		report.Seen -= len(files) - opts.Limit
		files = files[:opts.Limit]
	}

	// every Enqueue delivers exactly one outcome on the channel, whether
	// the job was admitted, deduped in-flight, or refused by shutdown
	results := make(chan Outcome, len(files))
	offered := 0
	for _, file := range files {
		if ctx.Err() != nil {
			log.Printf("crawler: cancelled after offering %d files", offered)
			break
		}
		c.Processor.Enqueue(Job{Path: file.path, Result: results})
		offered++
	}

	for i := 0; i < offered; i++ {
		outcome := <-results
		switch outcome.Event {
		case EventIngested:
			report.ProcessedOK++
		case EventSkippedKnown:
			report.SkippedKnown++
		case EventSkippedUnrecognized:
			report.SkippedUnrecognized++
		case EventCancelled:
			// shutdown raced the offer; not a processing failure
		default:
			report.Failed++
			if len(report.Failures) < maxReportedFailures {
				report.Failures = append(report.Failures, fmt.Sprintf("%s: %s", outcome.Path, outcome.Event))
			}
		}
	}

	log.Printf("crawler: done. seen=%d ok=%d known=%d unrecognized=%d failed=%d",
		report.Seen, report.ProcessedOK, report.SkippedKnown, report.SkippedUnrecognized, report.Failed)
	return report, nil
}
