package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/camden-git/foscambackend/config"
	"github.com/camden-git/foscambackend/describer"
	"github.com/camden-git/foscambackend/foscam"
	"github.com/camden-git/foscambackend/media"
	"github.com/camden-git/foscambackend/models"
	"github.com/camden-git/foscambackend/repository"
	"github.com/camden-git/foscambackend/utils"
)

const (
	readinessSampleGap = 250 * time.Millisecond
	readinessWaitCap   = 10 * time.Second
	describeRetryDelay = 2 * time.Second
)

// Outcome reports the terminal event for one offered path back to the
// producer that asked for it.
type Outcome struct {
	Path  string
	Event string
	Err   error
}

// Job is one path offered to the processor. FromWatcher jobs go through
// the readiness wait before their bytes are trusted.
type Job struct {
	Path        string
	FromWatcher bool
	Requeued    bool

	// optional; when set, the terminal outcome for the path is delivered
	// here (used by the crawler to build its report)
	Result chan<- Outcome
}

// Processor drains the admission queue with a small worker pool and runs
// the per-artifact pipeline: parse, dedupe, readiness wait, describe,
// derive, persist, report.
type Processor struct {
	JobQueue chan Job
	Cfg      config.Config

	Detections *repository.DetectionRepository
	Describer  describer.Describer
	Thumbs     *media.ThumbnailStore

	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool
	Mutex    sync.Mutex

	stopOnce sync.Once
}

// NewProcessor starts the worker pool. The describer handed in is
// expected to already be wrapped by the serializer lock.
func NewProcessor(cfg config.Config, detections *repository.DetectionRepository, desc describer.Describer, thumbs *media.ThumbnailStore) *Processor {
	queueSize := cfg.QueueCapacity
	if queueSize <= 0 {
		queueSize = 64
	}
	numWorkers := cfg.WorkerCount
	if numWorkers <= 0 {
		numWorkers = 1
	}

	proc := &Processor{
		JobQueue:   make(chan Job, queueSize),
		Cfg:        cfg,
		Detections: detections,
		Describer:  desc,
		Thumbs:     thumbs,
		StopChan:   make(chan struct{}),
		Pending:    make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d artifact processing worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

// Enqueue offers a job, blocking while the queue is full so producers
// get back-pressure instead of drops. Returns false if the processor is
// stopping or the same path is already pending.
func (p *Processor) Enqueue(job Job) bool {
	p.Mutex.Lock()
	if p.Pending[job.Path] && !job.Requeued {
		p.Mutex.Unlock()
		if job.Result != nil {
			job.Result <- Outcome{Path: job.Path, Event: EventSkippedKnown}
		}
		return false
	}
	p.Pending[job.Path] = true
	p.Mutex.Unlock()

	select {
	case p.JobQueue <- job:
		return true
	case <-p.StopChan:
		p.clearPending(job.Path)
		if job.Result != nil {
			job.Result <- Outcome{Path: job.Path, Event: EventCancelled}
		}
		return false
	}
}

func (p *Processor) clearPending(path string) {
	p.Mutex.Lock()
	delete(p.Pending, path)
	p.Mutex.Unlock()
}

// Stop signals the workers and waits for in-flight items to finish, up
// to the configured grace period, after which remaining workers are
// abandoned.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.StopChan)
	})

	done := make(chan struct{})
	go func() {
		p.Wg.Wait()
		close(done)
	}()

	grace := p.Cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	select {
	case <-done:
		log.Println("Processor workers drained")
	case <-time.After(grace):
		log.Printf("Warning: processor workers did not drain within %s, abandoning", grace)
	}
}

func (p *Processor) worker(id int) {
	defer p.Wg.Done()
	log.Printf("artifact worker %d started", id)
	for {
		select {
		case job, ok := <-p.JobQueue:
			if !ok {
				log.Printf("artifact worker %d stopping: job queue closed", id)
				return
			}
			outcome := p.process(job)
			p.clearPending(job.Path)
			if job.Result != nil && outcome.Event != "" {
				job.Result <- outcome
			}

		case <-p.StopChan:
			// drain what is already queued, then exit
			for {
				select {
				case job := <-p.JobQueue:
					outcome := p.process(job)
					p.clearPending(job.Path)
					if job.Result != nil && outcome.Event != "" {
						job.Result <- outcome
					}
				default:
					log.Printf("artifact worker %d stopping: stop signal received", id)
					return
				}
			}
		}
	}
}

// process runs the full pipeline for one path and emits exactly one
// terminal event.
func (p *Processor) process(job Job) Outcome {
	started := time.Now()

	// phase 1: parse
	info, err := foscam.ParsePath(job.Path)
	if err != nil {
		emitEvent(Event{Type: EventSkippedUnrecognized, Path: job.Path, Detail: err.Error()})
		return Outcome{Path: job.Path, Event: EventSkippedUnrecognized, Err: err}
	}

	// phase 2: dedupe
	exists, err := p.Detections.ExistsByFilepath(job.Path)
	if err != nil {
		emitEvent(Event{Type: EventFailedPersist, Path: job.Path, Detail: err.Error()})
		return Outcome{Path: job.Path, Event: EventFailedPersist, Err: err}
	}
	if exists {
		emitEvent(Event{Type: EventSkippedKnown, Path: job.Path})
		return Outcome{Path: job.Path, Event: EventSkippedKnown}
	}

	// phase 3: readiness wait (watcher jobs only; the crawler reads
	// settled files)
	if job.FromWatcher {
		if ready := p.waitUntilReady(job.Path); !ready {
			if !job.Requeued {
				requeue := job
				requeue.Requeued = true
				// non-blocking: a worker must not suspend on its own queue
				select {
				case p.JobQueue <- requeue:
					// the requeued pass delivers the terminal outcome
					return Outcome{Path: job.Path}
				default:
				}
			}
			emitEvent(Event{Type: EventSkippedNotReady, Path: job.Path})
			log.Printf("Warning: file %s never settled, dropping", job.Path)
			return Outcome{Path: job.Path, Event: EventSkippedNotReady}
		}
	}

	// phases 4-5: describe and derive
	analysis := p.describe(info, job.Path)

	// phase 6: single-transaction persist
	record := p.buildRecord(info, job.Path, analysis, time.Since(started).Seconds())
	detection, err := p.Detections.Create(record)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateFilepath) {
			// lost a race with a concurrent producer; same as dedupe hit
			emitEvent(Event{Type: EventSkippedKnown, Path: job.Path})
			return Outcome{Path: job.Path, Event: EventSkippedKnown}
		}
		emitEvent(Event{Type: EventFailedPersist, Path: job.Path, Detail: err.Error()})
		return Outcome{Path: job.Path, Event: EventFailedPersist, Err: err}
	}

	// phase 7: post-commit report
	emitEvent(Event{
		Type:           EventIngested,
		Path:           job.Path,
		DetectionID:    detection.ID,
		CameraID:       detection.CameraID,
		AlertKinds:     record.AlertKinds,
		ProcessingTime: record.ProcessingTime,
	})
	return Outcome{Path: job.Path, Event: EventIngested}
}

// waitUntilReady polls the file size until two successive samples taken
// at least 250ms apart agree and are non-zero, capped at 10s.
func (p *Processor) waitUntilReady(path string) bool {
	deadline := time.Now().Add(readinessWaitCap)
	var lastSize int64 = -1
	for time.Now().Before(deadline) {
		stat, err := os.Stat(path)
		if err != nil {
			lastSize = -1
			time.Sleep(readinessSampleGap)
			continue
		}
		size := stat.Size()
		if size > 0 && size == lastSize {
			return true
		}
		lastSize = size
		time.Sleep(readinessSampleGap)
	}
	return false
}

// artifactAnalysis collects what the describe phase produced for the
// persist phase. A nil aspects map with empty description marks a "seen
// but unanalyzable" artifact.
type artifactAnalysis struct {
	description   string
	alertKinds    []string
	aspects       map[string]string
	confidence    float64
	width         *int
	height        *int
	frameCount    *int
	duration      *float64
	thumbnailPath *string
	fileTimestamp *time.Time
}

// describe invokes the vision capability with the configured timeout,
// retrying once on a transient failure. A permanent or repeated failure
// yields an unanalyzable record so the path still commits and dedupes.
func (p *Processor) describe(info *foscam.PathInfo, path string) *artifactAnalysis {
	out := &artifactAnalysis{fileTimestamp: info.FileTimestamp}

	if info.MediaType == models.MediaTypeVideo {
		p.describeVideo(path, out)
	} else {
		p.describeImage(path, out)
	}
	return out
}

func (p *Processor) describeImage(path string, out *artifactAnalysis) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		log.Printf("Warning: unreadable or empty image %s: %v", path, err)
		return
	}

	if out.fileTimestamp == nil {
		out.fileTimestamp = utils.ExtractTakenAt(data)
	}

	analysis, err := p.describeImageWithRetry(data)
	if err != nil {
		log.Printf("Warning: describer failed for image %s: %v", path, err)
		return
	}

	description, kinds := foscam.ComposeImageDescription(analysis.Aspects)
	out.description = description
	out.alertKinds = kinds
	out.aspects = analysis.Aspects
	out.confidence = analysis.Confidence
	if analysis.Width > 0 {
		out.width = intPtr(analysis.Width)
	}
	if analysis.Height > 0 {
		out.height = intPtr(analysis.Height)
	}
}

func (p *Processor) describeImageWithRetry(data []byte) (*describer.ImageAnalysis, error) {
	analysis, err := p.describeImageOnce(data)
	if err != nil && describer.IsTransient(err) {
		log.Printf("Warning: transient describer failure, retrying once: %v", err)
		time.Sleep(describeRetryDelay)
		analysis, err = p.describeImageOnce(data)
	}
	return analysis, err
}

func (p *Processor) describeImageOnce(data []byte) (*describer.ImageAnalysis, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Cfg.DescriberImageTimeout)
	defer cancel()
	return p.Describer.DescribeImage(ctx, data)
}

func (p *Processor) describeVideo(path string, out *artifactAnalysis) {
	analysis, err := p.describeVideoWithRetry(path)
	if err != nil {
		log.Printf("Warning: describer failed for video %s: %v", path, err)
		return
	}

	entries := make([]foscam.TimelineEntry, 0, len(analysis.Timeline))
	eventTypes := make([]string, 0, len(analysis.Timeline))
	for _, event := range analysis.Timeline {
		entries = append(entries, foscam.TimelineEntry{
			OffsetSeconds: event.OffsetSeconds,
			Description:   event.Description,
		})
		eventTypes = append(eventTypes, event.EventType)
	}
	description, kinds := foscam.ComposeVideoDescription(analysis.DurationSeconds, entries, eventTypes)
	out.description = description
	out.alertKinds = kinds
	out.confidence = analysis.Confidence
	if analysis.Width > 0 {
		out.width = intPtr(analysis.Width)
	}
	if analysis.Height > 0 {
		out.height = intPtr(analysis.Height)
	}
	if analysis.FrameCount > 0 {
		out.frameCount = intPtr(analysis.FrameCount)
	}
	if analysis.DurationSeconds > 0 {
		duration := analysis.DurationSeconds
		out.duration = &duration
	}

	// keep the raw timeline for the structured blob
	aspects := map[string]string{}
	for _, event := range analysis.Timeline {
		aspects[fmt.Sprintf("timeline_%02d:%02d", int(event.OffsetSeconds)/60, int(event.OffsetSeconds)%60)] = event.Description
	}
	out.aspects = aspects

	if analysis.Thumbnail != nil {
		thumbPath, err := p.Thumbs.SaveForVideo(path, analysis.Thumbnail)
		if err != nil {
			log.Printf("Warning: thumbnail save failed for %s: %v", path, err)
			emitEvent(Event{Type: EventWarning, Path: path, Detail: "thumbnail save failed: " + err.Error()})
		} else {
			out.thumbnailPath = &thumbPath
		}
	} else {
		log.Printf("Warning: no thumbnail frame extracted for %s", path)
	}
}

func (p *Processor) describeVideoWithRetry(path string) (*describer.VideoAnalysis, error) {
	analysis, err := p.describeVideoOnce(path)
	if err != nil && describer.IsTransient(err) {
		log.Printf("Warning: transient describer failure, retrying once: %v", err)
		time.Sleep(describeRetryDelay)
		analysis, err = p.describeVideoOnce(path)
	}
	return analysis, err
}

func (p *Processor) describeVideoOnce(path string) (*describer.VideoAnalysis, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.Cfg.DescriberVideoTimeout)
	defer cancel()
	return p.Describer.DescribeVideo(ctx, path)
}

func (p *Processor) buildRecord(info *foscam.PathInfo, path string, analysis *artifactAnalysis, elapsed float64) *repository.NewDetection {
	return &repository.NewDetection{
		Location:           info.Location,
		DeviceName:         info.DeviceName,
		DeviceType:         info.DeviceType,
		Filename:           info.Filename,
		Filepath:           path,
		MediaType:          info.MediaType,
		MotionType:         info.MotionType,
		Description:        analysis.description,
		Confidence:         analysis.confidence,
		AnalysisStructured: analysis.aspects,
		FileTimestamp:      analysis.fileTimestamp,
		Width:              analysis.width,
		Height:             analysis.height,
		FrameCount:         analysis.frameCount,
		Duration:           analysis.duration,
		ProcessingTime:     elapsed,
		ThumbnailPath:      analysis.thumbnailPath,
		AlertKinds:         analysis.alertKinds,
	}
}

// Reprocess re-runs description and alert derivation for an existing
// detection and rewrites its analysis in one transaction. The thumbnail
// is overwritten in place (same stem).
func (p *Processor) Reprocess(detectionID uint) error {
	detection, err := p.Detections.GetByID(detectionID)
	if err != nil {
		return fmt.Errorf("failed to load detection %d: %w", detectionID, err)
	}

	info, err := foscam.ParsePath(detection.Filepath)
	if err != nil {
		return fmt.Errorf("stored filepath no longer parses: %w", err)
	}

	started := time.Now()
	analysis := p.describe(info, detection.Filepath)

	update := &repository.AnalysisUpdate{
		Description:        analysis.description,
		Confidence:         analysis.confidence,
		AnalysisStructured: analysis.aspects,
		ProcessingTime:     time.Since(started).Seconds(),
		Width:              analysis.width,
		Height:             analysis.height,
		FrameCount:         analysis.frameCount,
		Duration:           analysis.duration,
		ThumbnailPath:      analysis.thumbnailPath,
		AlertKinds:         analysis.alertKinds,
	}
	if err := p.Detections.Reprocess(detectionID, update); err != nil {
		return err
	}
	log.Printf("reprocessed detection %d (%s)", detectionID, detection.Filepath)
	return nil
}

func intPtr(v int) *int {
	return &v
}
