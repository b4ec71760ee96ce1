package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/uiextract/uiextract-processing-service/internal/domain/entity"
	"github.com/uiextract/uiextract-processing-service/internal/domain/port"
	"github.com/uiextract/uiextract-processing-service/internal/infra/archive"
	"github.com/uiextract/uiextract-processing-service/internal/infra/ffmpeg"
	"github.com/uiextract/uiextract-processing-service/internal/infra/frames"
	"github.com/uiextract/uiextract-processing-service/internal/infra/metrics"
	"github.com/uiextract/uiextract-processing-service/internal/sampler"
)

const lowerThresholdHint = "no UI changes detected; try a lower threshold"

type ProcessKeyframesUseCase struct {
	repo       port.JobRepository
	storage    port.VideoStorage
	archiver   port.Archiver
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	tempDir    string
	maxRetry   int
	samplerCfg sampler.Config
}

type ProcessKeyframesConfig struct {
	TempDir    string
	MaxRetries int
	Sampler    sampler.Config
}

func NewProcessKeyframesUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessKeyframesConfig,
) *ProcessKeyframesUseCase {
	return &ProcessKeyframesUseCase{
		repo:       repo,
		storage:    storage,
		archiver:   archiver,
		publisher:  publisher,
		dlq:        dlq,
		notifier:   notifier,
		logger:     logger,
		tempDir:    cfg.TempDir,
		maxRetry:   cfg.MaxRetries,
		samplerCfg: cfg.Sampler,
	}
}

func (uc *ProcessKeyframesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessKeyframesUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.KeyframeRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	cfg := uc.resolveSamplerConfig(msg, log)
	job.Threshold = cfg.Threshold
	job.MinTimeGap = cfg.MinTimeGap

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, cfg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues(string(job.Status)).Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

// resolveSamplerConfig applies per-job overrides from the message on top of
// the service defaults. Out-of-range overrides are dropped with a warning
// rather than failing the job.
func (uc *ProcessKeyframesUseCase) resolveSamplerConfig(msg entity.KeyframeRequestMessage, log *zap.Logger) sampler.Config {
	cfg := uc.samplerCfg
	if msg.Threshold != 0 {
		cfg.Threshold = msg.Threshold
	}
	if msg.MinTimeGap != 0 {
		cfg.MinTimeGap = msg.MinTimeGap
	}
	if err := cfg.Validate(); err != nil {
		log.Warn("invalid sampler override, falling back to defaults", zap.Error(err))
		return uc.samplerCfg
	}
	return cfg
}

func (uc *ProcessKeyframesUseCase) runPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.KeyframeRequestMessage,
	rawMsg []byte,
	cfg sampler.Config,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from object storage
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Sample keyframes
	smStart := time.Now()
	ctx3, spanSm := tracer.Start(ctx, "sample_keyframes")
	keyframes, duration, err := uc.sampleKeyframes(ctx3, videoPath, filepath.Join(workDir, "keyframes"), cfg, log)
	spanSm.End()
	if err != nil {
		if errors.Is(err, ffmpeg.ErrSourceUnavailable) {
			// An unreadable video yields no output, not a crash or a retry
			// storm. The status message tells the operator what happened.
			log.Warn("video source unavailable", zap.Error(err))
			job.MarkCompletedEmpty(0)
			if uerr := uc.repo.Update(ctx, job); uerr != nil {
				return fmt.Errorf("update job: %w", uerr)
			}
			uc.publishStatus(ctx, job, "video could not be read; no keyframes produced", log)
			return nil
		}
		if errors.Is(err, sampler.ErrDimensionMismatch) {
			// Frames from one stream always share dimensions; this is a bug,
			// not a transient condition.
			log.Error("frame dimension mismatch", zap.Error(err))
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "sample_keyframes: "+err.Error())
		}
		log.Error("keyframe sampling failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "sample_keyframes: "+err.Error(), log)
	}
	metrics.JobStageDuration.WithLabelValues("sample").Observe(time.Since(smStart).Seconds())
	metrics.KeyframesSavedTotal.Add(float64(len(keyframes)))

	if len(keyframes) == 0 {
		job.MarkCompletedEmpty(duration)
		if err := uc.repo.Update(ctx, job); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		uc.publishStatus(ctx, job, lowerThresholdHint, log)
		log.Info("no keyframes detected", zap.Float64("duration_secs", duration))
		return nil
	}

	// Zip the selected keyframes
	zipStart := time.Now()
	ctx4, spanZip := tracer.Start(ctx, "create_zip")
	zipPath := filepath.Join(workDir, "keyframes.zip")
	selection := msg.SelectedFilenames
	if len(selection) == 0 {
		for _, kf := range keyframes {
			selection = append(selection, kf.Filename)
		}
	}
	if err := uc.archiver.CreateArchive(ctx4, keyframes, selection, zipPath); err != nil {
		spanZip.End()
		if errors.Is(err, archive.ErrEmptySelection) {
			log.Error("selection matched no keyframes", zap.Strings("selection", msg.SelectedFilenames))
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "create_zip: "+err.Error())
		}
		log.Error("zip creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_zip: "+err.Error(), log)
	}
	spanZip.End()
	metrics.JobStageDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	// Upload zip to object storage
	upStart := time.Now()
	ctx5, spanUp := tracer.Start(ctx, "upload_zip")
	zipKey := fmt.Sprintf("%s/keyframes_%s.zip", msg.UserID, job.ID.String())
	zipFile, err := os.Open(zipPath)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_zip: "+err.Error(), log)
	}
	zipStat, _ := zipFile.Stat()
	if err := uc.storage.UploadZip(ctx5, zipKey, zipFile, zipStat.Size()); err != nil {
		zipFile.Close()
		spanUp.End()
		log.Error("zip upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_zip: "+err.Error(), log)
	}
	zipFile.Close()
	spanUp.End()
	metrics.JobStageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(zipKey, len(keyframes), duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, "", log)

	log.Info("job completed successfully",
		zap.Int("keyframe_count", len(keyframes)),
		zap.Float64("duration_secs", duration),
		zap.String("zip_key", zipKey),
	)

	return nil
}

// sampleKeyframes opens the video and runs one sampling pass, writing
// keyframe PNGs into outputDir. Returns the kept keyframes and the video
// duration in seconds.
func (uc *ProcessKeyframesUseCase) sampleKeyframes(
	ctx context.Context,
	videoPath, outputDir string,
	cfg sampler.Config,
	log *zap.Logger,
) ([]entity.Keyframe, float64, error) {
	src, err := ffmpeg.OpenSource(ctx, videoPath, log)
	if err != nil {
		return nil, 0, err
	}
	defer src.Close()

	store := frames.NewStore(outputDir, log)
	smp, err := sampler.New(cfg, store, log)
	if err != nil {
		return nil, 0, err
	}

	lastReported := 0
	smp.OnProgress(func(scanned, total int) {
		metrics.FramesScannedTotal.Add(float64(scanned - lastReported))
		lastReported = scanned
		if total > 0 {
			log.Debug("sampling progress", zap.Int("scanned", scanned), zap.Int("total", total))
		}
	})

	keyframes, err := smp.Run(ctx, src)
	if err != nil {
		return nil, 0, err
	}
	return keyframes, src.Duration(), nil
}

func (uc *ProcessKeyframesUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.KeyframeRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, "", log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessKeyframesUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.KeyframeRequestMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, "", uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ProcessKeyframesUseCase) publishStatus(ctx context.Context, job *entity.Job, hint string, log *zap.Logger) {
	statusMsg := entity.KeyframeStatusMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		ZipKey:        job.ZipKey,
		KeyframeCount: job.KeyframeCount,
		Duration:      job.VideoDuration,
		Hint:          hint,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
