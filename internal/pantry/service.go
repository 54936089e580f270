package pantry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/shelf-scanner/internal/metrics"
	"github.com/zombor/shelf-scanner/internal/scanning"
)

// Records is the record store used by the Service
type Records interface {
	Append(ctx context.Context, record Record) (*Record, error)
	List(ctx context.Context, limit int) []*Record
	Get(ctx context.Context, id string) (*Record, error)
	Search(ctx context.Context, keyword string) []*Record
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Capture is an image handed to the pipeline by a capture source
type Capture struct {
	Filename    string
	Data        []byte
	ContentType string
	// Err reports a capture failure; the pipeline fails at the encoding stage
	Err error
}

// Observer receives every stage transition of a recognition
type Observer func(Stage)

// Service runs the recognition pipeline and exposes the record history
type Service struct {
	records     Records
	recognizer  scanning.Recognizer
	images      ImageStorage
	encoder     *scanning.Encoder
	retryPolicy scanning.RetryPolicy
	validator   Validator
	instruction string
	fallback    bool
	observer    Observer
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithRetryPolicy overrides the default retry policy
func WithRetryPolicy(policy scanning.RetryPolicy) ServiceOption {
	return func(s *Service) { s.retryPolicy = policy }
}

// WithValidator overrides the eligibility threshold
func WithValidator(v Validator) ServiceOption {
	return func(s *Service) { s.validator = v }
}

// WithFallback makes failed recognitions return DemoItems
func WithFallback(enabled bool) ServiceOption {
	return func(s *Service) { s.fallback = enabled }
}

// WithObserver registers a stage observer
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithInstruction overrides the default prompt
func WithInstruction(instruction string) ServiceOption {
	return func(s *Service) { s.instruction = instruction }
}

// WithEncoder overrides the payload encoder
func WithEncoder(e *scanning.Encoder) ServiceOption {
	return func(s *Service) { s.encoder = e }
}

// NewService creates a new Service. images may be nil, in which case captured
// images are not kept.
func NewService(records Records, recognizer scanning.Recognizer, images ImageStorage, opts ...ServiceOption) *Service {
	s := &Service{
		records:     records,
		recognizer:  recognizer,
		images:      images,
		encoder:     scanning.NewEncoder(),
		retryPolicy: scanning.DefaultRetryPolicy(),
		validator:   Validator{MaxDays: DefaultMaxShelfLifeDays},
		instruction: scanning.DefaultInstruction(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) transition(result *Result, stage Stage) {
	result.Stage = stage
	slog.Debug("Recognition stage", "stage", string(stage))
	if s.observer != nil {
		s.observer(stage)
	}
}

// fail moves the result to StageFailed. The caller still gets an item list:
// empty, or the demo list when fallback is enabled.
func (s *Service) fail(result *Result, err error) *Result {
	result.Err = DescribeError(err)
	result.Items = []scanning.Item{}
	if s.fallback {
		result.Items = DemoItems()
		result.Fallback = true
	}
	s.transition(result, StageFailed)
	metrics.RecognitionsTotal.WithLabelValues("failed").Inc()
	slog.Error("Recognition failed", "kind", result.Err.Kind, "error", err, "fallback", result.Fallback)
	return result
}

// Recognize runs one capture through the pipeline. Failures are reported in
// the result, never returned.
func (s *Service) Recognize(ctx context.Context, capture Capture) *Result {
	result := &Result{Items: []scanning.Item{}, Stage: StageIdle}

	s.transition(result, StageEncoding)
	if capture.Err != nil {
		return s.fail(result, &scanning.EncodingError{Reason: "capturing image", Err: capture.Err})
	}
	data, mimeType, err := scanning.Normalize(capture.Data, capture.ContentType)
	if err != nil {
		return s.fail(result, err)
	}
	encoded, err := s.encoder.Encode(data)
	if err != nil {
		return s.fail(result, err)
	}
	req := scanning.BuildRequest(encoded, mimeType, s.instruction)

	s.transition(result, StageInvoking)
	raw, err := s.invoke(ctx, req)
	if err != nil {
		return s.fail(result, err)
	}

	s.transition(result, StageParsing)
	parsed := scanning.Parse(raw)
	result.Items = parsed.Items
	result.Shape = parsed.Shape.String()
	result.Degraded = parsed.Degraded
	if parsed.Degraded {
		metrics.ParseDegradedTotal.WithLabelValues(parsed.Shape.String()).Inc()
	}

	s.transition(result, StageValidating)
	if !s.validator.Eligible(parsed.Items) {
		slog.Info("No item with a trackable shelf-life, not saving", "items", len(parsed.Items))
		s.transition(result, StageSkipped)
		s.transition(result, StageDone)
		metrics.RecognitionsTotal.WithLabelValues("skipped").Inc()
		return result
	}

	s.transition(result, StagePersisting)
	record, err := s.persist(ctx, capture, data, mimeType, parsed.Items)
	if err != nil {
		slog.Error("Failed to save recognition", "error", err)
		result.PersistErr = DescribeError(err)
		s.transition(result, StageDone)
		metrics.RecognitionsTotal.WithLabelValues("unsaved").Inc()
		return result
	}
	result.Saved = true
	result.Record = record
	s.transition(result, StageDone)
	metrics.RecognitionsTotal.WithLabelValues("saved").Inc()
	return result
}

// invoke calls the recognizer under the retry policy
func (s *Service) invoke(ctx context.Context, req scanning.RecognitionRequest) (scanning.RawResponse, error) {
	provider := s.recognizer.Name()
	start := time.Now()
	defer func() {
		metrics.ProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	return scanning.Retry(ctx, s.retryPolicy, func(ctx context.Context) (scanning.RawResponse, error) {
		raw, err := s.recognizer.Recognize(ctx, req)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ProviderCallsTotal.WithLabelValues(provider, outcome).Inc()
		return raw, err
	})
}

// persist stores the image and appends the record, removing the image again
// when the append fails
func (s *Service) persist(ctx context.Context, capture Capture, data []byte, mimeType string, items []scanning.Item) (*Record, error) {
	var imageRef string
	if s.images != nil {
		name := fmt.Sprintf("capture_%s_%s", uuid.NewString(), sanitizeFilename(capture.Filename))
		ref, err := s.images.Save(name, data)
		if err != nil {
			slog.Warn("Failed to store image, saving record without it", "error", err)
		} else {
			imageRef = ref
		}
	}

	record, err := s.records.Append(ctx, Record{
		ImageRef:    imageRef,
		ContentType: mimeType,
		Items:       items,
	})
	if err != nil {
		if imageRef != "" {
			if delErr := s.images.Delete(imageRef); delErr != nil {
				slog.Warn("Failed to remove image", "image_ref", imageRef, "error", delErr)
			}
		}
		return nil, err
	}
	return record, nil
}

// List returns recent records, most recent first
func (s *Service) List(ctx context.Context, limit int) []*Record {
	return s.records.List(ctx, limit)
}

// Search returns recent records with an item matching keyword
func (s *Service) Search(ctx context.Context, keyword string) []*Record {
	return s.records.Search(ctx, keyword)
}

// Get retrieves a record by ID
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// Delete removes a record and its image
func (s *Service) Delete(ctx context.Context, id string) error {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("getting record for deletion: %w", err)
	}

	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	if s.images != nil && record.ImageRef != "" {
		if err := s.images.Delete(record.ImageRef); err != nil {
			// Log error, the record itself is gone
			slog.Warn("Failed to delete image", "image_ref", record.ImageRef, "error", err)
		}
	}
	return nil
}

// Clear removes every record and its image
func (s *Service) Clear(ctx context.Context) error {
	records := s.records.List(ctx, -1)
	if err := s.records.Clear(ctx); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}

	if s.images == nil {
		return nil
	}
	for _, record := range records {
		if record.ImageRef == "" {
			continue
		}
		if err := s.images.Delete(record.ImageRef); err != nil {
			slog.Warn("Failed to delete image", "image_ref", record.ImageRef, "error", err)
		}
	}
	return nil
}

// Image retrieves the stored image for a record
func (s *Service) Image(ctx context.Context, id string) ([]byte, string, error) {
	record, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("getting record: %w", err)
	}
	if s.images == nil || record.ImageRef == "" {
		return nil, "", fmt.Errorf("record %s has no image: %w", id, ErrNotFound)
	}

	data, err := s.images.Get(record.ImageRef)
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}
	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
