package facematch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/campus-attendance/internal/database"
	"github.com/kozaktomas/campus-attendance/internal/metrics"
	"github.com/kozaktomas/campus-attendance/internal/signature"
)

// DefaultThreshold is the minimum cosine similarity accepted as a match.
const DefaultThreshold = 0.92

// scanBatchSize is the number of stored signatures scored per parallel step.
const scanBatchSize = 128

var (
	// ErrImageDecode is returned when the submitted image cannot be decoded.
	ErrImageDecode = signature.ErrImageDecode

	// ErrMatchTimeout is returned when matching exceeds its deadline. It
	// wraps ErrImageDecode so callers treat it as an unusable image.
	ErrMatchTimeout = fmt.Errorf("%w: matching timed out", ErrImageDecode)

	// ErrNoFaceDetected is returned by Enroll when the image has no face.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrInvalidThreshold is returned for thresholds outside [-1, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [-1, 1]")
)

// Options configures an Engine.
type Options struct {
	Assignment Assignment
	Workers    int // Parallel face scorers, defaults to GOMAXPROCS
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Engine matches faces in images against the signature store.
type Engine struct {
	detector   Detector
	store      database.SignatureWriter
	assignment Assignment
	workers    int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEngine creates a matching engine.
func NewEngine(detector Detector, store database.SignatureWriter, opts Options) *Engine {
	if opts.Assignment == "" {
		opts.Assignment = AssignGreedy
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		detector:   detector,
		store:      store,
		assignment: opts.Assignment,
		workers:    opts.Workers,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("module", "facematch"),
	}
}

// Assignment returns the configured assignment mode.
func (e *Engine) Assignment() Assignment {
	return e.assignment
}

// MatchImage decodes data and matches it. See MatchAll.
func (e *Engine) MatchImage(ctx context.Context, data []byte, threshold float64) (map[string]float64, error) {
	img, err := signature.Decode(data)
	if err != nil {
		e.metrics.RecordMatchFailure("decode")
		return nil, err
	}
	return e.MatchAll(ctx, img, threshold)
}

// MatchAll detects faces in img and returns person ID -> confidence for every
// enrolled person matched with similarity >= threshold. Confidence is the
// similarity rounded to two decimals and is never below threshold. Stored
// signatures of the wrong dimension and zero vectors are skipped. No faces or
// an empty store yield an empty map.
func (e *Engine) MatchAll(ctx context.Context, img image.Image, threshold float64) (map[string]float64, error) {
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	start := time.Now()

	regions, err := e.detector.Detect(ctx, img)
	if err != nil {
		return nil, e.failure(ctx, "detector", fmt.Errorf("detect faces: %w", err))
	}
	if len(regions) == 0 {
		e.metrics.RecordMatch(0, 0, time.Since(start))
		return map[string]float64{}, nil
	}

	faces, err := e.deriveAll(ctx, img, regions)
	if err != nil {
		return nil, e.failure(ctx, "derive", err)
	}

	perFace, scanned, err := e.score(ctx, faces, threshold)
	if err != nil {
		return nil, e.failure(ctx, "store", err)
	}

	var assigned map[string]float64
	switch e.assignment {
	case AssignIndependent:
		assigned = assignIndependent(perFace)
	default:
		assigned = assignGreedy(perFace)
	}

	matches := make(map[string]float64, len(assigned))
	for personID, sim := range assigned {
		matches[personID] = signature.Round2(sim)
	}

	e.metrics.RecordMatch(len(regions), len(matches), time.Since(start))
	e.logger.Debug("matched image",
		"faces", len(regions),
		"signatures", scanned,
		"matches", len(matches),
		"assignment", string(e.assignment),
		"duration", time.Since(start))
	return matches, nil
}

// failure maps deadline errors to ErrMatchTimeout and records the failure.
func (e *Engine) failure(ctx context.Context, reason string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.metrics.RecordMatchFailure("timeout")
		return fmt.Errorf("%w: %v", ErrMatchTimeout, err)
	}
	e.metrics.RecordMatchFailure(reason)
	return err
}

// deriveAll computes the signature of every region in parallel.
func (e *Engine) deriveAll(ctx context.Context, img image.Image, regions []Region) ([][]float32, error) {
	faces := make([][]float32, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, r := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			faces[i] = signature.Derive(signature.Crop(img, r))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("derive face signatures: %w", err)
	}
	return faces, nil
}

// score streams the store in batches and collects, per face, every person
// whose similarity reaches the threshold.
func (e *Engine) score(ctx context.Context, faces [][]float32, threshold float64) ([][]candidate, int, error) {
	perFace := make([][]candidate, len(faces))
	batch := make([]database.StoredSignature, 0, scanBatchSize)
	scanned, mismatched := 0, 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for i, face := range faces {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if !hasMagnitude(face) {
					return nil
				}
				for _, sig := range batch {
					sim := signature.CosineSimilarity(face, sig.Vector)
					// The reported confidence is rounded, so it must clear the threshold too.
					if sim >= threshold && signature.Round2(sim) >= threshold {
						perFace[i] = append(perFace[i], candidate{face: i, personID: sig.PersonID, similarity: sim})
					}
				}
				return nil
			})
		}
		err := g.Wait()
		batch = batch[:0]
		return err
	}

	for sig, err := range e.store.Scan(ctx) {
		if err != nil {
			return nil, scanned, fmt.Errorf("scan signatures: %w", err)
		}
		scanned++
		if len(sig.Vector) != signature.Dim {
			mismatched++
			continue
		}
		if !hasMagnitude(sig.Vector) {
			continue
		}
		batch = append(batch, sig)
		if len(batch) == scanBatchSize {
			if err := flush(); err != nil {
				return nil, scanned, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, scanned, err
	}

	if mismatched > 0 {
		e.logger.Warn("stored signatures with wrong dimension ignored", "count", mismatched)
	}
	return perFace, scanned, nil
}

// hasMagnitude reports whether v has a nonzero component. Zero vectors have
// no direction and never match.
func hasMagnitude(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}

// Enroll derives the signature of the largest face in data and stores it for
// personID, replacing any previous enrollment.
func (e *Engine) Enroll(ctx context.Context, personID string, data []byte, sourceRef string) (*Region, error) {
	img, err := signature.Decode(data)
	if err != nil {
		return nil, err
	}

	regions, err := e.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(regions) == 0 {
		return nil, ErrNoFaceDetected
	}

	largest := regions[0]
	for _, r := range regions[1:] {
		if r.Area() > largest.Area() {
			largest = r
		}
	}

	vec := signature.Derive(signature.Crop(img, largest))
	err = e.store.Put(ctx, database.StoredSignature{
		PersonID:    personID,
		Vector:      vec,
		SourceImage: sourceRef,
	})
	if err != nil {
		return nil, fmt.Errorf("store signature: %w", err)
	}

	e.logger.Info("enrolled face signature", "person_id", personID, "faces_detected", len(regions))
	return &largest, nil
}
