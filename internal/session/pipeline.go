package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/signa/internal/classifier"
	"github.com/ayusman/signa/internal/detector"
	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/feature"
)

// tick runs one pass of the pipeline:
//
//  1. Pull a frame (bounded by the read timeout)
//  2. If detecting: extract keypoints, normalize, classify, offer to the word
//  3. Render the overlay and hand it to the frame sink
//
// A failed pull skips the tick without touching the session or the word.
// A panic anywhere in the pass releases the camera and returns to Idle.
func (c *Controller) tick(ctx context.Context) {
	if !c.session.CameraActive || c.source == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tick panicked", zap.Any("panic", r), zap.Stack("stack"))
			c.stopCamera()
			c.warn("session reset after panic", fmt.Errorf("tick panicked: %v", r))
		}
	}()

	frame, err := c.source.Next(ctx)
	if err != nil {
		c.warn("skipping tick", fmt.Errorf("%w: %w", ErrFrameRead, err))
		return
	}
	defer frame.Close()

	if frame.Empty() {
		c.warn("skipping tick", fmt.Errorf("%w: empty frame", ErrFrameRead))
		return
	}

	var (
		keypoints *detector.KeypointSet
		result    *classifier.Result
	)
	if c.session.DetectionActive {
		keypoints, result = c.recognize(frame)
	}

	annotated := c.config.Renderer.Render(*frame, keypoints, result)
	defer annotated.Close()

	if c.config.Frames != nil {
		c.config.Frames.ShowFrame(annotated)
	}
}

// recognize extracts and classifies the hand in frame. It returns the
// keypoints when a hand was found and the result when classification
// succeeded.
func (c *Controller) recognize(frame *gocv.Mat) (*detector.KeypointSet, *classifier.Result) {
	keypoints, err := c.config.Extractor.Extract(frame)
	if err != nil {
		c.warn("hand extraction failed", err)
		return nil, nil
	}
	if keypoints == nil {
		return nil, nil
	}

	result, err := c.config.Classifier.Classify(feature.Normalize(*keypoints))
	if err != nil {
		if !errors.Is(err, classifier.ErrClassification) {
			err = fmt.Errorf("%w: %v", classifier.ErrClassification, err)
		}
		c.warn("no prediction this tick", err)
		return keypoints, nil
	}

	appended := c.word.Offer(result.Label, result.Confidence)

	c.publish(events.NewPrediction(events.Prediction{
		Label:      result.Label,
		Confidence: result.Confidence,
		Appended:   appended,
		Word:       c.word.String(),
	}))

	return keypoints, &result
}
