package overview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loqalabs/synapse-audio/internal/protocol"
)

func TestStudioRejectsConcurrentGenerationForNotebook(t *testing.T) {
	gen := &fakeGenerator{
		text:    fourLines,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	studio := NewStudio(newTestPipeline(gen, &fakeSynth{}, nil), nil, nil, discardLogger())

	type result struct {
		ov  *Overview
		err error
	}
	first := make(chan result, 1)
	go func() {
		ov, err := studio.Generate(context.Background(), Request{NotebookID: "nb-1", Summary: "first"})
		first <- result{ov, err}
	}()

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first generation did not start")
	}

	if _, err := studio.Generate(context.Background(), Request{NotebookID: "nb-1", Summary: "second"}); !errors.Is(err, ErrGenerationInFlight) {
		t.Fatalf("expected ErrGenerationInFlight, got %v", err)
	}

	close(gen.release)
	select {
	case res := <-first:
		if res.err != nil {
			t.Fatalf("first generation failed: %v", res.err)
		}
		if len(res.ov.Segments) != 4 {
			t.Fatalf("expected 4 segments, got %d", len(res.ov.Segments))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first generation did not finish")
	}

	if _, err := studio.Generate(context.Background(), Request{NotebookID: "nb-1", Summary: "third"}); err != nil {
		t.Fatalf("guard should be released after completion: %v", err)
	}
}

func TestStudioAllowsAnonymousConcurrentGeneration(t *testing.T) {
	studio := NewStudio(newTestPipeline(&fakeGenerator{text: fourLines}, &fakeSynth{}, nil), nil, nil, discardLogger())
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := studio.Generate(context.Background(), Request{Summary: "no notebook"})
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestStudioReleasesGuardOnFailure(t *testing.T) {
	studio := NewStudio(newTestPipeline(&fakeGenerator{err: errBoom}, &fakeSynth{}, nil), nil, nil, discardLogger())
	for i := 0; i < 2; i++ {
		_, err := studio.Generate(context.Background(), Request{NotebookID: "nb-2", Summary: "x"})
		var upErr *UpstreamGenerationError
		if !errors.As(err, &upErr) {
			t.Fatalf("attempt %d: expected UpstreamGenerationError, got %v", i, err)
		}
	}
}

func TestStudioRecordsAndSplicesRetries(t *testing.T) {
	synth := &fakeSynth{fail: func(text string) error {
		if text == "two" {
			return errBoom
		}
		return nil
	}}
	recorder := newMemRecorder()
	pub := &fakePublisher{}
	studio := NewStudio(newTestPipeline(&fakeGenerator{text: "AURA: one\nNEO: two\nAURA: three"}, synth, nil), recorder, pub, discardLogger())

	ov, err := studio.Generate(context.Background(), Request{NotebookID: "nb-3", Summary: "x"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	stored, err := studio.Overview(context.Background(), ov.ID)
	if err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}
	if stored.Segments[1].Status != StatusFailed {
		t.Fatalf("expected stored failure at index 1, got %+v", stored.Segments[1])
	}

	synth.setFail(nil)
	index := 1
	seg, err := studio.Retry(context.Background(), SpliceRequest{
		RetryRequest: RetryRequest{Speaker: SpeakerB, Text: "two"},
		OverviewID:   ov.ID,
		Index:        &index,
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if seg.Status != StatusSuccess {
		t.Fatalf("expected retry success, got %+v", seg)
	}

	stored, err = studio.Overview(context.Background(), ov.ID)
	if err != nil {
		t.Fatalf("Overview returned error: %v", err)
	}
	succeeded, failed := stored.Counts()
	if succeeded != 3 || failed != 0 {
		t.Fatalf("stored counts = %d/%d, want 3/0", succeeded, failed)
	}

	subjects := pub.subjects()
	if len(subjects) != 1 || subjects[0] != protocol.SubjectSegmentResult {
		t.Fatalf("expected one retry event, got %v", subjects)
	}
	evt := pub.events[0].payload.(protocol.SegmentEvent)
	if !evt.Retry || evt.Index != 1 || evt.Status != string(StatusSuccess) {
		t.Fatalf("unexpected retry event: %+v", evt)
	}
}

func TestStudioOverviewWithoutRecorder(t *testing.T) {
	studio := NewStudio(newTestPipeline(&fakeGenerator{}, &fakeSynth{}, nil), nil, nil, discardLogger())
	if _, err := studio.Overview(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
