package ocr

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"LayoutOcrServer/logger"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// recognizer is one OCR backend instance. Instances are not safe for
// concurrent use; the pool gives each worker its own.
type recognizer interface {
	Recognize(img []byte) (string, error)
	Close() error
}

type gosseractRecognizer struct {
	client *gosseract.Client
}

func newGosseractRecognizer(languages []string) (recognizer, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set ocr languages: %w", err)
		}
	}
	return &gosseractRecognizer{client: client}, nil
}

func (g *gosseractRecognizer) Recognize(img []byte) (string, error) {
	if err := g.client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := g.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}

func (g *gosseractRecognizer) Close() error {
	return g.client.Close()
}

type job struct {
	image  []byte
	result chan jobResult
}

type jobResult struct {
	text string
	err  error
}

// pool serializes recognition onto a fixed set of workers, each owning
// one recognizer on a locked OS thread.
type pool struct {
	jobs          chan job
	newRecognizer func() (recognizer, error)
}

func newPool(workers int, factory func() (recognizer, error)) *pool {
	p := &pool{
		jobs:          make(chan job, workers),
		newRecognizer: factory,
	}
	for i := 0; i < workers; i++ {
		go p.runWorker(i)
	}
	return p
}

func (p *pool) runWorker(workerID int) {
	var current *job
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("ocr worker panic, restarting in 1s",
				zap.Int("worker", workerID), zap.Any("panic", r))
			// The in-flight job must still get an answer; its result
			// channel is buffered, so this never blocks.
			if current != nil {
				current.result <- jobResult{err: fmt.Errorf("ocr worker panic: %v", r)}
			}
			time.Sleep(1 * time.Second)
			go p.runWorker(workerID)
		}
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	rec, err := p.newRecognizer()
	if err != nil {
		logger.Log().Error("ocr worker failed to start, retrying in 1s",
			zap.Int("worker", workerID), zap.Error(err))
		time.Sleep(1 * time.Second)
		go p.runWorker(workerID)
		return
	}
	defer rec.Close()

	logger.Log().Info("ocr worker started", zap.Int("worker", workerID))
	for j := range p.jobs {
		j := j
		current = &j
		text, err := rec.Recognize(j.image)
		current = nil
		j.result <- jobResult{text: text, err: err}
	}
}

// recognize submits one image to the pool and waits for its text. The
// result channel is buffered so an abandoned request never blocks the
// worker that picked it up.
func (p *pool) recognize(ctx context.Context, img []byte) (string, error) {
	res := make(chan jobResult, 1)
	select {
	case p.jobs <- job{image: img, result: res}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-res:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *pool) close() {
	close(p.jobs)
}
