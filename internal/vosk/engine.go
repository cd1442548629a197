//go:build !novosk

package vosk

import (
	"errors"
	"fmt"
	"os"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/blockdelete/blockdelete/internal/recognition"
)

// Engine feeds PCM into one Vosk recognizer and queues its results.
type Engine struct {
	mu         sync.Mutex
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
	pending    []recognition.Event
}

// New loads the model at modelPath. A non-empty grammar restricts recognition to those
// phrases.
func New(modelPath string, sampleRate int, grammar []string) (recognition.Engine, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("vosk model %s: %w", modelPath, err)
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model: %w", err)
	}

	var rec *vosk.VoskRecognizer
	if len(grammar) > 0 {
		grm, gerr := grammarJSON(grammar)
		if gerr != nil {
			model.Free()
			return nil, fmt.Errorf("encode grammar: %w", gerr)
		}
		rec, err = vosk.NewRecognizerGrm(model, float64(sampleRate), grm)
	} else {
		rec, err = vosk.NewRecognizer(model, float64(sampleRate))
	}
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	rec.SetWords(1)

	return &Engine{model: model, recognizer: rec}, nil
}

// FeedAudio accepts s16le mono PCM.
func (e *Engine) FeedAudio(pcm []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recognizer == nil {
		return errors.New("vosk engine closed")
	}

	switch e.recognizer.AcceptWaveform(pcm) {
	case 1:
		ev, err := decodeFinal(e.recognizer.Result())
		if err != nil {
			return err
		}
		e.pending = append(e.pending, ev)
	case 0:
		ev, err := decodePartial(e.recognizer.PartialResult())
		if err != nil {
			return err
		}
		e.pending = append(e.pending, ev)
	default:
		return errors.New("vosk rejected audio buffer")
	}
	return nil
}

// NextEvent pops the oldest queued event.
func (e *Engine) NextEvent() (recognition.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return recognition.Event{}, false
	}
	ev := e.pending[0]
	e.pending = e.pending[1:]
	return ev, true
}

// Close frees the recognizer and the model.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recognizer != nil {
		e.recognizer.Free()
		e.recognizer = nil
	}
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
}
