// Package vosk implements the recognition engine on top of the Vosk speech toolkit.
package vosk

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blockdelete/blockdelete/internal/recognition"
)

// unknownWord lets a grammar-restricted recognizer reject speech outside the phrase list.
const unknownWord = "[unk]"

type finalResult struct {
	Text   string `json:"text"`
	Result []struct {
		Conf float64 `json:"conf"`
		Word string  `json:"word"`
	} `json:"result"`
}

type partialResult struct {
	Partial string `json:"partial"`
}

// decodeFinal parses Result/FinalResult JSON. Confidence is the mean word confidence
// when word details are present.
func decodeFinal(raw string) (recognition.Event, error) {
	var res finalResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return recognition.Event{}, fmt.Errorf("decode final result: %w", err)
	}
	ev := recognition.Event{Text: cleanText(res.Text), Final: true}
	if len(res.Result) > 0 {
		sum := 0.0
		for _, w := range res.Result {
			sum += w.Conf
		}
		conf := sum / float64(len(res.Result))
		ev.Confidence = &conf
	}
	return ev, nil
}

func decodePartial(raw string) (recognition.Event, error) {
	var res partialResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return recognition.Event{}, fmt.Errorf("decode partial result: %w", err)
	}
	return recognition.Event{Text: cleanText(res.Partial)}, nil
}

func cleanText(text string) string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		if f != unknownWord {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

// grammarJSON renders the phrase list plus the unknown-word marker.
func grammarJSON(phrases []string) (string, error) {
	list := make([]string, 0, len(phrases)+1)
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		list = append(list, p)
	}
	list = append(list, unknownWord)
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
