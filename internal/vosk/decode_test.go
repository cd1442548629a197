package vosk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFinalWithWordConfidence(t *testing.T) {
	ev, err := decodeFinal(`{
  "result" : [{"conf" : 1.0, "end" : 1.2, "start" : 0.6, "word" : "дубовые"},
              {"conf" : 0.5, "end" : 1.8, "start" : 1.2, "word" : "доски"}],
  "text" : "дубовые доски"
}`)
	require.NoError(t, err)
	require.True(t, ev.Final)
	require.Equal(t, "дубовые доски", ev.Text)
	require.NotNil(t, ev.Confidence)
	require.InDelta(t, 0.75, *ev.Confidence, 1e-9)
}

func TestDecodeFinalWithoutWords(t *testing.T) {
	ev, err := decodeFinal(`{"text" : ""}`)
	require.NoError(t, err)
	require.True(t, ev.Final)
	require.Empty(t, ev.Text)
	require.Nil(t, ev.Confidence)
}

func TestDecodePartialDropsUnknownMarker(t *testing.T) {
	ev, err := decodePartial(`{"partial" : "[unk] земля [unk]"}`)
	require.NoError(t, err)
	require.False(t, ev.Final)
	require.Equal(t, "земля", ev.Text)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := decodeFinal("not json")
	require.Error(t, err)
	_, err = decodePartial("{")
	require.Error(t, err)
}

func TestGrammarJSON(t *testing.T) {
	raw, err := grammarJSON([]string{"земля", " дубовые доски ", "", "земля"})
	require.NoError(t, err)

	var list []string
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	require.Equal(t, []string{"земля", "дубовые доски", "[unk]"}, list)
}
