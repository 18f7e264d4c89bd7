package ai

import "strings"

// Each line is one instruction sent to the model ahead of the audio.
var transcriptionInstructions = []string{
	"音声データを一字一句、聞こえたまま忠実に文字起こししてください。",
	"整文、要約、言い換え、話者分離のタグ付けは一切行わないでください。",
	"フィラー（えー、あー等）も発話されている通りに記述してください。",
}

// TranscriptionPrompt asks for a verbatim transcript: every word as heard,
// fillers kept, with no tidying, summarising, rephrasing or speaker tags.
// All front-ends share it.
var TranscriptionPrompt = strings.Join(transcriptionInstructions, "\n")
