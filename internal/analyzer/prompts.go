// SPDX-License-Identifier: MIT

package analyzer

import (
	"fmt"
	"strings"

	"github.com/clinirec/analysis-worker/internal/behavior"
	"github.com/clinirec/analysis-worker/internal/genai"
)

// strictJSONReminder is appended when the first response was not a parseable
// payload and the request is re-issued at temperature zero.
const strictJSONReminder = "\n\nIMPORTANT: Respond with strict JSON only. No markdown, no code fences, no commentary."

func vocabularyBlock(vocab *behavior.Vocabulary) string {
	var sb strings.Builder
	sb.WriteString("Visual behaviors:\n")
	for _, d := range vocab.Definitions() {
		if d.Modality == behavior.Visual {
			fmt.Fprintf(&sb, "- %s: %s\n", d.Label, d.Definition)
		}
	}
	sb.WriteString("\nAudio behaviors:\n")
	for _, d := range vocab.Definitions() {
		if d.Modality == behavior.Audio {
			fmt.Fprintf(&sb, "- %s: %s\n", d.Label, d.Definition)
		}
	}
	return sb.String()
}

// detectionPrompt asks for every behavior episode inside one segment. The
// clip the model sees starts at the segment boundary, so all timestamps in
// the reply are clip-relative.
func detectionPrompt(vocab *behavior.Vocabulary, seg Segment) string {
	var sb strings.Builder
	sb.WriteString("You are reviewing a therapy session video of a child. ")
	sb.WriteString("Identify every episode of the following behaviors shown or heard in this clip.\n\n")
	sb.WriteString(vocabularyBlock(vocab))
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Use only the behavior labels listed above, exactly as written.\n")
	sb.WriteString("- Timestamps are seconds relative to the START OF THIS CLIP, not the full video.\n")
	sb.WriteString("- Report each continuous episode as ONE span with its start and end. Do not split an ongoing episode into per-second fragments.\n")
	sb.WriteString("- Set modality to \"visual\" for seen behaviors and \"audio\" for heard behaviors.\n")
	sb.WriteString("- Add a short factual note per episode describing what you observed.\n")
	fmt.Fprintf(&sb, "\nThis clip covers %.3f s to %.3f s of the full session video.\n", seg.StartSec, seg.EndSec)
	sb.WriteString("Respond with a JSON array of {behavior, modality, startSec, endSec, notes}. Respond with [] if no listed behavior occurs.")
	return sb.String()
}

// validationPrompt asks the model to confirm one merged span against its
// margin-expanded clip and refine the bounds.
func validationPrompt(vocab *behavior.Vocabulary, item Detection, clipStart, clipEnd float64) string {
	var sb strings.Builder
	def := ""
	for _, d := range vocab.Definitions() {
		if d.Label == item.Behavior {
			def = d.Definition
			break
		}
	}
	fmt.Fprintf(&sb, "You are verifying a detection in a therapy session video of a child.\n\n")
	fmt.Fprintf(&sb, "Claimed behavior: %s (%s)\n", item.Behavior, item.Modality)
	if def != "" {
		fmt.Fprintf(&sb, "Definition: %s\n", def)
	}
	fmt.Fprintf(&sb, "\nThe clip you see covers %.3f s to %.3f s of the full video and includes margin around the claimed span.\n", clipStart, clipEnd)
	sb.WriteString("Decide whether the child actually exhibits this behavior anywhere in the clip.\n")
	sb.WriteString("If yes, set correct to true and give the refined startSec and endSec of the behavior, in seconds relative to the START OF THIS CLIP.\n")
	sb.WriteString("If the behavior does not occur, or is performed by someone other than the child, set correct to false.\n")
	sb.WriteString("Respond with a JSON object {correct, startSec, endSec}.")
	return sb.String()
}

var detectionSchema = &genai.Schema{
	Type: "ARRAY",
	Items: &genai.Schema{
		Type: "OBJECT",
		Properties: map[string]*genai.Schema{
			"behavior": {Type: "STRING"},
			"modality": {Type: "STRING", Enum: []string{"visual", "audio"}},
			"startSec": {Type: "NUMBER"},
			"endSec":   {Type: "NUMBER"},
			"notes":    {Type: "STRING"},
		},
		Required: []string{"behavior", "modality", "startSec", "endSec"},
	},
}

var validationSchema = &genai.Schema{
	Type: "OBJECT",
	Properties: map[string]*genai.Schema{
		"correct":  {Type: "BOOLEAN"},
		"startSec": {Type: "NUMBER", Nullable: true},
		"endSec":   {Type: "NUMBER", Nullable: true},
	},
	Required: []string{"correct"},
}
