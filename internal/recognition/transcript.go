package recognition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// transcriptPrompt is the shared prompt used by all LLM backends
const transcriptPrompt = `You are transcribing a scanned business document, usually one or more invoices. Read every piece of printed or handwritten text in the image, top to bottom and left to right, exactly as it appears. Do not correct spelling, do not summarise, do not translate and do not invent text that is not visible.

Return ONLY valid JSON in this exact format:
{
  "lines": [
    {"text": "line of text exactly as printed", "confidence": 0.95}
  ]
}

Important:
- One entry per visual line of text, in reading order
- "confidence" is your certainty that the line is transcribed correctly, between 0 and 1
- Keep currency symbols, punctuation and separators such as "==========" as printed
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const transcriptSchema = `{
  "type": "object",
  "required": ["lines"],
  "properties": {
    "lines": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

// defaultLineConfidence is used when a model omits its own confidence
const defaultLineConfidence = 0.8

var compiledTranscriptSchema = mustCompileSchema(transcriptSchema)

func mustCompileSchema(schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("transcript.json", bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("adding transcript schema: %v", err))
	}
	return compiler.MustCompile("transcript.json")
}

type transcript struct {
	Lines []struct {
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"lines"`
}

// parseTranscript turns an LLM response into fragments
func parseTranscript(text string) ([]Fragment, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	raw := []byte(text[startIdx : endIdx+1])

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := compiledTranscriptSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	var t transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshaling transcript: %w", err)
	}

	fragments := make([]Fragment, 0, len(t.Lines))
	for _, line := range t.Lines {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		conf := defaultLineConfidence
		if line.Confidence != nil {
			conf = *line.Confidence
		}
		fragments = append(fragments, Fragment{Text: line.Text, Confidence: conf})
	}
	return fragments, nil
}
