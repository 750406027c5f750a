package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeQuizAnswers serializes answers as {"answers": {qid: text}} with keys in
// question order. Questions without an answer are encoded as "".
func EncodeQuizAnswers(form *QuizForm, answers map[string]string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"answers":{`)
	if form != nil {
		for i, q := range form.Questions {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(q.ID)
			if err != nil {
				return "", fmt.Errorf("encode answer key %q: %w", q.ID, err)
			}
			v, err := json.Marshal(strings.TrimSpace(answers[q.ID]))
			if err != nil {
				return "", fmt.Errorf("encode answer %q: %w", q.ID, err)
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
	}
	buf.WriteString(`}}`)
	return buf.String(), nil
}

// DecodeQuizAnswers is the inverse of EncodeQuizAnswers.
func DecodeQuizAnswers(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}
	var doc struct {
		Answers map[string]string `json:"answers"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode quiz answers: %w", err)
	}
	if doc.Answers == nil {
		doc.Answers = map[string]string{}
	}
	return doc.Answers, nil
}
