package translate

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrModelLoad means a translation model could not be loaded for a pair.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference means a loaded model failed to produce translations.
	ErrInference = errors.New("translation inference failed")
	// ErrUnsupportedPair means no model is configured for the pair.
	ErrUnsupportedPair = errors.New("unsupported language pair")
)

// Pair is an ordered (source, target) language combination.
type Pair struct {
	Source string
	Target string
}

func (p Pair) String() string {
	return p.Source + "-" + p.Target
}

// Request asks for one text to be translated.
type Request struct {
	Text     string
	Source   string
	Target   string
	Priority int
}

func (r Request) pair() Pair {
	return Pair{Source: r.Source, Target: r.Target}
}

// Result is a translation outcome. A non-nil Err is the failure marker; Text
// is empty in that case.
type Result struct {
	Text         string
	ModelVersion string
	ProducedAt   time.Time
	Err          error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

type resultJSON struct {
	Text         string    `json:"text,omitempty"`
	ModelVersion string    `json:"model_version,omitempty"`
	ProducedAt   time.Time `json:"produced_at"`
	Error        string    `json:"error,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Text:         r.Text,
		ModelVersion: r.ModelVersion,
		ProducedAt:   r.ProducedAt,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Text = in.Text
	r.ModelVersion = in.ModelVersion
	r.ProducedAt = in.ProducedAt
	r.Err = nil
	if in.Error != "" {
		r.Err = errors.New(in.Error)
	}
	return nil
}
