package orchestrator

// Word is one word-level annotation of a tier.
type Word struct {
	Start int64 // ms
	End   int64 // ms
	Text  string
}

type Utterance struct {
	Start int64 // ms, start of the first word
	End   int64 // ms, end of the last word
	Text  string
}

// RecordingSummary describes the corpus files written for one recording.
type RecordingSummary struct {
	ID         string   `yaml:"id"`
	Source     string   `yaml:"source"`
	Media      []string `yaml:"media,omitempty"`
	Speakers   []string `yaml:"speakers"`
	Utterances int      `yaml:"utterances"`
	Duplicates int      `yaml:"duplicate_ids,omitempty"`
	Outputs    []string `yaml:"outputs"`
}

type Failure struct {
	Source string `yaml:"source"`
	Error  string `yaml:"error"`
}
