package orchestrator

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	cfg "github.com/maastricht-university/eaf2kaldi/config"
)

// Report summarizes one batch run.
type Report struct {
	GeneratedAt time.Time          `yaml:"generated_at"`
	Pattern     string             `yaml:"pattern"`
	Recordings  []RecordingSummary `yaml:"recordings"`
	Failures    []Failure          `yaml:"failures,omitempty"`
}

type outFile struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// corpusWriter holds the four per-recording output files. Close must be
// called on every path once newCorpusWriter succeeds.
type corpusWriter struct {
	recording string
	seconds   bool

	segments, text, utt2spk, speakers *outFile
	seen                              map[string]struct{}
}

func newCorpusWriter(basePath, recording string, s cfg.Suffixes, seconds bool) (*corpusWriter, error) {
	cw := &corpusWriter{recording: recording, seconds: seconds}
	targets := []struct {
		dst    **outFile
		suffix string
	}{
		{&cw.segments, s.Segments},
		{&cw.text, s.Text},
		{&cw.utt2spk, s.Utt2Spk},
		{&cw.speakers, s.Speakers},
	}
	for _, t := range targets {
		path := basePath + t.suffix
		f, err := os.Create(path)
		if err != nil {
			cw.Close()
			return nil, err
		}
		*t.dst = &outFile{path: path, f: f, w: bufio.NewWriter(f)}
	}
	return cw, nil
}

func (cw *corpusWriter) files() []*outFile {
	return []*outFile{cw.segments, cw.text, cw.utt2spk, cw.speakers}
}

// Paths lists the output files in write order.
func (cw *corpusWriter) Paths() []string {
	var out []string
	for _, of := range cw.files() {
		if of != nil {
			out = append(out, of.path)
		}
	}
	return out
}

// WriteUtterance appends one line to segments, text and utt2spk and
// reports whether the utterance id was already written.
func (cw *corpusWriter) WriteUtterance(speaker string, u Utterance) (dup bool, err error) {
	id := uttID(speaker, cw.recording, u)
	if cw.seen == nil {
		cw.seen = map[string]struct{}{}
	}
	if _, ok := cw.seen[id]; ok {
		dup = true
	}
	cw.seen[id] = struct{}{}

	if _, err = fmt.Fprintf(cw.segments.w, "%s %s %s %s\n", id, cw.recording, cw.formatTime(u.Start), cw.formatTime(u.End)); err != nil {
		return dup, err
	}
	if _, err = fmt.Fprintf(cw.text.w, "%s %s\n", id, u.Text); err != nil {
		return dup, err
	}
	_, err = fmt.Fprintf(cw.utt2spk.w, "%s %s\n", id, speaker)
	return dup, err
}

// WriteSpeakers writes the distinct speakers in sorted order.
func (cw *corpusWriter) WriteSpeakers(speakers map[string]struct{}) ([]string, error) {
	sorted := make([]string, 0, len(speakers))
	for s := range speakers {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)
	for _, s := range sorted {
		if _, err := fmt.Fprintln(cw.speakers.w, s); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

func (cw *corpusWriter) formatTime(ms int64) string {
	if cw.seconds {
		return strconv.FormatFloat(float64(ms)/1000, 'f', 2, 64)
	}
	return strconv.FormatInt(ms, 10)
}

// Close flushes and closes every open file and returns the first error.
func (cw *corpusWriter) Close() error {
	var first error
	for _, of := range cw.files() {
		if of == nil {
			continue
		}
		if err := of.w.Flush(); err != nil && first == nil {
			first = fmt.Errorf("flush %s: %w", of.path, err)
		}
		if err := of.f.Close(); err != nil && first == nil && !errors.Is(err, os.ErrClosed) {
			first = fmt.Errorf("close %s: %w", of.path, err)
		}
	}
	return first
}

func writeYAML(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func persist(path string, r *Report) error {
	if err := writeYAML(path, r); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
