package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/maastricht-university/eaf2kaldi/config"
	"github.com/maastricht-university/eaf2kaldi/eaf"
)

type Pipeline struct {
	cfg      *cfg.Root
	log      logrus.FieldLogger
	speakers *SpeakerNormalizer
}

func NewPipeline(c *cfg.Root, log logrus.FieldLogger) (*Pipeline, error) {
	norm, err := NewSpeakerNormalizer(c.Speakers.StripPatterns)
	if err != nil {
		return nil, fmt.Errorf("speaker patterns: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{cfg: c, log: log, speakers: norm}, nil
}

// Discover returns the files matching pattern in sorted order.
func Discover(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Run converts every annotation file matching pattern, one at a time.
// The first failure stops the batch unless keep_going is set, in which
// case all failures are returned together after the last file. The
// report is written either way when paths.report is set.
func (p *Pipeline) Run(ctx context.Context, pattern string) (*Report, error) {
	paths, err := Discover(pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		p.log.WithField("pattern", pattern).Warn("no annotation files matched")
	}

	report := &Report{GeneratedAt: time.Now(), Pattern: pattern}
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sum, err := p.ProcessFile(path)
		if err != nil {
			err = fmt.Errorf("%s: %w", path, err)
			p.log.WithError(err).WithField("path", path).Error("recording failed")
			report.Failures = append(report.Failures, Failure{Source: path, Error: err.Error()})
			errs = append(errs, err)
			if !p.cfg.Pipeline.KeepGoing {
				break
			}
			continue
		}
		report.Recordings = append(report.Recordings, sum)
	}

	if p.cfg.Paths.Report != "" {
		if err := persist(p.cfg.Paths.Report, report); err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

// ProcessFile writes the corpus files of one annotation file next to it.
func (p *Pipeline) ProcessFile(path string) (sum RecordingSummary, err error) {
	dir, name := filepath.Split(path)
	recording := strings.TrimSuffix(name, filepath.Ext(name))
	basePath := filepath.Join(dir, recording)
	log := p.log.WithField("recording", recording)
	log.Info("processing recording")

	sum = RecordingSummary{ID: recording, Source: path}

	doc, err := eaf.Open(path)
	if err != nil {
		return sum, err
	}
	sum.Media = doc.MediaURLs()

	cw, err := newCorpusWriter(basePath, recording, p.cfg.Output.Suffixes, p.cfg.Output.Seconds)
	if err != nil {
		return sum, err
	}
	defer func() {
		if cerr := cw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	sum.Outputs = cw.Paths()

	speakers := map[string]struct{}{}
	for _, tier := range doc.TierNames() {
		speaker := p.speakers.Normalize(tier)
		speakers[speaker] = struct{}{}
		log.WithField("speaker", speaker).Debug("speaker")

		anns, err := doc.AnnotationData(tier)
		if err != nil {
			return sum, err
		}
		words := make([]Word, 0, len(anns))
		for _, a := range anns {
			words = append(words, Word{Start: a.Start, End: a.End, Text: a.Value})
		}

		for u := range Utterances(words, p.cfg.Segmenter.Terminators) {
			dup, err := cw.WriteUtterance(speaker, u)
			if err != nil {
				return sum, err
			}
			sum.Utterances++
			if dup {
				sum.Duplicates++
				log.WithFields(logrus.Fields{
					"speaker": speaker,
					"start":   u.Start,
					"end":     u.End,
				}).Warn("duplicate utterance id")
			}
		}
	}

	sum.Speakers, err = cw.WriteSpeakers(speakers)
	if err != nil {
		return sum, err
	}
	log.WithFields(logrus.Fields{
		"speakers":   len(sum.Speakers),
		"utterances": sum.Utterances,
	}).Info("recording done")
	return sum, nil
}
