package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	cfg "github.com/maastricht-university/eaf2kaldi/config"
)

const session = `<?xml version="1.0" encoding="UTF-8"?>
<ANNOTATION_DOCUMENT>
  <HEADER TIME_UNITS="milliseconds"/>
  <TIME_ORDER>
    <TIME_SLOT TIME_SLOT_ID="ts1" TIME_VALUE="1000"/>
    <TIME_SLOT TIME_SLOT_ID="ts2" TIME_VALUE="1400"/>
    <TIME_SLOT TIME_SLOT_ID="ts3" TIME_VALUE="1500"/>
    <TIME_SLOT TIME_SLOT_ID="ts4" TIME_VALUE="2100"/>
    <TIME_SLOT TIME_SLOT_ID="ts5" TIME_VALUE="2200"/>
    <TIME_SLOT TIME_SLOT_ID="ts6" TIME_VALUE="2750"/>
  </TIME_ORDER>
  <TIER TIER_ID="valtiovarainministeri Matti Meikäläinen">
    <ANNOTATION><ALIGNABLE_ANNOTATION ANNOTATION_ID="a1" TIME_SLOT_REF1="ts1" TIME_SLOT_REF2="ts2"><ANNOTATION_VALUE>Arvoisa</ANNOTATION_VALUE></ALIGNABLE_ANNOTATION></ANNOTATION>
    <ANNOTATION><ALIGNABLE_ANNOTATION ANNOTATION_ID="a2" TIME_SLOT_REF1="ts3" TIME_SLOT_REF2="ts4"><ANNOTATION_VALUE>puhemies.</ANNOTATION_VALUE></ALIGNABLE_ANNOTATION></ANNOTATION>
    <ANNOTATION><ALIGNABLE_ANNOTATION ANNOTATION_ID="a3" TIME_SLOT_REF1="ts5" TIME_SLOT_REF2="ts6"><ANNOTATION_VALUE>Kiitos</ANNOTATION_VALUE></ALIGNABLE_ANNOTATION></ANNOTATION>
  </TIER>
  <TIER TIER_ID="Anna Virtanen/sd">
    <ANNOTATION><ALIGNABLE_ANNOTATION ANNOTATION_ID="b1" TIME_SLOT_REF1="ts5" TIME_SLOT_REF2="ts6"><ANNOTATION_VALUE>Kyllä.</ANNOTATION_VALUE></ALIGNABLE_ANNOTATION></ANNOTATION>
  </TIER>
  <TIER TIER_ID="Anna Virtanen/sd2">
    <ANNOTATION><ALIGNABLE_ANNOTATION ANNOTATION_ID="c1" TIME_SLOT_REF1="ts5" TIME_SLOT_REF2="ts6"><ANNOTATION_VALUE>Kyllä.</ANNOTATION_VALUE></ALIGNABLE_ANNOTATION></ANNOTATION>
  </TIER>
  <TIER TIER_ID="Puhemies"/>
</ANNOTATION_DOCUMENT>
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func newTestPipeline(t *testing.T, mutate func(*cfg.Root)) (*Pipeline, *test.Hook) {
	t.Helper()
	c := cfg.Default()
	if mutate != nil {
		mutate(c)
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	p, err := NewPipeline(c, logger)
	require.NoError(t, err)
	return p, hook
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2016", "02", "session-1.eaf")
	writeFile(t, path, session)

	p, hook := newTestPipeline(t, nil)
	sum, err := p.ProcessFile(path)
	require.NoError(t, err)

	base := filepath.Join(dir, "2016", "02", "session-1")
	assert.Equal(t,
		"Matti-Meikäläinen-session-1-1000-2100 session-1 1000 2100\n"+
			"Matti-Meikäläinen-session-1-2200-2750 session-1 2200 2750\n"+
			"Anna-Virtanen-session-1-2200-2750 session-1 2200 2750\n"+
			"Anna-Virtanen-session-1-2200-2750 session-1 2200 2750\n",
		readFile(t, base+".segments"))
	assert.Equal(t,
		"Matti-Meikäläinen-session-1-1000-2100 Arvoisa puhemies.\n"+
			"Matti-Meikäläinen-session-1-2200-2750 Kiitos\n"+
			"Anna-Virtanen-session-1-2200-2750 Kyllä.\n"+
			"Anna-Virtanen-session-1-2200-2750 Kyllä.\n",
		readFile(t, base+".text"))
	assert.Equal(t,
		"Matti-Meikäläinen-session-1-1000-2100 Matti-Meikäläinen\n"+
			"Matti-Meikäläinen-session-1-2200-2750 Matti-Meikäläinen\n"+
			"Anna-Virtanen-session-1-2200-2750 Anna-Virtanen\n"+
			"Anna-Virtanen-session-1-2200-2750 Anna-Virtanen\n",
		readFile(t, base+".utt2spk"))
	assert.Equal(t, "Anna-Virtanen\nMatti-Meikäläinen\nPuhemies\n", readFile(t, base+".speakers"))

	assert.Equal(t, "session-1", sum.ID)
	assert.Equal(t, 4, sum.Utterances)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, []string{"Anna-Virtanen", "Matti-Meikäläinen", "Puhemies"}, sum.Speakers)
	assert.Equal(t, []string{base + ".segments", base + ".text", base + ".utt2spk", base + ".speakers"}, sum.Outputs)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "duplicate utterance id" {
			warned = true
			assert.Equal(t, "Anna-Virtanen", e.Data["speaker"])
		}
	}
	assert.True(t, warned)
}

func TestProcessFileSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.eaf")
	writeFile(t, path, session)

	p, _ := newTestPipeline(t, func(c *cfg.Root) { c.Output.Seconds = true })
	_, err := p.ProcessFile(path)
	require.NoError(t, err)

	segs := readFile(t, filepath.Join(filepath.Dir(path), "rec.segments"))
	assert.Contains(t, segs, "Matti-Meikäläinen-rec-1000-2100 rec 1.00 2.10\n")
}

func TestProcessFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.eaf")
	writeFile(t, path, "<ANNOTATION_DOCUMENT>")

	p, _ := newTestPipeline(t, nil)
	_, err := p.ProcessFile(path)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(path), "bad.segments"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunSortedAndReport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2017", "01", "b.eaf"), session)
	writeFile(t, filepath.Join(dir, "2016", "12", "a.eaf"), session)
	writeFile(t, filepath.Join(dir, "notes", "x", "c.eaf"), session)
	reportPath := filepath.Join(dir, "out", "report.yaml")

	p, _ := newTestPipeline(t, func(c *cfg.Root) { c.Paths.Report = reportPath })
	report, err := p.Run(context.Background(), filepath.Join(dir, "20*/*/*.eaf"))
	require.NoError(t, err)

	require.Len(t, report.Recordings, 2)
	assert.Equal(t, "a", report.Recordings[0].ID)
	assert.Equal(t, "b", report.Recordings[1].ID)
	assert.NoFileExists(t, filepath.Join(dir, "notes", "x", "c.segments"))

	var got Report
	require.NoError(t, yaml.Unmarshal([]byte(readFile(t, reportPath)), &got))
	require.Len(t, got.Recordings, 2)
	assert.Equal(t, 4, got.Recordings[1].Utterances)
}

func TestRunStopsOnFirstError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.eaf"), "<broken")
	writeFile(t, filepath.Join(dir, "b.eaf"), session)

	p, _ := newTestPipeline(t, nil)
	report, err := p.Run(context.Background(), filepath.Join(dir, "*.eaf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.eaf")
	assert.Empty(t, report.Recordings)
	require.Len(t, report.Failures, 1)
	assert.NoFileExists(t, filepath.Join(dir, "b.segments"))
}

func TestRunAbortWritesReport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.eaf"), session)
	writeFile(t, filepath.Join(dir, "b.eaf"), "<broken")
	writeFile(t, filepath.Join(dir, "c.eaf"), session)
	reportPath := filepath.Join(dir, "report.yaml")

	p, hook := newTestPipeline(t, func(c *cfg.Root) { c.Paths.Report = reportPath })
	report, err := p.Run(context.Background(), filepath.Join(dir, "*.eaf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.eaf")
	require.Len(t, report.Recordings, 1)
	require.Len(t, report.Failures, 1)
	assert.NoFileExists(t, filepath.Join(dir, "c.segments"))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	var got Report
	require.NoError(t, yaml.Unmarshal([]byte(readFile(t, reportPath)), &got))
	require.Len(t, got.Recordings, 1)
	assert.Equal(t, "a", got.Recordings[0].ID)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, filepath.Join(dir, "b.eaf"), got.Failures[0].Source)
}

func TestProcessFileMedia(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.eaf")
	withMedia := strings.Replace(session,
		`<HEADER TIME_UNITS="milliseconds"/>`,
		`<HEADER TIME_UNITS="milliseconds"><MEDIA_DESCRIPTOR MEDIA_URL="file:///data/rec.wav" MIME_TYPE="audio/x-wav"/></HEADER>`, 1)
	writeFile(t, path, withMedia)

	p, _ := newTestPipeline(t, nil)
	sum, err := p.ProcessFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///data/rec.wav"}, sum.Media)
}

func TestRunKeepGoing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.eaf"), "<broken")
	writeFile(t, filepath.Join(dir, "b.eaf"), session)

	p, hook := newTestPipeline(t, func(c *cfg.Root) { c.Pipeline.KeepGoing = true })
	report, err := p.Run(context.Background(), filepath.Join(dir, "*.eaf"))
	require.Error(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, filepath.Join(dir, "a.eaf"), report.Failures[0].Source)
	require.Len(t, report.Recordings, 1)
	assert.FileExists(t, filepath.Join(dir, "b.segments"))

	var errored bool
	for _, e := range hook.AllEntries() {
		errored = errored || e.Level == logrus.ErrorLevel
	}
	assert.True(t, errored)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.eaf"), session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, _ := newTestPipeline(t, nil)
	report, err := p.Run(ctx, filepath.Join(dir, "*.eaf"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Recordings)
}

func TestRunNoMatches(t *testing.T) {
	p, hook := newTestPipeline(t, nil)
	report, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "*.eaf"))
	require.NoError(t, err)
	assert.Empty(t, report.Recordings)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestDiscoverBadPattern(t *testing.T) {
	_, err := Discover("[")
	assert.Error(t, err)
}
