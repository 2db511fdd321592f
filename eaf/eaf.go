// Package eaf reads ELAN annotation documents (.eaf).
//
// Only the parts needed to pull time-aligned annotations out of tiers are
// decoded: the header media descriptors, the time order and the tiers.
package eaf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	ErrTierNotFound = errors.New("eaf: tier not found")
	ErrUnaligned    = errors.New("eaf: unaligned time slot")
	ErrBadReference = errors.New("eaf: bad reference")
)

// Annotation is one annotation of a tier. Times are in milliseconds.
type Annotation struct {
	Start int64
	End   int64
	Value string
}

type xmlDocument struct {
	XMLName   xml.Name  `xml:"ANNOTATION_DOCUMENT"`
	Header    xmlHeader `xml:"HEADER"`
	TimeSlots []xmlSlot `xml:"TIME_ORDER>TIME_SLOT"`
	Tiers     []xmlTier `xml:"TIER"`
}

type xmlHeader struct {
	Media []xmlMedia `xml:"MEDIA_DESCRIPTOR"`
}

type xmlMedia struct {
	URL string `xml:"MEDIA_URL,attr"`
}

type xmlSlot struct {
	ID    string `xml:"TIME_SLOT_ID,attr"`
	Value *int64 `xml:"TIME_VALUE,attr"`
}

type xmlTier struct {
	ID          string          `xml:"TIER_ID,attr"`
	Annotations []xmlAnnotation `xml:"ANNOTATION"`
}

type xmlAnnotation struct {
	Alignable *xmlAlignable `xml:"ALIGNABLE_ANNOTATION"`
	Ref       *xmlRef       `xml:"REF_ANNOTATION"`
}

type xmlAlignable struct {
	ID    string `xml:"ANNOTATION_ID,attr"`
	Slot1 string `xml:"TIME_SLOT_REF1,attr"`
	Slot2 string `xml:"TIME_SLOT_REF2,attr"`
	Value string `xml:"ANNOTATION_VALUE"`
}

type xmlRef struct {
	ID    string `xml:"ANNOTATION_ID,attr"`
	Ref   string `xml:"ANNOTATION_REF,attr"`
	Value string `xml:"ANNOTATION_VALUE"`
}

// Document is a parsed annotation document.
type Document struct {
	raw xmlDocument

	slots map[string]*int64
	// annotation id -> owning alignable or ref entry
	alignable map[string]*xmlAlignable
	refs      map[string]*xmlRef
	tiers     map[string]*xmlTier
}

// Open parses the annotation document at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes an annotation document from r.
func Parse(r io.Reader) (*Document, error) {
	var raw xmlDocument
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("eaf: decode: %w", err)
	}
	d := &Document{
		raw:       raw,
		slots:     make(map[string]*int64, len(raw.TimeSlots)),
		alignable: map[string]*xmlAlignable{},
		refs:      map[string]*xmlRef{},
		tiers:     make(map[string]*xmlTier, len(raw.Tiers)),
	}
	for _, s := range raw.TimeSlots {
		d.slots[s.ID] = s.Value
	}
	for i := range d.raw.Tiers {
		t := &d.raw.Tiers[i]
		d.tiers[t.ID] = t
		for _, a := range t.Annotations {
			switch {
			case a.Alignable != nil:
				d.alignable[a.Alignable.ID] = a.Alignable
			case a.Ref != nil:
				d.refs[a.Ref.ID] = a.Ref
			}
		}
	}
	return d, nil
}

// TierNames returns the tier ids in document order.
func (d *Document) TierNames() []string {
	names := make([]string, 0, len(d.raw.Tiers))
	for _, t := range d.raw.Tiers {
		names = append(names, t.ID)
	}
	return names
}

// MediaURLs returns the media files linked from the header.
func (d *Document) MediaURLs() []string {
	var urls []string
	for _, m := range d.raw.Header.Media {
		if m.URL != "" {
			urls = append(urls, m.URL)
		}
	}
	return urls
}

// AnnotationData returns the annotations of tier ordered by start time.
// Reference annotations take the times of the annotation they point at.
func (d *Document) AnnotationData(tier string) ([]Annotation, error) {
	t, ok := d.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTierNotFound, tier)
	}
	out := make([]Annotation, 0, len(t.Annotations))
	for _, a := range t.Annotations {
		var (
			ann Annotation
			err error
		)
		switch {
		case a.Alignable != nil:
			ann.Start, ann.End, err = d.alignableTimes(a.Alignable)
			ann.Value = a.Alignable.Value
		case a.Ref != nil:
			ann.Start, ann.End, err = d.refTimes(a.Ref.ID)
			ann.Value = a.Ref.Value
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ann)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (d *Document) alignableTimes(a *xmlAlignable) (int64, int64, error) {
	start, err := d.slotTime(a.ID, a.Slot1)
	if err != nil {
		return 0, 0, err
	}
	end, err := d.slotTime(a.ID, a.Slot2)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func (d *Document) slotTime(annID, slotID string) (int64, error) {
	v, ok := d.slots[slotID]
	if !ok {
		return 0, fmt.Errorf("%w: annotation %s: time slot %q", ErrBadReference, annID, slotID)
	}
	if v == nil {
		return 0, fmt.Errorf("%w: annotation %s: time slot %q", ErrUnaligned, annID, slotID)
	}
	return *v, nil
}

// refTimes follows ANNOTATION_REF links until an alignable annotation.
func (d *Document) refTimes(id string) (int64, int64, error) {
	seen := map[string]bool{}
	for {
		if a, ok := d.alignable[id]; ok {
			return d.alignableTimes(a)
		}
		r, ok := d.refs[id]
		if !ok || seen[id] {
			return 0, 0, fmt.Errorf("%w: annotation %q", ErrBadReference, id)
		}
		seen[id] = true
		id = r.Ref
	}
}
