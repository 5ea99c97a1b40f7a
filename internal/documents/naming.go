package documents

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	TypeMale   = "পুরুষ"
	TypeFemale = "মহিলা"
	typeOther  = "অন্যান্য"
	wardLabel  = "ওয়ার্ড"
)

var whitespaceRun = regexp.MustCompile(`[\s\p{Z}\x{FEFF}]+`)

// TypeOther labels the file in the n-th (1-based) "other" slot.
func TypeOther(n int) string {
	return fmt.Sprintf("%s-%d", typeOther, n)
}

// BuildName renders "#district:upazila:union:ওয়ার্ড-N:neighborhood/type" with
// every whitespace run collapsed to a single hyphen.
func BuildName(m Metadata) string {
	raw := fmt.Sprintf("#%s:%s:%s:%s-%s:%s/%s", m.District, m.Upazila, m.Union, wardLabel, m.Ward, m.Neighborhood, m.Type)
	return whitespaceRun.ReplaceAllString(raw, "-")
}

type labeledFile struct {
	Type string
	File File
}

// label assigns category labels in upload order: male, female, then others.
// Others keep their slot number, so an empty slot leaves a gap.
func (b Batch) label() []labeledFile {
	var out []labeledFile
	if b.Male != nil {
		out = append(out, labeledFile{Type: TypeMale, File: *b.Male})
	}
	if b.Female != nil {
		out = append(out, labeledFile{Type: TypeFemale, File: *b.Female})
	}
	for i, f := range b.Others {
		if f == nil {
			continue
		}
		out = append(out, labeledFile{Type: TypeOther(i + 1), File: *f})
	}
	return out
}

func (m Metadata) trimmed() Metadata {
	return Metadata{
		District:     strings.TrimSpace(m.District),
		Upazila:      strings.TrimSpace(m.Upazila),
		Union:        strings.TrimSpace(m.Union),
		Ward:         strings.TrimSpace(m.Ward),
		Neighborhood: strings.TrimSpace(m.Neighborhood),
		Type:         strings.TrimSpace(m.Type),
	}
}

func (m Metadata) missingField() string {
	switch {
	case m.District == "":
		return "district"
	case m.Upazila == "":
		return "upazila"
	case m.Union == "":
		return "union"
	case m.Ward == "":
		return "ward"
	case m.Neighborhood == "":
		return "neighborhood"
	default:
		return ""
	}
}
