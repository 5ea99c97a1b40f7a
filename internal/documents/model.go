package documents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the extraction stage of a document. It only moves forward.
type Status string

const (
	StatusUploading   Status = "UPLOADING"
	StatusPendingOCR  Status = "PENDING_OCR"
	StatusProcessing  Status = "PROCESSING"
	StatusOCRComplete Status = "OCR_COMPLETE"
)

func (s Status) rank() int {
	switch s {
	case StatusUploading:
		return 1
	case StatusPendingOCR:
		return 2
	case StatusProcessing:
		return 3
	case StatusOCRComplete:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// Terminal reports whether no further transition exists.
func (s Status) Terminal() bool {
	return s == StatusOCRComplete
}

// CanAdvance reports whether moving from -> to goes strictly forward.
func CanAdvance(from, to Status) bool {
	return from.Valid() && to.Valid() && to.rank() > from.rank()
}

// Metadata places a voter list in the administrative hierarchy.
type Metadata struct {
	District     string `json:"district"`
	Upazila      string `json:"upazila"`
	Union        string `json:"union"`
	Ward         string `json:"ward"`
	Neighborhood string `json:"neighborhood"`
	Type         string `json:"type"`
}

// Document is one uploaded voter-list file. The file bytes live in the object
// store under StorageKey and are never embedded in the record.
type Document struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	UploadDate       time.Time  `json:"uploadDate"`
	UploadedBy       string     `json:"uploadedBy"`
	Status           Status     `json:"status"`
	Metadata         Metadata   `json:"metadata"`
	StorageKey       string     `json:"storageKey,omitempty"`
	FileName         string     `json:"fileName,omitempty"`
	MimeType         string     `json:"mimeType,omitempty"`
	SizeBytes        int64      `json:"sizeBytes,omitempty"`
	PageCount        int        `json:"pageCount,omitempty"`
	StatusChangedAt  time.Time  `json:"statusChangedAt"`
	NextTransitionAt *time.Time `json:"nextTransitionAt,omitempty"`
}

// UnmarshalJSON also reads records written by the browser-only portal, which
// stored uploadDate as epoch milliseconds and had no statusChangedAt.
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var aux struct {
		plain
		UploadDate      flexTime `json:"uploadDate"`
		StatusChangedAt flexTime `json:"statusChangedAt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Document(aux.plain)
	d.UploadDate = time.Time(aux.UploadDate)
	d.StatusChangedAt = time.Time(aux.StatusChangedAt)
	if d.StatusChangedAt.IsZero() {
		d.StatusChangedAt = d.UploadDate
	}
	return nil
}

// UnmarshalJSON accepts the older "para" key for the neighborhood.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var aux struct {
		plain
		Para string `json:"para"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Metadata(aux.plain)
	if m.Neighborhood == "" {
		m.Neighborhood = aux.Para
	}
	return nil
}

// flexTime decodes an RFC 3339 string or a number of epoch milliseconds.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = flexTime{}
		return nil
	case data[0] == '"':
		var parsed time.Time
		if err := json.Unmarshal(data, &parsed); err != nil {
			return err
		}
		*t = flexTime(parsed)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("time must be RFC 3339 or epoch milliseconds: %w", err)
	}
	*t = flexTime(time.UnixMilli(int64(ms)).UTC())
	return nil
}

// Advance is a compare-and-set status change applied by the extraction
// scheduler. It only applies while the stored status still equals From.
type Advance struct {
	ID     string
	From   Status
	To     Status
	At     time.Time
	NextAt *time.Time
}

// File is one file in an upload batch.
type File struct {
	FileName string
	Content  []byte
}

// Batch groups the files of one upload by voter category. Others is indexed
// by form slot; a nil entry is a slot left empty.
type Batch struct {
	Male   *File
	Female *File
	Others []*File
}

// Empty reports whether the batch carries no file.
func (b Batch) Empty() bool {
	if b.Male != nil || b.Female != nil {
		return false
	}
	for _, f := range b.Others {
		if f != nil {
			return false
		}
	}
	return true
}
