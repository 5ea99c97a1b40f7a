package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	UploadDate       time.Time  `json:"uploadDate"`
	UploadedBy       string     `json:"uploadedBy"`
	Status           Status     `json:"status"`
	Metadata         Metadata   `json:"metadata"`
	FileName         string     `json:"fileName,omitempty"`
	MimeType         string     `json:"mimeType,omitempty"`
	SizeBytes        int64      `json:"sizeBytes"`
	PageCount        int        `json:"pageCount,omitempty"`
	HasFile          bool       `json:"hasFile"`
	StatusChangedAt  time.Time  `json:"statusChangedAt"`
	NextTransitionAt *time.Time `json:"nextTransitionAt,omitempty"`
}

func toResponse(doc Document) DocumentResponse {
	return DocumentResponse{
		ID:               doc.ID,
		Name:             doc.Name,
		UploadDate:       doc.UploadDate,
		UploadedBy:       doc.UploadedBy,
		Status:           doc.Status,
		Metadata:         doc.Metadata,
		FileName:         doc.FileName,
		MimeType:         doc.MimeType,
		SizeBytes:        doc.SizeBytes,
		PageCount:        doc.PageCount,
		HasFile:          doc.StorageKey != "",
		StatusChangedAt:  doc.StatusChangedAt,
		NextTransitionAt: doc.NextTransitionAt,
	}
}

func toResponses(docs []Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toResponse(d))
	}
	return out
}
