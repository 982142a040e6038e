// Package sword implements a client for SWORD deposit servers: service
// document handling, two-phase submission (media files first, then an Atom
// metadata entry) and status polling. Protocol details that differ between
// providers live behind the Engine interface.
package sword

// Category is one deposit category offered by a collection.
type Category struct {
	Label  string `json:"label"`
	Scheme string `json:"scheme"`
}

// Collection is one deposit collection of a service document.
type Collection struct {
	Title             string              `json:"title"`
	Accepts           []string            `json:"accepts"`
	Policy            string              `json:"policy"`
	Abstract          string              `json:"abstract"`
	Mediation         string              `json:"mediation"`
	Treatment         string              `json:"treatment"`
	Categories        map[string]Category `json:"categories"`
	PrimaryCategories map[string]Category `json:"primary_categories"`
}

// ServiceDocument is the parsed form of a server's service document.
// MaxUploadSize is in bytes.
type ServiceDocument struct {
	Version       string                `json:"version"`
	MaxUploadSize int64                 `json:"max_upload_size"`
	Verbose       string                `json:"verbose"`
	NoOp          string                `json:"no_op"`
	Collections   map[string]Collection `json:"collections"`
}

// Categories groups a collection's categories by obligation.
type Categories struct {
	Mandatory map[string]Category `json:"mandatory"`
	Optional  map[string]Category `json:"optional"`
}

// Person is an author or contributor.
type Person struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Affiliation string `json:"affiliation"`
}

// CategoryRef is a category selected for a submission.
type CategoryRef struct {
	Term   string `json:"term"`
	Scheme string `json:"scheme"`
	Label  string `json:"label"`
}

// JournalInfo is the journal publication info of a record.
type JournalInfo struct {
	Code  string `json:"code"`
	Title string `json:"title"`
	Page  string `json:"page"`
	Year  string `json:"year"`
}

// Metadata is the full metadata payload of one submission.
type Metadata struct {
	RecordID                uint
	Title                   string
	Abstract                string
	Updated                 string
	Author                  Person
	Contributors            []Person
	ReportNumber            string
	AdditionalReportNumbers []string
	DOI                     string
	Comments                []string
	InternalNotes           []string
	Journal                 JournalInfo
	MandatoryCategory       CategoryRef
	OptionalCategories      []CategoryRef
}

// FileInfo describes one file selected for media deposit. Key locates the
// content in object storage.
type FileInfo struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Key      string `json:"key"`
	URL      string `json:"url"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	MIME     string `json:"mime"`
}

// MediaResult is the per-file outcome of the media deposit phase. On
// success Msg carries the edit-media link returned by the server.
type MediaResult struct {
	Index int    `json:"index"`
	Error bool   `json:"error"`
	Msg   string `json:"msg"`
	Name  string `json:"name"`
	MIME  string `json:"mime"`
}

// Links are the permanent URLs returned for an accepted submission.
type Links struct {
	Alternate string `json:"alternate"`
	Edit      string `json:"edit"`
}

// Response is the merged outcome of a two-phase submission.
type Response struct {
	Error bool          `json:"error"`
	Msg   string        `json:"msg,omitempty"`
	Links Links         `json:"links,omitempty"`
	Media []MediaResult `json:"media,omitempty"`
}

// StatusInfo is a provider-parsed submission status.
type StatusInfo struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Humanize renders the status as a single string, appending the provider
// error or the public URL when present.
func (s StatusInfo) Humanize() string {
	if s.Error != "" {
		return s.Status + " (" + s.Error + ")"
	}
	if s.URL != "" {
		return s.Status + " (" + s.URL + ")"
	}
	return s.Status
}

// StatusResponse is the outcome of a status poll.
type StatusResponse struct {
	Error  bool       `json:"error"`
	Msg    string     `json:"msg,omitempty"`
	Status StatusInfo `json:"status,omitempty"`
}
