// Package arxiv implements the arXiv.org deposit engine: its service
// document layout, request header rules and Atom entry dialect.
package arxiv

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"sword-client/sword"
)

const (
	serviceDocumentURL = "https://arxiv.org/sword-app/servicedocument"
	abstractURLPrefix  = "http://arxiv.org/abs/"
	atomEntryMIME      = "application/atom+xml;type=entry"
	atomNS             = "http://www.w3.org/2005/Atom"
	arxivNS            = "http://arxiv.org/schemas/atom/"

	// arXiv rejects summaries shorter than this.
	minSummaryLength = 20
)

// Deposit debugging toggles understood by arXiv. Set from configuration at
// startup, before any deposit runs.
var (
	Verbose = false
	DryRun  = false
)

func init() {
	sword.Register("arxiv", New)
}

// Engine is the arXiv.org specialization of the deposit protocol.
type Engine struct {
	settings *sword.Settings
}

// New builds the engine for one configured server.
func New(settings *sword.Settings) sword.Engine {
	return &Engine{settings: settings}
}

func (e *Engine) Name() string {
	return "arxiv"
}

func (e *Engine) ServiceDocumentURL() string {
	return serviceDocumentURL
}

// ParseServiceDocument decodes the service document XML. arXiv reports the
// upload ceiling in kilobytes; it is converted to bytes here.
func (e *Engine) ParseServiceDocument(raw []byte) (*sword.ServiceDocument, error) {
	var sd serviceDocument
	if err := xml.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("decoding service document: %w", err)
	}

	doc := &sword.ServiceDocument{
		Version:       strings.TrimSpace(sd.Version),
		MaxUploadSize: sd.MaxUploadSize * 1024,
		Verbose:       strings.TrimSpace(sd.Verbose),
		NoOp:          strings.TrimSpace(sd.NoOp),
		Collections:   map[string]sword.Collection{},
	}
	for _, ws := range sd.Workspaces {
		for _, col := range ws.Collections {
			accepts := make([]string, 0, len(col.Accepts))
			for _, accept := range col.Accepts {
				accepts = append(accepts, strings.TrimSpace(accept))
			}
			doc.Collections[col.Href] = sword.Collection{
				Title:             strings.TrimSpace(col.Title),
				Accepts:           accepts,
				Policy:            strings.TrimSpace(col.Policy),
				Abstract:          strings.TrimSpace(col.Abstract),
				Mediation:         strings.TrimSpace(col.Mediation),
				Treatment:         strings.TrimSpace(col.Treatment),
				Categories:        categoryMap(col.Categories),
				PrimaryCategories: categoryMap(col.PrimaryCategories),
			}
		}
	}
	return doc, nil
}

func categoryMap(categories []category) map[string]sword.Category {
	m := make(map[string]sword.Category, len(categories))
	for _, cat := range categories {
		m[strings.TrimSpace(cat.Term)] = sword.Category{
			Label:  strings.TrimSpace(cat.Label),
			Scheme: strings.TrimSpace(cat.Scheme),
		}
	}
	return m
}

// MediaHeaders adds the arXiv headers of a media deposit: the content
// checksum and the contact author impersonation header.
func (e *Engine) MediaHeaders(h http.Header, file *sword.FileInfo, meta *sword.Metadata) {
	if file.Checksum != "" {
		h.Set("Content-MD5", file.Checksum)
	}
	e.commonHeaders(h, meta)
}

func (e *Engine) MetadataHeaders(h http.Header, meta *sword.Metadata) {
	h.Set("Content-Type", atomEntryMIME)
	e.commonHeaders(h, meta)
}

func (e *Engine) StatusHeaders(h http.Header) {
}

// commonHeaders sets X-On-Behalf-Of and the debugging toggles. arXiv only
// accepts the combined form when the name is plain ASCII, otherwise the
// email goes alone.
func (e *Engine) commonHeaders(h http.Header, meta *sword.Metadata) {
	if meta.Author.Email != "" {
		if meta.Author.Name != "" && isASCII(meta.Author.Name) {
			h.Set("X-On-Behalf-Of", fmt.Sprintf("%q <%s>", meta.Author.Name, meta.Author.Email))
		} else {
			h.Set("X-On-Behalf-Of", meta.Author.Email)
		}
	}
	if Verbose {
		h.Set("X-Verbose", "True")
	}
	if DryRun {
		h.Set("X-No-Op", "True")
	}
}

// MetadataEntry builds the Atom entry ingested after a successful media
// deposit. The author element carries the account identity; the contact
// author and the remaining authors become contributor elements, with the
// account email substituted when the contact author has none so that at
// least one contributor email is always present.
func (e *Engine) MetadataEntry(meta *sword.Metadata, media []sword.MediaResult) ([]byte, error) {
	doc := entry{
		XmlnsAtom:  atomNS,
		XmlnsArxiv: arxivNS,
		Title:      meta.Title,
		Updated:    meta.Updated,
		Author: entryAuthor{
			Name:  e.settings.Username,
			Email: e.settings.Email,
		},
	}
	if meta.RecordID != 0 {
		doc.ID = fmt.Sprintf("%d", meta.RecordID)
	}

	contact := meta.Author
	if contact.Name != "" || contact.Email != "" || contact.Affiliation != "" {
		if contact.Email == "" {
			contact.Email = e.settings.Email
		}
		doc.Contributors = append(doc.Contributors, contributor{
			Name:        contact.Name,
			Email:       contact.Email,
			Affiliation: contact.Affiliation,
		})
	}
	for _, person := range meta.Contributors {
		doc.Contributors = append(doc.Contributors, contributor{
			Name:        person.Name,
			Email:       person.Email,
			Affiliation: person.Affiliation,
		})
	}

	if meta.Abstract != "" {
		doc.Summary = padSummary(meta.Abstract)
	}

	for _, cat := range meta.OptionalCategories {
		doc.Categories = append(doc.Categories, entryCategory(cat))
	}
	doc.PrimaryCategory = entryCategory(meta.MandatoryCategory)

	if meta.ReportNumber != "" {
		doc.ReportNumbers = append(doc.ReportNumbers, meta.ReportNumber)
	}
	doc.ReportNumbers = append(doc.ReportNumbers, meta.AdditionalReportNumbers...)
	doc.DOI = meta.DOI
	doc.JournalRef = journalRef(meta.Journal)

	for _, result := range media {
		if result.Error {
			continue
		}
		doc.Links = append(doc.Links, entryLink{
			Href: result.Msg,
			Type: result.MIME,
			Rel:  "related",
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding atom entry: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// padSummary extends short abstracts with periods up to the minimum length
// arXiv accepts.
func padSummary(abstract string) string {
	if n := len(abstract); n < minSummaryLength {
		return abstract + strings.Repeat(".", minSummaryLength-n)
	}
	return abstract
}

// journalRef renders journal info as "Title: Code (Year) pp. Page",
// omitting absent parts. An empty title yields no reference at all.
func journalRef(journal sword.JournalInfo) string {
	if journal.Title == "" {
		return ""
	}
	ref := journal.Title
	if journal.Code != "" {
		ref += ": " + journal.Code
	}
	if journal.Year != "" {
		ref += " (" + journal.Year + ")"
	}
	if journal.Page != "" {
		ref += " pp. " + journal.Page
	}
	return ref
}

// MediaLink extracts the rel=edit-media link from a media deposit receipt.
func (e *Engine) MediaLink(body []byte) string {
	var receipt depositReceipt
	if err := xml.Unmarshal(body, &receipt); err != nil {
		return ""
	}
	for _, link := range receipt.Links {
		if link.Rel == "edit-media" {
			return link.Href
		}
	}
	return ""
}

func (e *Engine) MediaError(statusCode int, body []byte) string {
	return receiptError(statusCode, body)
}

// MetadataLinks extracts the alternate and edit links from an accepted
// metadata receipt.
func (e *Engine) MetadataLinks(body []byte) sword.Links {
	var (
		receipt depositReceipt
		links   sword.Links
	)
	if err := xml.Unmarshal(body, &receipt); err != nil {
		return links
	}
	for _, link := range receipt.Links {
		switch link.Rel {
		case "alternate":
			links.Alternate = link.Href
		case "edit":
			links.Edit = link.Href
		}
	}
	return links
}

func (e *Engine) MetadataError(statusCode int, body []byte) string {
	return receiptError(statusCode, body)
}

// receiptError prefers the atom summary of an error document over the bare
// HTTP status code.
func receiptError(statusCode int, body []byte) string {
	var receipt depositReceipt
	if err := xml.Unmarshal(body, &receipt); err == nil {
		if msg := strings.TrimSpace(receipt.Summary); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("HTTP Error %d", statusCode)
}

// ParseStatus decodes an arXiv status document. A published submission
// carries its arXiv id, which is turned into the public abstract URL.
func (e *Engine) ParseStatus(body []byte) sword.StatusInfo {
	var doc statusDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return sword.StatusInfo{}
	}
	info := sword.StatusInfo{
		Status: strings.TrimSpace(doc.Status),
		Error:  strings.TrimSpace(doc.Error),
	}
	if info.Status == "published" && doc.ArxivID != "" {
		info.URL = abstractURLPrefix + strings.TrimSpace(doc.ArxivID)
	}
	return info
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
