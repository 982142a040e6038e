package services

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"sword-client/marc"
	"sword-client/models"
	"sword-client/sword"
)

const (
	sessionTokenLength   = 32
	sessionTokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	submissionSchemaVersion = 1
)

// Submission is one in-progress deposit of one record to one remote server.
// Metadata is derived from the record up front when the submission is
// created; step-4 user edits overwrite it through the explicit setters.
type Submission struct {
	SID      string
	UserID   uint
	RecordID uint

	ServerID           uint
	CollectionURL      string
	MandatoryCategory  sword.CategoryRef
	OptionalCategories []sword.CategoryRef

	Metadata sword.Metadata

	// Candidate files by 1-based index, and the indices the user chose.
	Files  map[int]sword.FileInfo
	Chosen []int

	Links sword.Links
}

// NewSubmission creates a submission for a record, deriving the metadata
// from its MARC fields. An empty sid gets a freshly generated session token.
func NewSubmission(sid string, userID uint, record *models.Record) (*Submission, error) {
	fields, err := marc.Decode(record.Fields)
	if err != nil {
		return nil, fmt.Errorf("decoding record %d: %w", record.ID, err)
	}
	if sid == "" {
		sid = newSessionToken()
	}
	return &Submission{
		SID:      sid,
		UserID:   userID,
		RecordID: record.ID,
		Metadata: deriveMetadata(record, fields),
		Files:    map[int]sword.FileInfo{},
	}, nil
}

func newSessionToken() string {
	token := make([]byte, sessionTokenLength)
	for i := range token {
		token[i] = sessionTokenAlphabet[rand.IntN(len(sessionTokenAlphabet))]
	}
	return string(token)
}

func deriveMetadata(record *models.Record, fields marc.Record) sword.Metadata {
	// Contributor names and affiliations must stay aligned per field
	// instance: an instance without an affiliation subfield still occupies
	// its position.
	var contributorNames, contributorAffiliations []string
	for _, instance := range fields.Fields(marc.SpecContributorName, "a", "u") {
		contributorNames = append(contributorNames, instance[0])
		contributorAffiliations = append(contributorAffiliations, instance[1])
	}

	return sword.Metadata{
		RecordID: record.ID,
		Title:    fields.First(marc.SpecTitle),
		Abstract: fields.First(marc.SpecAbstract),
		Updated:  record.ModifiedAt.UTC().Format(time.RFC3339),
		Author: sword.Person{
			Name:        fields.First(marc.SpecAuthorName),
			Email:       fields.First(marc.SpecAuthorEmail),
			Affiliation: fields.First(marc.SpecAuthorAffiliation),
		},
		Contributors:            EqualizeContributors(contributorNames, nil, contributorAffiliations),
		ReportNumber:            fields.First(marc.SpecReportNumber),
		AdditionalReportNumbers: fields.All(marc.SpecAdditionalReportNumber),
		DOI:                     fields.First(marc.SpecDOI),
		Comments:                fields.All(marc.SpecComments),
		InternalNotes:           fields.All(marc.SpecInternalNotes),
		Journal: sword.JournalInfo{
			Code:  fields.First(marc.SpecJournalCode),
			Title: fields.First(marc.SpecJournalTitle),
			Page:  fields.First(marc.SpecJournalPage),
			Year:  fields.First(marc.SpecJournalYear),
		},
	}
}

// EqualizeContributors zips name, email and affiliation lists of possibly
// unequal lengths into one contributor per position of the longest list,
// padding missing entries with the empty string.
func EqualizeContributors(names, emails, affiliations []string) []sword.Person {
	n := len(names)
	if len(emails) > n {
		n = len(emails)
	}
	if len(affiliations) > n {
		n = len(affiliations)
	}
	if n == 0 {
		return nil
	}
	at := func(list []string, i int) string {
		if i < len(list) {
			return list[i]
		}
		return ""
	}
	contributors := make([]sword.Person, n)
	for i := range contributors {
		contributors[i] = sword.Person{
			Name:        at(names, i),
			Email:       at(emails, i),
			Affiliation: at(affiliations, i),
		}
	}
	return contributors
}

// SetFiles replaces the candidate file list with the record files matching
// the accepted extensions and the size ceiling (zero meaning unlimited).
// Indices are 1-based and assigned in the given file order.
func (s *Submission) SetFiles(files []models.RecordFile, acceptedExts []string, maxSize int64) {
	accepted := make(map[string]bool, len(acceptedExts))
	for _, ext := range acceptedExts {
		accepted[strings.ToLower(ext)] = true
	}
	s.Files = map[int]sword.FileInfo{}
	s.Chosen = nil
	index := 0
	for _, file := range files {
		if len(accepted) > 0 && !accepted[strings.ToLower(file.Extension)] {
			continue
		}
		if maxSize > 0 && file.Size > maxSize {
			continue
		}
		index++
		s.Files[index] = sword.FileInfo{
			Index:    index,
			Name:     file.Name,
			Key:      file.S3Key,
			URL:      file.URL,
			Checksum: file.Checksum,
			Size:     file.Size,
			MIME:     file.MIME,
		}
	}
}

// ChooseFiles records the candidate indices selected by the user.
func (s *Submission) ChooseFiles(indices []int) error {
	chosen := make([]int, 0, len(indices))
	seen := map[int]bool{}
	for _, index := range indices {
		if _, ok := s.Files[index]; !ok {
			return fmt.Errorf("no candidate file with index %d", index)
		}
		if seen[index] {
			continue
		}
		seen[index] = true
		chosen = append(chosen, index)
	}
	sort.Ints(chosen)
	s.Chosen = chosen
	return nil
}

// ChosenFiles returns the selected files in index order.
func (s *Submission) ChosenFiles() []sword.FileInfo {
	files := make([]sword.FileInfo, 0, len(s.Chosen))
	for _, index := range s.Chosen {
		files = append(files, s.Files[index])
	}
	return files
}

// CandidateFiles returns all candidate files in index order.
func (s *Submission) CandidateFiles() []sword.FileInfo {
	indices := make([]int, 0, len(s.Files))
	for index := range s.Files {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	files := make([]sword.FileInfo, 0, len(indices))
	for _, index := range indices {
		files = append(files, s.Files[index])
	}
	return files
}

// Explicit setters for the step-4 metadata edits.

func (s *Submission) SetTitle(title string) { s.Metadata.Title = title }
func (s *Submission) SetAbstract(abstract string) {
	s.Metadata.Abstract = abstract
}
func (s *Submission) SetAuthor(author sword.Person) {
	s.Metadata.Author = author
}
func (s *Submission) SetContributors(contributors []sword.Person) {
	s.Metadata.Contributors = contributors
}
func (s *Submission) SetReportNumber(rn string) { s.Metadata.ReportNumber = rn }
func (s *Submission) SetAdditionalReportNumbers(rns []string) {
	s.Metadata.AdditionalReportNumbers = rns
}
func (s *Submission) SetDOI(doi string) { s.Metadata.DOI = doi }
func (s *Submission) SetComments(comments []string) {
	s.Metadata.Comments = comments
}
func (s *Submission) SetJournal(journal sword.JournalInfo) {
	s.Metadata.Journal = journal
}

// SetCategories records the category selections of step 3.
func (s *Submission) SetCategories(mandatory sword.CategoryRef, optional []sword.CategoryRef) {
	s.MandatoryCategory = mandatory
	s.OptionalCategories = optional
}

// ComposedMetadata returns the metadata payload handed to the deposit
// client, including the category selections.
func (s *Submission) ComposedMetadata() *sword.Metadata {
	meta := s.Metadata
	meta.MandatoryCategory = s.MandatoryCategory
	meta.OptionalCategories = s.OptionalCategories
	return &meta
}

// submissionDTO is the versioned persistence shape of a Submission. The
// stored form is decoupled from the in-memory struct so either can evolve.
type submissionDTO struct {
	Version int `json:"version"`

	SID      string `json:"sid"`
	UserID   uint   `json:"user_id"`
	RecordID uint   `json:"record_id"`

	ServerID           uint                `json:"server_id"`
	CollectionURL      string              `json:"collection_url"`
	MandatoryCategory  sword.CategoryRef   `json:"mandatory_category"`
	OptionalCategories []sword.CategoryRef `json:"optional_categories"`

	Title                   string            `json:"title"`
	Abstract                string            `json:"abstract"`
	Updated                 string            `json:"updated"`
	Author                  sword.Person      `json:"author"`
	Contributors            []sword.Person    `json:"contributors"`
	ReportNumber            string            `json:"report_number"`
	AdditionalReportNumbers []string          `json:"additional_report_numbers"`
	DOI                     string            `json:"doi"`
	Comments                []string          `json:"comments"`
	InternalNotes           []string          `json:"internal_notes"`
	Journal                 sword.JournalInfo `json:"journal"`

	Files  map[int]sword.FileInfo `json:"files"`
	Chosen []int                  `json:"chosen"`

	Links sword.Links `json:"links"`
}

// Encode serializes the submission for the temporary store.
func (s *Submission) Encode() ([]byte, error) {
	dto := submissionDTO{
		Version:                 submissionSchemaVersion,
		SID:                     s.SID,
		UserID:                  s.UserID,
		RecordID:                s.RecordID,
		ServerID:                s.ServerID,
		CollectionURL:           s.CollectionURL,
		MandatoryCategory:       s.MandatoryCategory,
		OptionalCategories:      s.OptionalCategories,
		Title:                   s.Metadata.Title,
		Abstract:                s.Metadata.Abstract,
		Updated:                 s.Metadata.Updated,
		Author:                  s.Metadata.Author,
		Contributors:            s.Metadata.Contributors,
		ReportNumber:            s.Metadata.ReportNumber,
		AdditionalReportNumbers: s.Metadata.AdditionalReportNumbers,
		DOI:                     s.Metadata.DOI,
		Comments:                s.Metadata.Comments,
		InternalNotes:           s.Metadata.InternalNotes,
		Journal:                 s.Metadata.Journal,
		Files:                   s.Files,
		Chosen:                  s.Chosen,
		Links:                   s.Links,
	}
	payload, err := json.Marshal(dto)
	if err != nil {
		return nil, fmt.Errorf("encoding submission %s: %w", s.SID, err)
	}
	return payload, nil
}

// DecodeSubmission deserializes a stored submission, rejecting payloads of
// an unknown schema version.
func DecodeSubmission(payload []byte) (*Submission, error) {
	var dto submissionDTO
	if err := json.Unmarshal(payload, &dto); err != nil {
		return nil, fmt.Errorf("decoding submission: %w", err)
	}
	if dto.Version != submissionSchemaVersion {
		return nil, fmt.Errorf("unsupported submission schema version %d", dto.Version)
	}
	s := &Submission{
		SID:                dto.SID,
		UserID:             dto.UserID,
		RecordID:           dto.RecordID,
		ServerID:           dto.ServerID,
		CollectionURL:      dto.CollectionURL,
		MandatoryCategory:  dto.MandatoryCategory,
		OptionalCategories: dto.OptionalCategories,
		Metadata: sword.Metadata{
			RecordID:                dto.RecordID,
			Title:                   dto.Title,
			Abstract:                dto.Abstract,
			Updated:                 dto.Updated,
			Author:                  dto.Author,
			Contributors:            dto.Contributors,
			ReportNumber:            dto.ReportNumber,
			AdditionalReportNumbers: dto.AdditionalReportNumbers,
			DOI:                     dto.DOI,
			Comments:                dto.Comments,
			InternalNotes:           dto.InternalNotes,
			Journal:                 dto.Journal,
		},
		Files:  dto.Files,
		Chosen: dto.Chosen,
		Links:  dto.Links,
	}
	if s.Files == nil {
		s.Files = map[int]sword.FileInfo{}
	}
	return s, nil
}
