// Package services holds the application logic between the HTTP surface and
// the deposit client: the submission object, the step-by-step workflow, the
// gorm store and the server administration helpers.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sword-client/models"
	"sword-client/sword"
)

var (
	// ErrAlreadySubmitted is returned when the record/server pair already
	// has an archived submission.
	ErrAlreadySubmitted = errors.New("this record has already been submitted to this server")

	// ErrState marks inconsistent workflow state (missing temp submission,
	// missing server row). Handlers show a generic message for it.
	ErrState = errors.New("inconsistent submission state")
)

// Workflow drives the four-step submission process and the server-side
// operations that need a deposit client (refresh, status polling).
type Workflow struct {
	store  Storage
	media  sword.MediaSource
	logger *zap.Logger

	maxContributors int
	clientOpts      []sword.Option

	// Guards against concurrent double-submission of the final step.
	finalizing singleflight.Group
}

func NewWorkflow(store Storage, media sword.MediaSource, logger *zap.Logger, maxContributors int, clientOpts ...sword.Option) *Workflow {
	return &Workflow{
		store:           store,
		media:           media,
		logger:          logger,
		maxContributors: maxContributors,
		clientOpts:      clientOpts,
	}
}

// ServerOption is one selectable remote server on step 1.
type ServerOption struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// StartResult is the payload of the workflow entry point.
type StartResult struct {
	SID     string         `json:"sid"`
	Servers []ServerOption `json:"servers"`
}

// CollectionOption is one selectable collection on step 2.
type CollectionOption struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ServerStepResult is the payload after the server was chosen.
type ServerStepResult struct {
	SID         string             `json:"sid"`
	Collections []CollectionOption `json:"collections"`
}

// CategoryOptions are a collection's categories, sorted by label.
type CategoryOptions struct {
	Mandatory []sword.CategoryRef `json:"mandatory"`
	Optional  []sword.CategoryRef `json:"optional"`
}

// CollectionStepResult is the payload after the collection was chosen.
type CollectionStepResult struct {
	SID        string          `json:"sid"`
	Categories CategoryOptions `json:"categories"`
}

// MetadataView is the editable metadata presented on step 4. The
// contributor list is capped for display.
type MetadataView struct {
	Title                   string            `json:"title"`
	Abstract                string            `json:"abstract"`
	Author                  sword.Person      `json:"author"`
	Contributors            []sword.Person    `json:"contributors"`
	ReportNumber            string            `json:"report_number"`
	AdditionalReportNumbers []string          `json:"additional_report_numbers"`
	DOI                     string            `json:"doi"`
	Comments                []string          `json:"comments"`
	Journal                 sword.JournalInfo `json:"journal"`
}

// CategoriesStepResult is the payload after the categories were chosen.
type CategoriesStepResult struct {
	SID         string           `json:"sid"`
	Metadata    MetadataView     `json:"metadata"`
	Files       []sword.FileInfo `json:"files"`
	MaxFileSize int64            `json:"max_file_size"`
}

// MetadataEdits carries the step-4 form fields. Nil fields leave the
// derived value untouched.
type MetadataEdits struct {
	Title                   *string            `json:"title"`
	Abstract                *string            `json:"abstract"`
	Author                  *sword.Person      `json:"author"`
	Contributors            *[]sword.Person    `json:"contributors"`
	ReportNumber            *string            `json:"report_number"`
	AdditionalReportNumbers *[]string          `json:"additional_report_numbers"`
	DOI                     *string            `json:"doi"`
	Comments                *[]string          `json:"comments"`
	Journal                 *sword.JournalInfo `json:"journal"`
}

// FinalizeRequest is the input of the final step.
type FinalizeRequest struct {
	Metadata MetadataEdits `json:"metadata"`
	Files    []int         `json:"files"`
}

// FinalizeResult is the outcome of the final step. Archived is true when
// the deposit succeeded and the submission moved to permanent storage.
type FinalizeResult struct {
	SID      string         `json:"sid"`
	Archived bool           `json:"archived"`
	Response sword.Response `json:"response"`
}

// Start begins a submission for a record. When the target server is already
// known the archived submissions are checked first, before any temporary
// state is created.
func (w *Workflow) Start(ctx context.Context, userID, recordID, serverID uint) (*StartResult, error) {
	if serverID != 0 {
		archived, err := w.store.IsArchived(ctx, recordID, serverID)
		if err != nil {
			return nil, err
		}
		if archived {
			return nil, ErrAlreadySubmitted
		}
	}

	record, err := w.store.Record(ctx, recordID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("record %d: %w", recordID, ErrState)
	}
	if err != nil {
		return nil, err
	}

	sub, err := NewSubmission("", userID, record)
	if err != nil {
		return nil, err
	}
	if err := w.persist(ctx, sub); err != nil {
		return nil, err
	}

	servers, err := w.store.Servers(ctx)
	if err != nil {
		return nil, err
	}
	options := make([]ServerOption, 0, len(servers))
	for _, server := range servers {
		options = append(options, ServerOption{ID: server.ID, Name: server.Name})
	}
	return &StartResult{SID: sub.SID, Servers: options}, nil
}

// ChooseServer applies the step-1 selection: it rechecks the duplicate
// guard, refreshes a stale service document and returns the collections.
func (w *Workflow) ChooseServer(ctx context.Context, sid string, serverID uint) (*ServerStepResult, error) {
	sub, err := w.load(ctx, sid)
	if err != nil {
		return nil, err
	}

	archived, err := w.store.IsArchived(ctx, sub.RecordID, serverID)
	if err != nil {
		return nil, err
	}
	if archived {
		return nil, ErrAlreadySubmitted
	}

	sub.ServerID = serverID
	client, err := w.clientFor(ctx, sub)
	if err != nil {
		return nil, err
	}
	if _, err := client.EnsureFresh(ctx); err != nil {
		// A stale cached document still lets the workflow continue; only a
		// server without any document at all blocks the step.
		if client.Collections() == nil {
			return nil, fmt.Errorf("refreshing service document: %w", err)
		}
		w.logger.Warn("service document refresh failed, using cached copy",
			zap.Uint("server_id", serverID), zap.Error(err))
	}
	if err := w.persist(ctx, sub); err != nil {
		return nil, err
	}

	collections := make([]CollectionOption, 0, len(client.Collections()))
	for url, col := range client.Collections() {
		collections = append(collections, CollectionOption{URL: url, Title: col.Title})
	}
	sort.Slice(collections, func(i, j int) bool {
		return collections[i].Title < collections[j].Title
	})
	return &ServerStepResult{SID: sub.SID, Collections: collections}, nil
}

// ChooseCollection applies the step-2 selection and returns the categories
// of the chosen collection, sorted by label.
func (w *Workflow) ChooseCollection(ctx context.Context, sid, collectionURL string) (*CollectionStepResult, error) {
	sub, err := w.load(ctx, sid)
	if err != nil {
		return nil, err
	}
	client, err := w.clientFor(ctx, sub)
	if err != nil {
		return nil, err
	}
	categories, err := client.Categories(collectionURL)
	if err != nil {
		return nil, err
	}

	sub.CollectionURL = collectionURL

	files, err := w.store.RecordFiles(ctx, sub.RecordID)
	if err != nil {
		return nil, err
	}
	sub.SetFiles(files, client.AcceptedFileTypes(collectionURL), client.MaxFileSize())

	if err := w.persist(ctx, sub); err != nil {
		return nil, err
	}
	return &CollectionStepResult{
		SID: sub.SID,
		Categories: CategoryOptions{
			Mandatory: sortedCategories(categories.Mandatory),
			Optional:  sortedCategories(categories.Optional),
		},
	}, nil
}

// ChooseCategories applies the step-3 selections and returns the derived
// metadata and candidate files for review.
func (w *Workflow) ChooseCategories(ctx context.Context, sid, mandatory string, optional []string) (*CategoriesStepResult, error) {
	sub, err := w.load(ctx, sid)
	if err != nil {
		return nil, err
	}
	client, err := w.clientFor(ctx, sub)
	if err != nil {
		return nil, err
	}
	categories, err := client.Categories(sub.CollectionURL)
	if err != nil {
		return nil, err
	}

	mandatoryRef, err := resolveCategory(categories.Mandatory, mandatory)
	if err != nil {
		return nil, fmt.Errorf("mandatory category: %w", err)
	}
	optionalRefs := make([]sword.CategoryRef, 0, len(optional))
	for _, term := range optional {
		ref, err := resolveCategory(categories.Optional, term)
		if err != nil {
			return nil, fmt.Errorf("optional category: %w", err)
		}
		optionalRefs = append(optionalRefs, ref)
	}
	sub.SetCategories(mandatoryRef, optionalRefs)

	if err := w.persist(ctx, sub); err != nil {
		return nil, err
	}
	return &CategoriesStepResult{
		SID:         sub.SID,
		Metadata:    w.metadataView(sub),
		Files:       sub.CandidateFiles(),
		MaxFileSize: client.MaxFileSize(),
	}, nil
}

// Finalize applies the metadata edits and chosen files, runs the two-phase
// deposit and, on success, archives the submission and deletes the
// temporary row. Concurrent calls for the same session token share one
// execution.
func (w *Workflow) Finalize(ctx context.Context, sid string, req FinalizeRequest) (*FinalizeResult, error) {
	result, err, _ := w.finalizing.Do(sid, func() (interface{}, error) {
		return w.finalize(ctx, sid, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*FinalizeResult), nil
}

func (w *Workflow) finalize(ctx context.Context, sid string, req FinalizeRequest) (*FinalizeResult, error) {
	sub, err := w.load(ctx, sid)
	if err != nil {
		return nil, err
	}
	applyEdits(sub, req.Metadata)
	if err := sub.ChooseFiles(req.Files); err != nil {
		return nil, err
	}
	client, err := w.clientFor(ctx, sub)
	if err != nil {
		return nil, err
	}
	if err := w.persist(ctx, sub); err != nil {
		return nil, err
	}

	resp := client.Submit(ctx, sub.ComposedMetadata(), sub.ChosenFiles(), sub.CollectionURL)
	if resp.Error {
		return &FinalizeResult{SID: sub.SID, Response: resp}, nil
	}

	sub.Links = resp.Links
	now := time.Now()
	archived := &models.ArchivedSubmission{
		UserID:       sub.UserID,
		RecordID:     sub.RecordID,
		ServerID:     sub.ServerID,
		AlternateURL: resp.Links.Alternate,
		EditURL:      resp.Links.Edit,
		Submitted:    now,
		Status:       "submitted",
	}
	if err := w.store.Archive(ctx, archived); err != nil {
		return nil, err
	}
	if err := w.store.DeleteTempSubmission(ctx, sid); err != nil {
		w.logger.Error("deleting temp submission after archiving failed",
			zap.String("sid", sid), zap.Bool("alert_admin", true), zap.Error(err))
	}
	return &FinalizeResult{SID: sub.SID, Archived: true, Response: resp}, nil
}

func applyEdits(sub *Submission, edits MetadataEdits) {
	if edits.Title != nil {
		sub.SetTitle(*edits.Title)
	}
	if edits.Abstract != nil {
		sub.SetAbstract(*edits.Abstract)
	}
	if edits.Author != nil {
		sub.SetAuthor(*edits.Author)
	}
	if edits.Contributors != nil {
		sub.SetContributors(*edits.Contributors)
	}
	if edits.ReportNumber != nil {
		sub.SetReportNumber(*edits.ReportNumber)
	}
	if edits.AdditionalReportNumbers != nil {
		sub.SetAdditionalReportNumbers(*edits.AdditionalReportNumbers)
	}
	if edits.DOI != nil {
		sub.SetDOI(*edits.DOI)
	}
	if edits.Comments != nil {
		sub.SetComments(*edits.Comments)
	}
	if edits.Journal != nil {
		sub.SetJournal(*edits.Journal)
	}
}

func (w *Workflow) metadataView(sub *Submission) MetadataView {
	contributors := sub.Metadata.Contributors
	if w.maxContributors > 0 && len(contributors) > w.maxContributors {
		contributors = contributors[:w.maxContributors]
	}
	return MetadataView{
		Title:                   sub.Metadata.Title,
		Abstract:                sub.Metadata.Abstract,
		Author:                  sub.Metadata.Author,
		Contributors:            contributors,
		ReportNumber:            sub.Metadata.ReportNumber,
		AdditionalReportNumbers: sub.Metadata.AdditionalReportNumbers,
		DOI:                     sub.Metadata.DOI,
		Comments:                sub.Metadata.Comments,
		Journal:                 sub.Metadata.Journal,
	}
}

func sortedCategories(categories map[string]sword.Category) []sword.CategoryRef {
	refs := make([]sword.CategoryRef, 0, len(categories))
	for term, cat := range categories {
		refs = append(refs, sword.CategoryRef{Term: term, Scheme: cat.Scheme, Label: cat.Label})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Label < refs[j].Label })
	return refs
}

func resolveCategory(categories map[string]sword.Category, term string) (sword.CategoryRef, error) {
	cat, ok := categories[term]
	if !ok {
		return sword.CategoryRef{}, fmt.Errorf("unknown term %q", term)
	}
	return sword.CategoryRef{Term: term, Scheme: cat.Scheme, Label: cat.Label}, nil
}

// load retrieves and decodes the temp submission behind a session token.
// Missing or undecodable state is an admin-alerting condition.
func (w *Workflow) load(ctx context.Context, sid string) (*Submission, error) {
	payload, err := w.store.TempSubmission(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		w.logger.Error("temp submission missing",
			zap.String("sid", sid), zap.Bool("alert_admin", true))
		return nil, ErrState
	}
	if err != nil {
		return nil, err
	}
	sub, err := DecodeSubmission(payload)
	if err != nil {
		w.logger.Error("temp submission undecodable",
			zap.String("sid", sid), zap.Bool("alert_admin", true), zap.Error(err))
		return nil, ErrState
	}
	return sub, nil
}

func (w *Workflow) persist(ctx context.Context, sub *Submission) error {
	payload, err := sub.Encode()
	if err != nil {
		return err
	}
	return w.store.SaveTempSubmission(ctx, sub.SID, payload)
}

// clientFor rebuilds the deposit client from the submission's stored server
// settings. A missing server row is an admin-alerting state error.
func (w *Workflow) clientFor(ctx context.Context, sub *Submission) (*sword.Client, error) {
	server, err := w.store.Server(ctx, sub.ServerID)
	if errors.Is(err, ErrNotFound) {
		w.logger.Error("server settings missing",
			zap.Uint("server_id", sub.ServerID), zap.Bool("alert_admin", true))
		return nil, ErrState
	}
	if err != nil {
		return nil, err
	}
	settings, err := sword.SettingsFromModel(server)
	if err != nil {
		w.logger.Error("server settings invalid",
			zap.Uint("server_id", sub.ServerID), zap.Bool("alert_admin", true), zap.Error(err))
		return nil, ErrState
	}
	return sword.NewClient(settings, w.store, w.media, w.logger, w.clientOpts...)
}
