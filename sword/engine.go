package sword

import (
	"net/http"
	"sort"
	"sync"
)

// Engine is the per-provider specialization of the SWORD protocol: service
// document parsing, request header rules, Atom entry construction and
// response parsing. Everything transport-related stays in Client.
type Engine interface {
	// Name is the registry name of the engine, e.g. "arxiv".
	Name() string

	// ServiceDocumentURL is the provider's fixed service document endpoint.
	ServiceDocumentURL() string

	// ParseServiceDocument turns the raw service document XML into its
	// parsed form.
	ParseServiceDocument(raw []byte) (*ServiceDocument, error)

	// MediaHeaders adds provider headers to a media deposit request.
	MediaHeaders(h http.Header, file *FileInfo, meta *Metadata)

	// MetadataHeaders adds provider headers to the metadata request.
	MetadataHeaders(h http.Header, meta *Metadata)

	// StatusHeaders adds provider headers to a status request.
	StatusHeaders(h http.Header)

	// MetadataEntry builds the Atom entry document submitted after a fully
	// successful media deposit, linking the deposited files.
	MetadataEntry(meta *Metadata, media []MediaResult) ([]byte, error)

	// MediaLink extracts the edit-media link from a media deposit response.
	MediaLink(body []byte) string

	// MediaError renders a provider media-deposit error body as a message.
	MediaError(statusCode int, body []byte) string

	// MetadataLinks extracts the alternate/edit links from an accepted
	// metadata response.
	MetadataLinks(body []byte) Links

	// MetadataError renders a provider metadata error body as a message.
	MetadataError(statusCode int, body []byte) string

	// ParseStatus parses a provider status response body.
	ParseStatus(body []byte) StatusInfo
}

// Factory builds an engine bound to a server's settings.
type Factory func(settings *Settings) Engine

var (
	enginesMu sync.RWMutex
	engines   = map[string]Factory{}
)

// Register adds an engine factory under the given name. Engines register
// themselves from their package init; duplicate names panic.
func Register(name string, factory Factory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if _, dup := engines[name]; dup {
		panic("sword: engine " + name + " registered twice")
	}
	engines[name] = factory
}

// Registered reports whether an engine with the given name exists.
func Registered(name string) bool {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	_, ok := engines[name]
	return ok
}

// Engines returns the sorted names of all registered engines.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Factory, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	factory, ok := engines[name]
	return factory, ok
}
