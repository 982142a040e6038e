package sword

import (
	"mime"
	"sort"
	"strings"
)

// Extensions for accepted MIME types that the platform mime database does
// not resolve consistently across systems. Looked up before the database so
// results are stable.
var mimeExtensions = map[string][]string{
	"application/atom+xml;type=entry": {".xml"},
	"application/zip":                 {".zip"},
	"application/xml":                 {".wsdl", ".xpdl", ".rdf", ".xsl", ".xml", ".xsd"},
	"application/pdf":                 {".pdf"},
	"application/postscript":          {".ai", ".ps", ".eps", ".epsi", ".epsf", ".eps2", ".eps3"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
	"text/xml":   {".xml"},
	"image/jpeg": {".jpe", ".jpg", ".jpeg"},
	"image/jpg":  {".jpg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
}

// ExtensionsForMIME maps an accepted MIME type to file extensions with a
// leading dot. Unknown types fall back to the subtype itself, so e.g.
// "application/foo" still yields ".foo".
func ExtensionsForMIME(mimeType string) []string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if exts, ok := mimeExtensions[mimeType]; ok {
		return exts
	}
	bare := mimeType
	if i := strings.IndexByte(bare, ';'); i >= 0 {
		bare = strings.TrimSpace(bare[:i])
	}
	if exts, ok := mimeExtensions[bare]; ok {
		return exts
	}
	if exts, err := mime.ExtensionsByType(bare); err == nil && len(exts) > 0 {
		sort.Strings(exts)
		return exts
	}
	if i := strings.LastIndexByte(bare, '/'); i >= 0 && i < len(bare)-1 {
		return []string{"." + bare[i+1:]}
	}
	return nil
}
