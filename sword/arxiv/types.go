package arxiv

import "encoding/xml"

// Incoming documents are decoded by namespace-qualified element names.
// Outgoing entries carry literal prefixed names together with the xmlns
// declarations on the root element.

type serviceDocument struct {
	XMLName       xml.Name    `xml:"http://www.w3.org/2007/app service"`
	Version       string      `xml:"http://purl.org/net/sword/ version"`
	MaxUploadSize int64       `xml:"http://purl.org/net/sword/ maxUploadSize"`
	Verbose       string      `xml:"http://purl.org/net/sword/ verbose"`
	NoOp          string      `xml:"http://purl.org/net/sword/ noOp"`
	Workspaces    []workspace `xml:"http://www.w3.org/2007/app workspace"`
}

type workspace struct {
	Collections []collection `xml:"http://www.w3.org/2007/app collection"`
}

type collection struct {
	Href              string     `xml:"href,attr"`
	Title             string     `xml:"http://www.w3.org/2005/Atom title"`
	Accepts           []string   `xml:"http://www.w3.org/2007/app accept"`
	Policy            string     `xml:"http://purl.org/net/sword/ collectionPolicy"`
	Abstract          string     `xml:"http://purl.org/dc/terms/ abstract"`
	Mediation         string     `xml:"http://purl.org/net/sword/ mediation"`
	Treatment         string     `xml:"http://purl.org/net/sword/ treatment"`
	Categories        []category `xml:"http://www.w3.org/2005/Atom category"`
	PrimaryCategories []category `xml:"http://arxiv.org/schemas/atom/ primary_category"`
}

type category struct {
	Term   string `xml:"term,attr"`
	Scheme string `xml:"scheme,attr"`
	Label  string `xml:"label,attr"`
}

type depositReceipt struct {
	XMLName xml.Name      `xml:"http://www.w3.org/2005/Atom entry"`
	Links   []receiptLink `xml:"http://www.w3.org/2005/Atom link"`
	Summary string        `xml:"http://www.w3.org/2005/Atom summary"`
}

type receiptLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type statusDocument struct {
	Status  string `xml:"status"`
	ArxivID string `xml:"arxiv_id"`
	Error   string `xml:"error"`
}

type entry struct {
	XMLName    xml.Name `xml:"entry"`
	XmlnsAtom  string   `xml:"xmlns,attr"`
	XmlnsArxiv string   `xml:"xmlns:arxiv,attr"`

	Title           string          `xml:"title,omitempty"`
	ID              string          `xml:"id,omitempty"`
	Updated         string          `xml:"updated,omitempty"`
	Author          entryAuthor     `xml:"author"`
	Contributors    []contributor   `xml:"contributor"`
	Summary         string          `xml:"summary,omitempty"`
	Categories      []entryCategory `xml:"category"`
	PrimaryCategory entryCategory   `xml:"arxiv:primary_category"`
	ReportNumbers   []string        `xml:"arxiv:report_no"`
	DOI             string          `xml:"arxiv:doi,omitempty"`
	JournalRef      string          `xml:"arxiv:journal_ref,omitempty"`
	Links           []entryLink     `xml:"link"`
}

type entryAuthor struct {
	Name  string `xml:"name"`
	Email string `xml:"email"`
}

type contributor struct {
	Name        string `xml:"name,omitempty"`
	Email       string `xml:"email,omitempty"`
	Affiliation string `xml:"arxiv:affiliation,omitempty"`
}

type entryCategory struct {
	Term   string `xml:"term,attr"`
	Scheme string `xml:"scheme,attr"`
	Label  string `xml:"label,attr"`
}

type entryLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}
