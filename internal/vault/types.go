package vault

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Media types understood by the remote API.
const (
	mediaMarkdown    = "text/markdown"
	mediaNoteJSON    = "application/vnd.olrapi.note+json"
	mediaDocumentMap = "application/vnd.olrapi.document-map+json"
	mediaDataviewDQL = "application/vnd.olrapi.dataview.dql+txt"
	mediaJSONLogic   = "application/vnd.olrapi.jsonlogic+json"
)

// Representation selects the content negotiation applied when reading a file.
type Representation int

const (
	// RepRawText returns the raw markdown text.
	RepRawText Representation = iota
	// RepStructured returns the parsed note with metadata as JSON.
	RepStructured
	// RepOutline returns the document structure map as JSON.
	RepOutline
)

// ParseRepresentation maps the external format tag to a Representation.
func ParseRepresentation(s string) (Representation, error) {
	switch s {
	case "markdown", "":
		return RepRawText, nil
	case "json":
		return RepStructured, nil
	case "document-map":
		return RepOutline, nil
	default:
		return RepRawText, fmt.Errorf("unknown format %q", s)
	}
}

// String returns the external format tag.
func (r Representation) String() string {
	switch r {
	case RepStructured:
		return "json"
	case RepOutline:
		return "document-map"
	case RepRawText:
		return "markdown"
	}
	return "markdown"
}

// accept returns the Accept header value for the representation.
func (r Representation) accept() string {
	switch r {
	case RepStructured:
		return mediaNoteJSON
	case RepOutline:
		return mediaDocumentMap
	case RepRawText:
		return mediaMarkdown
	}
	return mediaMarkdown
}

// PatchOperation is the kind of edit applied relative to a patch target.
type PatchOperation int

const (
	// PatchAppend inserts content after the target.
	PatchAppend PatchOperation = iota
	// PatchPrepend inserts content before the target.
	PatchPrepend
	// PatchReplace replaces the target content entirely.
	PatchReplace
)

// ParsePatchOperation maps the external operation tag to a PatchOperation.
func ParsePatchOperation(s string) (PatchOperation, error) {
	switch s {
	case "append":
		return PatchAppend, nil
	case "prepend":
		return PatchPrepend, nil
	case "replace":
		return PatchReplace, nil
	default:
		return PatchAppend, fmt.Errorf("unknown patch operation %q", s)
	}
}

// String returns the wire tag sent in the Operation header.
func (o PatchOperation) String() string {
	switch o {
	case PatchPrepend:
		return "prepend"
	case PatchReplace:
		return "replace"
	case PatchAppend:
		return "append"
	}
	return "append"
}

// PatchTarget is the kind of document element a patch addresses.
type PatchTarget int

const (
	// TargetHeading addresses a heading; nested headings are joined by "::".
	TargetHeading PatchTarget = iota
	// TargetBlock addresses a block reference by its identifier.
	TargetBlock
	// TargetFrontmatter addresses a frontmatter field by key.
	TargetFrontmatter
	// TargetContent addresses the document body as a whole.
	TargetContent
)

// ParsePatchTarget maps the external target tag to a PatchTarget.
func ParsePatchTarget(s string) (PatchTarget, error) {
	switch s {
	case "heading":
		return TargetHeading, nil
	case "block":
		return TargetBlock, nil
	case "frontmatter":
		return TargetFrontmatter, nil
	case "content":
		return TargetContent, nil
	default:
		return TargetHeading, fmt.Errorf("unknown patch target %q", s)
	}
}

// String returns the wire tag sent in the Target-Type header.
func (t PatchTarget) String() string {
	switch t {
	case TargetBlock:
		return "block"
	case TargetFrontmatter:
		return "frontmatter"
	case TargetContent:
		return "content"
	case TargetHeading:
		return "heading"
	}
	return "heading"
}

// QueryKind is the advanced search query language.
type QueryKind int

const (
	// QueryDataview is a Dataview DQL string query.
	QueryDataview QueryKind = iota
	// QueryJSONLogic is a JsonLogic boolean-logic object query.
	QueryJSONLogic
)

// ParseQueryKind maps the external query type tag to a QueryKind.
func ParseQueryKind(s string) (QueryKind, error) {
	switch s {
	case "dataview":
		return QueryDataview, nil
	case "jsonlogic":
		return QueryJSONLogic, nil
	default:
		return QueryDataview, fmt.Errorf("unknown query type %q", s)
	}
}

// String returns the external query type tag.
func (q QueryKind) String() string {
	switch q {
	case QueryJSONLogic:
		return "jsonlogic"
	case QueryDataview:
		return "dataview"
	}
	return "dataview"
}

// FileContent is the result of a read operation. Content holds the raw body:
// markdown text for RepRawText, a JSON document for the other
// representations.
type FileContent struct {
	Path           string
	Representation Representation
	Content        []byte
}

// Entry is a single item of a directory listing.
type Entry struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	IsDir     bool      `json:"is_directory"`
	Extension string    `json:"extension,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Modified  time.Time `json:"modified,omitzero"`
}

// listedFile is one element of the remote listing payload. The remote sends
// either a bare path string or an object with optional size and modification
// time. In both forms a trailing slash on the path marks a directory; that
// is the only classification the gateway trusts.
type listedFile struct {
	Path     string
	Size     int64
	Modified time.Time
}

// UnmarshalJSON accepts both the string and the object listing forms.
func (f *listedFile) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &f.Path)
	}
	var obj struct {
		Path     string    `json:"path"`
		Size     int64     `json:"size"`
		Modified time.Time `json:"modified"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	f.Path = obj.Path
	f.Size = obj.Size
	f.Modified = obj.Modified
	return nil
}

// entry converts a listed file into an Entry rooted at the listed directory.
func (f *listedFile) entry(dir string) Entry {
	isDir := strings.HasSuffix(f.Path, "/")
	name := strings.TrimSuffix(f.Path, "/")

	full := name
	if base := strings.Trim(dir, "/"); base != "" {
		full = base + "/" + name
	}

	var ext string
	if !isDir {
		if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
			ext = name[i+1:]
		}
	}

	return Entry{
		Path:      full,
		Name:      name,
		IsDir:     isDir,
		Extension: ext,
		Size:      f.Size,
		Modified:  f.Modified,
	}
}

// SearchMatch is the byte range of a match within a file.
type SearchMatch struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MatchContext is a match together with its surrounding text.
type MatchContext struct {
	Match   SearchMatch `json:"match"`
	Context string      `json:"context"`
}

// SearchResult is one file matched by a simple search.
type SearchResult struct {
	Filename string         `json:"filename"`
	Score    float64        `json:"score"`
	Matches  []MatchContext `json:"matches"`
}

// AdvancedResult is one row returned by an advanced search.
type AdvancedResult struct {
	Filename string          `json:"filename"`
	Result   json.RawMessage `json:"result"`
}

// Health reports the connection state of the remote API.
type Health struct {
	Connected       bool   `json:"connected"`
	ObsidianVersion string `json:"obsidian_version,omitempty"`
	PluginVersion   string `json:"plugin_version,omitempty"`
	Error           string `json:"error,omitempty"`
}
