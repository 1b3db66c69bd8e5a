package constants

// DefaultMetaKey is the row entry that holds record id, modification id and related rows.
const DefaultMetaKey = "__FileMaker__"

// Data API error codes the core gives a meaning to.
const (
	CodeOK              = 0
	CodeNoRecordsMatch  = 401
	CodeInvalidToken    = 952
	CodeModIDMismatch   = 306
	CodeRecordIsMissing = 101
	CodeFieldIsMissing  = 102
	CodeLayoutIsMissing = 105
)

// RelatedSetNotPresentFormat is the message of the error returned for a portal
// that is missing from a record. It takes the related table name.
const RelatedSetNotPresentFormat = `Related set "%s" not present.`

// RelatedFieldSeparator separates a related table name from a field name in portal rows.
const RelatedFieldSeparator = "::"

var (
	HTTPScheme       = "http"
	HTTPSecureScheme = "https"
)

// DefaultAPIVersion is the Data API version segment used in request paths.
const DefaultAPIVersion = "vLatest"
