package errors

// ErrorCode identifies an application error class in API responses.
type ErrorCode int

const (
	ErrorCode_HTTP_OK ErrorCode = 0

	// General
	ErrorCode_INTERNAL         ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT ErrorCode = 1001
	ErrorCode_NOT_FOUND        ErrorCode = 1002
	ErrorCode_ALREADY_EXISTS   ErrorCode = 1003
	ErrorCode_INVALID_PAYLOAD  ErrorCode = 1004

	// Extraction pipeline
	ErrorCode_EXTRACTION_FAILED  ErrorCode = 2000
	ErrorCode_LLM_UNAVAILABLE    ErrorCode = 2001
	ErrorCode_LLM_BAD_RESPONSE   ErrorCode = 2002
	ErrorCode_JOB_NOT_FOUND      ErrorCode = 2003
	ErrorCode_MISSING_TRANSCRIPT ErrorCode = 2004

	// Graph store
	ErrorCode_GRAPH_UNAVAILABLE  ErrorCode = 3000
	ErrorCode_GRAPH_QUERY_FAILED ErrorCode = 3001

	// Analytics / artifact
	ErrorCode_ARTIFACT_INVALID ErrorCode = 4000
	ErrorCode_ARTIFACT_MISSING ErrorCode = 4001
	ErrorCode_MISSING_QUERY    ErrorCode = 4002

	// Infrastructure
	ErrorCode_DB_QUERY_FAILED ErrorCode = 5000
	ErrorCode_STORAGE_FAILED  ErrorCode = 5001
	ErrorCode_CACHE_FAILED    ErrorCode = 5002
)

var codeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:            "OK",
	ErrorCode_INTERNAL:           "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:   "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:          "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:     "ALREADY_EXISTS",
	ErrorCode_INVALID_PAYLOAD:    "INVALID_PAYLOAD",
	ErrorCode_EXTRACTION_FAILED:  "EXTRACTION_FAILED",
	ErrorCode_LLM_UNAVAILABLE:    "LLM_UNAVAILABLE",
	ErrorCode_LLM_BAD_RESPONSE:   "LLM_BAD_RESPONSE",
	ErrorCode_JOB_NOT_FOUND:      "JOB_NOT_FOUND",
	ErrorCode_MISSING_TRANSCRIPT: "MISSING_TRANSCRIPT",
	ErrorCode_GRAPH_UNAVAILABLE:  "GRAPH_UNAVAILABLE",
	ErrorCode_GRAPH_QUERY_FAILED: "GRAPH_QUERY_FAILED",
	ErrorCode_ARTIFACT_INVALID:   "ARTIFACT_INVALID",
	ErrorCode_ARTIFACT_MISSING:   "ARTIFACT_MISSING",
	ErrorCode_MISSING_QUERY:      "MISSING_QUERY",
	ErrorCode_DB_QUERY_FAILED:    "DB_QUERY_FAILED",
	ErrorCode_STORAGE_FAILED:     "STORAGE_FAILED",
	ErrorCode_CACHE_FAILED:       "CACHE_FAILED",
}

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
