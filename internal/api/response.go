// Package api defines the JSON envelope every JSON endpoint responds with.
package api

// StatusCode is the domain status embedded in the envelope. It is
// independent of the HTTP status line.
type StatusCode int

const (
	Success           StatusCode = 200
	BadRequest        StatusCode = 400
	NotFound          StatusCode = 404
	InternalError     StatusCode = 500
	InvalidFileExceed StatusCode = 1001
	InvalidFileFormat StatusCode = 1002
	InvalidSize       StatusCode = 1003
)

// Messages shown to clients.
const (
	MsgUploaded         = "Images uploaded successfully."
	MsgInvalidFormat    = "Invalid file format."
	MsgNoFiles          = "No files uploaded."
	MsgRequestTooLarge  = "Request body is too large."
	MsgInvalidSize      = "Invalid size."
	MsgImageNotFound    = "Image not found."
	MsgMetadataNotFound = "Metadata not found."
	MsgMetadataFound    = "Metadata retrieved successfully."
	MsgInternal         = "An internal error occurred."
	MsgTooManyRequests  = "Too many requests."
)

type ErrorItem struct {
	Key   StatusCode `json:"key"`
	Value string     `json:"value"`
}

type Response[T any] struct {
	IsSuccess    bool        `json:"isSuccess"`
	Message      string      `json:"message"`
	ResponseData T           `json:"responseData"`
	Errors       []ErrorItem `json:"errors"`
	StatusCode   StatusCode  `json:"statusCode"`
}

// UploadedImage is one entry of a successful upload response.
type UploadedImage struct {
	ID string `json:"id"`
}

func OK[T any](message string, data T) Response[T] {
	return Response[T]{
		IsSuccess:    true,
		Message:      message,
		ResponseData: data,
		StatusCode:   Success,
	}
}

// Fail builds a failure envelope with a null payload. Detail codes become
// error items carrying the same message.
func Fail(code StatusCode, message string, details ...StatusCode) Response[any] {
	resp := Response[any]{
		Message:    message,
		StatusCode: code,
	}
	for _, d := range details {
		resp.Errors = append(resp.Errors, ErrorItem{Key: d, Value: message})
	}
	return resp
}
