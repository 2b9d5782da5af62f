package utils

import "time"

type SuccessResponse struct {
	Success bool  `json:"success"`
	Data    any   `json:"data"`
	Meta    *Meta `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries the ledger version the response was computed against, when
// the handler knows it.
type Meta struct {
	Timestamp     time.Time `json:"timestamp"`
	LedgerVersion *uint64   `json:"ledger_version,omitempty"`
}

func CreateErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error: APIError{
			Code:    code,
			Message: message,
		},
	}
}

func CreateSuccessResponse(data any) SuccessResponse {
	return SuccessResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Timestamp: time.Now(),
		},
	}
}

func CreateVersionedResponse(data any, version uint64) SuccessResponse {
	resp := CreateSuccessResponse(data)
	resp.Meta.LedgerVersion = &version
	return resp
}
