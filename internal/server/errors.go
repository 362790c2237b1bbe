package server

import (
	"net/http"
)

// NotFoundPage is the literal body of every 404 response.
const NotFoundPage = "<!DOCTYPE HTML>\n" +
	"<html>\n" +
	"<head><title>404 Not Found</title></head>\n" +
	"<body>\n" +
	"<h1>404 Not Found</h1>\n" +
	"<p>The requested URL was not found on this server.</p>\n" +
	"</body>\n" +
	"</html>"

// The 404 carries no Content-Length; closing the connection ends the body.
func NotFound() *Response {
	r := NewResponse(http.StatusNotFound, HeaderField{Name: "Content-Type", Value: "text/html"})
	r.Body = []byte(NotFoundPage)
	return r
}

func Forbidden() *Response {
	return emptyResponse(http.StatusForbidden)
}

func InternalServerError() *Response {
	return emptyResponse(http.StatusInternalServerError)
}

// BadRequest answers a request line that does not fit in the read buffer.
func BadRequest() *Response {
	return emptyResponse(http.StatusBadRequest)
}

func emptyResponse(code int) *Response {
	return NewResponse(code, HeaderField{Name: "Content-Length", Value: "0"})
}
