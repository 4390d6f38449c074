package execution

import (
	"io"
	"net/http"
	"strings"
)

func httpOK(body string) *http.Response {
	return httpStatus(http.StatusOK, body)
}

func httpStatus(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}
