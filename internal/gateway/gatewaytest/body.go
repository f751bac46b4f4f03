package gatewaytest

import (
	"bytes"
	"io"
)

func newBody(raw []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(raw))
}
