package http1

import (
	"strconv"
	"strings"
)

func (r *Reader) readChunkSize() (int64, error) {
	line, err := readLineLimit(r.BR, r.MaxHeaderBytes)
	if err != nil {
		return 0, err
	}
	// Strip chunk extensions: "<hex>;<ext>"
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrMalformedChunk
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, ErrMalformedChunk
	}
	return n, nil
}

func (r *Reader) expectCRLF() error {
	b1, err := r.BR.ReadByte()
	if err != nil {
		return err
	}
	b2, err := r.BR.ReadByte()
	if err != nil {
		return err
	}
	if b1 != '\r' || b2 != '\n' {
		return ErrMalformedChunk
	}
	return nil
}

// Trailer headers are read and discarded; the streaming engine exposes no
// trailer surface.
func (r *Reader) readTrailers() error {
	for {
		line, err := readLineLimit(r.BR, r.MaxHeaderBytes)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
	}
}
