package dump

import (
	"bufio"
	"bytes"
	"io"
)

// lineReader reads lines while tracking the line number and byte offset of
// each one. The slice returned by next is valid until the following call.
type lineReader struct {
	r   *bufio.Reader
	buf []byte

	cur     []byte
	line    int64 // number of the line in cur, 1-based
	offset  int64 // byte offset of the line in cur
	next    int64 // byte offset of the line after cur
	partial bool  // cur is the last line and has no newline
	unreadc bool
}

func newLineReader(r io.Reader, size int) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, size)}
}

// readLine returns the next line with the line ending removed. It returns
// io.EOF only when no bytes remain; a final line without a newline is
// returned normally.
func (lr *lineReader) readLine() ([]byte, error) {
	if lr.unreadc {
		lr.unreadc = false
		return lr.cur, nil
	}
	frag, err := lr.r.ReadSlice('\n')
	raw := frag
	if err == bufio.ErrBufferFull {
		lr.buf = append(lr.buf[:0], frag...)
		for err == bufio.ErrBufferFull {
			frag, err = lr.r.ReadSlice('\n')
			lr.buf = append(lr.buf, frag...)
		}
		raw = lr.buf
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, io.EOF
	}
	lr.line++
	lr.offset = lr.next
	lr.next += int64(len(raw))
	lr.partial = raw[len(raw)-1] != '\n'
	lr.cur = bytes.TrimRight(raw, "\r\n")
	return lr.cur, nil
}

// unread makes the next readLine return the current line again.
func (lr *lineReader) unread() {
	lr.unreadc = true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f'
}

// nextField returns the first whitespace separated field of b at or after
// position i, and the position just past it. The field is empty at the end
// of b.
func nextField(b []byte, i int) (field []byte, end int) {
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	j := i
	for j < len(b) && !isSpace(b[j]) {
		j++
	}
	return b[i:j], j
}
