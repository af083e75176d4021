package http

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Response is the output sink handed to a Handler.
//
// A handler either writes raw wire bytes through Write (status line,
// headers and body, all its own), or fills in the structured fields with
// the With* helpers and lets the server send them once it returns. Raw
// bytes win: once anything was written through Write the structured fields
// are ignored. Raw bytes stay buffered until the buffer fills up or the
// handler calls Flush; a failing handler whose bytes are all still buffered
// gets a 500 instead.
type Response struct {
	Status  uint16
	Headers Headers
	Body    []byte

	bw        *bufio.Writer
	out       *countingWriter
	head      bool
	requestID string
	raw       int64
	rawStatus uint16
	sent      bool
}

func newResponse(w io.Writer, head bool, requestID string) *Response {
	out := &countingWriter{w: w}
	return &Response{
		Status:    StatusOK,
		Headers:   NewHeaders(),
		bw:        bufio.NewWriterSize(out, DefaultWriteBufferSize),
		out:       out,
		head:      head,
		requestID: requestID,
	}
}

// countingWriter counts the bytes that reached the connection.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Write sends raw bytes to the client.
func (res *Response) Write(p []byte) (int, error) {
	if res.raw == 0 {
		res.rawStatus = statusFromLine(p)
	}
	n, err := res.bw.Write(p)
	res.raw += int64(n)
	return n, err
}

// Written reports whether any bytes reached the client.
func (res *Response) Written() bool {
	return res.out.n > 0
}

// Flush sends the raw bytes written so far. After that they can no longer
// be replaced by an error response.
func (res *Response) Flush() error {
	return res.bw.Flush()
}

// StatusCode returns the status the client sees, including a status line
// written raw by the handler. It is 0 when a raw response could not be read.
func (res *Response) StatusCode() uint16 {
	if res.raw > 0 {
		return res.rawStatus
	}
	return res.Status
}

func (res *Response) SetHeader(key, value string) *Response {
	res.Headers.Set(key, value)
	return res
}

func (res *Response) WithStatus(status uint16) *Response {
	res.Status = status
	return res
}

func (res *Response) WithBytes(contentType string, body []byte) *Response {
	res.Headers.Set("content-type", contentType)
	res.Body = body
	return res
}

func (res *Response) WithText(payload string) *Response {
	return res.WithBytes("text/plain; charset=utf-8", []byte(payload))
}

func (res *Response) WithHTML(payload string) *Response {
	return res.WithBytes("text/html; charset=utf-8", []byte(payload))
}

// WithJSON encodes payload as the body. Strings and byte slices are taken
// as already encoded JSON. An encoding failure turns the response into a
// 500.
func (res *Response) WithJSON(payload any) *Response {
	switch v := payload.(type) {
	case string:
		return res.WithBytes("application/json", []byte(v))
	case []byte:
		return res.WithBytes("application/json", v)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return res.WithStatus(StatusInternalServerError).WithText(err.Error())
	}
	return res.WithBytes("application/json", body)
}

func (res *Response) WithRedirect(location string, status uint16) *Response {
	res.Status = status
	res.Headers.Set("location", location)
	return res
}

// reset drops everything not yet committed, including buffered raw bytes.
func (res *Response) reset() {
	res.Status = StatusOK
	res.Headers = NewHeaders()
	res.Body = nil
	res.bw.Reset(res.out)
	res.raw = 0
	res.rawStatus = 0
	res.sent = false
}

// flush sends the structured response unless the handler wrote raw bytes,
// then flushes the buffer to the connection.
func (res *Response) flush() error {
	if res.raw == 0 && !res.sent {
		res.sent = true
		if err := res.writeTo(res.bw); err != nil {
			return err
		}
	}
	return res.bw.Flush()
}

func (res *Response) writeTo(w *bufio.Writer) error {
	res.Headers.Set("content-length", strconv.Itoa(len(res.Body)))
	res.Headers.Set("connection", "close")
	if res.requestID != "" {
		res.Headers.Set("x-request-id", res.requestID)
	}
	if _, ok := res.Headers.Lookup("date"); !ok {
		res.Headers.Set("date", time.Now().UTC().Format(dateFormat))
	}
	if _, ok := res.Headers.Lookup("content-type"); !ok {
		res.Headers.Set("content-type", "text/plain; charset=utf-8")
	}

	w.WriteString("HTTP/1.1 ")
	w.WriteString(strconv.Itoa(int(res.Status)))
	w.WriteByte(' ')
	w.WriteString(StatusMessage(res.Status))
	w.WriteString("\r\n")

	caser := cases.Title(language.English)
	for _, k := range res.Headers.Keys() {
		w.WriteString(caser.String(k))
		w.WriteString(": ")
		w.WriteString(res.Headers[k])
		w.WriteString("\r\n")
	}
	w.WriteString("\r\n")

	if res.head {
		return nil
	}
	_, err := w.Write(res.Body)
	return err
}

// statusFromLine reads the status code out of a raw "HTTP/1.x NNN" line.
func statusFromLine(p []byte) uint16 {
	if len(p) < 12 || string(p[:7]) != "HTTP/1." || p[8] != ' ' {
		return 0
	}
	n, ok := atoi(string(p[9:12]))
	if !ok {
		return 0
	}
	return uint16(n)
}
