package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

var errLineTooLong = errors.New("line too long")

// Request is a parsed HTTP request.
type Request struct {
	ID         string
	Method     string
	Path       string
	RawQuery   string
	Proto      string
	Query      Values
	Headers    Headers
	Segments   []string
	Body       []byte
	RemoteAddr string

	ctx context.Context
}

// ReadRequest parses one request from r.
func ReadRequest(r io.Reader) (*Request, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, DefaultReadBufferSize)
	}

	req := &Request{}
	if err := req.Parse(br); err != nil {
		return nil, err
	}
	return req, nil
}

// Context returns the request context. It carries the server span when
// tracing is enabled and is never nil.
func (req *Request) Context() context.Context {
	if req.ctx == nil {
		return context.Background()
	}
	return req.ctx
}

func (req *Request) WithContext(ctx context.Context) *Request {
	req.ctx = ctx
	return req
}

func (req *Request) Reset() {
	*req = Request{}
}

// Parse reads the request line, the header block and a Content-Length
// delimited body from br. It returns an error wrapping
// ErrMalformedRequestLine, ErrMalformedHeader or ErrTruncatedBody.
func (req *Request) Parse(br *bufio.Reader) error {
	req.Reset()

	line, err := readLine(br)
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return fmt.Errorf("%w: longer than %d bytes", ErrMalformedRequestLine, MaxLineSize)
		}
		return fmt.Errorf("%w: %w", ErrMalformedRequestLine, err)
	}
	if err := req.parseRequestLine(line); err != nil {
		return err
	}
	if err := req.parseHeaders(br); err != nil {
		return err
	}
	return req.readBody(br)
}

func (req *Request) parseRequestLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	method, target, proto := parts[0], parts[1], parts[2]

	if !ValidMethod(method) {
		return fmt.Errorf("%w: unknown method %q", ErrMalformedRequestLine, method)
	}
	if !strings.HasPrefix(proto, "HTTP/1.") || strings.ContainsRune(proto, ' ') {
		return fmt.Errorf("%w: unsupported protocol %q", ErrMalformedRequestLine, proto)
	}

	rawPath, rawQuery, _ := strings.Cut(target, "?")
	if !strings.HasPrefix(rawPath, "/") {
		return fmt.Errorf("%w: target %q is not an absolute path", ErrMalformedRequestLine, target)
	}
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRequestLine, err)
	}
	query, err := parseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRequestLine, err)
	}

	req.Method = method
	req.Path = path
	req.RawQuery = rawQuery
	req.Proto = proto
	req.Query = query
	req.Segments = segments(path)
	return nil
}

func (req *Request) parseHeaders(br *bufio.Reader) error {
	req.Headers = NewHeaders()

	for count := 0; ; count++ {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, errLineTooLong) {
				return fmt.Errorf("%w: longer than %d bytes", ErrMalformedHeader, MaxLineSize)
			}
			if errors.Is(err, io.EOF) {
				partial := strings.TrimRight(line, "\r")
				if partial != "" && !strings.Contains(partial, ":") {
					return fmt.Errorf("%w: %q", ErrMalformedHeader, partial)
				}
				return fmt.Errorf("%w: stream ended inside the header block", ErrTruncatedBody)
			}
			return fmt.Errorf("%w: %w", ErrTruncatedBody, err)
		}
		if line == "" {
			return nil
		}
		if count >= MaxRequestHeaders {
			return fmt.Errorf("%w: more than %d headers", ErrMalformedHeader, MaxRequestHeaders)
		}

		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		req.Headers.Add(name, strings.TrimSpace(value))
	}
}

func (req *Request) readBody(br *bufio.Reader) error {
	raw, ok := req.Headers.Lookup("content-length")
	if !ok {
		return nil
	}
	n, ok := atoi(strings.TrimSpace(raw))
	if !ok {
		return nil
	}
	if n > MaxBodySize {
		return fmt.Errorf("%w: content-length %d exceeds %d", ErrMalformedHeader, n, MaxBodySize)
	}

	body := make([]byte, n)
	if read, err := io.ReadFull(br, body); err != nil {
		return fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedBody, read, n)
	}
	req.Body = body
	return nil
}

func parseQuery(raw string) (Values, error) {
	values := Values{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, err
		}
		values.Add(key, value)
	}
	return values, nil
}

func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// readLine returns one line without its terminator. Both "\r\n" and "\n"
// end a line. On a read error the partial line read so far is returned.
func readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxLineSize {
			return "", errLineTooLong
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}
