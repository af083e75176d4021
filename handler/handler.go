// Package handler holds ready-made handlers for the http server.
package handler

import (
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/freekieb7/biu/filesystem"
	"github.com/freekieb7/biu/http"
)

const indexFile = "index.html"

// FileServer serves the files of a Filesystem for GET and HEAD requests.
type FileServer struct {
	// Browse lists directories that have no index.html instead of
	// answering 404.
	Browse bool

	fs     filesystem.Filesystem
	prefix string
}

// Static serves fs under prefix: a request for prefix+"/css/site.css"
// reads "css/site.css" from fs. Directories serve their index.html.
// Releasing the handler closes fs.
func Static(fs filesystem.Filesystem, prefix string) *FileServer {
	return &FileServer{fs: fs, prefix: prefix}
}

func (h *FileServer) ServeHTTP(req *http.Request, res *http.Response) error {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		res.WithStatus(http.StatusMethodNotAllowed).
			SetHeader("allow", "GET, HEAD").
			WithText(http.StatusMessage(http.StatusMethodNotAllowed))
		return nil
	}

	rest := strings.TrimPrefix(req.Path, h.prefix)
	if rest != "" && rest[0] != '/' && !strings.HasSuffix(h.prefix, "/") {
		// "/staticfoo" is not below "/static"
		res.WithStatus(http.StatusNotFound).WithText(http.StatusMessage(http.StatusNotFound))
		return nil
	}

	name, err := filesystem.Clean(rest)
	if err != nil {
		res.WithStatus(http.StatusForbidden).WithText(http.StatusMessage(http.StatusForbidden))
		return nil
	}

	isDir, err := h.fs.IsDirectory(name)
	if err != nil {
		return err
	}
	if isDir {
		index := path.Join(name, indexFile)
		exists, err := h.fs.FileExists(index)
		if err != nil {
			return err
		}
		if !exists && h.Browse {
			listing, err := Listing(h.fs, name)
			if err != nil {
				return err
			}
			res.WithText(listing)
			return nil
		}
		name = index
	}

	content, err := h.fs.ReadFile(name)
	if err != nil {
		if errors.Is(err, filesystem.ErrFileNotFound) {
			res.WithStatus(http.StatusNotFound).WithText(http.StatusMessage(http.StatusNotFound))
			return nil
		}
		return err
	}

	res.WithBytes(http.GetMimeType(name), content)
	return nil
}

func (h *FileServer) Release() error {
	return h.fs.Close()
}

// TextHandler answers every request with the same body.
type TextHandler struct {
	contentType string
	body        []byte
}

// Text answers with body. An empty contentType means plain text.
func Text(contentType, body string) *TextHandler {
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return &TextHandler{contentType: contentType, body: []byte(body)}
}

func (h *TextHandler) ServeHTTP(req *http.Request, res *http.Response) error {
	res.WithBytes(h.contentType, h.body)
	return nil
}

func (h *TextHandler) Release() error {
	return nil
}

// EchoHandler describes the request it received as JSON.
type EchoHandler struct{}

func Echo() *EchoHandler {
	return &EchoHandler{}
}

type echo struct {
	ID       string              `json:"id"`
	Method   string              `json:"method"`
	Path     string              `json:"path"`
	Segments []string            `json:"segments"`
	Query    map[string][]string `json:"query"`
	Headers  map[string]string   `json:"headers"`
	BodySize int                 `json:"body_size"`
	Body     string              `json:"body,omitempty"`
}

func (h *EchoHandler) ServeHTTP(req *http.Request, res *http.Response) error {
	out := echo{
		ID:       req.ID,
		Method:   req.Method,
		Path:     req.Path,
		Segments: req.Segments,
		Query:    req.Query,
		Headers:  req.Headers,
		BodySize: len(req.Body),
		Body:     string(req.Body),
	}
	if out.Segments == nil {
		out.Segments = []string{}
	}
	if out.Query == nil {
		out.Query = map[string][]string{}
	}
	res.WithJSON(out)
	return nil
}

func (h *EchoHandler) Release() error {
	return nil
}

// Listing renders the entries of a directory as a plain text list, one
// name per line, directories with a trailing slash.
func Listing(fs filesystem.Filesystem, dir string) (string, error) {
	infos, err := fs.ListDirectory(dir)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}
