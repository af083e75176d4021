package http

// Route binds a handler to every path starting with Prefix for one method.
type Route struct {
	Method  string
	Prefix  string
	Handler Handler
}

var NotFoundHandler Handler = HandlerFunc(func(req *Request, res *Response) error {
	res.WithStatus(StatusNotFound).WithText(StatusMessage(StatusNotFound))
	return nil
})
