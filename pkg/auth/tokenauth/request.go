package tokenauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rhuss/tokenauth/pkg/debug"
	"github.com/rhuss/tokenauth/pkg/fieldpath"
	"github.com/rhuss/tokenauth/pkg/token"
)

// DefaultMaxBodyBytes caps how much of a request body is read for
// credential extraction.
const DefaultMaxBodyBytes int64 = 1 << 20

// RequestFromHTTP builds the strategy's view of r. Headers are lower-cased
// (first value wins), the query string is expanded into nested maps, and
// JSON or urlencoded bodies are decoded. The body is restored so handlers
// further down can read it again.
//
// A body that is too large, of another content type, or malformed is
// returned as a nil Body along with the decode error; the caller decides
// whether that matters. The Request is always usable.
func RequestFromHTTP(r *http.Request, maxBodyBytes int64) (*token.Request, error) {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	header := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		if len(vs) > 0 {
			header[strings.ToLower(k)] = vs[0]
		}
	}

	req := &token.Request{Header: header, HTTP: r}
	if r.URL != nil && r.URL.RawQuery != "" {
		req.Query = fieldpath.Expand(r.URL.Query())
	}

	body, err := readBody(r, maxBodyBytes)
	req.Body = body
	return req, err
}

func readBody(r *http.Request, limit int64) (any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil
	}
	isJSON := mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
	isForm := mediaType == "application/x-www-form-urlencoded"
	if !isJSON && !isForm {
		return nil, nil
	}

	orig := r.Body
	data, err := io.ReadAll(io.LimitReader(orig, limit+1))
	// Put back what was consumed, followed by whatever is left unread.
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), orig), orig}
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("request body exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, nil
	}
	debug.Trace("http", "decoding request body", "media_type", mediaType, "bytes", len(data))

	if isForm {
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing form body: %w", err)
		}
		return fieldpath.Expand(values), nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing JSON body: %w", err)
	}
	return body, nil
}
