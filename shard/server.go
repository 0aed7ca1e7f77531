package shard

import (
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"gitlab.com/NebulousLabs/ratelimit"

	"gitlab.com/shardnet/core/contract"
	"gitlab.com/shardnet/core/core"
	"gitlab.com/shardnet/core/crypto"
	"gitlab.com/shardnet/core/storage"
)

// Error is the JSON body written on a non-2xx shard-server response.
type Error struct {
	Message string `json:"message"`
}

// ContractLookup resolves a (hash, uploader identity) pair to the contract
// governing the transfer, as the server has no notion of contracts itself -
// that is the protocol layer's job (C8's CONSIGN/RETRIEVE handlers populate
// the item the adapter holds).
type ContractLookup func(hash, contact string) (*contract.Contract, bool)

// Server is the shard server (C6): token-gated upload/download of shard
// bytes over HTTP.
type Server struct {
	Handler http.Handler

	manager  *storage.Manager
	tokens   *TokenTable
	lookup   ContractLookup
	active   int64
	onUpload func(c *contract.Contract)
	onDownload func(hash string)
}

// NewServer builds a Server bound to manager for shard storage and tokens
// for admission, resolving contracts via lookup.
func NewServer(manager *storage.Manager, tokens *TokenTable, lookup ContractLookup) *Server {
	s := &Server{manager: manager, tokens: tokens, lookup: lookup}
	router := httprouter.New()
	router.POST("/shards/:hash", s.uploadHandler)
	router.GET("/shards/:hash", s.downloadHandler)
	s.Handler = router
	return s
}

// OnShardUploaded registers a callback fired once per successful upload.
func (s *Server) OnShardUploaded(fn func(c *contract.Contract)) { s.onUpload = fn }

// OnShardDownloaded registers a callback fired once per successful download.
func (s *Server) OnShardDownloaded(fn func(hash string)) { s.onDownload = fn }

// ActiveTransfers returns the number of uploads and downloads currently in
// flight.
func (s *Server) ActiveTransfers() int64 { return atomic.LoadInt64(&s.active) }

func (s *Server) uploadHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	hash := ps.ByName("hash")
	token := req.URL.Query().Get("token")

	contact, err := s.tokens.IsAuthorized(token, hash)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	c, ok := s.lookup(hash, contact)
	if !ok {
		writeError(w, http.StatusNotFound, "no contract for this hash and identity")
		return
	}

	_, stream, err := s.manager.Load(hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not open shard stream")
		return
	}
	if stream.Reader != nil {
		stream.Reader.Close()
		writeMessage(w, http.StatusNotModified, "Already exists")
		return
	}
	if stream.Writer == nil {
		writeError(w, http.StatusInternalServerError, "could not open shard writer")
		return
	}

	atomic.AddInt64(&s.active, 1)
	defer atomic.AddInt64(&s.active, -1)

	limited := ratelimit.NewRLReadWriter(struct {
		io.Reader
		io.Writer
	}{req.Body, io.Discard})

	hasher := crypto.NewStreamHasher()
	var written uint64
	buf := make([]byte, 64*1024)
	dataSize := c.DataSize()

	for {
		n, readErr := limited.Read(buf)
		if n > 0 {
			written += uint64(n)
			if written > dataSize {
				// Never Close the writer: leaving it unclosed is how a
				// partial shard is destroyed, since Close is what commits
				// buffered bytes to the store.
				s.tokens.Reject(token)
				writeError(w, http.StatusBadRequest, "Shard exceeds size defined in contract")
				return
			}
			hasher.Write(buf[:n])
			if _, writeErr := stream.Writer.Write(buf[:n]); writeErr != nil {
				s.tokens.Reject(token)
				writeError(w, http.StatusInternalServerError, writeErr.Error())
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// Client abort: leave the token in place, its own deadline
			// will reap it, and the partial shard is destroyed simply by
			// never closing the writer.
			return
		}
	}

	got := hasher.Sum()

	if got.String() != hash {
		// Same rule: an unclosed writer never reaches the store.
		s.tokens.Reject(token)
		writeError(w, http.StatusBadRequest, "Hash does not match contract")
		return
	}

	stream.Writer.Close()
	s.tokens.Reject(token)
	if s.onUpload != nil {
		s.onUpload(c)
	}
	writeMessage(w, http.StatusOK, "Consignment complete")
}

func (s *Server) downloadHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	hash := ps.ByName("hash")
	token := req.URL.Query().Get("token")

	if _, err := s.tokens.IsAuthorized(token, hash); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	_, stream, err := s.manager.Load(hash)
	if err != nil || stream.Reader == nil {
		writeError(w, http.StatusNotFound, "no shard for this hash")
		return
	}
	defer stream.Reader.Close()

	atomic.AddInt64(&s.active, 1)
	defer atomic.AddInt64(&s.active, -1)

	w.Header().Set("Content-Type", "application/octet-stream")
	limited := ratelimit.NewRLReadWriter(struct {
		io.Reader
		io.Writer
	}{stream.Reader, w})

	if _, err := io.Copy(w, limited); err != nil {
		s.tokens.Reject(token)
		return
	}

	s.tokens.Reject(token)
	if s.onDownload != nil {
		s.onDownload(hash)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(Error{Message: message})
}

func writeMessage(w http.ResponseWriter, code int, message string) {
	writeError(w, code, message)
}

// AsAuthError converts a server-observed error into the typed kind the
// protocol layer expects: an AuthError passes through unchanged, and every
// other error, whatever its kind, is wrapped as a TransportError.
func AsAuthError(err error) error {
	if core.IsKind(err, core.KindAuth) {
		return err
	}
	return core.Wrap(core.KindTransport, err, "shard transfer failed")
}
