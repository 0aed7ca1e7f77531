package shard

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"gitlab.com/NebulousLabs/threadgroup"

	"gitlab.com/shardnet/core/contract"
	"gitlab.com/shardnet/core/crypto"
	"gitlab.com/shardnet/core/storage"
)

const testHash = "a000000000000000000000000000000000000000"

const (
	testRenterID = "1111111111111111111111111111111111111111"
	testFarmerID = "2222222222222222222222222222222222222222"
)

func testUploadContract(dataHash string, dataSize uint64) *contract.Contract {
	return contract.New(map[string]interface{}{
		"type":                   "standard",
		"data_hash":              dataHash,
		"data_size":              dataSize,
		"renter_id":              testRenterID,
		"farmer_id":              testFarmerID,
		"renter_signature":       "AAAA",
		"farmer_signature":       "AAAA",
		"store_begin":            int64(0),
		"store_end":              time.Now().Add(time.Hour).UnixMilli(),
		"audit_count":            uint64(0),
		"payment_destination":    "wallet1",
		"payment_storage_price":  uint64(1),
		"payment_download_price": uint64(1),
	})
}

func newTestServer(t *testing.T, c *contract.Contract) (*Server, *TokenTable, *storage.Manager, func()) {
	t.Helper()
	manager, err := storage.NewManager(storage.NewMemoryAdapter(), 0, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tg := new(threadgroup.ThreadGroup)
	tokens, err := NewTokenTable(time.Hour, tg)
	if err != nil {
		t.Fatalf("NewTokenTable: %v", err)
	}
	item := storage.NewItem(c.DataHash())
	item.Contracts[testRenterID] = c
	if err := manager.Save(item); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lookup := func(hash, contact string) (*contract.Contract, bool) {
		if hash != c.DataHash() || contact != testRenterID {
			return nil, false
		}
		return c, true
	}
	srv := NewServer(manager, tokens, lookup)
	cleanup := func() {
		tg.Stop()
		manager.Close()
	}
	return srv, tokens, manager, cleanup
}

func uploadURL(base, hash, token string) string {
	u, _ := url.Parse(base + "/shards/" + hash)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func TestServerUploadAndDownload(t *testing.T) {
	payload := []byte("hello shard network")
	hash := crypto.HashBytes(payload).String()
	c := testUploadContract(hash, uint64(len(payload)))
	srv, tokens, _, cleanup := newTestServer(t, c)
	defer cleanup()

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	uploadToken := tokens.Accept(hash, testRenterID)

	resp, err := http.Post(uploadURL(ts.URL, hash, uploadToken), "application/octet-stream", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d, body = %s", resp.StatusCode, body)
	}
	resp.Body.Close()

	downloadToken := tokens.Accept(hash, testRenterID)
	resp, err = http.Get(uploadURL(ts.URL, hash, downloadToken))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded bytes = %q, want %q", got, payload)
	}
}

func TestServerUploadRejectsUnauthorizedToken(t *testing.T) {
	c := testUploadContract(testHash, 4)
	srv, _, _, cleanup := newTestServer(t, c)
	defer cleanup()

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Post(uploadURL(ts.URL, testHash, "bogus"), "application/octet-stream", bytes.NewReader([]byte("data")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestServerUploadRejectsOversizedShard(t *testing.T) {
	c := testUploadContract(testHash, 4)
	srv, tokens, manager, cleanup := newTestServer(t, c)
	defer cleanup()

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	token := tokens.Accept(testHash, testRenterID)
	resp, err := http.Post(uploadURL(ts.URL, testHash, token), "application/octet-stream", bytes.NewReader([]byte("way too much data")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	if _, err := tokens.IsAuthorized(token, testHash); err == nil {
		t.Fatal("expected token rejected after oversized upload")
	}

	_, stream, err := manager.Load(testHash)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stream.Reader != nil {
		t.Fatal("partial oversized shard should never have been committed")
	}
}

func TestServerUploadRejectsHashMismatch(t *testing.T) {
	c := testUploadContract(testHash, 4)
	srv, tokens, manager, cleanup := newTestServer(t, c)
	defer cleanup()

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	token := tokens.Accept(testHash, testRenterID)
	resp, err := http.Post(uploadURL(ts.URL, testHash, token), "application/octet-stream", bytes.NewReader([]byte("nope")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	if _, err := tokens.IsAuthorized(token, testHash); err == nil {
		t.Fatal("expected token rejected after hash mismatch")
	}

	_, stream, err := manager.Load(testHash)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stream.Reader != nil {
		t.Fatal("mismatched shard should never have been committed")
	}
}

func TestServerUploadIdempotentWhenAlreadyConsigned(t *testing.T) {
	payload := []byte("done")
	hash := crypto.HashBytes(payload).String()
	c := testUploadContract(hash, uint64(len(payload)))
	srv, tokens, manager, cleanup := newTestServer(t, c)
	defer cleanup()

	item := storage.NewItem(hash)
	item.Contracts[testRenterID] = c
	if err := manager.Save(item); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, stream, err := manager.Load(hash)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	stream.Writer.Write(payload)
	stream.Writer.Close()

	lookup := func(h, contact string) (*contract.Contract, bool) {
		if h != hash || contact != testRenterID {
			return nil, false
		}
		return c, true
	}
	srv = NewServer(manager, tokens, lookup)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	token := tokens.Accept(hash, testRenterID)
	resp, err := http.Post(uploadURL(ts.URL, hash, token), "application/octet-stream", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", resp.StatusCode)
	}
}
