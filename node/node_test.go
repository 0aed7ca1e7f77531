package node

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/shardnet/core/contract"
	"gitlab.com/shardnet/core/crypto"
	"gitlab.com/shardnet/core/storage"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "shardnode")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestNewPersistsIdentityAcrossRestarts(t *testing.T) {
	dir := tempDir(t)

	n1, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fingerprint := n1.Identity.PublicKey().Fingerprint()
	if err := n1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n2, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	defer n2.Close()

	if n2.Identity.PublicKey().Fingerprint() != fingerprint {
		t.Fatal("identity did not survive a restart")
	}
}

func TestNewAppliesDefaultSettingsOnFirstRun(t *testing.T) {
	dir := tempDir(t)
	n, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if n.Settings.AcceptingContracts {
		t.Fatal("expected a fresh node to default to not accepting contracts")
	}
	if _, err := os.Stat(filepath.Join(dir, settingsFile)); err != nil {
		t.Fatalf("expected settings file to be written on first run: %v", err)
	}
}

func TestNodeServesShardTraffic(t *testing.T) {
	dir := tempDir(t)
	n, err := New(Config{Dir: dir, ShardAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	payload := []byte("node integration payload")
	hash := crypto.HashBytes(payload).String()
	renterID := "1111111111111111111111111111111111111111"

	c := contract.New(map[string]interface{}{
		"type":                   "standard",
		"data_hash":              hash,
		"data_size":              uint64(len(payload)),
		"renter_id":              renterID,
		"farmer_id":              n.Identity.PublicKey().Fingerprint().String(),
		"renter_signature":       "AAAA",
		"farmer_signature":       "AAAA",
		"store_begin":            int64(0),
		"store_end":              time.Now().Add(time.Hour).UnixMilli(),
		"audit_count":            uint64(0),
		"payment_destination":    "wallet1",
		"payment_storage_price":  uint64(1),
		"payment_download_price": uint64(1),
	})
	item := storage.NewItem(hash)
	item.Contracts[renterID] = c
	if err := n.Manager.Save(item); err != nil {
		t.Fatalf("Save: %v", err)
	}

	token := n.Tokens.Accept(hash, renterID)
	addr := n.shardListener.Addr().String()

	resp, err := http.Post(
		"http://"+addr+"/shards/"+hash+"?token="+token,
		"application/octet-stream",
		bytes.NewReader(payload),
	)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d, body = %s", resp.StatusCode, body)
	}
}

func TestCloseWithoutShardListener(t *testing.T) {
	dir := tempDir(t)
	n, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLoadSettingsTimesOutNever(t *testing.T) {
	// loadSettings must not block; this just guards against a future
	// change introducing an accidental network call or long sleep.
	dir := tempDir(t)
	done := make(chan struct{})
	go func() {
		loadSettings(dir)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loadSettings took too long")
	}
}
