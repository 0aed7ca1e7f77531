package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gitlab.com/shardnet/core/audit"
	"gitlab.com/shardnet/core/contract"
	"gitlab.com/shardnet/core/core"
	"gitlab.com/shardnet/core/crypto"
	"gitlab.com/shardnet/core/shard"
	"gitlab.com/shardnet/core/storage"
)

// ConsignThreshold (ε) bounds how far from store_begin a CONSIGN may land,
// per §4.7.
const ConsignThreshold = 10 * time.Minute

// Policy decides whether a farmer accepts an offered contract, and if so,
// what (if anything) it wants to change before counter-signing. Returning
// ok=false means "no listener" from the spec's perspective: OFFER fails
// with the returned reason, or with "Contract no longer open to offers"
// when reason is empty.
type Policy func(c *contract.Contract) (ok bool, reason string)

// Handlers wires C1-C7 into the RPC surface a farmer node answers.
type Handlers struct {
	Identity crypto.SecretKey
	Manager  *storage.Manager
	Server   *shard.Server
	Tokens   *shard.TokenTable
	Overlay  Overlay

	// Policy, when non-nil, gates OFFER. A nil Policy accepts everything.
	Policy Policy

	// Blacklist holds renter fingerprints (hex) CONSIGN and OFFER refuse.
	Blacklist map[string]bool

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewHandlers builds a Handlers set bound to the given components.
func NewHandlers(identity crypto.SecretKey, manager *storage.Manager, server *shard.Server, tokens *shard.TokenTable, overlay Overlay) *Handlers {
	return &Handlers{
		Identity:  identity,
		Manager:   manager,
		Server:    server,
		Tokens:    tokens,
		Overlay:   overlay,
		Blacklist: make(map[string]bool),
		now:       time.Now,
	}
}

// Register binds every RPC method to overlay.
func (h *Handlers) Register() {
	h.Overlay.Handle(MethodOffer, h.handleOffer)
	h.Overlay.Handle(MethodConsign, h.handleConsign)
	h.Overlay.Handle(MethodMirror, h.handleMirror)
	h.Overlay.Handle(MethodRetrieve, h.handleRetrieve)
	h.Overlay.Handle(MethodAudit, h.handleAudit)
	h.Overlay.Handle(MethodRenew, h.handleRenew)
}

func (h *Handlers) nowTime() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// decodeContract builds a Contract from a wire-decoded JSON map via
// contract.FromBytes, so a schema violation in peer-supplied data (a
// negative data_size, a non-hex renter_id, a string where an int64 is
// expected) comes back as an error instead of a panic - contract.New panics
// on exactly these inputs, and every handler here runs in a goroutine with
// no recover above it.
func decodeContract(m map[string]interface{}) (*contract.Contract, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, core.Wrap(core.KindValidation, err, "could not re-encode contract")
	}
	c, err := contract.FromBytes(b)
	if err != nil {
		return nil, core.Wrap(core.KindValidation, err, "invalid contract")
	}
	return c, nil
}

// offerRequest/Response

type offerRequest struct {
	Contract map[string]interface{} `json:"contract"`
}

type offerResponse struct {
	Contract map[string]interface{} `json:"contract"`
}

func (h *Handlers) handleOffer(ctx context.Context, peer string, body []byte) ([]byte, error) {
	var req offerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.fail("OFFER", core.NewError(core.KindValidation, "malformed offer request"))
	}
	c, err := decodeContract(req.Contract)
	if err != nil {
		return h.fail("OFFER", err)
	}
	if !c.Verify(contract.ActorRenter) {
		return h.fail("OFFER", core.NewError(core.KindAuth, "renter signature does not verify"))
	}
	if h.Blacklist[c.RenterID()] {
		return h.fail("OFFER", core.NewError(core.KindAuth, "Contract no longer open to offers"))
	}

	if h.Policy != nil {
		ok, reason := h.Policy(c)
		if !ok {
			if reason == "" {
				reason = "Contract no longer open to offers"
			}
			return h.fail("OFFER", core.NewError(core.KindValidation, reason))
		}
	}

	if err := c.Sign(contract.ActorFarmer, h.Identity); err != nil {
		return h.fail("OFFER", core.Wrap(core.KindValidation, err, "could not counter-sign offer"))
	}

	resp := offerResponse{Contract: toJSONMap(c)}
	return json.Marshal(resp)
}

// consignRequest/Response

type consignRequest struct {
	Contract map[string]interface{} `json:"contract"`
	Audit    auditPublicJSON        `json:"audit"`
}

type auditPublicJSON struct {
	Leaves []crypto.Hash `json:"leaves"`
}

type consignResponse struct {
	Token string `json:"token"`
}

func (h *Handlers) handleConsign(ctx context.Context, peer string, body []byte) ([]byte, error) {
	var req consignRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.fail("CONSIGN", core.NewError(core.KindValidation, "malformed consign request"))
	}
	c, err := decodeContract(req.Contract)
	if err != nil {
		return h.fail("CONSIGN", err)
	}
	if !c.IsComplete() {
		return h.fail("CONSIGN", core.NewError(core.KindValidation, "contract is incomplete"))
	}
	if h.Blacklist[c.RenterID()] {
		return h.fail("CONSIGN", core.NewError(core.KindAuth, "renter is blacklisted"))
	}

	if c.RenterID() != peer {
		return h.fail("CONSIGN", core.NewError(core.KindAuth, "requester is not a renter on this item"))
	}

	hash := c.DataHash()
	item, err := h.Manager.Peek(hash)
	if err != nil {
		if !core.IsKind(err, core.KindNotFound) {
			return h.fail("CONSIGN", err)
		}
		item = storage.NewItem(hash)
	}
	item.Contracts[peer] = c

	now := h.nowTime().UnixMilli()
	begin := c.StoreBegin()
	if now < begin-ConsignThreshold.Milliseconds() || now > begin+ConsignThreshold.Milliseconds() {
		return h.fail("CONSIGN", core.NewError(core.KindValidation, "consignment is outside the permitted window around store_begin"))
	}

	item.Trees[peer] = req.Audit.Leaves
	if err := h.Manager.Save(item); err != nil {
		return h.fail("CONSIGN", err)
	}

	token := h.Tokens.Accept(hash, peer)
	return json.Marshal(consignResponse{Token: token})
}

// mirrorRequest

type mirrorRequest struct {
	Hash string `json:"hash"`
	// Pointer is the farmer's shard-server base address, e.g.
	// "http://198.51.100.4:9982" - MIRROR pulls over the same HTTP
	// upload/download surface every node already serves, rather than a
	// separate transfer protocol no node in this deployment answers.
	Pointer string `json:"pointer"`
	// Token authorizes the pull against the pointer's farmer, obtained by
	// the caller through a prior RETRIEVE against that farmer.
	Token string `json:"token"`
}

func (h *Handlers) handleMirror(ctx context.Context, peer string, body []byte) ([]byte, error) {
	var req mirrorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.fail("MIRROR", core.NewError(core.KindValidation, "malformed mirror request"))
	}

	_, stream, err := h.Manager.Load(req.Hash)
	if err == nil && stream.Reader != nil {
		stream.Reader.Close()
		return json.Marshal(struct{}{})
	}
	if err != nil && !core.IsKind(err, core.KindNotFound) {
		return h.fail("MIRROR", err)
	}

	pullURL := fmt.Sprintf("%s/shards/%s?token=%s", req.Pointer, req.Hash, req.Token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pullURL, nil)
	if err != nil {
		return h.fail("MIRROR", core.Wrap(core.KindValidation, err, "malformed mirror pointer"))
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return h.fail("MIRROR", core.Wrap(core.KindTransport, err, "could not reach mirror pointer"))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return h.fail("MIRROR", core.NewError(core.KindTransport, "mirror pointer returned status %d", resp.StatusCode))
	}

	_, writeStream, err := h.Manager.Load(req.Hash)
	if err != nil || writeStream.Writer == nil {
		return h.fail("MIRROR", core.NewError(core.KindTransport, "could not open local shard writer"))
	}

	hasher := crypto.NewStreamHasher()
	if _, err := io.Copy(writeStream.Writer, io.TeeReader(resp.Body, hasherWriter{hasher})); err != nil {
		return h.fail("MIRROR", core.Wrap(core.KindTransport, err, "could not read mirrored shard"))
	}

	if hasher.Sum().String() != req.Hash {
		// Leave writeStream.Writer unclosed: the partial shard is
		// destroyed by never committing it.
		return h.fail("MIRROR", core.NewError(core.KindIntegrity, "mirrored shard does not match the requested hash"))
	}
	if err := writeStream.Writer.Close(); err != nil {
		return h.fail("MIRROR", err)
	}

	return json.Marshal(struct{}{})
}

// hasherWriter adapts crypto.StreamHasher's Write (no error return) to
// io.Writer, so io.TeeReader can feed the mirrored bytes into it as they
// pass through to the local shard writer.
type hasherWriter struct {
	h *crypto.StreamHasher
}

func (w hasherWriter) Write(p []byte) (int, error) {
	w.h.Write(p)
	return len(p), nil
}

// retrieveRequest/Response

type retrieveRequest struct {
	Hash string `json:"hash"`
}

type retrieveResponse struct {
	Token string `json:"token"`
}

func (h *Handlers) handleRetrieve(ctx context.Context, peer string, body []byte) ([]byte, error) {
	var req retrieveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.fail("RETRIEVE", core.NewError(core.KindValidation, "malformed retrieve request"))
	}

	item, err := h.Manager.Peek(req.Hash)
	if err != nil {
		return h.fail("RETRIEVE", err)
	}
	if _, ok := item.GetContract(peer); !ok {
		return h.fail("RETRIEVE", core.NewError(core.KindAuth, "Retrieval is not authorized"))
	}

	token := h.Tokens.Accept(req.Hash, peer)
	return json.Marshal(retrieveResponse{Token: token})
}

// auditRequest/Response

type auditRequest struct {
	Challenges map[string][]string `json:"challenges"`
}

type auditResponse struct {
	Proofs map[string][]audit.Proof `json:"proofs"`
}

func (h *Handlers) handleAudit(ctx context.Context, peer string, body []byte) ([]byte, error) {
	var req auditRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.fail("AUDIT", core.NewError(core.KindValidation, "malformed audit request"))
	}

	out := make(map[string][]audit.Proof)
	for hash, challenges := range req.Challenges {
		item, err := h.Manager.Peek(hash)
		if err != nil {
			continue
		}
		leaves, ok := item.Trees[peer]
		if !ok {
			continue
		}
		_, stream, err := h.Manager.Load(hash)
		if err != nil || stream.Reader == nil {
			continue
		}
		shardBytes, err := io.ReadAll(stream.Reader)
		stream.Reader.Close()
		if err != nil {
			continue
		}

		var proofs []audit.Proof
		for _, challenge := range challenges {
			p, err := audit.ProofStream(leaves, challenge, shardBytes)
			if err != nil {
				continue
			}
			proofs = append(proofs, p)
		}
		if len(proofs) > 0 {
			out[hash] = proofs
		}
	}

	return json.Marshal(auditResponse{Proofs: out})
}

// renewRequest

type renewRequest struct {
	OldContract map[string]interface{} `json:"old_contract"`
	NewContract map[string]interface{} `json:"new_contract"`
}

type renewResponse struct {
	Contract map[string]interface{} `json:"contract"`
}

func (h *Handlers) handleRenew(ctx context.Context, peer string, body []byte) ([]byte, error) {
	var req renewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.fail("RENEW", core.NewError(core.KindValidation, "malformed renew request"))
	}

	oldC, err := decodeContract(req.OldContract)
	if err != nil {
		return h.fail("RENEW", err)
	}
	if !oldC.Verify(contract.ActorRenter) {
		return h.fail("RENEW", core.NewError(core.KindAuth, "original renter signature does not verify"))
	}
	newC, err := decodeContract(req.NewContract)
	if err != nil {
		return h.fail("RENEW", err)
	}
	if !newC.Verify(contract.ActorRenter) {
		return h.fail("RENEW", core.NewError(core.KindAuth, "updated renter signature does not verify"))
	}

	item, err := h.Manager.Peek(oldC.DataHash())
	if err != nil {
		return h.fail("RENEW", err)
	}
	existing, ok := item.GetContract(peer)
	if !ok {
		return h.fail("RENEW", core.NewError(core.KindNotFound, "no contract exists for this renter"))
	}

	diff := contract.Compare(existing, newC)
	if len(diff) > 0 {
		return h.fail("RENEW", core.NewError(core.KindValidation, "%s cannot be changed", diff[0]))
	}

	if err := newC.Sign(contract.ActorFarmer, h.Identity); err != nil {
		return h.fail("RENEW", core.Wrap(core.KindValidation, err, "could not counter-sign renewal"))
	}
	item.Contracts[peer] = newC
	if err := h.Manager.Save(item); err != nil {
		return h.fail("RENEW", err)
	}

	return json.Marshal(renewResponse{Contract: toJSONMap(newC)})
}

func (h *Handlers) fail(method string, err error) ([]byte, error) {
	env := mapError(method, err)
	b, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return b, nil
}

func toJSONMap(c *contract.Contract) map[string]interface{} {
	out := make(map[string]interface{})
	for _, name := range c.FieldNames() {
		v, _ := c.Get(name)
		out[name] = v
	}
	return out
}
