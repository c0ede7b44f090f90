// Package networkbridge provides the default implementation of
// modules.NetworkBridge, dialing a validator's discovery key over
// gitlab.com/NebulousLabs/siamux, the multiplexed stream transport
// already in the teacher's dependency stack (modules/host wires its
// SiaMux's keypair into the host's own identity, the same pattern
// DiscoveryID resolution below follows).
package networkbridge

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/NebulousLabs/siamux"
	"gitlab.com/NebulousLabs/siamux/mux"

	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

// subscriberAvailability is the siamux RPC subscriber name this
// bridge registers for and dials, analogous to the host's RPC
// subscribers in modules/host.
const subscriberAvailability = "AvailabilityRecovery"

// Bridge dials validators by DiscoveryID ("host:port/<ed25519 pubkey
// hex>") over siamux and speaks a tiny length-prefixed JSON protocol
// for the two request kinds spec.md §6 names.
type Bridge struct {
	mux *siamux.SiaMux
	log *log.Logger

	incoming chan modules.IncomingAvailableDataRequest
	store    modules.AvailabilityStore

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New constructs a Bridge around an already-initialized SiaMux and
// registers the AvailabilityRecovery subscriber so inbound peer
// requests surface on IncomingAvailableDataRequests.
func New(sm *siamux.SiaMux, store modules.AvailabilityStore, logger *log.Logger) (*Bridge, error) {
	listener, err := sm.NewListener(subscriberAvailability)
	if err != nil {
		return nil, errors.AddContext(err, "registering availability-recovery subscriber")
	}
	b := &Bridge{
		mux:      sm,
		log:      logger,
		store:    store,
		incoming: make(chan modules.IncomingAvailableDataRequest, 64),
		closeCh:  make(chan struct{}),
	}
	go b.serve(listener)
	return b, nil
}

func (b *Bridge) serve(l siamux.Listener) {
	for {
		stream, err := l.Accept()
		if err != nil {
			select {
			case <-b.closeCh:
				return
			default:
				b.log.Debugln("accept error on availability-recovery listener:", err)
				continue
			}
		}
		go b.handleInbound(stream)
	}
}

func (b *Bridge) handleInbound(stream siamux.Stream) {
	defer stream.Close()
	var req modules.AvailableDataFetchingRequest
	if err := readJSON(stream, &req); err != nil {
		b.incoming <- modules.IncomingAvailableDataRequest{DecodeErr: true}
		return
	}
	respond := func(data []byte, ok bool) {
		resp := modules.AvailableDataFetchingResponse{Data: data, Found: ok}
		if err := writeJSON(stream, resp); err != nil {
			b.log.Debugln("writing available-data response:", err)
		}
	}
	b.incoming <- modules.IncomingAvailableDataRequest{
		CandidateHash: req.CandidateHash,
		Respond:       respond,
	}
}

// IncomingAvailableDataRequests implements modules.NetworkBridge.
func (b *Bridge) IncomingAvailableDataRequests() <-chan modules.IncomingAvailableDataRequest {
	return b.incoming
}

// RequestChunk implements modules.NetworkBridge.
func (b *Bridge) RequestChunk(ctx context.Context, discoveryKey modules.DiscoveryID, candidateHash crypto.Hash, index modules.ValidatorIndex, disposition modules.Disposition, out chan<- modules.ChunkRequestResult) {
	go func() {
		resp, err := b.roundTripChunk(ctx, discoveryKey, candidateHash, index, disposition)
		result := modules.ChunkRequestResult{Validator: index, Response: resp, Err: err}
		select {
		case out <- result:
		case <-ctx.Done():
		}
	}()
}

func (b *Bridge) roundTripChunk(ctx context.Context, discoveryKey modules.DiscoveryID, candidateHash crypto.Hash, index modules.ValidatorIndex, disposition modules.Disposition) (modules.ChunkFetchingResponse, error) {
	stream, err := b.dial(ctx, discoveryKey, disposition)
	if err != nil {
		return modules.ChunkFetchingResponse{}, classifyDialErr(err)
	}
	defer stream.Close()

	req := modules.ChunkFetchingRequest{CandidateHash: candidateHash, Index: index}
	if err := writeJSON(stream, req); err != nil {
		return modules.ChunkFetchingResponse{}, modules.ErrNetworkError
	}
	var resp modules.ChunkFetchingResponse
	if err := readJSON(stream, &resp); err != nil {
		if errors.Contains(err, io.ErrUnexpectedEOF) {
			return modules.ChunkFetchingResponse{}, modules.ErrInvalidResponse
		}
		return modules.ChunkFetchingResponse{}, modules.ErrNetworkError
	}
	if !resp.Found {
		return modules.ChunkFetchingResponse{}, modules.ErrNoSuchChunk
	}
	return resp, nil
}

// RequestAvailableData implements modules.NetworkBridge.
func (b *Bridge) RequestAvailableData(ctx context.Context, discoveryKey modules.DiscoveryID, candidateHash crypto.Hash, disposition modules.Disposition) (modules.AvailableDataFetchingResponse, error) {
	stream, err := b.dial(ctx, discoveryKey, disposition)
	if err != nil {
		return modules.AvailableDataFetchingResponse{}, classifyDialErr(err)
	}
	defer stream.Close()

	req := modules.AvailableDataFetchingRequest{CandidateHash: candidateHash}
	if err := writeJSON(stream, req); err != nil {
		return modules.AvailableDataFetchingResponse{}, modules.ErrNetworkError
	}
	var resp modules.AvailableDataFetchingResponse
	if err := readJSON(stream, &resp); err != nil {
		return modules.AvailableDataFetchingResponse{}, modules.ErrNetworkError
	}
	if !resp.Found {
		return modules.AvailableDataFetchingResponse{}, modules.ErrNoSuchData
	}
	return resp, nil
}

func (b *Bridge) dial(ctx context.Context, discoveryKey modules.DiscoveryID, disposition modules.Disposition) (siamux.Stream, error) {
	addr, pubKey, err := parseDiscoveryKey(discoveryKey)
	if err != nil {
		return nil, err
	}
	if disposition == modules.ImmediateError && !b.mux.Connected(pubKey) {
		return nil, modules.ErrNetworkError
	}
	deadline, hasDeadline := ctx.Deadline()
	stream, err := b.mux.NewStream(subscriberAvailability, addr, pubKey)
	if err != nil {
		return nil, err
	}
	if hasDeadline {
		_ = stream.SetDeadline(deadline)
	} else {
		_ = stream.SetDeadline(time.Now().Add(10 * time.Second))
	}
	return stream, nil
}

func classifyDialErr(err error) error {
	if errors.Contains(err, context.Canceled) {
		return modules.ErrCanceled
	}
	return modules.ErrNetworkError
}

// parseDiscoveryKey splits a "host:port/<hex ed25519 pubkey>"
// DiscoveryID into the pieces siamux.NewStream wants.
func parseDiscoveryKey(id modules.DiscoveryID) (string, mux.ED25519PublicKey, error) {
	s := string(id)
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return "", mux.ED25519PublicKey{}, fmt.Errorf("malformed discovery key %q", s)
	}
	addr, keyHex := s[:idx], s[idx+1:]
	var pk mux.ED25519PublicKey
	if n, err := fmt.Sscanf(keyHex, "%x", &pk); err != nil || n != 1 {
		return "", mux.ED25519PublicKey{}, fmt.Errorf("malformed discovery key public key %q", keyHex)
	}
	return addr, pk, nil
}

// Close shuts down the bridge's inbound listener goroutine.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.closeCh) })
}

func writeJSON(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readJSON(r io.Reader, v interface{}) error {
	br := bufio.NewReader(r)
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	const maxMessage = 64 << 20
	if n > maxMessage {
		return fmt.Errorf("message too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(br, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
