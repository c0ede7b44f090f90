// Package erasurecodec provides the default implementation of
// modules.ErasureCodec and modules.MerkleVerifier. spec.md §1 treats
// obtain_chunks/reconstruct/branches/branch_hash as external
// collaborators the core only consumes through an interface; this
// package is the concrete body that interface gets in a standalone
// deployment, grounded on the erasure-coding + Merkle-tree dependency
// stack already present in the teacher's go.mod.
package erasurecodec

import (
	"encoding/binary"
	"hash"

	"github.com/klauspost/reedsolomon"
	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/merkletree"
	"golang.org/x/crypto/blake2b"

	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

// newHasher returns the hash.Hash merkletree hashes leaves/nodes
// with. Blake2b-256 matches spec.md §4.1's Blake2-256 chunk digest.
func newHasher() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors for a too-long key; nil never does.
		panic(err)
	}
	return h
}

// lengthPrefixSize is the width of the big-endian payload-length
// header prepended before splitting into data shards, so Reconstruct
// can recover the exact original length after Join pads the last
// shard. Substrate's own erasure-coding crate does the analogous
// thing with a SCALE-encoded length prefix; we use a fixed-width
// uint64 header since we have no wire-compatibility constraint to
// match here (spec.md only requires obtain_chunks/reconstruct to be
// inverses, not wire compatibility with another implementation).
const lengthPrefixSize = 8

// Codec implements modules.ErasureCodec and modules.MerkleVerifier
// using systematic Reed-Solomon coding and a binary Merkle tree over
// the ordered shards.
type Codec struct{}

// New returns the default erasure codec / Merkle verifier.
func New() *Codec {
	return &Codec{}
}

func shardCounts(validatorsLen, threshold int) (dataShards, parityShards int, err error) {
	if threshold < 1 || threshold > validatorsLen {
		return 0, 0, errors.New("threshold out of range")
	}
	dataShards = threshold
	parityShards = validatorsLen - threshold
	if parityShards == 0 {
		// reedsolomon requires at least one parity shard; when
		// threshold == validatorsLen (N small enough that every chunk
		// is required) use one parity shard anyway so the library's
		// invariants hold. ObtainChunks returns only the first
		// validatorsLen shards, so that parity shard is never handed
		// out, and all dataShards chunks are still required either way.
		parityShards = 1
	}
	return dataShards, parityShards, nil
}

// ObtainChunks re-encodes data into validatorsLen ordered chunks.
func (c *Codec) ObtainChunks(validatorsLen int, data []byte) ([][]byte, error) {
	threshold := modules.Threshold(validatorsLen)
	dataShards, parityShards, err := shardCounts(validatorsLen, threshold)
	if err != nil {
		return nil, err
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, errors.AddContext(err, "constructing reed-solomon encoder")
	}

	prefixed := make([]byte, lengthPrefixSize+len(data))
	binary.BigEndian.PutUint64(prefixed[:lengthPrefixSize], uint64(len(data)))
	copy(prefixed[lengthPrefixSize:], data)

	shards, err := enc.Split(prefixed)
	if err != nil {
		return nil, errors.AddContext(err, "splitting payload into shards")
	}
	// Split only produces the data shards; grow to hold parity too.
	for len(shards) < dataShards+parityShards {
		shards = append(shards, make([]byte, len(shards[0])))
	}
	if err := enc.Encode(shards); err != nil {
		return nil, errors.AddContext(err, "encoding parity shards")
	}
	return shards[:validatorsLen], nil
}

// Reconstruct rebuilds the original payload from at least threshold
// chunks out of validatorsLen total.
func (c *Codec) Reconstruct(validatorsLen int, chunks map[modules.ValidatorIndex][]byte) ([]byte, error) {
	threshold := modules.Threshold(validatorsLen)
	if len(chunks) < threshold {
		return nil, errors.New("not enough chunks to reconstruct")
	}
	dataShards, parityShards, err := shardCounts(validatorsLen, threshold)
	if err != nil {
		return nil, err
	}
	total := dataShards + parityShards

	var shardSize int
	for _, c := range chunks {
		shardSize = len(c)
		break
	}

	shards := make([][]byte, total)
	for idx, data := range chunks {
		if int(idx) >= total {
			continue
		}
		if len(data) != shardSize {
			return nil, errors.New("inconsistent chunk size")
		}
		shards[idx] = data
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, errors.AddContext(err, "constructing reed-solomon encoder")
	}
	if err := enc.Reconstruct(shards); err != nil {
		return nil, errors.AddContext(err, "reconstructing shards")
	}

	joined := make([]byte, 0, dataShards*shardSize)
	for i := 0; i < dataShards; i++ {
		joined = append(joined, shards[i]...)
	}
	if len(joined) < lengthPrefixSize {
		return nil, errors.New("reconstructed payload shorter than length prefix")
	}
	payloadLen := binary.BigEndian.Uint64(joined[:lengthPrefixSize])
	joined = joined[lengthPrefixSize:]
	if uint64(len(joined)) < payloadLen {
		return nil, errors.New("reconstructed payload shorter than encoded length")
	}
	return joined[:payloadLen], nil
}

// Root computes the Merkle root over an ordered set of leaves.
func (c *Codec) Root(leaves [][]byte) crypto.Hash {
	tree := merkletree.New(newHasher())
	for _, leaf := range leaves {
		tree.Push(leaf)
	}
	return crypto.Hash(tree.Root())
}

// VerifyBranch reports whether leaf, at position index among
// leavesCount total leaves, is consistent with root given proof.
func (c *Codec) VerifyBranch(root crypto.Hash, proof [][]byte, index uint32, leavesCount int, leaf []byte) bool {
	return merkletree.VerifyProof(newHasher(), root[:], proof, uint64(index), uint64(leavesCount), leaf)
}

// Branches computes the ordered set of Merkle proofs for data already
// split via ObtainChunks, one proof per chunk, together with the
// Merkle root over those chunks.
func (c *Codec) Branches(leaves [][]byte) ([][][]byte, crypto.Hash) {
	tree := merkletree.New(newHasher())
	tree.SetIndex(0)
	proofs := make([][][]byte, len(leaves))
	root := crypto.Hash{}
	for i := range leaves {
		t := merkletree.New(newHasher())
		t.SetIndex(uint64(i))
		for _, l := range leaves {
			t.Push(l)
		}
		r, proof, _, _ := t.Prove()
		proofs[i] = proof
		root = crypto.Hash(r)
	}
	return proofs, root
}
