package chainclient

import (
	"encoding/binary"
	"fmt"

	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// BinaryDecoder decodes account bytes using a simple fixed-width layout:
// a one-byte count followed by that many 32-byte roots for the history,
// then two fixed-size batch descriptors, then a one-byte count followed
// by that many (index, digest) hash-chain entries. Real account layouts
// are owned by the on-chain program (out of scope per SPEC_FULL.md §1);
// this codec exists so the reference adapter has something concrete to
// decode in tests and local development against a mock RPC endpoint.
type BinaryDecoder struct{}

const batchDescriptorSize = 1 + 8 + 8 + 8 + 8 // state + 3*counter + start_index

func encodeBatchDescriptor(b treetypes.BatchDescriptor) []byte {
	out := make([]byte, batchDescriptorSize)
	out[0] = byte(b.State)
	binary.BigEndian.PutUint64(out[1:9], b.CurrentZkpBatchIndex)
	binary.BigEndian.PutUint64(out[9:17], b.NumInsertedZkps)
	binary.BigEndian.PutUint64(out[17:25], b.ZkpBatchSize)
	binary.BigEndian.PutUint64(out[25:33], b.StartIndex)
	return out
}

func decodeBatchDescriptor(data []byte, batchIndex treetypes.BatchIndex) (treetypes.BatchDescriptor, error) {
	if len(data) < batchDescriptorSize {
		return treetypes.BatchDescriptor{}, fmt.Errorf("chainclient: batch descriptor truncated")
	}
	return treetypes.BatchDescriptor{
		BatchIndex:           batchIndex,
		State:                treetypes.BatchState(data[0]),
		CurrentZkpBatchIndex: binary.BigEndian.Uint64(data[1:9]),
		NumInsertedZkps:      binary.BigEndian.Uint64(data[9:17]),
		ZkpBatchSize:         binary.BigEndian.Uint64(data[17:25]),
		StartIndex:           binary.BigEndian.Uint64(data[25:33]),
	}, nil
}

func decodeHashChains(data []byte, isAppend bool) (map[treetypes.ProcessedBatchID]treetypes.Digest, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("chainclient: hash chain store truncated")
	}
	count := int(data[0])
	offset := 1
	out := make(map[treetypes.ProcessedBatchID]treetypes.Digest, count)
	for i := 0; i < count; i++ {
		if offset+1+8+32 > len(data) {
			return nil, 0, fmt.Errorf("chainclient: hash chain entry %d truncated", i)
		}
		batchIndex := treetypes.BatchIndex(data[offset])
		offset++
		zkpIndex := binary.BigEndian.Uint64(data[offset : offset+8])
		offset += 8
		var digest treetypes.Digest
		copy(digest[:], data[offset:offset+32])
		offset += 32
		id := treetypes.ProcessedBatchID{BatchIndex: batchIndex, ZkpBatchIndex: zkpIndex, IsAppend: isAppend}
		out[id] = digest
	}
	return out, offset, nil
}

// DecodeTreeAccount implements Decoder.
func (BinaryDecoder) DecodeTreeAccount(data []byte) (TreeAccount, error) {
	if len(data) < 1 {
		return TreeAccount{}, fmt.Errorf("chainclient: tree account truncated")
	}
	rootCount := int(data[0])
	offset := 1
	if offset+rootCount*32 > len(data) {
		return TreeAccount{}, fmt.Errorf("chainclient: root history truncated")
	}
	history := make([]treetypes.Digest, rootCount)
	for i := 0; i < rootCount; i++ {
		copy(history[i][:], data[offset:offset+32])
		offset += 32
	}

	var batches [2]treetypes.BatchDescriptor
	for i := 0; i < 2; i++ {
		if offset+batchDescriptorSize > len(data) {
			return TreeAccount{}, fmt.Errorf("chainclient: nullify batch descriptor %d truncated", i)
		}
		b, err := decodeBatchDescriptor(data[offset:offset+batchDescriptorSize], treetypes.BatchIndex(i))
		if err != nil {
			return TreeAccount{}, err
		}
		batches[i] = b
		offset += batchDescriptorSize
	}

	chains, _, err := decodeHashChains(data[offset:], false)
	if err != nil {
		return TreeAccount{}, err
	}

	return TreeAccount{RootHistory: history, NullifyBatches: batches, NullifyChains: chains}, nil
}

// DecodeOutputQueueAccount implements Decoder.
func (BinaryDecoder) DecodeOutputQueueAccount(data []byte) (OutputQueueAccount, error) {
	offset := 0
	var batches [2]treetypes.BatchDescriptor
	for i := 0; i < 2; i++ {
		if offset+batchDescriptorSize > len(data) {
			return OutputQueueAccount{}, fmt.Errorf("chainclient: append batch descriptor %d truncated", i)
		}
		b, err := decodeBatchDescriptor(data[offset:offset+batchDescriptorSize], treetypes.BatchIndex(i))
		if err != nil {
			return OutputQueueAccount{}, err
		}
		batches[i] = b
		offset += batchDescriptorSize
	}

	chains, _, err := decodeHashChains(data[offset:], true)
	if err != nil {
		return OutputQueueAccount{}, err
	}
	return OutputQueueAccount{AppendBatches: batches, AppendChains: chains}, nil
}

// EncodeInterleavedInstructions serializes group (already in pattern
// order — appends before nullifies within the slice, per SPEC_FULL.md
// §4.5 ordering guarantees) into one transaction payload: a one-byte
// kind tag (0=append, 1=nullify) followed by the batch's new_root, for
// each entry. The on-chain program is the authority on the real
// instruction encoding; this is a placeholder precise enough to exercise
// the submit path end to end.
func EncodeInterleavedInstructions(group []preparation.PreparedBatch) []byte {
	out := make([]byte, 0, len(group)*(1+32))
	for _, batch := range group {
		if batch.Kind == preparation.KindAppend {
			out = append(out, 0)
		} else {
			out = append(out, 1)
		}
		root := batch.NewRoot()
		out = append(out, root[:]...)
	}
	return out
}
