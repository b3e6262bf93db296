package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// EntityRecord is one migrated entity's wire representation: a
// fitness scalar plus its opaque chromosome bytes.
type EntityRecord struct {
	Fitness    float64
	Chromosome []byte
}

// WriteBatch writes the three-message migration sequence the spec
// specifies: a NUMENTITIES count, an ENTITYLEN shared byte length,
// then one ENTITYFITNESS/ENTITYCHROMOSOME pair per entity. Every
// chromosome in a batch is required to share length L; a batch with
// entities of unequal length is a caller error, not a wire-level one.
func WriteBatch(w io.Writer, records []EntityRecord) error {
	if len(records) == 0 {
		return NewMessage(TagNumEntities, encodeUint32(0)).Encode(w)
	}

	l := len(records[0].Chromosome)
	for i, r := range records {
		if len(r.Chromosome) != l {
			return fmt.Errorf("transport: batch entity %d has length %d, want %d", i, len(r.Chromosome), l)
		}
	}

	if err := NewMessage(TagNumEntities, encodeUint32(uint32(len(records)))).Encode(w); err != nil {
		return err
	}
	if err := NewMessage(TagEntityLen, encodeUint32(uint32(l))).Encode(w); err != nil {
		return err
	}
	for _, r := range records {
		if err := NewMessage(TagEntityFitness, encodeFloat64(r.Fitness)).Encode(w); err != nil {
			return err
		}
		if err := NewMessage(TagEntityChromosome, r.Chromosome).Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// ReadBatch reads the message sequence WriteBatch produces.
func ReadBatch(r io.Reader) ([]EntityRecord, error) {
	countMsg, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("transport: read entity count: %w", err)
	}
	if countMsg.Tag != TagNumEntities {
		return nil, fmt.Errorf("transport: expected NUMENTITIES, got tag %d", countMsg.Tag)
	}
	count := decodeUint32(countMsg.Payload)
	if count == 0 {
		return nil, nil
	}

	lenMsg, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("transport: read entity length: %w", err)
	}
	if lenMsg.Tag != TagEntityLen {
		return nil, fmt.Errorf("transport: expected ENTITYLEN, got tag %d", lenMsg.Tag)
	}
	l := decodeUint32(lenMsg.Payload)

	records := make([]EntityRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		fitnessMsg, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("transport: read entity %d fitness: %w", i, err)
		}
		if fitnessMsg.Tag != TagEntityFitness {
			return nil, fmt.Errorf("transport: expected ENTITYFITNESS, got tag %d", fitnessMsg.Tag)
		}
		chromoMsg, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("transport: read entity %d chromosome: %w", i, err)
		}
		if chromoMsg.Tag != TagEntityChromosome {
			return nil, fmt.Errorf("transport: expected ENTITYCHROMOSOME, got tag %d", chromoMsg.Tag)
		}
		if uint32(len(chromoMsg.Payload)) != l {
			return nil, fmt.Errorf("transport: entity %d chromosome length %d, want %d", i, len(chromoMsg.Payload), l)
		}
		records = append(records, EntityRecord{
			Fitness:    decodeFloat64(fitnessMsg.Payload),
			Chromosome: chromoMsg.Payload,
		})
	}
	return records, nil
}

func encodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

func decodeUint32(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}

func encodeFloat64(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}
