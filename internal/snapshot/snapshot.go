// Package snapshot implements the binary population/entity snapshot
// codec: Encode*/Decode* pairs against an io.Writer/io.Reader, the
// same shape as the teacher's JSON-based storage codec but with a
// fixed binary layout, since the spec mandates a specific wire format
// rather than JSON.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"genepool/internal/model"
)

// Magic strings identify a snapshot's format and version. The reader
// accepts both population magics; the writer always emits the current
// one.
const (
	MagicPopulationV2 = "FORMAT: GAUL POPULATION 002"
	MagicPopulationV1 = "FORMAT: GAUL POPULATION 001"
	MagicEntity       = "FORMAT: GAUL ENTITY 001"
	trailer           = "END\x00"

	versionBlockSize = 64
	numCallbackSlots = 18
)

// ErrCorrupt is wrapped into every error a Decode* function returns
// once the header has been validated but the body fails to parse,
// per spec §6 ("corruption is a fatal error for the read operation,
// returned not panicked").
var ErrCorrupt = errors.New("snapshot: corrupt data")

// ErrUnknownFormat is returned when a magic string does not match any
// format this codec understands.
var ErrUnknownFormat = errors.New("snapshot: unrecognised format")

// CallbackSlots is the 18-entry table of built-in operator ids a
// population snapshot's header carries, resolved through
// internal/evo's registry on read-back. NullOperatorID (0) marks an
// unset slot; UnknownOperatorID (-1) marks a slot bound to a
// non-builtin (external) callback that cannot be captured in the
// snapshot.
type CallbackSlots [numCallbackSlots]int32

// PopulationHeader is the fixed-width portion of a population
// snapshot, written and read verbatim against the wire layout spec §6
// specifies.
type PopulationHeader struct {
	VersionBlock   [versionBlockSize]byte
	Size           uint32
	StableSize     uint32
	NumChromosomes uint32
	LenChromosomes uint32
	Rates          model.Rates
	Scheme         int32
	Elitism        int32
	Island         int32 // set to -1 when read from the 001 magic, which has no island field
	HasIsland      bool
	Callbacks      CallbackSlots
}

// EntityRecord is one entity's snapshot representation: its fitness
// scalar plus its opaque chromosome bytes as produced by the
// population's bound ChromosomeCodec.
type EntityRecord struct {
	Fitness    float64
	Chromosome []byte
}

// EncodePopulation writes a full population snapshot: magic, header,
// one EntityRecord per live entity in rank order, then the trailer.
func EncodePopulation(w io.Writer, hdr PopulationHeader, entities []EntityRecord) error {
	hdr.Size = uint32(len(entities))

	if _, err := io.WriteString(w, MagicPopulationV2); err != nil {
		return err
	}
	if err := writeAll(w,
		hdr.VersionBlock[:],
		hdr.Size, hdr.StableSize, hdr.NumChromosomes, hdr.LenChromosomes,
		hdr.Rates.Crossover, hdr.Rates.Mutation, hdr.Rates.Migration,
		hdr.Scheme, hdr.Elitism, hdr.Island,
	); err != nil {
		return err
	}
	for _, id := range hdr.Callbacks {
		if err := writeAll(w, id); err != nil {
			return err
		}
	}
	for i, e := range entities {
		if err := writeAll(w, e.Fitness, uint32(len(e.Chromosome))); err != nil {
			return fmt.Errorf("snapshot: write entity %d header: %w", i, err)
		}
		if _, err := w.Write(e.Chromosome); err != nil {
			return fmt.Errorf("snapshot: write entity %d chromosome: %w", i, err)
		}
	}
	_, err := io.WriteString(w, trailer)
	return err
}

// DecodePopulation reads a population snapshot in either the 001 or
// 002 magic variant.
func DecodePopulation(r io.Reader) (PopulationHeader, []EntityRecord, error) {
	magic := make([]byte, len(MagicPopulationV2))
	if _, err := io.ReadFull(r, magic); err != nil {
		return PopulationHeader{}, nil, fmt.Errorf("snapshot: read magic: %w", err)
	}

	var hdr PopulationHeader
	switch string(magic) {
	case MagicPopulationV2:
		hdr.HasIsland = true
	case MagicPopulationV1:
		hdr.HasIsland = false
	default:
		return PopulationHeader{}, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(magic))
	}

	if _, err := io.ReadFull(r, hdr.VersionBlock[:]); err != nil {
		return PopulationHeader{}, nil, fmt.Errorf("%w: read version block: %v", ErrCorrupt, err)
	}

	fields := []any{&hdr.Size, &hdr.StableSize, &hdr.NumChromosomes, &hdr.LenChromosomes}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return PopulationHeader{}, nil, fmt.Errorf("%w: read size fields: %v", ErrCorrupt, err)
		}
	}

	rateFields := []*float64{&hdr.Rates.Crossover, &hdr.Rates.Mutation, &hdr.Rates.Migration}
	for _, f := range rateFields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return PopulationHeader{}, nil, fmt.Errorf("%w: read rates: %v", ErrCorrupt, err)
		}
	}

	if err := binary.Read(r, binary.BigEndian, &hdr.Scheme); err != nil {
		return PopulationHeader{}, nil, fmt.Errorf("%w: read scheme: %v", ErrCorrupt, err)
	}
	if err := binary.Read(r, binary.BigEndian, &hdr.Elitism); err != nil {
		return PopulationHeader{}, nil, fmt.Errorf("%w: read elitism: %v", ErrCorrupt, err)
	}
	if hdr.HasIsland {
		if err := binary.Read(r, binary.BigEndian, &hdr.Island); err != nil {
			return PopulationHeader{}, nil, fmt.Errorf("%w: read island: %v", ErrCorrupt, err)
		}
	} else {
		hdr.Island = -1
	}

	for i := range hdr.Callbacks {
		if err := binary.Read(r, binary.BigEndian, &hdr.Callbacks[i]); err != nil {
			return PopulationHeader{}, nil, fmt.Errorf("%w: read callback slot %d: %v", ErrCorrupt, i, err)
		}
	}

	entities := make([]EntityRecord, 0, hdr.Size)
	for i := uint32(0); i < hdr.Size; i++ {
		var fitness float64
		if err := binary.Read(r, binary.BigEndian, &fitness); err != nil {
			return PopulationHeader{}, nil, fmt.Errorf("%w: read entity %d fitness: %v", ErrCorrupt, i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return PopulationHeader{}, nil, fmt.Errorf("%w: read entity %d length: %v", ErrCorrupt, i, err)
		}
		chromosome := make([]byte, length)
		if _, err := io.ReadFull(r, chromosome); err != nil {
			return PopulationHeader{}, nil, fmt.Errorf("%w: read entity %d chromosome: %v", ErrCorrupt, i, err)
		}
		entities = append(entities, EntityRecord{Fitness: fitness, Chromosome: chromosome})
	}

	trailerBuf := make([]byte, len(trailer))
	if _, err := io.ReadFull(r, trailerBuf); err != nil || string(trailerBuf) != trailer {
		return PopulationHeader{}, nil, fmt.Errorf("%w: missing trailer", ErrCorrupt)
	}

	return hdr, entities, nil
}

// EncodeEntity writes a standalone entity snapshot.
func EncodeEntity(w io.Writer, versionBlock [versionBlockSize]byte, e EntityRecord) error {
	if _, err := io.WriteString(w, MagicEntity); err != nil {
		return err
	}
	if err := writeAll(w, versionBlock[:], e.Fitness, uint32(len(e.Chromosome))); err != nil {
		return err
	}
	if _, err := w.Write(e.Chromosome); err != nil {
		return err
	}
	_, err := io.WriteString(w, trailer)
	return err
}

// DecodeEntity reads a standalone entity snapshot.
func DecodeEntity(r io.Reader) (EntityRecord, error) {
	magic := make([]byte, len(MagicEntity))
	if _, err := io.ReadFull(r, magic); err != nil {
		return EntityRecord{}, fmt.Errorf("snapshot: read magic: %w", err)
	}
	if string(magic) != MagicEntity {
		return EntityRecord{}, fmt.Errorf("%w: %q", ErrUnknownFormat, string(magic))
	}

	var versionBlock [versionBlockSize]byte
	if _, err := io.ReadFull(r, versionBlock[:]); err != nil {
		return EntityRecord{}, fmt.Errorf("%w: read version block: %v", ErrCorrupt, err)
	}

	var fitness float64
	if err := binary.Read(r, binary.BigEndian, &fitness); err != nil {
		return EntityRecord{}, fmt.Errorf("%w: read fitness: %v", ErrCorrupt, err)
	}
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return EntityRecord{}, fmt.Errorf("%w: read length: %v", ErrCorrupt, err)
	}
	chromosome := make([]byte, length)
	if _, err := io.ReadFull(r, chromosome); err != nil {
		return EntityRecord{}, fmt.Errorf("%w: read chromosome: %v", ErrCorrupt, err)
	}

	trailerBuf := make([]byte, len(trailer))
	if _, err := io.ReadFull(r, trailerBuf); err != nil || string(trailerBuf) != trailer {
		return EntityRecord{}, fmt.Errorf("%w: missing trailer", ErrCorrupt)
	}

	return EntityRecord{Fitness: fitness, Chromosome: chromosome}, nil
}

func writeAll(w io.Writer, fields ...any) error {
	for _, f := range fields {
		if b, ok := f.([]byte); ok {
			if _, err := w.Write(b); err != nil {
				return err
			}
			continue
		}
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return nil
}
