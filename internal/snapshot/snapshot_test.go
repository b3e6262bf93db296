package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"genepool/internal/model"
)

func sampleHeader() PopulationHeader {
	var hdr PopulationHeader
	copy(hdr.VersionBlock[:], "genepool test build")
	hdr.Size = 2
	hdr.StableSize = 4
	hdr.NumChromosomes = 1
	hdr.LenChromosomes = 3
	hdr.Rates = model.Rates{Crossover: 0.7, Mutation: 0.1, Migration: 0.05}
	hdr.Scheme = int32(model.SchemeDarwin)
	hdr.Elitism = int32(model.ElitismParentsSurvive)
	hdr.Island = 3
	hdr.HasIsland = true
	for i := range hdr.Callbacks {
		hdr.Callbacks[i] = int32(i)
	}
	return hdr
}

func TestEncodeDecodePopulationV2RoundTrip(t *testing.T) {
	hdr := sampleHeader()
	entities := []EntityRecord{
		{Fitness: 3.5, Chromosome: []byte{1, 2, 3}},
		{Fitness: -1.25, Chromosome: []byte{4, 5, 6}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodePopulation(&buf, hdr, entities))
	require.True(t, strings.HasPrefix(buf.String(), MagicPopulationV2))

	got, gotEntities, err := DecodePopulation(&buf)
	require.NoError(t, err)
	require.True(t, got.HasIsland)
	require.Equal(t, hdr.Size, got.Size)
	require.Equal(t, hdr.Island, got.Island)
	require.Equal(t, hdr.Rates, got.Rates)
	require.Equal(t, hdr.Callbacks, got.Callbacks)
	require.Equal(t, entities, gotEntities)
}

func TestDecodePopulationV1HasNoIsland(t *testing.T) {
	hdr := sampleHeader()

	var buf bytes.Buffer
	require.NoError(t, EncodePopulation(&buf, hdr, nil))

	// Rewrite the v2 magic to v1 and drop the island field to emulate
	// an old writer, then confirm the reader accepts it.
	raw := buf.Bytes()
	v1 := append([]byte(MagicPopulationV1), raw[len(MagicPopulationV2):]...)
	islandFieldOffset := len(MagicPopulationV1) + versionBlockSize + 4*4 + 8*3 + 4*2
	v1WithoutIsland := append(append([]byte{}, v1[:islandFieldOffset]...), v1[islandFieldOffset+4:]...)

	got, _, err := DecodePopulation(bytes.NewReader(v1WithoutIsland))
	require.NoError(t, err)
	require.False(t, got.HasIsland)
	require.Equal(t, int32(-1), got.Island)
}

func TestDecodePopulationRejectsUnknownMagic(t *testing.T) {
	_, _, err := DecodePopulation(strings.NewReader("FORMAT: NOT A REAL FORMAT 999"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDecodePopulationRejectsMissingTrailer(t *testing.T) {
	hdr := sampleHeader()
	var buf bytes.Buffer
	require.NoError(t, EncodePopulation(&buf, hdr, nil))

	truncated := buf.Bytes()[:buf.Len()-len(trailer)]
	_, _, err := DecodePopulation(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestEncodeDecodeEntityRoundTrip(t *testing.T) {
	var versionBlock [64]byte
	copy(versionBlock[:], "v1")
	record := EntityRecord{Fitness: 9.5, Chromosome: []byte{7, 8, 9}}

	var buf bytes.Buffer
	require.NoError(t, EncodeEntity(&buf, versionBlock, record))

	got, err := DecodeEntity(&buf)
	require.NoError(t, err)
	require.Equal(t, record, got)
}
