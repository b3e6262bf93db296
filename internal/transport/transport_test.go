package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := NewMessage(TagEntityChromosome, []byte("chromosome-bytes"))
	msg.Seq = 42
	msg.Ack = 7

	var buf bytes.Buffer
	require.NoError(t, msg.Encode(&buf))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, msg.Tag, decoded.Tag)
	require.Equal(t, msg.Seq, decoded.Seq)
	require.Equal(t, msg.Ack, decoded.Ack)
	require.Equal(t, msg.Payload, decoded.Payload)
}

func TestWriteReadBatchRoundTrip(t *testing.T) {
	records := []EntityRecord{
		{Fitness: 1.5, Chromosome: []byte{1, 2, 3}},
		{Fitness: -2.25, Chromosome: []byte{4, 5, 6}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBatch(&buf, records))

	got, err := ReadBatch(&buf)
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestWriteBatchRejectsUnequalLengths(t *testing.T) {
	records := []EntityRecord{
		{Fitness: 1, Chromosome: []byte{1, 2, 3}},
		{Fitness: 2, Chromosome: []byte{4, 5}},
	}
	var buf bytes.Buffer
	require.Error(t, WriteBatch(&buf, records))
}

func TestReadBatchEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBatch(&buf, nil))
	got, err := ReadBatch(&buf)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPipeSendReceive(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	records := []EntityRecord{{Fitness: 3.0, Chromosome: []byte{9, 9}}}

	errCh := make(chan error, 1)
	go func() { errCh <- p.Send(records) }()

	got, err := p.Receive()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, records, got)
}
