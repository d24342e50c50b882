package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := Values{
		MediaType:        MediaTypeFixed,
		ChunkCount:       4,
		SectorsPerChunk:  64,
		BytesPerSector:   512,
		SectorCount:      256,
		MediaFlags:       FlagImage,
		CompressionLevel: 1,
		ErrorGranularity: 64,
	}
	buf := Encode(v)
	require.Len(t, buf, VolumeSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, v.ChunkCount, got.ChunkCount)
	require.Equal(t, v.SectorsPerChunk, got.SectorsPerChunk)
	require.Equal(t, v.BytesPerSector, got.BytesPerSector)
	require.Equal(t, v.SectorCount, got.SectorCount)
	require.Equal(t, uint64(64*512), got.ChunkSize())
	require.Equal(t, uint64(256*512), got.MediaSize())
}

func TestValidateRejectsOversizedSectorCount(t *testing.T) {
	v := Values{ChunkCount: 1, SectorsPerChunk: 64, BytesPerSector: 512, SectorCount: 1000}
	require.Error(t, v.Validate())
}

func TestValidateRejectsZeroGeometry(t *testing.T) {
	v := Values{ChunkCount: 1, SectorsPerChunk: 0, BytesPerSector: 512, SectorCount: 1}
	require.Error(t, v.Validate())
}
