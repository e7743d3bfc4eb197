package audio

import "encoding/binary"

// RenderWAV wraps raw mono s16le PCM in a minimal RIFF/WAVE container.
// Speech endpoints accept file uploads, not bare sample buffers, so
// chunks are wrapped before submission.
func RenderWAV(pcm []byte, sampleRate int) []byte {
	const headerLen = 44
	byteRate := sampleRate * BytesPerFrame

	out := make([]byte, headerLen+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt block size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], BytesPerFrame) // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)            // bits per sample

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[headerLen:], pcm)
	return out
}
