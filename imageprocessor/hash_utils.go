package imageprocessor

import (
	"encoding/binary"
	"image"
	"math/bits"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// ContentHash hashes raw file bytes
func ContentHash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// PixelHash hashes the width, height and decoded RGB pixel bytes of img
func PixelHash(img image.Image) uint64 {
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[:4], uint32(img.Bounds().Dx()))
	binary.BigEndian.PutUint32(dims[4:], uint32(img.Bounds().Dy()))

	h := murmur3.New64()
	h.Write(dims[:])
	h.Write(RGBBytes(img))
	return h.Sum64()
}

// HammingDistance counts differing bits
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
