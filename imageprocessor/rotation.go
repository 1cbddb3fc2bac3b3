package imageprocessor

import "image"

// RotationHashes hashes the pixels of a QuadrantMaxDim thumbnail at 0, 90, 180 and 270 degrees.
// The thumbnail commutes with rotation, so a rotated copy yields the same four hashes in another order.
func RotationHashes(img image.Image) [4]uint64 {
	var hashes [4]uint64
	thumb := SquareThumbnail(img, QuadrantMaxDim)
	for i := range hashes {
		if i > 0 {
			thumb = Rotate90(thumb)
		}
		hashes[i] = PixelHash(thumb)
	}
	return hashes
}

// RotationInvariantHash picks the smallest of the four rotation hashes
func RotationInvariantHash(hashes [4]uint64) uint64 {
	lowest := hashes[0]
	for _, h := range hashes[1:] {
		if h < lowest {
			lowest = h
		}
	}
	return lowest
}
