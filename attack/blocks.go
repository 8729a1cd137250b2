package attack

import "fmt"

// Split cuts b into consecutive blockSize-byte blocks. The blocks share b's
// backing array. b must be a non-empty multiple of blockSize.
func Split(b []byte, blockSize int) ([][]byte, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, blockSize)
	}
	l := len(b)
	if l == 0 || l%blockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of %d", ErrInvalidCiphertext, l, blockSize)
	}

	blocks := make([][]byte, 0, l/blockSize)
	for i := 0; i < l; i += blockSize {
		blocks = append(blocks, b[i:i+blockSize:i+blockSize])
	}
	return blocks, nil
}
