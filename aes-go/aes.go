package aesgo

import (
	"crypto/cipher"
	"errors"

	"github.com/mario-areias/padding-oracle/key"
)

const (
	// BlockSize is the AES block size in bytes.
	BlockSize = 16

	keyBlock = 4 // 4 bytes or 32 bits
	rounds   = 10
)

// ErrKeySize is returned for key lengths other than 128 bits.
var ErrKeySize = errors.New("aesgo: unsupported key size")

// AES is a software AES-128 block cipher. It implements cipher.Block so it can
// be plugged into the crypto/cipher modes.
type AES struct {
	roundKeys [rounds + 1][4][4]byte
}

var _ cipher.Block = (*AES)(nil)

func NewCipher(k key.Key) (*AES, error) {
	if k.Len() != 128/8 {
		return nil, ErrKeySize
	}

	a := &AES{}
	roundKey := k.GetBytes()
	a.roundKeys[0] = convertArrayToMatrix([16]byte(roundKey))
	for r := 1; r <= rounds; r++ {
		roundKey = nextRoundKey(r, roundKey)
		a.roundKeys[r] = convertArrayToMatrix([16]byte(roundKey))
	}

	return a, nil
}

func (a *AES) BlockSize() int {
	return BlockSize
}

// Encrypt encrypts the first block of src into dst.
func (a *AES) Encrypt(dst, src []byte) {
	checkBlocks(dst, src)

	state := convertArrayToMatrix([16]byte(src[:BlockSize]))
	state = addRoundKey(state, a.roundKeys[0])

	for r := 1; r < rounds; r++ {
		state = subMatrix(state)
		state = shiftRows(state)
		state = mixColumns(state)
		state = addRoundKey(state, a.roundKeys[r])
	}

	state = subMatrix(state)
	state = shiftRows(state)
	state = addRoundKey(state, a.roundKeys[rounds])

	out := convertMatrixToArray(state)
	copy(dst, out[:])
}

// Decrypt decrypts the first block of src into dst by running the rounds backwards.
func (a *AES) Decrypt(dst, src []byte) {
	checkBlocks(dst, src)

	state := convertArrayToMatrix([16]byte(src[:BlockSize]))
	state = addRoundKey(state, a.roundKeys[rounds])

	for r := rounds - 1; r > 0; r-- {
		state = invShiftRows(state)
		state = invSubMatrix(state)
		state = addRoundKey(state, a.roundKeys[r])
		state = invMixColumns(state)
	}

	state = invShiftRows(state)
	state = invSubMatrix(state)
	state = addRoundKey(state, a.roundKeys[0])

	out := convertMatrixToArray(state)
	copy(dst, out[:])
}

func checkBlocks(dst, src []byte) {
	if len(src) < BlockSize {
		panic("aesgo: input not full block")
	}
	if len(dst) < BlockSize {
		panic("aesgo: output not full block")
	}
}

// nextRoundKey expands the previous round key into the key for round r.
func nextRoundKey(r int, previousRoundKey []byte) []byte {
	w0 := previousRoundKey[0:keyBlock]
	w1 := previousRoundKey[keyBlock : 2*keyBlock]
	w2 := previousRoundKey[2*keyBlock : 3*keyBlock]
	w3 := previousRoundKey[3*keyBlock : 4*keyBlock]

	t := rotWord([4]byte(w3))
	t = subWord([4]byte(t))
	t = rcon(r-1, [4]byte(t))

	w4 := xor([4]byte(w0), [4]byte(t))
	w5 := xor([4]byte(w4), [4]byte(w1))
	w6 := xor([4]byte(w5), [4]byte(w2))
	w7 := xor([4]byte(w6), [4]byte(w3))

	roundKey := make([]byte, 0, 4*keyBlock)
	roundKey = append(roundKey, w4...)
	roundKey = append(roundKey, w5...)
	roundKey = append(roundKey, w6...)
	roundKey = append(roundKey, w7...)

	return roundKey
}

func addRoundKey(state [4][4]byte, key [4][4]byte) [4][4]byte {
	return xorMatrix(state, key)
}

func subMatrix(word [4][4]byte) [4][4]byte {
	var s [4][4]byte
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			s[i][j] = sBox[word[i][j]]
		}
	}
	return s
}

func invSubMatrix(word [4][4]byte) [4][4]byte {
	var s [4][4]byte
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			s[i][j] = invSBox[word[i][j]]
		}
	}
	return s
}

func shiftRows(state [4][4]byte) [4][4]byte {
	var s [4][4]byte
	s[0] = state[0]

	s[1] = [4]byte{state[1][1], state[1][2], state[1][3], state[1][0]}
	s[2] = [4]byte{state[2][2], state[2][3], state[2][0], state[2][1]}
	s[3] = [4]byte{state[3][3], state[3][0], state[3][1], state[3][2]}

	return s
}

func invShiftRows(state [4][4]byte) [4][4]byte {
	var s [4][4]byte
	s[0] = state[0]

	s[1] = [4]byte{state[1][3], state[1][0], state[1][1], state[1][2]}
	s[2] = [4]byte{state[2][2], state[2][3], state[2][0], state[2][1]}
	s[3] = [4]byte{state[3][1], state[3][2], state[3][3], state[3][0]}

	return s
}

// convertArrayToMatrix lays the block out column by column, as FIPS-197 does.
func convertArrayToMatrix(b [16]byte) [4][4]byte {
	var r [4][4]byte

	r[0] = [4]byte{b[0], b[4], b[8], b[12]}
	r[1] = [4]byte{b[1], b[5], b[9], b[13]}
	r[2] = [4]byte{b[2], b[6], b[10], b[14]}
	r[3] = [4]byte{b[3], b[7], b[11], b[15]}

	return r
}

func convertMatrixToArray(m [4][4]byte) [16]byte {
	var r [16]byte
	for c := 0; c < 4; c++ {
		for row := 0; row < 4; row++ {
			r[4*c+row] = m[row][c]
		}
	}
	return r
}

func rotWord(word [4]byte) []byte {
	return []byte{word[1], word[2], word[3], word[0]}
}

func subWord(word [4]byte) []byte {
	s := make([]byte, 4)
	for i := 0; i < 4; i++ {
		s[i] = sBox[word[i]]
	}
	return s
}

func rcon(round int, word [4]byte) []byte {
	r := rconTable[round]
	return xor(word, r)
}

func xor(a, b [4]byte) []byte {
	x := make([]byte, 4)
	for i := 0; i < 4; i++ {
		x[i] = a[i] ^ b[i]
	}
	return x
}

func xorMatrix(a, b [4][4]byte) [4][4]byte {
	var x [4][4]byte
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			x[i][j] = a[i][j] ^ b[i][j]
		}
	}
	return x
}

var rconTable = [rounds][4]byte{
	{0x01, 0x00, 0x00, 0x00},
	{0x02, 0x00, 0x00, 0x00},
	{0x04, 0x00, 0x00, 0x00},
	{0x08, 0x00, 0x00, 0x00},
	{0x10, 0x00, 0x00, 0x00},
	{0x20, 0x00, 0x00, 0x00},
	{0x40, 0x00, 0x00, 0x00},
	{0x80, 0x00, 0x00, 0x00},
	{0x1B, 0x00, 0x00, 0x00},
	{0x36, 0x00, 0x00, 0x00},
}
