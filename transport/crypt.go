// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package transport

import (
	"crypto/sha1"
	"log"

	kcp "github.com/xtaci/kcp-go/v5"
	"golang.org/x/crypto/pbkdf2"
)

// cryptSalt is used for pbkdf2 key expansion, matching the teacher's SALT.
const cryptSalt = "utcp"

// DeriveKey expands a passphrase into a 32-byte key the way the teacher's
// client/main.go does before handing it to SelectBlockCrypt.
func DeriveKey(pass string) []byte {
	return pbkdf2.Key([]byte(pass), []byte(cryptSalt), 4096, 32, sha1.New)
}

// cryptMethod maps a cipher name to its constructor and required key size.
type cryptMethod struct {
	keySize int
	build   func(key []byte) (kcp.BlockCrypt, error)
}

// cryptMethods mirrors the teacher's std/crypt.go table verbatim: same
// cipher suite, since kcp-go's BlockCrypt implementations are exactly the
// block ciphers this repo's FEC-and-datagram transport also needs.
var cryptMethods = map[string]cryptMethod{
	"null":        {0, func(key []byte) (kcp.BlockCrypt, error) { return nil, nil }},
	"sm4":         {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewSM4BlockCrypt(key) }},
	"tea":         {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewTEABlockCrypt(key) }},
	"xor":         {0, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewSimpleXORBlockCrypt(key) }},
	"none":        {0, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewNoneBlockCrypt(key) }},
	"aes-128":     {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewAESBlockCrypt(key) }},
	"aes-192":     {24, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewAESBlockCrypt(key) }},
	"blowfish":    {0, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewBlowfishBlockCrypt(key) }},
	"twofish":     {0, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewTwofishBlockCrypt(key) }},
	"cast5":       {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewCast5BlockCrypt(key) }},
	"3des":        {24, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewTripleDESBlockCrypt(key) }},
	"xtea":        {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewXTEABlockCrypt(key) }},
	"salsa20":     {0, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewSalsa20BlockCrypt(key) }},
	"aes-128-gcm": {16, func(key []byte) (kcp.BlockCrypt, error) { return kcp.NewAESGCMCrypt(key) }},
}

// SelectBlockCrypt translates a cipher name into a concrete kcp.BlockCrypt,
// falling back to AES on an unknown name or a construction error, and
// reports the effective name actually used.
func SelectBlockCrypt(method string, pass []byte) (kcp.BlockCrypt, string) {
	if m, ok := cryptMethods[method]; ok {
		key := pass
		if m.keySize > 0 && len(pass) >= m.keySize {
			key = pass[:m.keySize]
		}
		block, err := m.build(key)
		if err != nil {
			log.Printf("transport: failed to create %s cipher: %v, falling back to aes", method, err)
			block, _ = kcp.NewAESBlockCrypt(pass)
			return block, "aes-128"
		}
		return block, method
	}
	block, err := kcp.NewAESBlockCrypt(pass)
	if err != nil {
		log.Printf("transport: failed to create default aes cipher: %v", err)
	}
	return block, "aes-128"
}

// cryptCodec wraps a kcp.BlockCrypt (or none, for "null"/"none") behind a
// whole-packet encrypt/decrypt pair, since kcp.BlockCrypt already operates
// on one datagram at a time.
type cryptCodec struct {
	block kcp.BlockCrypt
	name  string
}

func newCryptCodec(block kcp.BlockCrypt, name string) cryptCodec {
	return cryptCodec{block: block, name: name}
}

func (c cryptCodec) encrypt(raw []byte) []byte {
	if c.block == nil {
		return raw
	}
	out := make([]byte, len(raw))
	c.block.Encrypt(out, raw)
	return out
}

func (c cryptCodec) decrypt(raw []byte) ([]byte, error) {
	if c.block == nil {
		return raw, nil
	}
	out := make([]byte, len(raw))
	c.block.Decrypt(out, raw)
	return out, nil
}
