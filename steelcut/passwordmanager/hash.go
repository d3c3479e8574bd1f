package passwordmanager

import (
	"github.com/GehirnInc/crypt/sha512_crypt"
)

// HashSHA512 returns a sha512-crypt ($6$) string with a random salt,
// suitable for chpasswd -e.
func HashSHA512(password string) (string, error) {
	return sha512_crypt.New().Generate([]byte(password), nil)
}

// VerifySHA512 reports whether password matches a sha512-crypt hash.
func VerifySHA512(hash, password string) bool {
	return sha512_crypt.New().Verify(hash, []byte(password)) == nil
}
