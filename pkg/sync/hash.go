package sync

import (
	"crypto/md5" // nolint: gosec
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/sidkik/replisync/pkg/errors"
)

// hashChunkSize is the size of the reads used when digesting a file. The
// digest doesn't depend on it.
const hashChunkSize = 4096

// HashAlgorithm names the digest used by ModeHash.
type HashAlgorithm string

const (
	// SHA512 is the default digest.
	SHA512 HashAlgorithm = "sha512"

	// MD5 is faster, and good enough when nobody is trying to forge a
	// collision in the source tree.
	MD5 HashAlgorithm = "md5"

	// BLAKE2b is the 512 bit variant of BLAKE2b.
	BLAKE2b HashAlgorithm = "blake2b"
)

// HashAlgorithms lists the supported digests.
var HashAlgorithms = []HashAlgorithm{SHA512, MD5, BLAKE2b}

// Valid returns whether alg is a supported digest. The empty value selects
// SHA512.
func (alg HashAlgorithm) Valid() bool {
	if alg == "" {
		return true
	}
	for _, supported := range HashAlgorithms {
		if alg == supported {
			return true
		}
	}
	return false
}

func (alg HashAlgorithm) newHash() (hash.Hash, error) {
	switch alg {
	case SHA512, "":
		return sha512.New(), nil
	case MD5:
		return md5.New(), nil // nolint: gosec
	case BLAKE2b:
		return blake2b.New512(nil)
	default:
		return nil, errors.New("unsupported hash algorithm %q", alg)
	}
}

// HashFile returns the digest of the file at the given path. The file is read
// in fixed size chunks so that large files aren't loaded into memory.
func HashFile(fs afero.Fs, path string, alg HashAlgorithm) (string, error) {
	hasher, err := alg.newHash()
	if err != nil {
		return "", err
	}

	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	chunk := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			hasher.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.WithContext(err, "read")
		}
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
