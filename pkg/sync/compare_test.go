package sync

import (
	"crypto/md5" // nolint: gosec
	"crypto/sha512"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestFilesChanged(t *testing.T) {
	src := mockFile{path: "/src/file", contents: "hello"}
	dst := src.WithPath("/dst/file")

	tests := []struct {
		name    string
		replica *mockFile
		dirAt   bool
		mode    Mode
		exp     bool
	}{
		{
			name: "MissingReplicaTimestamp",
			mode: ModeTimestamp,
			exp:  true,
		},
		{
			name: "MissingReplicaHash",
			mode: ModeHash,
			exp:  true,
		},
		{
			name:    "DefaultModeIsTimestamp",
			replica: mockPtr(dst.WithModTime(refTime.Add(time.Minute))),
			exp:     true,
		},
		{
			name:    "SameModTime",
			replica: mockPtr(dst),
			mode:    ModeTimestamp,
			exp:     false,
		},
		{
			name:    "SubSecondModTimeDifference",
			replica: mockPtr(dst.WithModTime(refTime.Add(time.Millisecond))),
			mode:    ModeTimestamp,
			exp:     true,
		},
		{
			name:    "TimestampIgnoresContents",
			replica: mockPtr(dst.WithContents("hellp")),
			mode:    ModeTimestamp,
			exp:     false,
		},
		{
			name:    "HashIgnoresModTime",
			replica: mockPtr(dst.WithModTime(refTime.Add(time.Hour))),
			mode:    ModeHash,
			exp:     false,
		},
		{
			name:    "HashDifferentSize",
			replica: mockPtr(dst.WithContents("hello world")),
			mode:    ModeHash,
			exp:     true,
		},
		{
			name:    "HashSameSizeDifferentContents",
			replica: mockPtr(dst.WithContents("hellp")),
			mode:    ModeHash,
			exp:     true,
		},
		{
			name:  "ReplicaIsDirectory",
			dirAt: true,
			mode:  ModeHash,
			exp:   true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, src)
			makeDirs(t, fs, "/dst")
			if test.replica != nil {
				writeFiles(t, fs, *test.replica)
			}
			if test.dirAt {
				makeDirs(t, fs, dst.path)
			}

			changed, err := FilesChanged(fs, src.path, dst.path, Options{Mode: test.mode})
			assert.NoError(t, err)
			assert.Equal(t, test.exp, changed)
		})
	}
}

func TestFilesChangedErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, mockFile{path: "/dst/file", contents: "x"})

	_, err := FilesChanged(fs, "/src/missing", "/dst/file", Options{Mode: ModeHash})
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "stat source:"))

	writeFiles(t, fs, mockFile{path: "/src/file", contents: "x"})
	_, err = FilesChanged(fs, "/src/file", "/dst/file", Options{Mode: "bogus"})
	assert.EqualError(t, err, `unknown comparison mode "bogus"`)
}

func TestHashFile(t *testing.T) {
	// Larger than a single chunk, and not a multiple of the chunk size.
	contents := strings.Repeat("0123456789", hashChunkSize/4)

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, mockFile{path: "/file", contents: contents})

	sha := sha512.Sum512([]byte(contents))
	md5Sum := md5.Sum([]byte(contents)) // nolint: gosec
	blake := blake2b.Sum512([]byte(contents))

	tests := []struct {
		alg HashAlgorithm
		exp []byte
	}{
		{"", sha[:]},
		{SHA512, sha[:]},
		{MD5, md5Sum[:]},
		{BLAKE2b, blake[:]},
	}

	for _, test := range tests {
		hash, err := HashFile(fs, "/file", test.alg)
		require.NoError(t, err, string(test.alg))
		assert.Equal(t, base64.StdEncoding.EncodeToString(test.exp), hash, string(test.alg))
	}

	_, err := HashFile(fs, "/file", "crc32")
	assert.EqualError(t, err, `unsupported hash algorithm "crc32"`)

	_, err = HashFile(fs, "/missing", SHA512)
	assert.Error(t, err)
}

func TestHashAlgorithmValid(t *testing.T) {
	assert.True(t, HashAlgorithm("").Valid())
	assert.True(t, MD5.Valid())
	assert.True(t, BLAKE2b.Valid())
	assert.False(t, HashAlgorithm("sha1").Valid())
}

func mockPtr(f mockFile) *mockFile {
	return &f
}
