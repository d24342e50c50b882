package integrity

import (
	"crypto/md5"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestsMD5Only(t *testing.T) {
	d := New(false)
	d.Write([]byte("hello "))
	d.Write([]byte("world"))

	want := md5.Sum([]byte("hello world"))
	require.Equal(t, want, d.MD5Sum())

	_, ok := d.SHA1Sum()
	require.False(t, ok)
}

func TestDigestsWithSHA1(t *testing.T) {
	d := New(true)
	d.Write([]byte("payload"))

	wantMD5 := md5.Sum([]byte("payload"))
	wantSHA1 := sha1.Sum([]byte("payload"))

	require.Equal(t, wantMD5, d.MD5Sum())
	got, ok := d.SHA1Sum()
	require.True(t, ok)
	require.Equal(t, wantSHA1, got)
}

func TestVerifyDetectsMismatch(t *testing.T) {
	expected := md5.Sum([]byte("expected"))
	err := Verify(expected, nil, func(d *Digests) error {
		d.Write([]byte("actual"))
		return nil
	})
	require.Error(t, err)
}

func TestVerifyAcceptsMatch(t *testing.T) {
	data := []byte("matching payload")
	expected := md5.Sum(data)
	err := Verify(expected, nil, func(d *Digests) error {
		d.Write(data)
		return nil
	})
	require.NoError(t, err)
}
